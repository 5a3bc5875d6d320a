package db

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/report-nexus/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const signingKeyConfig = "jwt_secret"

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string, production bool) (*gorm.DB, error) {
	level := logger.Info
	if production {
		level = logger.Warn
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Account{},
		&models.Report{},
		&models.ReportRun{},
		&models.Config{},
	)
}

// EnsureSigningKey returns the JWT signing secret, generating and storing one on first run.
func EnsureSigningKey(db *gorm.DB) (string, error) {
	var cfg models.Config
	err := db.Where("key = ?", signingKeyConfig).First(&cfg).Error
	if err == nil && cfg.Value != "" {
		return cfg.Value, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("load signing key: %w", err)
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(keyBytes)
	if err := db.Save(&models.Config{Key: signingKeyConfig, Value: secret}).Error; err != nil {
		return "", fmt.Errorf("store signing key: %w", err)
	}
	log.Printf("🔑 Generated new JWT signing secret (set JWT_SECRET to pin it)")
	return secret, nil
}
