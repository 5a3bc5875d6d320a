package db

import (
	"context"
	"errors"
	"strings"

	"github.com/pysugar/report-nexus/internal/db/models"
	"gorm.io/gorm"
)

// FindUserByID returns gorm.ErrRecordNotFound when absent.
func FindUserByID(ctx context.Context, db *gorm.DB, id uint) (*models.User, error) {
	var u models.User
	if err := db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByEmail looks up a user by normalized email.
func FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*models.User, error) {
	var u models.User
	if err := db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts u with a normalized email.
func CreateUser(ctx context.Context, db *gorm.DB, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	return db.WithContext(ctx).Create(u).Error
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsNotFound reports whether err is gorm's missing-row sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
