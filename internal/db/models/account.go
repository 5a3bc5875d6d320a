package models

import (
	"fmt"
	"log"
	"time"

	"github.com/pysugar/report-nexus/internal/crypto"
	"gorm.io/gorm"
)

var encryptor *crypto.TokenEncryptor

// InitEncryption enables at-rest encryption of token columns. An empty key leaves tokens in plaintext.
func InitEncryption(key string) error {
	if key == "" {
		encryptor = nil
		log.Println("WARNING: NEXUS_TOKEN_ENCRYPTION_KEY not set, OAuth tokens are stored unencrypted")
		return nil
	}
	enc, err := crypto.NewTokenEncryptor(key)
	if err != nil {
		return err
	}
	encryptor = enc
	return nil
}

// Account stores an OAuth connection of a user to an external provider.
type Account struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"index;not null" json:"userId"`
	Type              string    `gorm:"not null;default:'oauth'" json:"type"`
	Provider          string    `gorm:"not null;uniqueIndex:idx_provider_account" json:"provider"` // "xero", "google", "microsoft"
	ProviderAccountID string    `gorm:"not null;uniqueIndex:idx_provider_account" json:"providerAccountId"`
	AccessToken       string    `gorm:"type:text" json:"-"`
	RefreshToken      string    `gorm:"type:text" json:"-"`
	TokenType         string    `json:"tokenType,omitempty"`
	Scope             string    `gorm:"type:text" json:"scope,omitempty"`
	IDToken           string    `gorm:"type:text" json:"-"`
	ExpiresAt         int64     `gorm:"not null;default:0" json:"expiresAt"` // unix seconds, 0 = unknown
	TenantID          string    `json:"tenantId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Expired reports whether the stored access token has a known expiry in the past.
func (a *Account) Expired(now time.Time) bool {
	return a.ExpiresAt != 0 && a.ExpiresAt < now.Unix()
}

// BeforeSave encrypts tokens. Callers must not reuse the struct's token fields after a save without reloading.
func (a *Account) BeforeSave(tx *gorm.DB) error {
	var err error
	if a.AccessToken, err = SealToken(a.AccessToken); err != nil {
		return err
	}
	if a.RefreshToken, err = SealToken(a.RefreshToken); err != nil {
		return err
	}
	a.IDToken, err = SealToken(a.IDToken)
	return err
}

// AfterSave restores plaintext so the in-memory struct stays usable after Create/Save.
func (a *Account) AfterSave(tx *gorm.DB) error {
	return a.open()
}

// AfterFind decrypts tokens after loading from database.
func (a *Account) AfterFind(tx *gorm.DB) error {
	return a.open()
}

func (a *Account) open() error {
	var err error
	if a.AccessToken, err = OpenToken(a.AccessToken); err != nil {
		return fmt.Errorf("account %d access token: %w", a.ID, err)
	}
	if a.RefreshToken, err = OpenToken(a.RefreshToken); err != nil {
		return fmt.Errorf("account %d refresh token: %w", a.ID, err)
	}
	if a.IDToken, err = OpenToken(a.IDToken); err != nil {
		return fmt.Errorf("account %d id token: %w", a.ID, err)
	}
	return nil
}

// SealToken encrypts a token for column-level updates that bypass hooks.
func SealToken(plain string) (string, error) {
	if encryptor == nil || plain == "" {
		return plain, nil
	}
	return encryptor.Encrypt(plain)
}

// OpenToken reverses SealToken.
func OpenToken(stored string) (string, error) {
	if encryptor == nil || stored == "" {
		return stored, nil
	}
	return encryptor.Decrypt(stored)
}
