package db

import (
	"context"
	"errors"

	"github.com/pysugar/report-nexus/internal/db/models"
	"gorm.io/gorm"
)

// FindAccount returns the user's most recently updated account for provider, or nil when none exists.
func FindAccount(ctx context.Context, db *gorm.DB, userID uint, provider string) (*models.Account, error) {
	var acc models.Account
	err := db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Order("updated_at DESC").
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// FindAccountByProviderID returns the account keyed by (provider, providerAccountId), or nil.
func FindAccountByProviderID(ctx context.Context, db *gorm.DB, provider, providerAccountID string) (*models.Account, error) {
	var acc models.Account
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// UpsertAccount inserts acc or updates the row with the same (provider, providerAccountId).
// An existing row keeps its refresh token when acc carries none.
func UpsertAccount(ctx context.Context, db *gorm.DB, acc *models.Account) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Account
		err := tx.Where("provider = ? AND provider_account_id = ?", acc.Provider, acc.ProviderAccountID).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if acc.Type == "" {
				acc.Type = "oauth"
			}
			return tx.Create(acc).Error
		case err != nil:
			return err
		}

		existing.UserID = acc.UserID
		existing.AccessToken = acc.AccessToken
		if acc.RefreshToken != "" {
			existing.RefreshToken = acc.RefreshToken
		}
		existing.ExpiresAt = acc.ExpiresAt
		existing.TokenType = acc.TokenType
		existing.Scope = acc.Scope
		existing.IDToken = acc.IDToken
		if acc.TenantID != "" {
			existing.TenantID = acc.TenantID
		}
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*acc = existing
		return nil
	})
}

// SetAccountTenant records the organisation chosen for an account.
func SetAccountTenant(ctx context.Context, db *gorm.DB, accountID uint, tenantID string) error {
	return db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", accountID).
		UpdateColumn("tenant_id", tenantID).Error
}

// DeleteAccounts removes all of the user's accounts for provider and returns how many were removed.
func DeleteAccounts(ctx context.Context, db *gorm.DB, userID uint, provider string) (int64, error) {
	res := db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).Delete(&models.Account{})
	return res.RowsAffected, res.Error
}
