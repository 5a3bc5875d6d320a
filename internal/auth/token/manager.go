// Package token hands out usable provider access tokens, refreshing expired ones.
package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pysugar/report-nexus/internal/apierr"
	"github.com/pysugar/report-nexus/internal/auth/oauth"
	"github.com/pysugar/report-nexus/internal/db"
	"github.com/pysugar/report-nexus/internal/db/models"
	"github.com/pysugar/report-nexus/internal/metrics"
	"github.com/pysugar/report-nexus/internal/util"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// ExpiredMessage is returned to clients when a refresh fails.
const ExpiredMessage = "Xero authentication expired. Please reconnect your Xero account."

// Provider is the part of an OAuth provider the manager needs.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Connections(ctx context.Context, accessToken string) ([]oauth.Tenant, error)
}

// Fresh is a usable access token.
type Fresh struct {
	AccessToken string
	Refreshed   bool
}

// Manager reads stored connections and refreshes expired tokens.
// Refreshes of the same account are collapsed into one provider call.
type Manager struct {
	db        *gorm.DB
	mu        sync.RWMutex
	providers map[string]Provider
	group     singleflight.Group
	now       func() time.Time
}

type refreshed struct {
	accessToken  string
	refreshToken string
	expiresAt    int64
}

// NewManager creates a token manager.
func NewManager(db *gorm.DB) *Manager {
	return &Manager{
		db:        db,
		providers: make(map[string]Provider),
		now:       time.Now,
	}
}

// Register makes provider available for refreshes of accounts with the given provider id.
func (m *Manager) Register(id string, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[id] = p
}

func (m *Manager) provider(id string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	return p, ok
}

// GetConnection returns the user's stored account for provider, or nil when there is none.
func (m *Manager) GetConnection(ctx context.Context, userID uint, provider string) (*models.Account, error) {
	acc, err := db.FindAccount(ctx, m.db, userID, provider)
	if err != nil {
		return nil, fmt.Errorf("load %s connection for user %d: %w", provider, userID, err)
	}
	return acc, nil
}

// EnsureFresh returns a usable access token for acc, refreshing it first when its expiry has passed.
// On refresh, acc is updated in place with the stored values.
func (m *Manager) EnsureFresh(ctx context.Context, acc *models.Account) (Fresh, error) {
	if !acc.Expired(m.now()) {
		return Fresh{AccessToken: acc.AccessToken}, nil
	}

	observed := acc.ExpiresAt
	key := acc.Provider + ":" + strconv.FormatUint(uint64(acc.ID), 10)
	ch := m.group.DoChan(key, func() (any, error) {
		// Shared by every waiter, so one caller's cancellation must not fail the others.
		return m.refresh(context.WithoutCancel(ctx), acc.ID, acc.Provider, acc.RefreshToken, observed)
	})

	select {
	case <-ctx.Done():
		return Fresh{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Fresh{}, res.Err
		}
		r := res.Val.(*refreshed)
		acc.AccessToken = r.accessToken
		acc.RefreshToken = r.refreshToken
		acc.ExpiresAt = r.expiresAt
		return Fresh{AccessToken: r.accessToken, Refreshed: true}, nil
	}
}

func (m *Manager) refresh(ctx context.Context, accountID uint, providerID, refreshToken string, observedExpiry int64) (*refreshed, error) {
	p, ok := m.provider(providerID)
	if !ok {
		return nil, apierr.Newf(apierr.Internal, "OAuth provider %s is not configured", providerID)
	}

	tok, err := p.Refresh(ctx, refreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(providerID, "error").Inc()
		if isPermanentRefreshError(err) {
			log.Printf("❌ Refresh token rejected for %s account %d, user must reconnect: %v", providerID, accountID, err)
		} else {
			log.Printf("❌ Refresh failed for %s account %d: %v", providerID, accountID, err)
		}
		return nil, apierr.Wrap(apierr.CredentialExpired, ExpiredMessage, err)
	}

	next := &refreshed{
		accessToken:  tok.AccessToken,
		refreshToken: tok.RefreshToken,
		expiresAt:    oauth.ExpiresAt(tok),
	}
	if next.refreshToken == "" {
		next.refreshToken = refreshToken
	}

	sealedAccess, err := models.SealToken(next.accessToken)
	if err != nil {
		return nil, err
	}
	sealedRefresh, err := models.SealToken(next.refreshToken)
	if err != nil {
		return nil, err
	}

	// Only overwrite the row if nobody else refreshed it since we read it.
	res := m.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND expires_at = ?", accountID, observedExpiry).
		UpdateColumns(map[string]any{
			"access_token":  sealedAccess,
			"refresh_token": sealedRefresh,
			"expires_at":    next.expiresAt,
			"updated_at":    m.now(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("store refreshed token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.Account
		if err := m.db.WithContext(ctx).First(&current, accountID).Error; err != nil {
			return nil, fmt.Errorf("reload account %d after concurrent refresh: %w", accountID, err)
		}
		metrics.TokenRefreshes.WithLabelValues(providerID, "superseded").Inc()
		log.Printf("🔄 %s account %d was refreshed concurrently, using stored token %s", providerID, accountID, util.MaskToken(current.AccessToken))
		return &refreshed{
			accessToken:  current.AccessToken,
			refreshToken: current.RefreshToken,
			expiresAt:    current.ExpiresAt,
		}, nil
	}

	metrics.TokenRefreshes.WithLabelValues(providerID, "ok").Inc()
	log.Printf("✅ Refreshed %s token for account %d (token: %s, expires: %s)",
		providerID, accountID, util.MaskToken(next.accessToken), time.Unix(next.expiresAt, 0).Format(time.RFC3339))
	return next, nil
}

// ResolveTenant returns the organisation to query for acc, asking the provider and remembering
// the first tenant when none is stored yet.
func (m *Manager) ResolveTenant(ctx context.Context, acc *models.Account, accessToken string) (string, error) {
	if acc.TenantID != "" {
		return acc.TenantID, nil
	}
	p, ok := m.provider(acc.Provider)
	if !ok {
		return "", apierr.Newf(apierr.Internal, "OAuth provider %s is not configured", acc.Provider)
	}

	tenants, err := p.Connections(ctx, accessToken)
	if err != nil {
		var httpErr *oauth.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == 401 {
			return "", apierr.Wrap(apierr.CredentialExpired, ExpiredMessage, err)
		}
		return "", apierr.Wrap(apierr.Internal, "Failed to load Xero organizations", err)
	}
	if len(tenants) == 0 || tenants[0].TenantID == "" {
		return "", apierr.New(apierr.CredentialMissing, "No Xero organizations found")
	}

	tenantID := tenants[0].TenantID
	if err := db.SetAccountTenant(ctx, m.db, acc.ID, tenantID); err != nil {
		log.Printf("⚠️ Failed to store tenant for account %d: %v", acc.ID, err)
	}
	acc.TenantID = tenantID
	return tenantID, nil
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
