package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"gorm.io/gorm"

	"github.com/pysugar/report-nexus/internal/apierr"
	"github.com/pysugar/report-nexus/internal/auth/oauth"
	"github.com/pysugar/report-nexus/internal/auth/token"
	"github.com/pysugar/report-nexus/internal/db"
	"github.com/pysugar/report-nexus/internal/db/models"
	"github.com/pysugar/report-nexus/internal/logging"
	"github.com/pysugar/report-nexus/internal/util"
)

// XeroContactsURL is the Xero accounting endpoint listing contacts.
const XeroContactsURL = "https://api.xero.com/api.xro/2.0/Contacts"

type connectionDetails struct {
	ConnectedAt time.Time `json:"connectedAt"`
}

// XeroConnectionHandler reports whether the caller has connected Xero.
// GET /api/xero/connection
func XeroConnectionHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		acc, err := db.FindAccount(r.Context(), database, caller.ID, oauth.ProviderXero)
		if err != nil {
			writeError(w, r, fmt.Errorf("load xero account: %w", err))
			return
		}

		var details *connectionDetails
		if acc != nil {
			details = &connectionDetails{ConnectedAt: acc.UpdatedAt.UTC()}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"connected":         acc != nil,
			"connectionDetails": details,
		})
	}
}

// XeroAuthHandler returns the Xero consent URL and remembers who asked for it.
// GET /api/xero/auth
func XeroAuthHandler(reg *oauth.Registry, store sessions.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := reg.Get(oauth.ProviderXero)
		if !ok {
			writeError(w, r, apierr.New(apierr.Internal, "Xero API credentials not configured"))
			return
		}
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		state := oauth.NewState()
		s := sessionOf(store, r)
		s.Values[keyXeroState] = state
		s.Values[keyXeroUserID] = caller.ID
		if err := s.Save(r, w); err != nil {
			writeError(w, r, fmt.Errorf("save session: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"authUrl": p.AuthCodeURL(state)})
	}
}

// XeroCallbackHandler stores the tokens of a completed Xero consent.
// GET /api/xero/callback
func XeroCallbackHandler(database *gorm.DB, reg *oauth.Registry, store sessions.Store, frontendURL string) http.HandlerFunc {
	frontend := strings.TrimRight(frontendURL, "/")
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := reg.Get(oauth.ProviderXero)
		if !ok {
			writeError(w, r, apierr.New(apierr.Internal, "Xero API credentials not configured"))
			return
		}
		ctx := r.Context()
		log := logging.FromContext(ctx)

		s := sessionOf(store, r)
		expected, _ := s.Values[keyXeroState].(string)
		state := r.URL.Query().Get("state")
		if state == "" || state != expected {
			writeError(w, r, apierr.New(apierr.Validation, "Invalid state parameter"))
			return
		}
		userID, _ := s.Values[keyXeroUserID].(uint)
		if userID == 0 {
			writeError(w, r, apierr.New(apierr.Unauthorized, "Unauthorized"))
			return
		}

		tok, err := p.Exchange(ctx, r.URL.Query().Get("code"))
		if err != nil {
			writeError(w, r, fmt.Errorf("exchange xero code: %w", err))
			return
		}

		accountID := oauth.FallbackAccountID(tok.AccessToken)
		if profile, err := p.FetchProfile(ctx, tok.AccessToken); err != nil {
			log.Warn().Err(err).Msg("Xero user lookup failed, using token-derived account id")
		} else {
			accountID = profile.ID
		}

		acc := &models.Account{
			UserID:            userID,
			Type:              "oauth",
			Provider:          oauth.ProviderXero,
			ProviderAccountID: accountID,
			AccessToken:       tok.AccessToken,
			RefreshToken:      tok.RefreshToken,
			TokenType:         "Bearer",
			Scope:             oauth.Scope(tok),
			IDToken:           oauth.IDToken(tok),
			ExpiresAt:         oauth.ExpiresAt(tok),
		}
		if tenants, err := p.Connections(ctx, tok.AccessToken); err != nil {
			log.Warn().Err(err).Msg("Xero connections lookup failed, tenant resolved on first run")
		} else if len(tenants) > 0 {
			acc.TenantID = tenants[0].TenantID
		}

		if err := db.UpsertAccount(ctx, database, acc); err != nil {
			writeError(w, r, fmt.Errorf("store xero account: %w", err))
			return
		}
		log.Info().
			Uint("user_id", userID).
			Str("xero_user", accountID).
			Str("tenant_id", acc.TenantID).
			Str("token", util.MaskToken(acc.AccessToken)).
			Msg("Xero account connected")

		delete(s.Values, keyXeroState)
		delete(s.Values, keyXeroUserID)
		if err := s.Save(r, w); err != nil {
			log.Warn().Err(err).Msg("failed to clear Xero session state")
		}
		http.Redirect(w, r, frontend+"/dashboard?xero=connected", http.StatusFound)
	}
}

// XeroDisconnectHandler removes the caller's Xero connections.
// DELETE /api/xero/disconnect
func XeroDisconnectHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		n, err := db.DeleteAccounts(r.Context(), database, caller.ID, oauth.ProviderXero)
		if err != nil {
			writeError(w, r, fmt.Errorf("delete xero accounts: %w", err))
			return
		}
		logging.FromContext(r.Context()).Info().Int64("removed", n).Msg("Xero disconnected")
		writeJSON(w, http.StatusOK, map[string]string{"message": "Xero disconnected successfully"})
	}
}

// XeroCustomersHandler proxies the caller's Xero contacts.
// GET /api/xero/customers
func XeroCustomersHandler(tokens *token.Manager, reg *oauth.Registry, contactsURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		p, ok := reg.Get(oauth.ProviderXero)
		if !ok {
			writeError(w, r, apierr.New(apierr.Internal, "Xero API credentials not configured"))
			return
		}
		ctx := r.Context()

		acc, err := tokens.GetConnection(ctx, caller.ID, oauth.ProviderXero)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if acc == nil {
			writeError(w, r, apierr.New(apierr.NotFound, "No Xero connection found"))
			return
		}
		fresh, err := tokens.EnsureFresh(ctx, acc)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tenantID, err := tokens.ResolveTenant(ctx, acc, fresh.AccessToken)
		if err != nil {
			writeError(w, r, err)
			return
		}

		var contacts json.RawMessage
		if err := p.GetJSON(ctx, fresh.AccessToken, tenantID, contactsURL, &contacts); err != nil {
			var httpErr *oauth.HTTPError
			if errors.As(err, &httpErr) && httpErr.Status == http.StatusUnauthorized {
				writeError(w, r, apierr.Wrap(apierr.CredentialExpired, token.ExpiredMessage, err))
				return
			}
			writeError(w, r, apierr.Wrap(apierr.Internal, "Failed to fetch Xero customers", err))
			return
		}
		writeJSON(w, http.StatusOK, contacts)
	}
}
