package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"gorm.io/gorm"

	"github.com/pysugar/report-nexus/internal/apierr"
	"github.com/pysugar/report-nexus/internal/auth/oauth"
	"github.com/pysugar/report-nexus/internal/auth/session"
	"github.com/pysugar/report-nexus/internal/db"
	"github.com/pysugar/report-nexus/internal/db/models"
	"github.com/pysugar/report-nexus/internal/logging"
)

type registerRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
	Name     *string `json:"name" validate:"omitempty,max=200"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
}

// RegisterHandler creates a password user.
// POST /api/auth/register
func RegisterHandler(database *gorm.DB, signer *session.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		ctx := r.Context()

		_, err := db.FindUserByEmail(ctx, database, req.Email)
		switch {
		case err == nil:
			writeError(w, r, apierr.New(apierr.Validation, "User already exists"))
			return
		case !db.IsNotFound(err):
			writeError(w, r, fmt.Errorf("lookup user: %w", err))
			return
		}

		hash, err := session.HashPassword(req.Password)
		if err != nil {
			writeError(w, r, fmt.Errorf("hash password: %w", err))
			return
		}
		user := &models.User{Email: req.Email, Name: req.Name, Password: &hash}
		if err := db.CreateUser(ctx, database, user); err != nil {
			writeError(w, r, fmt.Errorf("create user: %w", err))
			return
		}

		token, err := signer.Issue(user)
		if err != nil {
			writeError(w, r, fmt.Errorf("issue token: %w", err))
			return
		}
		logging.FromContext(ctx).Info().Uint("user_id", user.ID).Msg("user registered")
		writeJSON(w, http.StatusCreated, authResponse{Message: "User registered successfully", Token: token, User: user})
	}
}

// LoginHandler exchanges email and password for a bearer token.
// POST /api/auth/login
func LoginHandler(database *gorm.DB, signer *session.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		invalid := apierr.New(apierr.Unauthorized, "Invalid credentials")

		user, err := db.FindUserByEmail(r.Context(), database, req.Email)
		if err != nil {
			if db.IsNotFound(err) {
				writeError(w, r, invalid)
				return
			}
			writeError(w, r, fmt.Errorf("lookup user: %w", err))
			return
		}
		if user.Password == nil {
			writeError(w, r, invalid)
			return
		}
		ok, err := session.VerifyPassword(req.Password, *user.Password)
		if err != nil {
			logging.FromContext(r.Context()).Warn().Err(err).Uint("user_id", user.ID).Msg("stored password hash unusable")
		}
		if !ok {
			writeError(w, r, invalid)
			return
		}

		token, err := signer.Issue(user)
		if err != nil {
			writeError(w, r, fmt.Errorf("issue token: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, authResponse{Message: "Login successful", Token: token, User: user})
	}
}

// MeHandler returns the authenticated user.
// GET /api/auth/me
func MeHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		user, err := db.FindUserByID(r.Context(), database, caller.ID)
		if err != nil {
			if db.IsNotFound(err) {
				writeError(w, r, apierr.New(apierr.NotFound, "User not found"))
				return
			}
			writeError(w, r, fmt.Errorf("load user: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

// loginProvider returns the sign-in provider named by the {provider} URL parameter.
func loginProvider(reg *oauth.Registry, r *http.Request) (*oauth.Provider, bool) {
	id := chi.URLParam(r, "provider")
	if id != oauth.ProviderGoogle && id != oauth.ProviderMicrosoft {
		return nil, false
	}
	return reg.Get(id)
}

// OAuthLoginHandler starts a Google or Microsoft sign-in.
// GET /api/auth/{provider}
func OAuthLoginHandler(reg *oauth.Registry, store sessions.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loginProvider(reg, r)
		if !ok {
			NotFoundHandler()(w, r)
			return
		}

		state := oauth.NewState()
		s := sessionOf(store, r)
		s.Values[keyLoginState] = state
		if err := s.Save(r, w); err != nil {
			writeError(w, r, fmt.Errorf("save session: %w", err))
			return
		}
		http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
	}
}

// OAuthCallbackHandler completes a sign-in and hands the frontend a bearer token.
// GET /api/auth/{provider}/callback
func OAuthCallbackHandler(database *gorm.DB, reg *oauth.Registry, store sessions.Store, signer *session.Signer, frontendURL string) http.HandlerFunc {
	frontend := strings.TrimRight(frontendURL, "/")
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loginProvider(reg, r)
		if !ok {
			NotFoundHandler()(w, r)
			return
		}
		log := logging.FromContext(r.Context())
		fail := func(err error) {
			log.Error().Err(err).Str("provider", p.Name()).Msg("OAuth sign-in failed")
			http.Redirect(w, r, frontend+"/auth/login?error="+url.QueryEscape("Authentication failed"), http.StatusFound)
		}

		s := sessionOf(store, r)
		expected, _ := s.Values[keyLoginState].(string)
		delete(s.Values, keyLoginState)
		if err := s.Save(r, w); err != nil {
			log.Warn().Err(err).Msg("failed to clear OAuth state")
		}
		if expected == "" || r.URL.Query().Get("state") != expected {
			fail(errors.New("state mismatch"))
			return
		}
		if e := r.URL.Query().Get("error"); e != "" {
			fail(fmt.Errorf("provider returned error %q", e))
			return
		}

		tok, err := p.Exchange(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			fail(fmt.Errorf("exchange code: %w", err))
			return
		}
		profile, err := p.FetchProfile(r.Context(), tok.AccessToken)
		if err != nil {
			fail(fmt.Errorf("fetch profile: %w", err))
			return
		}

		user, err := signInUser(r.Context(), database, p.Name(), profile)
		if err != nil {
			fail(err)
			return
		}
		token, err := signer.Issue(user)
		if err != nil {
			fail(fmt.Errorf("issue token: %w", err))
			return
		}
		log.Info().Uint("user_id", user.ID).Str("provider", p.Name()).Msg("OAuth sign-in")
		http.Redirect(w, r, frontend+"/auth/callback?token="+url.QueryEscape(token), http.StatusFound)
	}
}

// signInUser finds the user linked to the provider identity, links an existing
// user with the same email, or creates a new user.
func signInUser(ctx context.Context, database *gorm.DB, provider string, profile *oauth.Profile) (*models.User, error) {
	acc, err := db.FindAccountByProviderID(ctx, database, provider, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if acc != nil {
		return db.FindUserByID(ctx, database, acc.UserID)
	}

	email := profile.Email
	if strings.TrimSpace(email) == "" {
		email = fmt.Sprintf("%s_%s@example.com", provider, profile.ID)
	}

	var user *models.User
	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := db.FindUserByEmail(ctx, tx, email)
		switch {
		case err == nil:
			user = existing
		case db.IsNotFound(err):
			user = &models.User{Email: email, Name: optional(profile.Name), Image: optional(profile.Image)}
			if err := db.CreateUser(ctx, tx, user); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
		default:
			return fmt.Errorf("lookup user: %w", err)
		}
		return db.UpsertAccount(ctx, tx, &models.Account{
			UserID:            user.ID,
			Type:              "oauth",
			Provider:          provider,
			ProviderAccountID: profile.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
