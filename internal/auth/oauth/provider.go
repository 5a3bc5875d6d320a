// Package oauth talks to the OAuth providers users sign in with (Google, Microsoft)
// and connect data from (Xero).
package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/report-nexus/internal/util"
	"golang.org/x/oauth2"
)

// ErrNoProfile is returned when the provider answers without a usable user identity.
var ErrNoProfile = errors.New("provider returned no user profile")

// HTTPError is a non-2xx answer from a provider API.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.Status, util.TruncateLog(e.Body, 200))
}

// Profile is the identity a provider reports for the signed-in user.
type Profile struct {
	ID    string
	Email string
	Name  string
	Image string
}

// Tenant is a Xero organisation the connection is authorised for.
type Tenant struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	TenantType string `json:"tenantType"`
	TenantName string `json:"tenantName"`
}

// Provider performs the authorization code flow and token refresh for one provider.
type Provider struct {
	endpoint Endpoint
	config   *oauth2.Config
	client   *http.Client
}

// NewProvider builds a provider from its endpoint and client credentials. A nil client uses a client with the endpoint timeout.
func NewProvider(ep Endpoint, clientID, clientSecret, redirectURL string, client *http.Client) *Provider {
	if client == nil {
		client = &http.Client{Timeout: ep.timeout()}
	}
	style := oauth2.AuthStyleAutoDetect
	switch ep.AuthStyle {
	case AuthStyleHeader:
		style = oauth2.AuthStyleInHeader
	case AuthStyleParams:
		style = oauth2.AuthStyleInParams
	}
	return &Provider{
		endpoint: ep,
		client:   client,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       ep.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   ep.AuthURL,
				TokenURL:  ep.TokenURL,
				AuthStyle: style,
			},
		},
	}
}

// Name returns the provider id.
func (p *Provider) Name() string { return p.endpoint.ID }

// NewState returns a random CSRF state value.
func NewState() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// AuthCodeURL returns the consent page URL for state.
func (p *Provider) AuthCodeURL(state string) string {
	opts := make([]oauth2.AuthCodeOption, 0, len(p.endpoint.AuthParams)+1)
	if p.endpoint.ID == ProviderGoogle {
		opts = append(opts, oauth2.AccessTypeOffline)
	}
	for k, v := range p.endpoint.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return p.config.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for tokens.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("missing authorization code")
	}
	return p.config.Exchange(p.withClient(ctx), code)
}

// Refresh performs a refresh_token grant. The returned token keeps refreshToken when the provider does not rotate it.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("no refresh token stored")
	}
	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	return p.config.TokenSource(p.withClient(ctx), expired).Token()
}

// ExpiresAt converts a token expiry to unix seconds, 0 when unknown.
func ExpiresAt(tok *oauth2.Token) int64 {
	if tok == nil || tok.Expiry.IsZero() {
		return 0
	}
	return tok.Expiry.Unix()
}

// IDToken returns the id_token extra of tok, if any.
func IDToken(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	s, _ := tok.Extra("id_token").(string)
	return s
}

// Scope returns the granted scope extra of tok, if any.
func Scope(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	s, _ := tok.Extra("scope").(string)
	return s
}

// FetchProfile asks the provider who the token belongs to.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	if p.endpoint.ProfileURL == "" {
		return nil, fmt.Errorf("%s: no profile endpoint configured", p.endpoint.ID)
	}

	switch p.endpoint.ID {
	case ProviderXero:
		var body struct {
			Users []struct {
				UserID       string `json:"UserID"`
				EmailAddress string `json:"EmailAddress"`
				FirstName    string `json:"FirstName"`
				LastName     string `json:"LastName"`
			} `json:"Users"`
		}
		if err := p.GetJSON(ctx, accessToken, "", p.endpoint.ProfileURL, &body); err != nil {
			return nil, err
		}
		if len(body.Users) == 0 || body.Users[0].UserID == "" {
			return nil, ErrNoProfile
		}
		u := body.Users[0]
		return &Profile{ID: u.UserID, Email: u.EmailAddress, Name: strings.TrimSpace(u.FirstName + " " + u.LastName)}, nil

	case ProviderMicrosoft:
		var body struct {
			ID                string `json:"id"`
			DisplayName       string `json:"displayName"`
			Mail              string `json:"mail"`
			UserPrincipalName string `json:"userPrincipalName"`
		}
		if err := p.GetJSON(ctx, accessToken, "", p.endpoint.ProfileURL, &body); err != nil {
			return nil, err
		}
		if body.ID == "" {
			return nil, ErrNoProfile
		}
		email := body.Mail
		if email == "" {
			email = body.UserPrincipalName
		}
		return &Profile{ID: body.ID, Email: email, Name: body.DisplayName}, nil

	default:
		var body struct {
			ID      string `json:"id"`
			Sub     string `json:"sub"`
			Email   string `json:"email"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := p.GetJSON(ctx, accessToken, "", p.endpoint.ProfileURL, &body); err != nil {
			return nil, err
		}
		id := body.ID
		if id == "" {
			id = body.Sub
		}
		if id == "" {
			return nil, ErrNoProfile
		}
		return &Profile{ID: id, Email: body.Email, Name: body.Name, Image: body.Picture}, nil
	}
}

// FallbackAccountID derives a stable-per-token identifier when the provider exposes no user id.
func FallbackAccountID(accessToken string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(accessToken))
	if len(enc) > 20 {
		enc = enc[:20]
	}
	return enc
}

// Connections lists the tenants the access token is authorised for.
func (p *Provider) Connections(ctx context.Context, accessToken string) ([]Tenant, error) {
	if p.endpoint.ConnectionsURL == "" {
		return nil, fmt.Errorf("%s: no connections endpoint configured", p.endpoint.ID)
	}
	var tenants []Tenant
	if err := p.GetJSON(ctx, accessToken, "", p.endpoint.ConnectionsURL, &tenants); err != nil {
		return nil, err
	}
	return tenants, nil
}

// GetJSON performs an authenticated GET and decodes the JSON response into out.
// tenantID is sent as Xero-Tenant-Id when non-empty.
func (p *Provider) GetJSON(ctx context.Context, accessToken, tenantID, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if tenantID != "" {
		req.Header.Set("Xero-Tenant-Id", tenantID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", p.endpoint.ID, err)
	}
	return nil
}

func (p *Provider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}
