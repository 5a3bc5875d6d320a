package oauth

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	googleOAuth "golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
	ProviderXero      = "xero"

	AuthStyleHeader = "header"
	AuthStyleParams = "params"

	defaultTimeout = 30 * time.Second
)

// XeroScopes are the read scopes requested when connecting a Xero organisation.
var XeroScopes = []string{
	"offline_access",
	"accounting.transactions.read",
	"accounting.reports.read",
	"accounting.reports.tenninetynine.read",
	"accounting.journals.read",
	"accounting.settings.read",
	"accounting.contacts.read",
	"accounting.attachments.read",
	"accounting.budgets.read",
}

type fileConfig struct {
	Providers []Endpoint `yaml:"providers"`
}

// Endpoint describes where and how to talk to one OAuth provider.
type Endpoint struct {
	ID             string            `yaml:"id"`
	AuthURL        string            `yaml:"auth_url"`
	TokenURL       string            `yaml:"token_url"`
	ProfileURL     string            `yaml:"profile_url"`
	ConnectionsURL string            `yaml:"connections_url"`
	AuthStyle      string            `yaml:"auth_style"`
	Scopes         []string          `yaml:"scopes"`
	AuthParams     map[string]string `yaml:"auth_params"`
	Timeout        string            `yaml:"timeout"`
}

func (e Endpoint) timeout() time.Duration {
	if raw := strings.TrimSpace(e.Timeout); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return defaultTimeout
}

// Catalog holds the endpoints of every known provider.
type Catalog struct {
	byID map[string]Endpoint
}

// DefaultCatalog returns the built-in endpoints. Microsoft uses the given Azure AD tenant.
func DefaultCatalog(microsoftTenant string) *Catalog {
	if microsoftTenant == "" {
		microsoftTenant = "common"
	}
	c := &Catalog{byID: map[string]Endpoint{}}
	for _, ep := range defaultEndpoints(microsoftTenant) {
		c.byID[ep.ID] = ep
	}
	return c
}

// LoadCatalog overlays the YAML file at path on the built-in endpoints. A missing file is not an error.
func LoadCatalog(path, microsoftTenant string) (*Catalog, error) {
	c := DefaultCatalog(microsoftTenant)
	path = strings.TrimSpace(path)
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read providers file %q: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return c, fmt.Errorf("failed to parse providers file %q: %w", path, err)
	}
	for _, override := range cfg.Providers {
		id := normalizeProviderID(override.ID)
		if id == "" {
			continue
		}
		c.byID[id] = merge(c.byID[id], override, id)
	}
	return c, nil
}

// Get returns the endpoint for id.
func (c *Catalog) Get(id string) (Endpoint, bool) {
	ep, ok := c.byID[normalizeProviderID(id)]
	if !ok {
		return Endpoint{}, false
	}
	ep.Scopes = append([]string(nil), ep.Scopes...)
	if len(ep.AuthParams) > 0 {
		cp := make(map[string]string, len(ep.AuthParams))
		for k, v := range ep.AuthParams {
			cp[k] = v
		}
		ep.AuthParams = cp
	}
	return ep, true
}

// IDs returns the known provider ids, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func merge(base, override Endpoint, id string) Endpoint {
	base.ID = id
	if v := strings.TrimSpace(override.AuthURL); v != "" {
		base.AuthURL = v
	}
	if v := strings.TrimSpace(override.TokenURL); v != "" {
		base.TokenURL = v
	}
	if v := strings.TrimSpace(override.ProfileURL); v != "" {
		base.ProfileURL = v
	}
	if v := strings.TrimSpace(override.ConnectionsURL); v != "" {
		base.ConnectionsURL = v
	}
	if v := strings.ToLower(strings.TrimSpace(override.AuthStyle)); v != "" {
		base.AuthStyle = v
	}
	if len(override.Scopes) > 0 {
		base.Scopes = override.Scopes
	}
	if len(override.AuthParams) > 0 {
		if base.AuthParams == nil {
			base.AuthParams = map[string]string{}
		}
		for k, v := range override.AuthParams {
			base.AuthParams[k] = v
		}
	}
	if override.Timeout != "" {
		base.Timeout = override.Timeout
	}
	return base
}

func normalizeProviderID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func defaultEndpoints(microsoftTenant string) []Endpoint {
	azure := microsoft.AzureADEndpoint(microsoftTenant)
	return []Endpoint{
		{
			ID:         ProviderGoogle,
			AuthURL:    googleOAuth.Endpoint.AuthURL,
			TokenURL:   googleOAuth.Endpoint.TokenURL,
			ProfileURL: "https://www.googleapis.com/oauth2/v2/userinfo",
			AuthStyle:  AuthStyleParams,
			Scopes:     []string{"profile", "email"},
		},
		{
			ID:         ProviderMicrosoft,
			AuthURL:    azure.AuthURL,
			TokenURL:   azure.TokenURL,
			ProfileURL: "https://graph.microsoft.com/v1.0/me",
			AuthStyle:  AuthStyleParams,
			Scopes:     []string{"openid", "profile", "email", "User.Read"},
		},
		{
			ID:             ProviderXero,
			AuthURL:        "https://login.xero.com/identity/connect/authorize",
			TokenURL:       "https://identity.xero.com/connect/token",
			ProfileURL:     "https://api.xero.com/api.xro/2.0/Users",
			ConnectionsURL: "https://api.xero.com/connections",
			AuthStyle:      AuthStyleHeader,
			Scopes:         XeroScopes,
		},
	}
}
