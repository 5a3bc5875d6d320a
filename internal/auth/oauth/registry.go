package oauth

import (
	"log"
	"net/http"
	"strings"

	"github.com/pysugar/report-nexus/internal/config"
)

// Registry holds the providers that have client credentials configured.
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry builds providers for every configured client. Unconfigured providers are skipped with a warning.
func NewRegistry(cfg *config.Config, cat *Catalog, client *http.Client) *Registry {
	r := &Registry{providers: map[string]*Provider{}}
	clients := map[string]config.OAuthClient{
		ProviderGoogle:    cfg.Google,
		ProviderMicrosoft: cfg.Microsoft,
		ProviderXero:      cfg.Xero,
	}
	for _, id := range cat.IDs() {
		c, ok := clients[id]
		if !ok {
			continue
		}
		if !c.Configured() {
			log.Printf("⚠️  %s OAuth is not configured. Set %s_CLIENT_ID and %s_CLIENT_SECRET to enable it.", id, strings.ToUpper(id), strings.ToUpper(id))
			continue
		}
		ep, _ := cat.Get(id)
		callback := c.CallbackURL
		if callback == "" {
			callback = defaultCallbackURL(cfg, id)
		}
		r.providers[id] = NewProvider(ep, c.ClientID, c.ClientSecret, callback, client)
	}
	return r
}

// NewRegistryOf builds a registry from ready providers.
func NewRegistryOf(providers ...*Provider) *Registry {
	r := &Registry{providers: map[string]*Provider{}}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (*Provider, bool) {
	p, ok := r.providers[normalizeProviderID(id)]
	return p, ok
}

func defaultCallbackURL(cfg *config.Config, id string) string {
	if id == ProviderXero {
		return strings.TrimRight(cfg.FrontendURL, "/") + "/dashboard/xero/callback"
	}
	return "http://localhost:" + cfg.Port + "/api/auth/" + id + "/callback"
}
