package config

import (
	"testing"
	"time"
)

func withEnv(t *testing.T, environ []string) {
	t.Helper()
	prev := osEnviron
	osEnviron = func() []string { return environ }
	t.Cleanup(func() { osEnviron = prev })
}

func TestLoad_Defaults(t *testing.T) {
	withEnv(t, nil)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr() != "127.0.0.1:3001" {
		t.Fatalf("Addr() = %q", cfg.Addr())
	}
	if cfg.Sandbox.Timeout != 5*time.Second {
		t.Fatalf("sandbox timeout = %v, want 5s", cfg.Sandbox.Timeout)
	}
	if len(cfg.Sandbox.AllowedHosts) != 1 || cfg.Sandbox.AllowedHosts[0] != "api.xero.com" {
		t.Fatalf("allowed hosts = %v", cfg.Sandbox.AllowedHosts)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Fatalf("llm provider = %q", cfg.LLM.Provider)
	}
	if cfg.SessionSecret != devSessionSecret {
		t.Fatalf("expected dev session secret fallback")
	}
	if cfg.Microsoft.TenantID != "common" {
		t.Fatalf("microsoft tenant = %q", cfg.Microsoft.TenantID)
	}
}

func TestLoad_ProviderCredentialsAndAliases(t *testing.T) {
	withEnv(t, []string{
		"XERO_CLIENT_ID=xero-id",
		"XERO_CLIENT_SECRET=xero-secret",
		"XERO_CALLBACK_URL=http://localhost:3001/api/xero/callback",
		"GOOGLE_API_KEY=legacy-key",
		"NEXUS_SANDBOX_ALLOWED_HOSTS=api.xero.com,identity.xero.com",
		"NEXUS_SANDBOX_TIMEOUT=2s",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Xero.Configured() {
		t.Fatalf("expected xero to be configured: %+v", cfg.Xero)
	}
	if cfg.Google.Configured() {
		t.Fatalf("google should not be configured")
	}
	if cfg.LLM.GeminiKey() != "legacy-key" {
		t.Fatalf("GeminiKey() = %q, want legacy-key", cfg.LLM.GeminiKey())
	}
	if len(cfg.Sandbox.AllowedHosts) != 2 {
		t.Fatalf("allowed hosts = %v", cfg.Sandbox.AllowedHosts)
	}
	if cfg.Sandbox.Timeout != 2*time.Second {
		t.Fatalf("sandbox timeout = %v", cfg.Sandbox.Timeout)
	}
}

func TestLoad_PrefixedKeyWinsOverAlias(t *testing.T) {
	withEnv(t, []string{
		"GEMINI_API_KEY=plain",
		"NEXUS_GEMINI_API_KEY=prefixed",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.GeminiAPIKey != "prefixed" {
		t.Fatalf("GeminiAPIKey = %q, want prefixed", cfg.LLM.GeminiAPIKey)
	}
}

func TestLoad_RejectsUnknownModes(t *testing.T) {
	tests := []struct {
		name    string
		environ []string
	}{
		{name: "llm provider", environ: []string{"NEXUS_LLM_PROVIDER=bard"}},
		{name: "sandbox mode", environ: []string{"NEXUS_SANDBOX_MODE=docker"}},
		{name: "zero timeout", environ: []string{"NEXUS_SANDBOX_TIMEOUT=0s"}},
		{name: "production without session secret", environ: []string{"NEXUS_ENV=production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.environ)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
