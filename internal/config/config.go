// Package config loads runtime configuration from the environment (and an optional .env file).
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

var osEnviron = os.Environ

const devSessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"

// Config holds application configuration loaded from environment variables.
type Config struct {
	Env      string `env:"NEXUS_ENV" envDefault:"development"`
	LogLevel string `env:"NEXUS_LOG_LEVEL" envDefault:"info"`
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     string `env:"PORT" envDefault:"3001"`

	DBPath string `env:"NEXUS_DB_PATH" envDefault:"nexus.db"`

	FrontendURL    string   `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	AllowedOrigins []string `env:"NEXUS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`

	JWTSecret          string        `env:"JWT_SECRET"`
	JWTTTL             time.Duration `env:"NEXUS_JWT_TTL" envDefault:"24h"`
	SessionSecret      string        `env:"SESSION_SECRET"`
	TokenEncryptionKey string        `env:"NEXUS_TOKEN_ENCRYPTION_KEY"`

	Google    OAuthClient `envPrefix:"GOOGLE_"`
	Microsoft OAuthClient `envPrefix:"MICROSOFT_"`
	Xero      OAuthClient `envPrefix:"XERO_"`

	ProvidersFile string `env:"NEXUS_PROVIDERS_FILE" envDefault:"providers.yaml"`

	LLM     LLMConfig     `envPrefix:"NEXUS_"`
	Sandbox SandboxConfig `envPrefix:"NEXUS_SANDBOX_"`
}

// OAuthClient holds the client credentials of one OAuth provider.
type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
	// TenantID is only meaningful for Microsoft (Azure AD tenant).
	TenantID string `env:"TENANT_ID" envDefault:"common"`
}

// Configured reports whether both client credentials are present.
func (c OAuthClient) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// LLMConfig selects and configures the report-authoring model.
type LLMConfig struct {
	Provider      string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	GoogleAPIKey  string        `env:"GOOGLE_API_KEY"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	GeminiModel   string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-pro"`
	GeminiBaseURL string        `env:"GEMINI_BASE_URL"`
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIModel   string        `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	Timeout       time.Duration `env:"LLM_TIMEOUT" envDefault:"2m"`
}

// GeminiKey returns the first configured Gemini key.
func (c LLMConfig) GeminiKey() string {
	if k := strings.TrimSpace(c.GeminiAPIKey); k != "" {
		return k
	}
	return strings.TrimSpace(c.GoogleAPIKey)
}

// SandboxConfig bounds execution of stored report code.
type SandboxConfig struct {
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"5s"`
	Mode         string        `env:"MODE" envDefault:"inprocess"`
	AllowedHosts []string      `env:"ALLOWED_HOSTS" envSeparator:"," envDefault:"api.xero.com"`
	MaxBodyBytes int64         `env:"MAX_BODY" envDefault:"10485760"`
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Unprefixed names the original deployment used.
	aliases := map[string]string{
		"GOOGLE_API_KEY": "NEXUS_GOOGLE_API_KEY",
		"GEMINI_API_KEY": "NEXUS_GEMINI_API_KEY",
		"OPENAI_API_KEY": "NEXUS_OPENAI_API_KEY",
	}
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: withAliases(env.ToMap(osEnviron()), aliases)}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.SessionSecret == "" {
		cfg.SessionSecret = devSessionSecret
		log.Println("WARNING: Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}
	return cfg, nil
}

// MustLoad is Load that exits the process on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("NEXUS_LLM_PROVIDER must be gemini or openai, got %q", c.LLM.Provider)
	}
	switch c.Sandbox.Mode {
	case "inprocess", "process":
	default:
		return fmt.Errorf("NEXUS_SANDBOX_MODE must be inprocess or process, got %q", c.Sandbox.Mode)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("NEXUS_SANDBOX_TIMEOUT must be positive")
	}
	if c.IsProduction() && c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required in production")
	}
	return nil
}

// withAliases copies unprefixed variables to their prefixed names unless the prefixed one is set.
func withAliases(environ map[string]string, aliases map[string]string) map[string]string {
	for from, to := range aliases {
		if v, ok := environ[from]; ok {
			if _, set := environ[to]; !set {
				environ[to] = v
			}
		}
	}
	return environ
}
