package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/pysugar/report-nexus/internal/api"
	"github.com/pysugar/report-nexus/internal/api/handlers"
	"github.com/pysugar/report-nexus/internal/auth/oauth"
	"github.com/pysugar/report-nexus/internal/auth/session"
	"github.com/pysugar/report-nexus/internal/auth/token"
	"github.com/pysugar/report-nexus/internal/config"
	"github.com/pysugar/report-nexus/internal/db"
	"github.com/pysugar/report-nexus/internal/db/models"
	"github.com/pysugar/report-nexus/internal/llm"
	"github.com/pysugar/report-nexus/internal/llm/gemini"
	"github.com/pysugar/report-nexus/internal/llm/openai"
	"github.com/pysugar/report-nexus/internal/logging"
	"github.com/pysugar/report-nexus/internal/monitor"
	"github.com/pysugar/report-nexus/internal/reports"
	"github.com/pysugar/report-nexus/internal/sandbox"
	"github.com/pysugar/report-nexus/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Xero-connected report generator",
	Long: `nexus turns natural-language questions into saved reports over a user's Xero data.
Report code is authored by an LLM and executed server-side in a JavaScript sandbox.`,
	Version:      version.Version,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

// sandboxCmd is the child side of NEXUS_SANDBOX_MODE=process. It reads one
// request from stdin and writes one result to stdout.
var sandboxCmd = &cobra.Command{
	Use:    "sandbox",
	Short:  "Execute one report request from stdin",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.New("production", "warn")
		return sandbox.ServeStdio(cmd.Context(), os.Stdin, os.Stdout)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Info()
		fmt.Printf("nexus %s (commit %s, built %s)\n", info["version"], info["commit"], info["build_time"])
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, sandboxCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	if err := models.InitEncryption(cfg.TokenEncryptionKey); err != nil {
		return fmt.Errorf("init token encryption: %w", err)
	}

	database, err := db.InitDB(cfg.DBPath, cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	signer, err := newSigner(cfg, database)
	if err != nil {
		return err
	}

	catalog, err := oauth.LoadCatalog(cfg.ProvidersFile, cfg.Microsoft.TenantID)
	if err != nil {
		return fmt.Errorf("load provider catalog: %w", err)
	}
	registry := oauth.NewRegistry(cfg, catalog, nil)

	tokens := token.NewManager(database)
	if xero, ok := registry.Get(oauth.ProviderXero); ok {
		tokens.Register(oauth.ProviderXero, xero)
	}

	exec, err := sandbox.New(cfg.Sandbox.Mode, sandbox.Options{
		Timeout:      cfg.Sandbox.Timeout,
		AllowedHosts: cfg.Sandbox.AllowedHosts,
		MaxBodyBytes: cfg.Sandbox.MaxBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("initialize sandbox: %w", err)
	}

	mon := monitor.NewRunMonitor(database)
	router := api.NewRouter(api.Deps{
		DB:             database,
		Logger:         logger,
		Signer:         signer,
		Sessions:       handlers.NewSessionStore(cfg.SessionSecret, cfg.IsProduction()),
		Registry:       registry,
		Tokens:         tokens,
		Reports:        reports.NewService(database, llm.Instrument(newGenerator(cfg))),
		Runner:         reports.NewRunner(database, tokens, exec, mon),
		Monitor:        mon,
		FrontendURL:    cfg.FrontendURL,
		AllowedOrigins: cfg.AllowedOrigins,
		AllowAnyOrigin: !cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Report Nexus %s starting on http://%s", version.Version, cfg.Addr())
		log.Printf("📊 Metrics: http://%s/metrics", cfg.Addr())
		log.Printf("🧪 Sandbox: %s mode, %s budget", cfg.Sandbox.Mode, cfg.Sandbox.Timeout)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newSigner uses JWT_SECRET, or a secret generated once and kept in the database.
func newSigner(cfg *config.Config, database *gorm.DB) (*session.Signer, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		generated, err := db.EnsureSigningKey(database)
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		log.Println("ℹ️  JWT_SECRET not set, using the signing key stored in the database")
		secret = generated
	}
	return session.NewSigner(secret, cfg.JWTTTL)
}

func newGenerator(cfg *config.Config) llm.Generator {
	c := cfg.LLM
	if c.Provider == "openai" {
		if c.OpenAIAPIKey == "" {
			log.Println("⚠️  OPENAI_API_KEY not set, report generation will fail")
		}
		return openai.NewClient(c.OpenAIAPIKey, c.OpenAIModel, c.OpenAIBaseURL, c.Timeout)
	}
	g := gemini.NewClient(c.GeminiKey(), c.GeminiModel, c.GeminiBaseURL, c.Timeout)
	if !g.IsEnabled() {
		log.Println("⚠️  GOOGLE_API_KEY not set, report generation will fail")
	}
	return g
}
