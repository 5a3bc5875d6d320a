// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"gorm.io/gorm"

	"github.com/pysugar/report-nexus/internal/api/handlers"
	"github.com/pysugar/report-nexus/internal/api/middleware"
	"github.com/pysugar/report-nexus/internal/auth/oauth"
	"github.com/pysugar/report-nexus/internal/auth/session"
	"github.com/pysugar/report-nexus/internal/auth/token"
	"github.com/pysugar/report-nexus/internal/logging"
	"github.com/pysugar/report-nexus/internal/metrics"
	"github.com/pysugar/report-nexus/internal/monitor"
	"github.com/pysugar/report-nexus/internal/reports"
	"github.com/pysugar/report-nexus/internal/web"
)

// Deps are the services the routes are built from.
type Deps struct {
	DB       *gorm.DB
	Logger   logging.Logger
	Signer   *session.Signer
	Sessions sessions.Store
	Registry *oauth.Registry
	Tokens   *token.Manager
	Reports  *reports.Service
	Runner   *reports.Runner
	Monitor  *monitor.RunMonitor

	FrontendURL     string
	AllowedOrigins  []string
	AllowAnyOrigin  bool
	XeroContactsURL string
}

// NewRouter returns the application handler.
func NewRouter(d Deps) http.Handler {
	contactsURL := d.XeroContactsURL
	if contactsURL == "" {
		contactsURL = handlers.XeroContactsURL
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(logging.Middleware(d.Logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.CORS(d.AllowedOrigins, d.AllowAnyOrigin))
	r.NotFound(handlers.NotFoundHandler())

	auth := middleware.Authenticate(d.Signer)

	r.Get("/", handlers.RootHandler())
	r.Get("/healthz", handlers.HealthHandler())
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/static/*", web.StaticHandler())
	r.Get("/reports/{id}/view", web.ViewerHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", handlers.VersionHandler())

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handlers.RegisterHandler(d.DB, d.Signer))
			r.Post("/login", handlers.LoginHandler(d.DB, d.Signer))
			r.With(auth).Get("/me", handlers.MeHandler(d.DB))
			r.Get("/{provider}", handlers.OAuthLoginHandler(d.Registry, d.Sessions))
			r.Get("/{provider}/callback", handlers.OAuthCallbackHandler(d.DB, d.Registry, d.Sessions, d.Signer, d.FrontendURL))
		})

		r.Route("/xero", func(r chi.Router) {
			r.Get("/callback", handlers.XeroCallbackHandler(d.DB, d.Registry, d.Sessions, d.FrontendURL))
			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Get("/connection", handlers.XeroConnectionHandler(d.DB))
				r.Get("/auth", handlers.XeroAuthHandler(d.Registry, d.Sessions))
				r.Delete("/disconnect", handlers.XeroDisconnectHandler(d.DB))
				r.Get("/customers", handlers.XeroCustomersHandler(d.Tokens, d.Registry, contactsURL))
			})
		})

		r.Route("/ai", func(r chi.Router) {
			r.Get("/test", handlers.AITestHandler())
			r.Route("/reports", func(r chi.Router) {
				r.Use(auth)
				r.Post("/", handlers.CreateReportHandler(d.Reports))
				r.Get("/user/{userId}", handlers.ListReportsHandler(d.Reports))
				r.Get("/{id}", handlers.GetReportHandler(d.Reports))
				r.Delete("/{id}", handlers.DeleteReportHandler(d.Reports))
				r.Get("/{id}/run", handlers.RunReportHandler(d.Runner))
				r.Get("/{id}/runs", handlers.ReportRunsHandler(d.Reports, d.Monitor))
				r.Put("/{id}/modify", handlers.ModifyReportHandler(d.Reports))
				r.Post("/{id}/ask", handlers.AskReportHandler(d.Reports))
			})
		})
	})

	return r
}
