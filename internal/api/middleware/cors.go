// Package middleware holds the HTTP middleware shared by the API routes.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/pysugar/report-nexus/internal/logging"
)

// CORS allows credentialed requests from the configured frontend origins.
// allowAny accepts every origin, which development servers rely on.
func CORS(origins []string, allowAny bool) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if allowAny {
				return true
			}
			for _, o := range origins {
				if o == origin {
					return true
				}
			}
			return false
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", logging.RequestIDHeader},
		ExposedHeaders:   []string{logging.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
