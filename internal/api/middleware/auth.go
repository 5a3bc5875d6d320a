package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pysugar/report-nexus/internal/apierr"
	"github.com/pysugar/report-nexus/internal/auth/session"
	"github.com/pysugar/report-nexus/internal/logging"
)

// Authenticate requires a valid bearer token and stores its caller in the request context.
func Authenticate(signer *session.Signer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				unauthorized(w, "Authentication required")
				return
			}

			caller, err := signer.Verify(strings.TrimSpace(token))
			if err != nil {
				logging.FromContext(r.Context()).Debug().Err(err).Msg("rejected bearer token")
				unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := session.WithCaller(r.Context(), caller)
			l := logging.FromContext(ctx).With().Uint("user_id", caller.ID).Logger()
			ctx = logging.WithLogger(ctx, l)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	status, body := apierr.ToBody(apierr.New(apierr.Unauthorized, message))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
