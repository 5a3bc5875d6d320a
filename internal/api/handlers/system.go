package handlers

import (
	"net/http"

	"github.com/pysugar/report-nexus/internal/version"
)

// RootHandler answers the liveness probe of the original deployment.
// GET /
func RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "API is running"})
	}
}

// HealthHandler reports readiness with the build version.
// GET /healthz
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
	}
}

// VersionHandler returns version information as JSON
// GET /api/version
func VersionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.Info())
	}
}

// AITestHandler confirms the AI routes are mounted.
// GET /api/ai/test
func AITestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "AI routes are working"})
	}
}

// NotFoundHandler is the router fallback.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Route not found"})
	}
}
