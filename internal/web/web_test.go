package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Handle("/static/*", StaticHandler())
	r.Get("/reports/{id}/view", ViewerHandler())
	return r
}

func TestStaticHandler_ServesRenderer(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/report-renderer.js", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `new Function("React", "ReactApexChart", body)`) {
		t.Fatalf("renderer does not build the component with injected dependencies")
	}
	if !strings.Contains(body, "ErrorBoundary") {
		t.Fatalf("renderer has no error boundary")
	}
}

func TestViewerHandler(t *testing.T) {
	tests := []struct {
		path   string
		status int
	}{
		{"/reports/42/view", http.StatusOK},
		{"/reports/abc/view", http.StatusBadRequest},
		{"/reports/0/view", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK && !strings.Contains(rec.Body.String(), `ReportRenderer.mount(document.getElementById("report"), "42")`) {
				t.Fatalf("page does not mount report 42:\n%s", rec.Body.String())
			}
		})
	}
}
