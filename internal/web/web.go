// Package web serves the browser side of report rendering.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

//go:embed static
var assets embed.FS

// StaticHandler serves the embedded assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// ViewerHandler serves a standalone page that runs and renders one report.
// GET /reports/{id}/view
func ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
		if err != nil || id == 0 {
			http.Error(w, "Invalid report ID", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := viewerPage.Execute(w, map[string]any{"ID": id}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

var viewerPage = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Report {{.ID}} - Report Nexus</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f8fafc; color: #0f172a; margin: 0; }
        .container { max-width: 1200px; margin: 0 auto; padding: 1.5rem; }
        .report { background: white; border: 1px solid #e2e8f0; border-radius: 0.5rem; padding: 1rem; }
        .report-description { color: #475569; }
        .report-loading { color: #64748b; }
        .report-error { color: #dc2626; white-space: pre-wrap; }
    </style>
    <script crossorigin src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
    <script crossorigin src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
    <script crossorigin src="https://unpkg.com/prop-types@15/prop-types.min.js"></script>
    <script crossorigin src="https://unpkg.com/apexcharts@3/dist/apexcharts.min.js"></script>
    <script crossorigin src="https://unpkg.com/react-apexcharts@1/dist/react-apexcharts.iife.min.js"></script>
    <script src="/static/report-renderer.js"></script>
</head>
<body>
    <div class="container"><div id="report"></div></div>
    <script>
        window.ReactApexChart = window.ReactApexChart || window.Chart;
        ReportRenderer.mount(document.getElementById("report"), "{{.ID}}");
    </script>
</body>
</html>
`))
