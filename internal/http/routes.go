package httpx

import (
	"log/slog"
	"net/http"

	"github.com/formgrid/toolpack/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Exports *service.ExportService
	IsDev   bool         // Development mode flag
	Logger  *slog.Logger // Logger for HTTP errors (optional)

	// ReadyChecks are probed by /readyz, keyed by dependency name.
	ReadyChecks map[string]ReadyCheck
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	exportHandlers := &ExportHandlers{Svc: services.Exports}

	registerExportRoutes(mux, exportHandlers)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", &readinessHandler{checks: services.ReadyChecks})

	return mux
}

func registerExportRoutes(mux *http.ServeMux, h *ExportHandlers) {
	mux.HandleFunc("POST /api/tools/{toolID}/export", h.Start)
	mux.HandleFunc("GET /api/exports/stats", h.Stats)
	mux.HandleFunc("GET /api/exports/{jobID}", h.GetStatus)
	mux.HandleFunc("POST /api/exports/{jobID}/cancel", h.Cancel)
	mux.HandleFunc("GET /api/exports/{jobID}/download", h.Download)
}
