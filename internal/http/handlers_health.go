package httpx

import (
	"context"
	"io"
	"net/http"
	"time"
)

const healthResponse = `{"status":"ok"}`

// readyProbeTimeout bounds each dependency probe so a hung database cannot
// stall the readiness endpoint past the orchestrator's probe deadline.
const readyProbeTimeout = 2 * time.Second

// healthHandler answers liveness probes. It reports nothing about backing
// dependencies; a live process with a dead database is still live.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	// Nothing more to do if the client connection is gone.
	_, _ = io.WriteString(w, healthResponse)
}

// ReadyCheck probes one backing dependency.
type ReadyCheck func(ctx context.Context) error

// readinessHandler runs every registered dependency probe and reports 503
// when any of them fails, with per-dependency detail in the body.
type readinessHandler struct {
	checks map[string]ReadyCheck
}

func (h *readinessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyProbeTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	results := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = "unavailable"
			code = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	WriteJSON(w, code, map[string]any{"status": status, "checks": results})
}
