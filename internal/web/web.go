package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/local/docstream/internal/statuscheck"
	"github.com/local/docstream/internal/store"
)

// StatusStore reads per-document processing state.
type StatusStore interface {
	Get(ctx context.Context, documentID string) (store.Status, bool, error)
}

// HealthChecker snapshots dependency readiness.
type HealthChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Web serves the operational JSON endpoints next to /metrics.
type Web struct {
	status StatusStore
	health HealthChecker
}

func New(status StatusStore, health HealthChecker) *Web {
	return &Web{status: status, health: health}
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", w.handleHealth)
	mux.HandleFunc("GET /status/{document_id}", w.handleStatus)
}

func (w *Web) handleHealth(wr http.ResponseWriter, r *http.Request) {
	summary := w.health.Summary(r.Context())
	code := http.StatusOK
	if !summary.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(wr, code, summary)
}

func (w *Web) handleStatus(wr http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	st, ok, err := w.status.Get(r.Context(), documentID)
	if err != nil {
		log.Error().Err(err).Str("document_id", documentID).Msg("status lookup failed")
		writeJSON(wr, http.StatusInternalServerError, map[string]string{"error": "status lookup failed"})
		return
	}
	if !ok {
		writeJSON(wr, http.StatusNotFound, map[string]string{"error": "unknown document"})
		return
	}
	writeJSON(wr, http.StatusOK, st)
}

func writeJSON(wr http.ResponseWriter, code int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(code)
	if err := json.NewEncoder(wr).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response failed")
	}
}
