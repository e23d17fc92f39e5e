package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ziprank/internal/core"
	"ziprank/internal/types"
)

// SourceStore provides read and reset access to the data source registry.
// Satisfied by db.SourceRepository; the collector process owns the actual
// refresh cadence, so the API derives state from the scheduling rows alone.
type SourceStore interface {
	List(ctx context.Context) ([]*types.DataSource, error)
	DeleteAll(ctx context.Context) error
}

// sourceStatus is the response model for one data source row. Frequencies are
// reported in whole seconds to match how they are stored.
type sourceStatus struct {
	Name                   string            `json:"source_name"`
	LastUpdated            *time.Time        `json:"last_updated"`
	NextUpdate             *time.Time        `json:"next_update"`
	UpdateFrequencySeconds int64             `json:"update_frequency_seconds"`
	URL                    string            `json:"url,omitempty"`
	State                  types.SourceState `json:"state"`
	Due                    bool              `json:"due"`
}

// refreshResponse acknowledges a force-refresh request. The refresh itself
// happens on the collector's next tick.
type refreshResponse struct {
	Status string `json:"status"`
}

// SourceHandler exposes data source scheduling status and the force-refresh
// operation.
type SourceHandler struct {
	sources SourceStore
	logger  *slog.Logger
}

// NewSourceHandler creates a SourceHandler with the provided dependencies.
func NewSourceHandler(sources SourceStore, logger *slog.Logger) *SourceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceHandler{
		sources: sources,
		logger:  logger,
	}
}

// RegisterRoutes mounts source routes on the provided chi.Router.
func (h *SourceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sources", h.List)
	r.Post("/sources/refresh", h.Refresh)
}

// List handles GET /v1/sources. It reports each source's scheduling record
// with a derived lifecycle state (pending/idle) and due flag.
func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.sources.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()
	statuses := make([]sourceStatus, 0, len(list))
	for _, src := range list {
		statuses = append(statuses, sourceStatus{
			Name:                   src.Name,
			LastUpdated:            src.LastUpdated,
			NextUpdate:             src.NextUpdate,
			UpdateFrequencySeconds: int64(src.UpdateFrequency.Seconds()),
			URL:                    src.URL,
			State:                  src.State(now),
			Due:                    src.Due(now),
		})
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: statuses})
}

// Refresh handles POST /v1/sources/refresh. It clears all scheduling rows so
// every source re-registers and runs on the collector's next tick. Returns
// 202 Accepted: the work is deferred, not performed inline.
func (h *SourceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.sources.DeleteAll(r.Context()); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "full source refresh requested",
		"request_id", types.GetRequestID(r.Context()),
	)

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{
		Data: refreshResponse{Status: "refresh_scheduled"},
	})
}
