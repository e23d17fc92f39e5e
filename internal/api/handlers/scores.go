package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ziprank/internal/core"
	"ziprank/internal/scoring"
	"ziprank/internal/types"
)

// --- Service Interfaces ---

// ScoreSnapshotProvider fetches the current observation snapshot the engine
// scores against.
type ScoreSnapshotProvider interface {
	GetBatch(ctx context.Context, zips []string) (map[string]map[types.RatingKind]types.Observation, error)
}

// ZipKeyLister returns the full set of zip keys; used when a request does not
// name explicit zips and wants the whole map scored.
type ZipKeyLister interface {
	ListZips(ctx context.Context) ([]string, error)
}

// ScoreMetrics records scoring request telemetry. Nil-safe at the handler.
type ScoreMetrics interface {
	RecordScoreRequest(ctx context.Context, zipCount int, duration time.Duration)
}

// --- Request/Response Models ---

// ScoreRequest is the request body for POST /v1/scores. Zips is optional;
// when empty, every known zipcode is scored.
type ScoreRequest struct {
	Zips     []string          `json:"zips,omitempty" validate:"omitempty,dive,us_zip"`
	Criteria []types.Criterion `json:"criteria" validate:"required,min=1,dive"`
}

// scoreResponse is the data payload: one entry per requested zip, in request
// order (all-zip requests are in key order).
type scoreResponse struct {
	Scores []types.ZipcodeScore `json:"scores"`
}

// --- Handler ---

// ScoreHandler computes on-demand comparison scores over the current snapshot.
type ScoreHandler struct {
	ratings   ScoreSnapshotProvider
	zipcodes  ZipKeyLister
	engine    *scoring.Engine
	validator *core.Validator
	metrics   ScoreMetrics
	maxBatch  int
	logger    *slog.Logger
}

// NewScoreHandler creates a ScoreHandler with the provided dependencies.
// maxBatch caps the number of explicitly named zips per request; zero or
// negative disables the cap.
func NewScoreHandler(
	ratings ScoreSnapshotProvider,
	zipcodes ZipKeyLister,
	engine *scoring.Engine,
	v *core.Validator,
	metrics ScoreMetrics,
	maxBatch int,
	logger *slog.Logger,
) *ScoreHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoreHandler{
		ratings:   ratings,
		zipcodes:  zipcodes,
		engine:    engine,
		validator: v,
		metrics:   metrics,
		maxBatch:  maxBatch,
		logger:    logger,
	}
}

// RegisterRoutes mounts score routes on the provided chi.Router.
func (h *ScoreHandler) RegisterRoutes(r chi.Router) {
	r.Post("/scores", h.Compute)
}

// Compute handles POST /v1/scores.
//
//  1. Decode and validate the request body.
//  2. Enforce the batch size cap on explicit zip lists.
//  3. Resolve the zip set (explicit list, deduplicated in order, or all zips).
//  4. Fetch the observation snapshot in one batch read.
//  5. Run the pure scoring engine and return results in request order.
//
// Criteria naming rating kinds with no advertised data are legal; they score
// as missing, and a warning in the response meta flags them for the caller.
func (h *ScoreHandler) Compute(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ScoreRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if h.maxBatch > 0 && len(req.Zips) > h.maxBatch {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationBatchSize,
			"too many zips in one scoring request",
			nil,
			map[string]any{"max": h.maxBatch, "got": len(req.Zips)},
		))
		return
	}

	zips, err := h.resolveZips(r.Context(), req.Zips)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	snapshot, err := h.ratings.GetBatch(r.Context(), zips)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	byZip := h.engine.Score(zips, req.Criteria, snapshot)

	scores := make([]types.ZipcodeScore, 0, len(zips))
	for _, zip := range zips {
		scores = append(scores, byZip[zip])
	}

	if h.metrics != nil {
		h.metrics.RecordScoreRequest(r.Context(), len(zips), time.Since(start))
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: scoreResponse{Scores: scores},
		Meta: buildScoreMeta(req.Criteria),
	})
}

// resolveZips returns the explicit request zips deduplicated in first-seen
// order, or every known zip when the request names none.
func (h *ScoreHandler) resolveZips(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return h.zipcodes.ListZips(ctx)
	}

	seen := make(map[string]struct{}, len(requested))
	zips := make([]string, 0, len(requested))
	for _, zip := range requested {
		if _, dup := seen[zip]; dup {
			continue
		}
		seen[zip] = struct{}{}
		zips = append(zips, zip)
	}
	return zips, nil
}

// buildScoreMeta emits a warning per criterion whose rating kind is not in the
// advertised set. Such criteria are legal but will usually lack data.
func buildScoreMeta(criteria []types.Criterion) *core.ResponseMeta {
	advertised := make(map[types.RatingKind]struct{}, len(types.AdvertisedKinds))
	for _, kind := range types.AdvertisedKinds {
		advertised[kind] = struct{}{}
	}

	var warnings []string
	for _, c := range criteria {
		if _, ok := advertised[c.RatingKind]; !ok {
			warnings = append(warnings, "rating kind "+string(c.RatingKind)+" is not collected; criterion will score as missing")
		}
	}
	if len(warnings) == 0 {
		return nil
	}
	return &core.ResponseMeta{Warnings: warnings}
}
