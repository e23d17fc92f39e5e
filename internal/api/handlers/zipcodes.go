// Package handlers contains the HTTP handler implementations for the ZipRank
// API: the GeoJSON map feed, on-demand scoring, and data source status.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"

	"ziprank/internal/core"
	"ziprank/internal/types"
)

// --- Service Interfaces ---
//
// Interfaces are defined locally following the handler injection pattern:
// handlers depend on abstractions for testability and to avoid coupling to
// concrete repository implementations.

// ZipcodeDirectory provides zipcode reference data access.
type ZipcodeDirectory interface {
	ListWithGeometry(ctx context.Context) ([]*types.Zipcode, error)
	GetByZip(ctx context.Context, zip string) (*types.Zipcode, error)
}

// RatingReader provides current observation access for the map feed.
type RatingReader interface {
	GetAll(ctx context.Context, zip string) (map[types.RatingKind]types.Observation, error)
	GetBatch(ctx context.Context, zips []string) (map[string]map[types.RatingKind]types.Observation, error)
	LastUpdated(ctx context.Context) (*time.Time, error)
}

// --- Response Models ---

// geoFeatureProperties carries the per-zipcode attributes a map client renders.
// Every advertised rating kind appears in Ratings; absent observations are
// explicit nulls, never numeric defaults.
type geoFeatureProperties struct {
	Zip              string                          `json:"zip"`
	Name             string                          `json:"name,omitempty"`
	County           string                          `json:"county,omitempty"`
	State            string                          `json:"state,omitempty"`
	Population       *int                            `json:"population"`
	MedianIncome     *float64                        `json:"median_income"`
	MedianHomeValue  *float64                        `json:"median_home_value"`
	MedianRent       *float64                        `json:"median_rent"`
	OwnershipPercent *float64                        `json:"ownership_percent"`
	Ratings          map[types.RatingKind]*float64   `json:"ratings"`
}

// geoFeature is a single GeoJSON Feature.
type geoFeature struct {
	Type       string               `json:"type"`
	Geometry   json.RawMessage      `json:"geometry"`
	Properties geoFeatureProperties `json:"properties"`
}

// geoFeatureCollection is the GeoJSON FeatureCollection document. It is
// served raw (not in the standard envelope) because map clients consume the
// document directly.
type geoFeatureCollection struct {
	Type     string       `json:"type"`
	Features []geoFeature `json:"features"`
}

// zipcodeDetail is the response body for GET /v1/zipcodes/{zip}: reference
// attributes plus the full observation records including confidence and source.
type zipcodeDetail struct {
	*types.Zipcode
	Ratings map[types.RatingKind]*types.Observation `json:"ratings"`
}

// lastUpdatedResponse reports the most recent rating write for staleness
// display. Null when no ratings exist yet.
type lastUpdatedResponse struct {
	LastUpdated *time.Time `json:"last_updated"`
}

// --- Handler ---

// ZipcodeHandler serves the map-facing read endpoints.
type ZipcodeHandler struct {
	zipcodes ZipcodeDirectory
	ratings  RatingReader
	logger   *slog.Logger
}

// NewZipcodeHandler creates a ZipcodeHandler with the provided dependencies.
func NewZipcodeHandler(zipcodes ZipcodeDirectory, ratings RatingReader, logger *slog.Logger) *ZipcodeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ZipcodeHandler{
		zipcodes: zipcodes,
		ratings:  ratings,
		logger:   logger,
	}
}

// RegisterRoutes mounts zipcode routes on the provided chi.Router.
// The FeatureCollection response routinely runs to several megabytes of
// geometry, so that route is wrapped in gzip compression.
func (h *ZipcodeHandler) RegisterRoutes(r chi.Router) {
	r.Method(http.MethodGet, "/zipcodes", gzhttp.GzipHandler(http.HandlerFunc(h.ListGeoJSON)))
	r.Get("/zipcodes/{zip}", h.Get)
	r.Get("/last-updated", h.LastUpdated)
}

// ListGeoJSON handles GET /v1/zipcodes. It returns a GeoJSON FeatureCollection
// with one feature per zipcode: geometry, reference attributes, and the
// current value for every advertised rating kind (null where absent).
func (h *ZipcodeHandler) ListGeoJSON(w http.ResponseWriter, r *http.Request) {
	zipcodes, err := h.zipcodes.ListWithGeometry(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	zips := make([]string, len(zipcodes))
	for i, z := range zipcodes {
		zips[i] = z.Zip
	}

	snapshot, err := h.ratings.GetBatch(r.Context(), zips)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	features := make([]geoFeature, 0, len(zipcodes))
	for _, z := range zipcodes {
		features = append(features, geoFeature{
			Type:       "Feature",
			Geometry:   z.Geometry,
			Properties: buildProperties(z, snapshot[z.Zip]),
		})
	}

	core.JSON(w, r, http.StatusOK, geoFeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	})
}

// buildProperties assembles the feature properties for one zipcode. All
// advertised kinds are present; missing observations render as null.
func buildProperties(z *types.Zipcode, byKind map[types.RatingKind]types.Observation) geoFeatureProperties {
	ratings := make(map[types.RatingKind]*float64, len(types.AdvertisedKinds))
	for _, kind := range types.AdvertisedKinds {
		if obs, ok := byKind[kind]; ok {
			v := obs.Value
			ratings[kind] = &v
		} else {
			ratings[kind] = nil
		}
	}

	return geoFeatureProperties{
		Zip:              z.Zip,
		Name:             z.Name,
		County:           z.County,
		State:            z.State,
		Population:       z.Population,
		MedianIncome:     z.MedianIncome,
		MedianHomeValue:  z.MedianHomeValue,
		MedianRent:       z.MedianRent,
		OwnershipPercent: z.OwnershipPercent,
		Ratings:          ratings,
	}
}

// Get handles GET /v1/zipcodes/{zip}. It returns the reference record plus
// full observation details (value, confidence, source) for each advertised
// kind, null where no observation exists.
func (h *ZipcodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	zip := chi.URLParam(r, "zip")

	z, err := h.zipcodes.GetByZip(r.Context(), zip)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	byKind, err := h.ratings.GetAll(r.Context(), zip)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	ratings := make(map[types.RatingKind]*types.Observation, len(types.AdvertisedKinds))
	for _, kind := range types.AdvertisedKinds {
		if obs, ok := byKind[kind]; ok {
			o := obs
			ratings[kind] = &o
		} else {
			ratings[kind] = nil
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: zipcodeDetail{Zipcode: z, Ratings: ratings},
	})
}

// LastUpdated handles GET /v1/last-updated. It reports the most recent rating
// write across all zipcodes so the UI can display data staleness.
func (h *ZipcodeHandler) LastUpdated(w http.ResponseWriter, r *http.Request) {
	ts, err := h.ratings.LastUpdated(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: lastUpdatedResponse{LastUpdated: ts},
	})
}
