package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ziprank/internal/core"
	"ziprank/internal/scoring"
	"ziprank/internal/types"
)

type mockSnapshotProvider struct {
	getBatchFn func(ctx context.Context, zips []string) (map[string]map[types.RatingKind]types.Observation, error)

	lastZips []string
}

func (m *mockSnapshotProvider) GetBatch(ctx context.Context, zips []string) (map[string]map[types.RatingKind]types.Observation, error) {
	m.lastZips = zips
	if m.getBatchFn != nil {
		return m.getBatchFn(ctx, zips)
	}
	return map[string]map[types.RatingKind]types.Observation{}, nil
}

type mockZipKeyLister struct {
	zips []string
}

func (m *mockZipKeyLister) ListZips(ctx context.Context) ([]string, error) {
	return m.zips, nil
}

type mockScoreMetrics struct {
	zipCounts []int
}

func (m *mockScoreMetrics) RecordScoreRequest(_ context.Context, zipCount int, _ time.Duration) {
	m.zipCounts = append(m.zipCounts, zipCount)
}

func newScoreTestHandler(provider *mockSnapshotProvider, lister *mockZipKeyLister, metrics *mockScoreMetrics, maxBatch int) http.Handler {
	h := NewScoreHandler(
		provider,
		lister,
		scoring.NewEngine(scoring.Options{}),
		core.NewValidator(testLogger()),
		metrics,
		maxBatch,
		testLogger(),
	)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postScores(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/scores", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(w, r)
	return w
}

type scoresEnvelope struct {
	Data struct {
		Scores []types.ZipcodeScore `json:"scores"`
	} `json:"data"`
	Meta *struct {
		Warnings []string `json:"warnings"`
	} `json:"meta"`
}

func TestComputeScores_Success(t *testing.T) {
	provider := &mockSnapshotProvider{
		getBatchFn: func(ctx context.Context, zips []string) (map[string]map[types.RatingKind]types.Observation, error) {
			return map[string]map[types.RatingKind]types.Observation{
				"94110": {types.KindSchoolRating: {Zip: "94110", Kind: types.KindSchoolRating, Value: 8.0}},
				"94601": {types.KindSchoolRating: {Zip: "94601", Kind: types.KindSchoolRating, Value: 4.0}},
			}, nil
		},
	}
	metrics := &mockScoreMetrics{}
	handler := newScoreTestHandler(provider, &mockZipKeyLister{}, metrics, 100)

	w := postScores(t, handler, `{
		"zips": ["94110", "94601"],
		"criteria": [{"rating_kind": "schoolRating", "weight": 2, "enabled": true}]
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp scoresEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Len(t, resp.Data.Scores, 2)
	assert.Equal(t, "94110", resp.Data.Scores[0].Zip)
	assert.True(t, resp.Data.Scores[0].FinalScore.Valid)
	assert.Equal(t, 8.0, resp.Data.Scores[0].FinalScore.Value)
	assert.Equal(t, "94601", resp.Data.Scores[1].Zip)
	assert.Equal(t, 4.0, resp.Data.Scores[1].FinalScore.Value)
	assert.Nil(t, resp.Meta)

	require.Len(t, metrics.zipCounts, 1)
	assert.Equal(t, 2, metrics.zipCounts[0])
}

func TestComputeScores_EmptyZipsScoresAll(t *testing.T) {
	provider := &mockSnapshotProvider{}
	lister := &mockZipKeyLister{zips: []string{"94110", "94601", "94702"}}
	handler := newScoreTestHandler(provider, lister, &mockScoreMetrics{}, 100)

	w := postScores(t, handler, `{
		"criteria": [{"rating_kind": "crimeRate", "weight": 1, "enabled": true}]
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"94110", "94601", "94702"}, provider.lastZips)

	var resp scoresEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Scores, 3)
	// No observations anywhere: sentinel null scores, not defaults.
	for _, s := range resp.Data.Scores {
		assert.False(t, s.FinalScore.Valid)
	}
}

func TestComputeScores_DuplicateZipsDeduplicated(t *testing.T) {
	provider := &mockSnapshotProvider{}
	handler := newScoreTestHandler(provider, &mockZipKeyLister{}, &mockScoreMetrics{}, 100)

	w := postScores(t, handler, `{
		"zips": ["94110", "94110", "94601"],
		"criteria": [{"rating_kind": "schoolRating", "weight": 1, "enabled": true}]
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"94110", "94601"}, provider.lastZips)
}

func TestComputeScores_MissingCriteriaRejected(t *testing.T) {
	handler := newScoreTestHandler(&mockSnapshotProvider{}, &mockZipKeyLister{}, &mockScoreMetrics{}, 100)

	w := postScores(t, handler, `{"zips": ["94110"]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeValidationMissingField))
}

func TestComputeScores_InvalidZipRejected(t *testing.T) {
	handler := newScoreTestHandler(&mockSnapshotProvider{}, &mockZipKeyLister{}, &mockScoreMetrics{}, 100)

	w := postScores(t, handler, `{
		"zips": ["9411"],
		"criteria": [{"rating_kind": "schoolRating", "weight": 1, "enabled": true}]
	}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeValidationInvalidZip))
}

func TestComputeScores_NonPositiveWeightRejected(t *testing.T) {
	handler := newScoreTestHandler(&mockSnapshotProvider{}, &mockZipKeyLister{}, &mockScoreMetrics{}, 100)

	w := postScores(t, handler, `{
		"zips": ["94110"],
		"criteria": [{"rating_kind": "schoolRating", "weight": 0, "enabled": true}]
	}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestComputeScores_BatchSizeCap(t *testing.T) {
	handler := newScoreTestHandler(&mockSnapshotProvider{}, &mockZipKeyLister{}, &mockScoreMetrics{}, 2)

	w := postScores(t, handler, `{
		"zips": ["94110", "94601", "94702"],
		"criteria": [{"rating_kind": "schoolRating", "weight": 1, "enabled": true}]
	}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeValidationBatchSize))
}

func TestComputeScores_MalformedBodyRejected(t *testing.T) {
	handler := newScoreTestHandler(&mockSnapshotProvider{}, &mockZipKeyLister{}, &mockScoreMetrics{}, 100)

	w := postScores(t, handler, `{"criteria": `)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_invalid_json")
}

func TestComputeScores_UnknownKindWarns(t *testing.T) {
	handler := newScoreTestHandler(&mockSnapshotProvider{}, &mockZipKeyLister{}, &mockScoreMetrics{}, 100)

	w := postScores(t, handler, `{
		"zips": ["94110"],
		"criteria": [{"rating_kind": "walkability", "weight": 1, "enabled": true}]
	}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp scoresEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Meta)
	require.Len(t, resp.Meta.Warnings, 1)
	assert.Contains(t, resp.Meta.Warnings[0], "walkability")
}
