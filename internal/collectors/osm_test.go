package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ziprank/internal/types"
)

func TestOSMCollector_Collect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.PostForm.Get("data")
		assert.Contains(t, query, `area["postal_code"=`)

		if strings.Contains(query, `"94110"`) {
			w.Write([]byte(`{"elements": [
				{"tags": {"amenity": "restaurant"}},
				{"tags": {"amenity": "cafe"}},
				{"tags": {"amenity": "pharmacy"}},
				{"tags": {"amenity": "bus_stop"}},
				{"tags": {"amenity": "fountain"}},
				{"tags": {"highway": "residential"}}
			]}`))
			return
		}
		// No mapped area for this zip.
		w.Write([]byte(`{"elements": []}`))
	}))
	defer server.Close()

	collector := NewOSMCollector(
		newTestClient("osm-test"),
		staticZipLister{"94110", "99999"},
		server.URL,
		discardLogger(),
	)

	observations, err := collector.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, observations, 1)
	obs := observations[0]
	assert.Equal(t, "94110", obs.Zip)
	assert.Equal(t, types.KindNeighborhoodRating, obs.Kind)
	assert.Equal(t, 0.75, obs.Confidence)
	// restaurants=2 (score 3), healthcare=1 (2), transit=1 (2), others 0 (2
	// each): mean of {3,2,2,2,2,2} = 2.2. Unmapped amenities are ignored.
	assert.InDelta(t, 2.2, obs.Value, 0.001)
}

func TestOSMCollector_OverpassFailureAbortsRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer server.Close()

	collector := NewOSMCollector(
		newTestClient("osm-fail"),
		staticZipLister{"94110"},
		server.URL,
		discardLogger(),
	)

	_, err := collector.Collect(context.Background())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamSource, appErr.Code)
}

func TestOSMCollector_Spec(t *testing.T) {
	collector := NewOSMCollector(nil, nil, "", discardLogger())
	spec := collector.Spec()
	assert.Equal(t, "osm_data", spec.Name)
	assert.Equal(t, 60*24*3600.0, spec.UpdateFrequency.Seconds())
}
