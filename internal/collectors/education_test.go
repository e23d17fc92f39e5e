package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ziprank/internal/types"
)

func TestAggregateSchoolScores(t *testing.T) {
	payload := []byte(`CDSCode,School,API Base,Zip
0161119,School A,800,94110
0161120,School B,600,94110
0161121,School C,900,94601-1234
0161122,School D,n/a,94601
0161123,School E,700,invalid
`)

	perZip, err := aggregateSchoolScores(payload)
	require.NoError(t, err)

	require.Len(t, perZip, 2)
	assert.Equal(t, 700.0, perZip["94110"])   // mean of 800 and 600
	assert.Equal(t, 900.0, perZip["94601"])   // ZIP+4 suffix stripped
}

func TestAggregateSchoolScores_MissingColumns(t *testing.T) {
	_, err := aggregateSchoolScores([]byte("School,County\nA,Alameda\n"))
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamSource, appErr.Code)
}

func TestEducationCollector_Collect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("CDSCode,API Base,Zip\n0161119,800,94110\n"))
	}))
	defer server.Close()

	collector := NewEducationCollector(newTestClient("edu-test"), server.URL, discardLogger())

	observations, err := collector.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, observations, 1)
	obs := observations[0]
	assert.Equal(t, "94110", obs.Zip)
	assert.Equal(t, types.KindSchoolRating, obs.Kind)
	assert.Equal(t, 6.0, obs.Value) // (800-200)/100
	assert.Equal(t, 0.85, obs.Confidence)
	assert.Equal(t, "California Department of Education", obs.Source)
}

func TestEducationCollector_Spec(t *testing.T) {
	collector := NewEducationCollector(nil, "", discardLogger())
	spec := collector.Spec()
	assert.Equal(t, "education_data", spec.Name)
	assert.Equal(t, 180*24*3600.0, spec.UpdateFrequency.Seconds())
}
