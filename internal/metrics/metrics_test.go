package metrics

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// mockCloudWatch captures PutMetricData inputs.
type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func findDatum(data []cwtypes.MetricDatum, name string) *cwtypes.MetricDatum {
	for i := range data {
		if data[i].MetricName != nil && *data[i].MetricName == name {
			return &data[i]
		}
	}
	return nil
}

func TestCloudWatchRecorder_RecordSourceRun(t *testing.T) {
	cw := &mockCloudWatch{}
	recorder := NewCloudWatchRecorder(cw, "ZipRank", discardLogger())

	recorder.RecordSourceRun(context.Background(), "census_data", true, 1500*time.Millisecond)

	require.Len(t, cw.inputs, 1)
	input := cw.inputs[0]
	assert.Equal(t, "ZipRank", *input.Namespace)
	require.Len(t, input.MetricData, 2)

	outcome := findDatum(input.MetricData, MetricSourceRun)
	require.NotNil(t, outcome)
	assert.Equal(t, 1.0, *outcome.Value)
	require.Len(t, outcome.Dimensions, 2)
	assert.Equal(t, "census_data", *outcome.Dimensions[0].Value)
	assert.Equal(t, "success", *outcome.Dimensions[1].Value)

	duration := findDatum(input.MetricData, MetricSourceRunDuration)
	require.NotNil(t, duration)
	assert.Equal(t, 1500.0, *duration.Value)
}

func TestCloudWatchRecorder_RecordSourceRun_Failure(t *testing.T) {
	cw := &mockCloudWatch{}
	recorder := NewCloudWatchRecorder(cw, "ZipRank", discardLogger())

	recorder.RecordSourceRun(context.Background(), "niche_ratings", false, time.Second)

	require.Len(t, cw.inputs, 1)
	outcome := findDatum(cw.inputs[0].MetricData, MetricSourceRun)
	require.NotNil(t, outcome)
	assert.Equal(t, "failure", *outcome.Dimensions[1].Value)
}

func TestCloudWatchRecorder_EmissionErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatch{err: errors.New("throttled")}
	recorder := NewCloudWatchRecorder(cw, "ZipRank", discardLogger())

	// Must not panic or propagate.
	recorder.RecordSourceRun(context.Background(), "osm_data", true, time.Second)
	recorder.RecordScoreRequest(context.Background(), 10, time.Millisecond)
}

func TestCloudWatchRecorder_RecordRequest(t *testing.T) {
	cw := &mockCloudWatch{}
	recorder := NewCloudWatchRecorder(cw, "ZipRank", discardLogger())

	recorder.RecordRequest(context.Background(), "POST", "/v1/scores", "200", 12*time.Millisecond)

	require.Len(t, cw.inputs, 1)
	latency := findDatum(cw.inputs[0].MetricData, MetricAPIRequest)
	require.NotNil(t, latency)
	assert.Equal(t, 12.0, *latency.Value)
	require.Len(t, latency.Dimensions, 3)
	assert.Equal(t, "POST", *latency.Dimensions[0].Value)
	assert.Equal(t, "/v1/scores", *latency.Dimensions[1].Value)
	assert.Equal(t, "200", *latency.Dimensions[2].Value)
}

func TestCloudWatchRecorder_RecordScoreRequest(t *testing.T) {
	cw := &mockCloudWatch{}
	recorder := NewCloudWatchRecorder(cw, "ZipRank", discardLogger())

	recorder.RecordScoreRequest(context.Background(), 25, 40*time.Millisecond)

	require.Len(t, cw.inputs, 1)
	latency := findDatum(cw.inputs[0].MetricData, MetricScoreRequest)
	require.NotNil(t, latency)
	assert.Equal(t, 40.0, *latency.Value)

	zips := findDatum(cw.inputs[0].MetricData, "ScoreRequestZips")
	require.NotNil(t, zips)
	assert.Equal(t, 25.0, *zips.Value)
}
