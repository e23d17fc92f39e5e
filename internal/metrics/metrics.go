// Package metrics implements operational metric emission for collector runs
// and scoring requests. CloudWatch emission is optional and config-gated; the
// no-op recorder serves self-hosted deployments.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric and dimension names.
const (
	MetricSourceRun         = "SourceRunOutcome"
	MetricSourceRunDuration = "SourceRunDuration"
	MetricScoreRequest      = "ScoreRequestLatency"
	MetricAPIRequest        = "APIRequestLatency"

	DimSource   = "Source"
	DimResult   = "Result"
	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
)

// Recorder receives operational metrics. Emission failures are logged, never
// propagated; metrics must not affect collection or request outcomes.
type Recorder interface {
	// RecordSourceRun records one collector run outcome and its duration.
	RecordSourceRun(ctx context.Context, source string, success bool, duration time.Duration)
	// RecordScoreRequest records the latency of one scoring request.
	RecordScoreRequest(ctx context.Context, zipCount int, duration time.Duration)
	// RecordRequest records one API request's latency tagged with its route
	// and response status.
	RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder emits metrics to AWS CloudWatch under a configurable
// namespace.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ Recorder = (*CloudWatchRecorder)(nil)

// NewCloudWatchRecorder creates a CloudWatchRecorder publishing to the given
// namespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordSourceRun emits the run outcome (count, Dims {Source, Result}) and
// its duration (milliseconds, Dims {Source}) in a single call.
func (r *CloudWatchRecorder) RecordSourceRun(ctx context.Context, source string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricSourceRun),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimSource), Value: aws.String(source)},
					{Name: aws.String(DimResult), Value: aws.String(result)},
				},
			},
			{
				MetricName: aws.String(MetricSourceRunDuration),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimSource), Value: aws.String(source)},
				},
			},
		},
	}

	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.ErrorContext(ctx, "failed to record source run metric",
			"error", err,
			"source", source,
			"result", result,
		)
	}
}

// RecordScoreRequest emits the scoring request latency in milliseconds.
// The zip count rides along as a separate count datum so dashboards can
// correlate latency with batch size.
func (r *CloudWatchRecorder) RecordScoreRequest(ctx context.Context, zipCount int, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricScoreRequest),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
			{
				MetricName: aws.String("ScoreRequestZips"),
				Value:      aws.Float64(float64(zipCount)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.ErrorContext(ctx, "failed to record score request metric",
			"error", err,
			"zip_count", zipCount,
		)
	}
}

// RecordRequest emits the API request latency in milliseconds, dimensioned
// by method, route pattern, and response status.
func (r *CloudWatchRecorder) RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricAPIRequest),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimMethod), Value: aws.String(method)},
					{Name: aws.String(DimEndpoint), Value: aws.String(endpoint)},
					{Name: aws.String(DimStatus), Value: aws.String(status)},
				},
			},
		},
	}

	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.ErrorContext(ctx, "failed to record api request metric",
			"error", err,
			"endpoint", endpoint,
		)
	}
}

// NoopRecorder discards all metrics. Used when CloudWatch emission is
// disabled.
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) RecordSourceRun(context.Context, string, bool, time.Duration) {}

func (NoopRecorder) RecordScoreRequest(context.Context, int, time.Duration) {}

func (NoopRecorder) RecordRequest(context.Context, string, string, string, time.Duration) {}
