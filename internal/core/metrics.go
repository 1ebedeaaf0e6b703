// Package core holds shared service plumbing: the HTTP response envelope,
// request validation, middleware, server wiring, and pipeline metrics.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricResult categorizes a delivery outcome.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricSkipped MetricResult = "skipped"
)

// NotificationMetrics records pipeline telemetry. Implementations must be
// non-blocking on failure: metric errors are logged, never propagated.
type NotificationMetrics interface {
	// RecordDelivery counts one dispatch outcome.
	RecordDelivery(ctx context.Context, result MetricResult)
	// RecordProcessingLatency tracks how long one message took end to end.
	RecordProcessingLatency(ctx context.Context, d time.Duration)
	// RecordQueueLag tracks time between enqueue and processing start.
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits pipeline metrics to AWS CloudWatch.
//
// Metrics emitted:
//   - NotificationDispatch: Dims {Result} -- on every dispatch outcome
//   - NotificationProcessingLatency -- per-message processing time
//   - NotificationQueueLag -- enqueue-to-processing delay
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// Compile-time assertion that CloudWatchMetrics implements NotificationMetrics.
var _ NotificationMetrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDelivery emits a NotificationDispatch metric with a Result dimension.
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("NotificationDispatch"),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("Result"), Value: aws.String(string(result))},
		},
	})
}

// RecordProcessingLatency emits the per-message processing duration in
// milliseconds.
func (m *CloudWatchMetrics) RecordProcessingLatency(ctx context.Context, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("NotificationProcessingLatency"),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

// RecordQueueLag emits the enqueue-to-processing delay in milliseconds.
func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("NotificationQueueLag"),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to put metric data",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

// NoopMetrics discards all metrics. Used in tests and local development.
type NoopMetrics struct{}

var _ NotificationMetrics = NoopMetrics{}

func (NoopMetrics) RecordDelivery(context.Context, MetricResult)          {}
func (NoopMetrics) RecordProcessingLatency(context.Context, time.Duration) {}
func (NoopMetrics) RecordQueueLag(context.Context, time.Duration)          {}
