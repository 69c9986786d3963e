// Package telemetry emits API request metrics to AWS CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// maxBatchSize is CloudWatch's PutMetricData limit per call.
const maxBatchSize = 20

// CloudWatchClient abstracts the PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchCollector implements the server's MetricsCollector by buffering
// request datums and flushing them in batches. Emission is best-effort:
// publish failures are logged, never surfaced to request handling.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger

	mu     sync.Mutex
	buffer []cwtypes.MetricDatum
}

// NewCloudWatchCollector creates a collector publishing to the given
// namespace.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest buffers a RequestCount and RequestLatency datum for the
// request. A full buffer flushes inline on the request goroutine; the batch
// cap keeps that call small.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	now := time.Now().UTC()
	dims := []cwtypes.Dimension{
		{Name: aws.String("Method"), Value: aws.String(method)},
		{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
		{Name: aws.String("Status"), Value: aws.String(status)},
	}

	c.mu.Lock()
	c.buffer = append(c.buffer,
		cwtypes.MetricDatum{
			MetricName: aws.String("RequestCount"),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  aws.Time(now),
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String("RequestLatency"),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Timestamp:  aws.Time(now),
			Dimensions: dims,
		},
	)
	var batch []cwtypes.MetricDatum
	if len(c.buffer) >= maxBatchSize {
		batch = c.buffer
		c.buffer = nil
	}
	c.mu.Unlock()

	if batch != nil {
		c.publish(context.Background(), batch)
	}
}

// Flush publishes any buffered datums. Called during server shutdown.
func (c *CloudWatchCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return c.publish(ctx, batch)
}

func (c *CloudWatchCollector) publish(ctx context.Context, batch []cwtypes.MetricDatum) error {
	var lastErr error
	for start := 0; start < len(batch); start += maxBatchSize {
		end := min(start+maxBatchSize, len(batch))
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: batch[start:end],
		})
		if err != nil {
			c.logger.Error("failed to publish request metrics",
				"error", err,
				"datums", end-start,
			)
			lastErr = err
		}
	}
	return lastErr
}
