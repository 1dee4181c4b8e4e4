// Package metrics publishes precompute chunk telemetry to CloudWatch.
package metrics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"reorder/internal/precompute"
	"reorder/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ precompute.MetricPublisher = (*CloudWatchPublisher)(nil)

// CloudWatchPublisher implements precompute.MetricPublisher.
//
// Metrics emitted, all with the Operation dimension:
//   - ItemsProcessed, ItemsSkipped, SuggestionsWritten (Count) per chunk
//   - ChunkDurationMs (Milliseconds) per chunk
//   - JobCompleted (Count) on the chunk that finishes a job
//   - JobFailed (Count) when a job is marked failed
type CloudWatchPublisher struct {
	client    CloudWatchClient
	namespace string
	operation string
}

// NewCloudWatchPublisher creates a publisher for namespace. An empty namespace
// falls back to types.MetricNamespace.
func NewCloudWatchPublisher(client CloudWatchClient, namespace string) *CloudWatchPublisher {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	return &CloudWatchPublisher{
		client:    client,
		namespace: namespace,
		operation: string(types.ActionRunChunk),
	}
}

// PublishChunk emits the per-chunk counters in one PutMetricData call.
func (p *CloudWatchPublisher) PublishChunk(ctx context.Context, res precompute.ChunkResult) error {
	dims := p.dims()
	data := []cwtypes.MetricDatum{
		count(types.MetricItemsProcessed, res.Advanced-res.Skipped, dims),
		count(types.MetricItemsSkipped, res.Skipped, dims),
		count(types.MetricSuggestionsWritten, res.SuggestionsWritten, dims),
		{
			MetricName: aws.String(types.MetricChunkDuration),
			Value:      aws.Float64(float64(res.ElapsedMs)),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	}
	if res.Status == types.JobStatusDone {
		data = append(data, count(types.MetricJobCompleted, 1, dims))
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish chunk metrics: %w", err)
	}
	return nil
}

// PublishJobFailed emits JobFailed=1.
func (p *CloudWatchPublisher) PublishJobFailed(ctx context.Context, jobID string) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{count(types.MetricJobFailed, 1, p.dims())},
	})
	if err != nil {
		return fmt.Errorf("failed to publish JobFailed metric for job %s: %w", jobID, err)
	}
	return nil
}

func (p *CloudWatchPublisher) dims() []cwtypes.Dimension {
	return []cwtypes.Dimension{
		{
			Name:  aws.String(types.DimOperation),
			Value: aws.String(p.operation),
		},
	}
}

func count(name string, v int, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(v)),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}
