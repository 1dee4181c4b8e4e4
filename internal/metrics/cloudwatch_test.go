package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"reorder/internal/precompute"
	"reorder/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func datumByName(input *cloudwatch.PutMetricDataInput) map[string]cwtypes.MetricDatum {
	out := make(map[string]cwtypes.MetricDatum, len(input.MetricData))
	for _, d := range input.MetricData {
		out[*d.MetricName] = d
	}
	return out
}

func TestPublishChunk(t *testing.T) {
	cw := &mockCloudWatchClient{}
	p := NewCloudWatchPublisher(cw, "")

	err := p.PublishChunk(context.Background(), precompute.ChunkResult{
		JobID:              "job-1",
		Status:             types.JobStatusRunning,
		Advanced:           50,
		Skipped:            4,
		SuggestionsWritten: 17,
		ElapsedMs:          6200,
	})
	if err != nil {
		t.Fatalf("PublishChunk returned error: %v", err)
	}
	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.calls))
	}

	input := cw.calls[0]
	if *input.Namespace != types.MetricNamespace {
		t.Errorf("namespace = %q, want %q", *input.Namespace, types.MetricNamespace)
	}

	data := datumByName(input)
	if len(data) != 4 {
		t.Fatalf("expected 4 metrics for a running job, got %d", len(data))
	}
	want := map[string]float64{
		types.MetricItemsProcessed:     46,
		types.MetricItemsSkipped:       4,
		types.MetricSuggestionsWritten: 17,
		types.MetricChunkDuration:      6200,
	}
	for name, v := range want {
		d, ok := data[name]
		if !ok {
			t.Errorf("missing metric %s", name)
			continue
		}
		if *d.Value != v {
			t.Errorf("%s = %v, want %v", name, *d.Value, v)
		}
		if len(d.Dimensions) != 1 || *d.Dimensions[0].Name != types.DimOperation || *d.Dimensions[0].Value != "run_chunk" {
			t.Errorf("%s has unexpected dimensions", name)
		}
	}
	if data[types.MetricChunkDuration].Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("ChunkDurationMs unit = %s", data[types.MetricChunkDuration].Unit)
	}
}

func TestPublishChunk_JobCompleted(t *testing.T) {
	cw := &mockCloudWatchClient{}
	p := NewCloudWatchPublisher(cw, "Custom")

	if err := p.PublishChunk(context.Background(), precompute.ChunkResult{Status: types.JobStatusDone, Advanced: 3}); err != nil {
		t.Fatalf("PublishChunk returned error: %v", err)
	}

	if *cw.calls[0].Namespace != "Custom" {
		t.Errorf("namespace = %q", *cw.calls[0].Namespace)
	}
	if d, ok := datumByName(cw.calls[0])[types.MetricJobCompleted]; !ok || *d.Value != 1 {
		t.Error("expected JobCompleted=1 on the finishing chunk")
	}
}

func TestPublishJobFailed(t *testing.T) {
	cw := &mockCloudWatchClient{}

	if err := NewCloudWatchPublisher(cw, "").PublishJobFailed(context.Background(), "job-1"); err != nil {
		t.Fatalf("PublishJobFailed returned error: %v", err)
	}
	data := datumByName(cw.calls[0])
	if d, ok := data[types.MetricJobFailed]; !ok || *d.Value != 1 || d.Unit != cwtypes.StandardUnitCount {
		t.Errorf("unexpected JobFailed datum: %+v", data)
	}
}

func TestPublish_Errors(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	p := NewCloudWatchPublisher(cw, "")

	if err := p.PublishChunk(context.Background(), precompute.ChunkResult{}); err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Errorf("PublishChunk error = %v", err)
	}
	if err := p.PublishJobFailed(context.Background(), "job-7"); err == nil || !strings.Contains(err.Error(), "job-7") {
		t.Errorf("PublishJobFailed error = %v", err)
	}
}
