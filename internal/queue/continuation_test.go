package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"reorder/internal/config"
	"reorder/internal/types"
)

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/precompute-continuation"

func newTestContinuer(mock *mockSQSSender, maxAttempts int) *Continuer {
	return NewContinuer(mock, config.AWSConfig{ContinuationQueue: testQueueURL}, maxAttempts, slog.Default())
}

func TestContinue_SendsNextAttempt(t *testing.T) {
	mock := &mockSQSSender{}
	c := newTestContinuer(mock, 10)

	prev := types.ContinuationMessage{
		JobID:   "job-1",
		Options: types.ChunkOptions{BatchSize: 25},
		Attempt: 3,
		TraceID: "trace-abc",
	}
	sent, err := c.Continue(context.Background(), prev)
	if err != nil {
		t.Fatalf("Continue returned error: %v", err)
	}
	if !sent {
		t.Fatal("expected message to be sent")
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SQS call, got %d", len(mock.calls))
	}

	call := mock.calls[0]
	if *call.QueueUrl != testQueueURL {
		t.Errorf("queue URL = %q", *call.QueueUrl)
	}

	var got types.ContinuationMessage
	if err := json.Unmarshal([]byte(*call.MessageBody), &got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got.JobID != "job-1" || got.Attempt != 4 || got.TraceID != "trace-abc" || got.Options.BatchSize != 25 {
		t.Errorf("unexpected message %+v", got)
	}
	if v := *call.MessageAttributes["attempt"].StringValue; v != "4" {
		t.Errorf("attempt attribute = %q, want 4", v)
	}
	if v := *call.MessageAttributes["job_id"].StringValue; v != "job-1" {
		t.Errorf("job_id attribute = %q", v)
	}
}

func TestContinue_AssignsTraceID(t *testing.T) {
	mock := &mockSQSSender{}
	if _, err := newTestContinuer(mock, 0).Continue(context.Background(), types.ContinuationMessage{JobID: "job-1"}); err != nil {
		t.Fatalf("Continue returned error: %v", err)
	}

	var got types.ContinuationMessage
	json.Unmarshal([]byte(*mock.calls[0].MessageBody), &got)
	if got.TraceID == "" {
		t.Error("expected a generated trace ID")
	}
}

func TestContinue_StopsAtLimit(t *testing.T) {
	mock := &mockSQSSender{}
	c := newTestContinuer(mock, 5)

	sent, err := c.Continue(context.Background(), types.ContinuationMessage{JobID: "job-1", Attempt: 5})
	if err != nil {
		t.Fatalf("Continue returned error: %v", err)
	}
	if sent {
		t.Error("expected no message past the attempt ceiling")
	}
	if len(mock.calls) != 0 {
		t.Errorf("expected no SQS calls, got %d", len(mock.calls))
	}
}

func TestContinue_Disabled(t *testing.T) {
	mock := &mockSQSSender{}
	c := NewContinuer(mock, config.AWSConfig{}, 5, nil)

	if c.Enabled() {
		t.Fatal("continuer without a queue URL should be disabled")
	}
	sent, err := c.Continue(context.Background(), types.ContinuationMessage{JobID: "job-1"})
	if err != nil || sent {
		t.Errorf("Continue = (%v, %v), want (false, nil)", sent, err)
	}

	var nilContinuer *Continuer
	if nilContinuer.Enabled() {
		t.Error("nil continuer should be disabled")
	}
}

func TestContinue_SendError(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("AccessDenied")}

	_, err := newTestContinuer(mock, 5).Continue(context.Background(), types.ContinuationMessage{JobID: "job-9"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "job-9") || !strings.Contains(err.Error(), "AccessDenied") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecodeContinuation(t *testing.T) {
	msg, err := DecodeContinuation(`{"job_id":"job-1","options":{"concurrency":2},"attempt":7}`)
	if err != nil {
		t.Fatalf("DecodeContinuation returned error: %v", err)
	}
	if msg.JobID != "job-1" || msg.Attempt != 7 || msg.Options.Concurrency != 2 {
		t.Errorf("unexpected message %+v", msg)
	}

	for _, body := range []string{`{"attempt":1}`, `not json`} {
		if _, err := DecodeContinuation(body); types.CodeOf(err) != types.ErrCodeValidationMissingField {
			t.Errorf("DecodeContinuation(%q) code = %q", body, types.CodeOf(err))
		}
	}
}
