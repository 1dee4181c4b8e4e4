// Package queue schedules follow-up precompute chunks through SQS so a job
// keeps advancing without an external driver.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"reorder/internal/config"
	"reorder/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Continuer enqueues the next run_chunk message for a job that still has
// work. Each message carries an attempt counter; once it reaches the
// configured ceiling the chain stops and the job is left for a manual or
// scheduled resume.
type Continuer struct {
	client      SQSSender
	queueURL    string
	maxAttempts int
	logger      *slog.Logger
}

// NewContinuer creates a Continuer for the continuation queue in awsCfg.
func NewContinuer(client SQSSender, awsCfg config.AWSConfig, maxAttempts int, logger *slog.Logger) *Continuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Continuer{
		client:      client,
		queueURL:    awsCfg.ContinuationQueue,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Enabled reports whether a continuation queue is configured.
func (c *Continuer) Enabled() bool {
	return c != nil && c.client != nil && c.queueURL != ""
}

// Continue sends the message following prev. It reports false without error
// when continuation is disabled or the attempt ceiling is reached.
func (c *Continuer) Continue(ctx context.Context, prev types.ContinuationMessage) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	next := types.ContinuationMessage{
		JobID:   prev.JobID,
		Options: prev.Options,
		Attempt: prev.Attempt + 1,
		TraceID: prev.TraceID,
	}
	if next.TraceID == "" {
		next.TraceID = uuid.NewString()
	}
	if c.maxAttempts > 0 && next.Attempt > c.maxAttempts {
		c.logger.WarnContext(ctx, "continuation limit reached, job left for resume",
			"job_id", next.JobID,
			"attempt", next.Attempt,
			"max_attempts", c.maxAttempts,
		)
		return false, nil
	}

	body, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("queue: failed to marshal ContinuationMessage: %w", err)
	}

	_, err = c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"job_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(next.JobID),
			},
			"attempt": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(next.Attempt)),
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("queue: failed to send continuation for job %s: %w", next.JobID, err)
	}

	c.logger.InfoContext(ctx, "continuation enqueued",
		"job_id", next.JobID,
		"attempt", next.Attempt,
		"trace_id", next.TraceID,
	)
	return true, nil
}

// DecodeContinuation parses an SQS message body.
func DecodeContinuation(body string) (types.ContinuationMessage, error) {
	var msg types.ContinuationMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return msg, types.NewAppError(types.ErrCodeValidationMissingField, "malformed continuation message", err)
	}
	if msg.JobID == "" {
		return msg, types.NewAppError(types.ErrCodeValidationMissingField, "continuation message has no job_id", nil)
	}
	return msg, nil
}
