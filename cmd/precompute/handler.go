package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"reorder/internal/precompute"
	"reorder/internal/queue"
	"reorder/internal/suggest"
	"reorder/internal/types"
)

// jobController is the subset of *precompute.Controller the handler drives.
type jobController interface {
	Start(ctx context.Context, months int) (precompute.StartResult, error)
	RunChunk(ctx context.Context, jobID string, opts types.ChunkOptions) (precompute.ChunkResult, error)
	Status(ctx context.Context, jobID string) (precompute.StatusResult, error)
	Suggestions(ctx context.Context, jobID string) ([]types.SuggestionRow, suggest.Stats, error)
}

// continuer schedules the next chunk of a job.
type continuer interface {
	Continue(ctx context.Context, prev types.ContinuationMessage) (bool, error)
}

// Request is a direct invocation payload.
type Request struct {
	Action  types.Action       `json:"action"`
	JobID   string             `json:"job_id,omitempty"`
	Months  int                `json:"months,omitempty"`
	Options types.ChunkOptions `json:"options,omitempty"`
}

// Response is returned for every direct invocation. Exactly one of Data and
// Error is set.
type Response struct {
	Action    types.Action    `json:"action"`
	Data      any             `json:"data,omitempty"`
	Continued bool            `json:"continued,omitempty"`
	Error     *types.AppError `json:"error,omitempty"`
}

// SuggestionsData is the payload of a suggestions response.
type SuggestionsData struct {
	JobID       string                `json:"job_id"`
	Suggestions []types.SuggestionRow `json:"suggestions"`
	Stats       suggest.Stats         `json:"stats"`
}

// Handler routes Lambda events to the job controller.
type Handler struct {
	Controller jobController
	Continuer  continuer
	Log        *slog.Logger
}

// Handle accepts either an SQS continuation batch or a direct Request.
//
// SQS records are reported through partial batch failures: only records whose
// chunk failed transiently are redelivered. Direct requests always return a
// Response; domain failures travel in its Error field rather than as a Lambda
// invocation error.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) (any, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		ctx = types.WithRequestID(ctx, lc.AwsRequestID)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err == nil && isSQSEvent(sqsEvent) {
		return h.handleSQS(ctx, sqsEvent), nil
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return failure("", types.NewAppError(types.ErrCodeValidationInvalidAction, "payload is not a valid request", err)), nil
	}
	return h.handleRequest(ctx, req), nil
}

func isSQSEvent(e events.SQSEvent) bool {
	return len(e.Records) > 0 && e.Records[0].EventSource == "aws:sqs"
}

func (h *Handler) handleRequest(ctx context.Context, req Request) Response {
	switch req.Action {
	case types.ActionStart:
		res, err := h.Controller.Start(ctx, req.Months)
		if err != nil {
			return failure(req.Action, err)
		}
		continued := h.schedule(ctx, types.ContinuationMessage{JobID: res.JobID, Options: req.Options})
		return Response{Action: req.Action, Data: res, Continued: continued}

	case types.ActionRunChunk:
		res, err := h.Controller.RunChunk(ctx, req.JobID, req.Options)
		if err != nil {
			return failure(req.Action, err)
		}
		var continued bool
		if needsContinuation(res) {
			continued = h.schedule(ctx, types.ContinuationMessage{JobID: res.JobID, Options: req.Options})
		}
		return Response{Action: req.Action, Data: res, Continued: continued}

	case types.ActionStatus:
		res, err := h.Controller.Status(ctx, req.JobID)
		if err != nil {
			return failure(req.Action, err)
		}
		return Response{Action: req.Action, Data: res}

	case types.ActionSuggestions:
		if req.JobID == "" {
			return failure(req.Action, types.NewAppError(types.ErrCodeValidationMissingField, "job_id is required", nil))
		}
		rows, stats, err := h.Controller.Suggestions(ctx, req.JobID)
		if err != nil {
			return failure(req.Action, err)
		}
		if rows == nil {
			rows = []types.SuggestionRow{}
		}
		return Response{Action: req.Action, Data: SuggestionsData{JobID: req.JobID, Suggestions: rows, Stats: stats}}

	default:
		return failure(req.Action, types.NewAppError(
			types.ErrCodeValidationInvalidAction,
			"action must be one of start, run_chunk, status, suggestions",
			nil,
		))
	}
}

func (h *Handler) handleSQS(ctx context.Context, event events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range event.Records {
		if h.handleRecord(ctx, record) {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp
}

// handleRecord runs one continuation and reports whether SQS should
// redeliver it.
func (h *Handler) handleRecord(ctx context.Context, record events.SQSMessage) bool {
	msg, err := queue.DecodeContinuation(record.Body)
	if err != nil {
		h.Log.ErrorContext(ctx, "dropping malformed continuation message",
			"message_id", record.MessageId,
			"error", err,
		)
		return false
	}

	log := h.Log.With("job_id", msg.JobID, "attempt", msg.Attempt, "trace_id", msg.TraceID)

	res, err := h.Controller.RunChunk(ctx, msg.JobID, msg.Options)
	if err != nil {
		if !retryable(err) {
			log.WarnContext(ctx, "continuation dropped", "error", err, "code", types.CodeOf(err))
			return false
		}
		log.WarnContext(ctx, "chunk failed, message will be redelivered", "error", err)
		return true
	}

	if !needsContinuation(res) {
		log.InfoContext(ctx, "continuation chain finished",
			"status", res.Status,
			"processed_items", res.ProcessedItems,
			"total_items", res.TotalItems,
		)
		return false
	}
	if h.Continuer == nil {
		return false
	}
	if _, err := h.Continuer.Continue(ctx, msg); err != nil {
		// The chunk is committed; redelivery resumes from the new cursor.
		log.ErrorContext(ctx, "failed to enqueue continuation", "error", err)
		return true
	}
	return false
}

// schedule enqueues a continuation for a direct invocation. Failures are
// logged; the job can always be resumed with another run_chunk.
func (h *Handler) schedule(ctx context.Context, msg types.ContinuationMessage) bool {
	if h.Continuer == nil {
		return false
	}
	sent, err := h.Continuer.Continue(ctx, msg)
	if err != nil {
		h.Log.ErrorContext(ctx, "failed to enqueue continuation", "job_id", msg.JobID, "error", err)
		return false
	}
	return sent
}

func needsContinuation(res precompute.ChunkResult) bool {
	return res.HasMore && res.Status == types.JobStatusRunning
}

// retryable reports whether a failed continuation should be redelivered.
// Validation errors, unknown jobs, lost races and permanent upstream failures
// will not succeed on a second delivery.
func retryable(err error) bool {
	switch types.CodeOf(err) {
	case types.ErrCodeConflictConcurrent,
		types.ErrCodeNotFoundJob,
		types.ErrCodeValidationMissingField,
		types.ErrCodeValidationChunkOptions:
		return false
	}
	return !types.IsPermanentUpstream(err)
}

func failure(action types.Action, err error) Response {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		appErr = types.NewAppError(types.ErrCodeInternalUnexpected, "unexpected error", err)
	}
	return Response{Action: action, Error: appErr}
}
