package types

// ChunkOptions tunes one runChunk invocation. Zero values take the configured
// defaults.
type ChunkOptions struct {
	BatchSize       int `json:"batch_size,omitempty" validate:"omitempty,min=1,max=1000"`
	Concurrency     int `json:"concurrency,omitempty" validate:"omitempty,min=1,max=50"`
	GroupSize       int `json:"group_size,omitempty" validate:"omitempty,min=1,max=100"`
	MaxHistoryPages int `json:"max_history_pages,omitempty" validate:"omitempty,min=1,max=50"`
}

// ContinuationMessage is the SQS body that schedules the next chunk of a job.
// Attempt counts how many continuations have been chained for the job so a
// runaway loop can be cut off by the consumer.
type ContinuationMessage struct {
	JobID   string       `json:"job_id"`
	Options ChunkOptions `json:"options"`
	Attempt int          `json:"attempt"`
	TraceID string       `json:"trace_id,omitempty"`
}
