package types

// JobStatus represents the lifecycle state of a precompute job.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// IsTerminal reports whether no further chunk work may happen for the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Priority ranks a reorder suggestion.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to its sort weight (high=3, medium=2, low=1).
// Unknown priorities rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Trend classifies recent versus older sales velocity.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Action names an operation accepted by the precompute entrypoints.
type Action string

const (
	ActionStart       Action = "start"
	ActionRunChunk    Action = "run_chunk"
	ActionStatus      Action = "status"
	ActionSuggestions Action = "suggestions"
)
