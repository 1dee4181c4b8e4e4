package types

// Telemetry metric names for CloudWatch.
const (
	MetricItemsProcessed     = "ItemsProcessed"
	MetricItemsSkipped       = "ItemsSkipped"
	MetricSuggestionsWritten = "SuggestionsWritten"
	MetricChunkDuration      = "ChunkDurationMs"
	MetricJobCompleted       = "JobCompleted"
	MetricJobFailed          = "JobFailed"

	// Dimension Keys
	DimOperation = "Operation"

	// Metric Namespace
	MetricNamespace = "ReorderPrecompute"
)
