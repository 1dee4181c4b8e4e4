// Package precompute runs reorder suggestion jobs over the provider catalog
// in resumable, time-boxed chunks.
//
// A job walks the catalog by logical offset. Each RunChunk call reads the next
// slice of items at the persisted cursor, enriches and sizes them, and commits
// the produced rows together with the advanced cursor in one transaction. A
// crashed or timed-out invocation therefore leaves the job exactly where the
// last commit put it, and the next call resumes from there.
package precompute

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reorder/internal/config"
	"reorder/internal/pool"
	"reorder/internal/suggest"
	"reorder/internal/types"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// DefaultMonths is the sales lookback when Start is called with 0.
	DefaultMonths = 6
	// MaxMonths caps the sales lookback.
	MaxMonths = 36

	// deadlineMargin is kept free before an invocation deadline for the
	// commit and response.
	deadlineMargin = 1500 * time.Millisecond
)

// ItemDetailer reads current stock for one item.
type ItemDetailer interface {
	GetItemDetail(ctx context.Context, itemID string) (types.ItemDetail, error)
}

// Catalog is the provider surface a job reads.
type Catalog interface {
	ItemLister
	ItemDetailer
	SalesSource
}

// JobStore persists jobs. Every write after Create is conditioned on the
// version the caller read and returns the new version; a stale version
// yields ErrCodeConflictConcurrent and changes nothing.
type JobStore interface {
	Create(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, jobID string) (*types.Job, error)
	MarkRunning(ctx context.Context, jobID string, version int64) (int64, error)
	// CommitChunk inserts rows and applies upd atomically.
	CommitChunk(ctx context.Context, jobID string, version int64, rows []types.SuggestionRow, upd types.JobUpdate) (int64, error)
	MarkFailed(ctx context.Context, jobID string, version int64, message string) error
}

// SuggestionReader lists the rows a job produced.
type SuggestionReader interface {
	ListByJob(ctx context.Context, jobID string) ([]types.SuggestionRow, error)
}

// MetricPublisher records chunk telemetry. Errors are logged, never returned
// to the caller.
type MetricPublisher interface {
	PublishChunk(ctx context.Context, res ChunkResult) error
	PublishJobFailed(ctx context.Context, jobID string) error
}

// ChunkDefaults fills ChunkOptions fields left at zero and holds the limits
// that are not per-call.
type ChunkDefaults struct {
	BatchSize       int
	Concurrency     int
	GroupSize       int
	MaxHistoryPages int
	TimeBudget      time.Duration
	PageSize        int
	DefaultMonths   int
}

// DefaultChunkDefaults returns the stock tuning.
func DefaultChunkDefaults() ChunkDefaults {
	return ChunkDefaults{
		BatchSize:       50,
		Concurrency:     5,
		GroupSize:       5,
		MaxHistoryPages: 3,
		TimeBudget:      8500 * time.Millisecond,
		PageSize:        200,
		DefaultMonths:   DefaultMonths,
	}
}

// ChunkDefaultsFrom maps process configuration onto ChunkDefaults.
func ChunkDefaultsFrom(cfg config.PrecomputeConfig) ChunkDefaults {
	return ChunkDefaults{
		BatchSize:       cfg.BatchSize,
		Concurrency:     cfg.Concurrency,
		GroupSize:       cfg.GroupSize,
		MaxHistoryPages: cfg.MaxHistoryPages,
		TimeBudget:      cfg.TimeBudget,
		PageSize:        cfg.PageSize,
		DefaultMonths:   cfg.DefaultMonths,
	}
}

// StartResult is returned by Start.
type StartResult struct {
	JobID      string `json:"job_id"`
	TotalItems int    `json:"total_items"`
}

// ChunkResult reports one RunChunk call.
type ChunkResult struct {
	JobID              string          `json:"job_id"`
	Status             types.JobStatus `json:"status"`
	TotalItems         int             `json:"total_items"`
	ProcessedItems     int             `json:"processed_items"`
	Progress           int             `json:"progress"`
	Advanced           int             `json:"advanced"`
	SuggestionsWritten int             `json:"suggestions_written"`
	Skipped            int             `json:"skipped"`
	ElapsedMs          int64           `json:"elapsed_ms"`
	HasMore            bool            `json:"has_more"`
}

// StatusResult is a read-only job snapshot.
type StatusResult struct {
	types.Job
	Progress int `json:"progress"`
}

// Controller drives precompute jobs.
type Controller struct {
	Config  ChunkDefaults
	Log     *slog.Logger
	Jobs    JobStore
	Rows    SuggestionReader
	Catalog Catalog
	History *Aggregator
	Clock   types.Clock
	Metrics MetricPublisher

	validate *validator.Validate
}

// NewController wires a Controller. A nil logger, clock or metrics publisher
// gets a default.
func NewController(cfg ChunkDefaults, jobs JobStore, rows SuggestionReader, catalog Catalog, logger *slog.Logger, clock types.Clock, metrics MetricPublisher) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Controller{
		Config:   cfg,
		Log:      logger,
		Jobs:     jobs,
		Rows:     rows,
		Catalog:  catalog,
		History:  NewAggregator(catalog, logger),
		Clock:    clock,
		Metrics:  metrics,
		validate: validator.New(),
	}
}

// Start snapshots the catalog size and creates a queued job. months of 0
// selects the configured default.
func (c *Controller) Start(ctx context.Context, months int) (StartResult, error) {
	if months == 0 {
		months = c.Config.DefaultMonths
		if months == 0 {
			months = DefaultMonths
		}
	}
	if months < 1 || months > MaxMonths {
		return StartResult{}, types.NewAppError(
			types.ErrCodeValidationInvalidMonths,
			fmt.Sprintf("months must be between 1 and %d, got %d", MaxMonths, months),
			nil,
		)
	}

	total, err := CountItems(ctx, c.Catalog, c.Config.PageSize)
	if err != nil {
		return StartResult{}, err
	}

	now := c.Clock.Now()
	job := &types.Job{
		JobID:      uuid.NewString(),
		Status:     types.JobStatusQueued,
		TotalItems: total,
		Months:     months,
		StartedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	if err := c.Jobs.Create(ctx, job); err != nil {
		return StartResult{}, err
	}

	c.Log.InfoContext(ctx, "precompute job created",
		"job_id", job.JobID,
		"total_items", total,
		"months", months,
	)
	return StartResult{JobID: job.JobID, TotalItems: total}, nil
}

// chunkPlan is the resolved per-call tuning.
type chunkPlan struct {
	batchSize       int
	concurrency     int
	groupSize       int
	maxHistoryPages int
	budget          time.Duration
}

func (c *Controller) resolve(ctx context.Context, opts types.ChunkOptions) (chunkPlan, error) {
	if err := c.validator().Struct(opts); err != nil {
		return chunkPlan{}, types.NewAppError(types.ErrCodeValidationChunkOptions, "invalid chunk options", err)
	}

	p := chunkPlan{
		batchSize:       orDefault(opts.BatchSize, c.Config.BatchSize),
		concurrency:     orDefault(opts.Concurrency, c.Config.Concurrency),
		groupSize:       orDefault(opts.GroupSize, c.Config.GroupSize),
		maxHistoryPages: orDefault(opts.MaxHistoryPages, c.Config.MaxHistoryPages),
		budget:          c.Config.TimeBudget,
	}
	p.groupSize = min(p.groupSize, p.batchSize)

	// A zero budget means unbounded, unless the context carries a deadline.
	if dl, ok := ctx.Deadline(); ok {
		remaining := max(time.Until(dl)-deadlineMargin, time.Nanosecond)
		if p.budget <= 0 || remaining < p.budget {
			p.budget = remaining
		}
	}
	return p, nil
}

// RunChunk advances a job by at most one batch of items. It is safe to call
// again after any failure: work is only recorded by the final commit, which
// moves the cursor and inserts rows together.
func (c *Controller) RunChunk(ctx context.Context, jobID string, opts types.ChunkOptions) (ChunkResult, error) {
	began := c.Clock.Now()

	if jobID == "" {
		return ChunkResult{}, types.NewAppError(types.ErrCodeValidationMissingField, "job_id is required", nil)
	}
	plan, err := c.resolve(ctx, opts)
	if err != nil {
		return ChunkResult{}, err
	}

	job, err := c.Jobs.Get(ctx, jobID)
	if err != nil {
		return ChunkResult{}, err
	}
	if job.Status.IsTerminal() {
		return c.result(job, 0, 0, 0, began), nil
	}

	version, err := c.Jobs.MarkRunning(ctx, job.JobID, job.Version)
	if err != nil {
		return ChunkResult{}, err
	}
	job.Status = types.JobStatusRunning
	job.Version = version

	log := c.Log.With("job_id", job.JobID, "cursor_pos", job.CursorPos)

	// total_items is the job's scope: items appended to the catalog after
	// Start are not part of it.
	remaining := job.TotalItems - job.CursorPos
	if remaining <= 0 {
		return c.finalize(ctx, job, log, began)
	}

	items, err := FetchRange(ctx, c.Catalog, job.CursorPos, min(plan.batchSize, remaining), c.Config.PageSize)
	if err != nil {
		if types.IsPermanentUpstream(err) {
			c.fail(ctx, job, err)
		} else {
			log.WarnContext(ctx, "item fetch failed, chunk will be retried", "error", err)
		}
		return ChunkResult{}, err
	}

	if len(items) == 0 {
		// Provider exhausted before the start-time count was reached.
		return c.finalize(ctx, job, log, began)
	}

	from, to := window(c.Clock.Now(), job.Months)
	var (
		rows     []types.SuggestionRow
		advanced int
		skipped  int
	)

	segments := segment(items, plan.groupSize)
	for i, seg := range segments {
		if len(seg.work) > 0 {
			results := pool.RunBounded(ctx, seg.work, plan.concurrency, func(ctx context.Context, it types.Item) (*types.SuggestionRow, error) {
				return c.processItem(ctx, job, it, from, to, plan.maxHistoryPages)
			})
			for j, r := range results {
				if !r.OK {
					log.WarnContext(ctx, "item processing failed",
						"item_id", seg.work[j].ItemID,
						"sku", seg.work[j].SKU,
						"error", r.Err,
					)
					continue
				}
				if r.Value != nil {
					rows = append(rows, *r.Value)
				}
			}
		}
		advanced += seg.span
		skipped += seg.skipped

		if plan.budget > 0 && i < len(segments)-1 && c.Clock.Now().Sub(began) >= plan.budget {
			log.InfoContext(ctx, "time budget reached, deferring remaining groups",
				"advanced", advanced,
				"remaining_in_batch", len(items)-advanced,
			)
			break
		}
	}

	suggest.SortByPriority(rows)

	upd := types.JobUpdate{
		Status:         types.JobStatusRunning,
		ProcessedItems: job.ProcessedItems + advanced,
		CursorPos:      job.CursorPos + advanced,
	}
	if upd.ProcessedItems == job.TotalItems {
		now := c.Clock.Now()
		upd.Status = types.JobStatusDone
		upd.FinishedAt = &now
	}

	if _, err := c.Jobs.CommitChunk(ctx, job.JobID, job.Version, rows, upd); err != nil {
		return ChunkResult{}, err
	}
	applyUpdate(job, upd)

	res := c.result(job, advanced, len(rows), skipped, began)
	log.InfoContext(ctx, "chunk committed",
		"processed_items", job.ProcessedItems,
		"total_items", job.TotalItems,
		"suggestions_written", len(rows),
		"skipped", skipped,
		"elapsed_ms", res.ElapsedMs,
		"status", string(job.Status),
	)
	c.publish(ctx, res)
	return res, nil
}

// finalize marks the job done with its cursor at the snapshot total.
func (c *Controller) finalize(ctx context.Context, job *types.Job, log *slog.Logger, began time.Time) (ChunkResult, error) {
	now := c.Clock.Now()
	upd := types.JobUpdate{
		Status:         types.JobStatusDone,
		ProcessedItems: job.TotalItems,
		CursorPos:      job.TotalItems,
		FinishedAt:     &now,
	}
	if _, err := c.Jobs.CommitChunk(ctx, job.JobID, job.Version, nil, upd); err != nil {
		return ChunkResult{}, err
	}
	advanced := job.TotalItems - job.CursorPos
	applyUpdate(job, upd)
	log.InfoContext(ctx, "job finalized at snapshot total", "processed_items", job.TotalItems)
	res := c.result(job, advanced, 0, 0, began)
	c.publish(ctx, res)
	return res, nil
}

// processItem refreshes stock, aggregates sales and sizes one item. A nil row
// with a nil error means no reorder is needed.
func (c *Controller) processItem(ctx context.Context, job *types.Job, item types.Item, from, to time.Time, maxPages int) (*types.SuggestionRow, error) {
	incomplete := false
	stock := item.CurrentStock

	detail, err := c.Catalog.GetItemDetail(ctx, item.ItemID)
	if err != nil {
		c.Log.DebugContext(ctx, "item detail unavailable, using catalog stock",
			"job_id", job.JobID,
			"item_id", item.ItemID,
			"error", err,
		)
		incomplete = true
	} else if s, ok := detail.Stock(); ok {
		stock = s
	}

	series, complete := c.History.Aggregate(ctx, item.ItemID, from, to, maxPages)
	if !complete {
		incomplete = true
	}
	summary := suggest.Summarize(series)

	s, ok := suggest.Suggest(suggest.Input{
		SKU:            item.SKU,
		Description:    item.Description,
		CurrentStock:   stock,
		ReorderPoint:   item.ReorderPoint,
		MaxStock:       item.MaxStock,
		AvgMonthlyRate: summary.AvgMonthlyRate,
		UnitCost:       item.UnitCost,
		Trend:          summary.Trend,
	})
	if !ok {
		return nil, nil
	}

	return &types.SuggestionRow{
		JobID:             job.JobID,
		SKU:               s.SKU,
		Description:       s.Description,
		CurrentStock:      s.CurrentStock,
		SuggestedQuantity: s.SuggestedQuantity,
		Priority:          s.Priority,
		Reason:            s.Reason,
		EstimatedCost:     s.EstimatedCost,
		DaysUntilStockout: s.DaysUntilStockout,
		AvgMonthlySales:   summary.AvgMonthlyRate,
		SalesTrend:        summary.Trend,
		Supplier:          item.Supplier,
		Category:          item.Category,
		UnitCost:          item.UnitCost,
		DataIncomplete:    incomplete,
		ComputedAt:        c.Clock.Now(),
	}, nil
}

// Status returns the job with its progress percentage.
func (c *Controller) Status(ctx context.Context, jobID string) (StatusResult, error) {
	if jobID == "" {
		return StatusResult{}, types.NewAppError(types.ErrCodeValidationMissingField, "job_id is required", nil)
	}
	job, err := c.Jobs.Get(ctx, jobID)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Job: *job, Progress: job.Progress()}, nil
}

// Suggestions returns the rows a job has written so far, highest priority
// first, with batch totals.
func (c *Controller) Suggestions(ctx context.Context, jobID string) ([]types.SuggestionRow, suggest.Stats, error) {
	if jobID == "" {
		return nil, suggest.Stats{}, types.NewAppError(types.ErrCodeValidationMissingField, "job_id is required", nil)
	}
	if _, err := c.Jobs.Get(ctx, jobID); err != nil {
		return nil, suggest.Stats{}, err
	}
	rows, err := c.Rows.ListByJob(ctx, jobID)
	if err != nil {
		return nil, suggest.Stats{}, err
	}
	suggest.SortByPriority(rows)
	return rows, suggest.ComputeStats(rows), nil
}

func (c *Controller) fail(ctx context.Context, job *types.Job, cause error) {
	c.Log.ErrorContext(ctx, "permanent provider failure, marking job failed",
		"job_id", job.JobID,
		"error", cause,
	)
	if err := c.Jobs.MarkFailed(ctx, job.JobID, job.Version, cause.Error()); err != nil {
		c.Log.ErrorContext(ctx, "failed to mark job failed", "job_id", job.JobID, "error", err)
		return
	}
	if err := c.Metrics.PublishJobFailed(ctx, job.JobID); err != nil {
		c.Log.WarnContext(ctx, "failed to publish JobFailed metric", "job_id", job.JobID, "error", err)
	}
}

func (c *Controller) publish(ctx context.Context, res ChunkResult) {
	if err := c.Metrics.PublishChunk(ctx, res); err != nil {
		c.Log.WarnContext(ctx, "failed to publish chunk metrics", "job_id", res.JobID, "error", err)
	}
}

func (c *Controller) result(job *types.Job, advanced, written, skipped int, began time.Time) ChunkResult {
	return ChunkResult{
		JobID:              job.JobID,
		Status:             job.Status,
		TotalItems:         job.TotalItems,
		ProcessedItems:     job.ProcessedItems,
		Progress:           job.Progress(),
		Advanced:           advanced,
		SuggestionsWritten: written,
		Skipped:            skipped,
		ElapsedMs:          c.Clock.Now().Sub(began).Milliseconds(),
		HasMore:            !job.Status.IsTerminal(),
	}
}

func (c *Controller) validator() *validator.Validate {
	if c.validate == nil {
		c.validate = validator.New()
	}
	return c.validate
}

// group is a run of consecutive catalog items: the orderable ones to process
// and the count of excluded ones passed over. span covers both.
type group struct {
	work    []types.Item
	skipped int
	span    int
}

// segment splits items into groups of at most size orderable items each.
// Skipped items belong to the group that follows them, so advancing the
// cursor by a group's span never passes unprocessed work.
func segment(items []types.Item, size int) []group {
	var groups []group
	var cur group
	for _, it := range items {
		cur.span++
		if !orderable(it) {
			cur.skipped++
			continue
		}
		cur.work = append(cur.work, it)
		if len(cur.work) == size {
			groups = append(groups, cur)
			cur = group{}
		}
	}
	if cur.span > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func orderable(it types.Item) bool {
	return it.TrackInventory && !suggest.IsExcludedSKU(it.SKU)
}

// window returns the sales lookback [now - months, now] in whole UTC days.
func window(now time.Time, months int) (time.Time, time.Time) {
	now = now.UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return to.AddDate(0, -months, 0), to
}

func applyUpdate(job *types.Job, upd types.JobUpdate) {
	job.Status = upd.Status
	job.ProcessedItems = upd.ProcessedItems
	job.CursorPos = upd.CursorPos
	if upd.FinishedAt != nil {
		job.FinishedAt = upd.FinishedAt
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

type noopMetrics struct{}

func (noopMetrics) PublishChunk(context.Context, ChunkResult) error { return nil }
func (noopMetrics) PublishJobFailed(context.Context, string) error  { return nil }
