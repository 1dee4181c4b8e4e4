package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"reorder/internal/types"
)

// JobRepository persists precompute jobs. Every write after Create is a
// compare-and-swap on the version column: the caller passes the version it
// read, and a row that has moved on is left untouched and reported as
// ErrCodeConflictConcurrent.
type JobRepository struct {
	db TxBeginner
}

// NewJobRepository creates a JobRepository. CommitChunk needs db to open
// transactions, so pass the pool rather than a single connection.
func NewJobRepository(db TxBeginner) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `job_id, status, total_items, processed_items, cursor_pos, months,
	started_at, finished_at, updated_at, error, version`

// Create inserts a new job row.
func (r *JobRepository) Create(ctx context.Context, job *types.Job) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO precompute_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, $10)`,
		job.JobID,
		string(job.Status),
		job.TotalItems,
		job.ProcessedItems,
		job.CursorPos,
		job.Months,
		job.StartedAt,
		job.FinishedAt,
		job.UpdatedAt,
		job.Version,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create job", err)
	}
	return nil
}

// Get returns a job by ID.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*types.Job, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM precompute_jobs WHERE job_id = $1`,
		jobID,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve job", err)
	}
	return job, nil
}

// MarkRunning moves a queued or running job to running and returns the new
// version.
func (r *JobRepository) MarkRunning(ctx context.Context, jobID string, version int64) (int64, error) {
	var next int64
	err := r.db.QueryRow(ctx,
		`UPDATE precompute_jobs
		 SET status = 'running',
		     version = version + 1,
		     updated_at = NOW()
		 WHERE job_id = $1 AND version = $2 AND status IN ('queued', 'running')
		 RETURNING version`,
		jobID,
		version,
	).Scan(&next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, conflictError(jobID)
		}
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark job running", err)
	}
	return next, nil
}

// CommitChunk inserts rows and then advances the job in one transaction. If
// the version check fails the transaction is rolled back, so no rows from the
// losing writer survive.
func (r *JobRepository) CommitChunk(ctx context.Context, jobID string, version int64, rows []types.SuggestionRow, upd types.JobUpdate) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to begin chunk commit", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx) //nolint:errcheck

	if len(rows) > 0 {
		batch := &pgx.Batch{}
		for _, s := range rows {
			batch.Queue(insertSuggestionSQL, suggestionArgs(s)...)
		}
		br := tx.SendBatch(ctx, batch)
		for i := range rows {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return 0, types.NewAppError(
					types.ErrCodeInternalDB,
					fmt.Sprintf("failed to insert suggestion %s", rows[i].SKU),
					err,
				)
			}
		}
		if err := br.Close(); err != nil {
			return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to insert suggestions", err)
		}
	}

	var next int64
	err = tx.QueryRow(ctx,
		`UPDATE precompute_jobs
		 SET status = $3,
		     processed_items = $4,
		     cursor_pos = $5,
		     finished_at = COALESCE($6, finished_at),
		     version = version + 1,
		     updated_at = NOW()
		 WHERE job_id = $1 AND version = $2 AND cursor_pos <= $5
		 RETURNING version`,
		jobID,
		version,
		string(upd.Status),
		upd.ProcessedItems,
		upd.CursorPos,
		upd.FinishedAt,
	).Scan(&next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, conflictError(jobID)
		}
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to advance job", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to commit chunk", err)
	}
	return next, nil
}

// MarkFailed moves a job to error with a message. finished_at is left
// unset; it records completion only.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID string, version int64, message string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE precompute_jobs
		 SET status = 'error',
		     error = $3,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE job_id = $1 AND version = $2`,
		jobID,
		version,
		message,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark job failed", err)
	}
	if tag.RowsAffected() == 0 {
		return conflictError(jobID)
	}
	return nil
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var (
		j      types.Job
		status string
	)
	err := row.Scan(
		&j.JobID,
		&status,
		&j.TotalItems,
		&j.ProcessedItems,
		&j.CursorPos,
		&j.Months,
		&j.StartedAt,
		&j.FinishedAt,
		&j.UpdatedAt,
		&j.Error,
		&j.Version,
	)
	if err != nil {
		return nil, err
	}
	j.Status = types.JobStatus(status)
	return &j, nil
}

func conflictError(jobID string) *types.AppError {
	return types.NewAppError(
		types.ErrCodeConflictConcurrent,
		fmt.Sprintf("job %s was modified by another runner", jobID),
		nil,
	)
}
