package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"reorder/internal/types"
)

// SuggestionRepository reads the suggestion rows written by chunk commits.
// Rows are keyed by (job_id, sku); seq records insertion order.
type SuggestionRepository struct {
	db DBTX
}

// NewSuggestionRepository creates a SuggestionRepository backed by db.
func NewSuggestionRepository(db DBTX) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

const suggestionColumns = `job_id, sku, description, current_stock, suggested_quantity,
	priority_level, reason, estimated_cost, days_until_stockout, avg_monthly_sales,
	sales_trend, supplier, category, unit_cost, data_incomplete, computed_at`

// insertSuggestionSQL skips rows already written for the job, which makes a
// replayed chunk harmless.
const insertSuggestionSQL = `INSERT INTO precompute_suggestions (` + suggestionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (job_id, sku) DO NOTHING`

// ListByJob returns the rows of a job in insertion order.
func (r *SuggestionRepository) ListByJob(ctx context.Context, jobID string) ([]types.SuggestionRow, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+suggestionColumns+`
		 FROM precompute_suggestions
		 WHERE job_id = $1
		 ORDER BY seq`,
		jobID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list suggestions", err)
	}
	defer rows.Close()

	var out []types.SuggestionRow
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan suggestion row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating suggestion rows", err)
	}
	return out, nil
}

func scanSuggestion(row pgx.Row) (types.SuggestionRow, error) {
	var (
		s        types.SuggestionRow
		priority string
		trend    string
	)
	err := row.Scan(
		&s.JobID,
		&s.SKU,
		&s.Description,
		&s.CurrentStock,
		&s.SuggestedQuantity,
		&priority,
		&s.Reason,
		&s.EstimatedCost,
		&s.DaysUntilStockout,
		&s.AvgMonthlySales,
		&trend,
		&s.Supplier,
		&s.Category,
		&s.UnitCost,
		&s.DataIncomplete,
		&s.ComputedAt,
	)
	s.Priority = types.Priority(priority)
	s.SalesTrend = types.Trend(trend)
	return s, err
}

func suggestionArgs(s types.SuggestionRow) []any {
	return []any{
		s.JobID,
		s.SKU,
		s.Description,
		s.CurrentStock,
		s.SuggestedQuantity,
		string(s.Priority),
		s.Reason,
		s.EstimatedCost,
		s.DaysUntilStockout,
		s.AvgMonthlySales,
		string(s.SalesTrend),
		s.Supplier,
		s.Category,
		s.UnitCost,
		s.DataIncomplete,
		s.ComputedAt,
	}
}
