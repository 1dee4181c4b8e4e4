package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is the strict internal view of a provider catalog entry. Provider
// adapters normalize their payloads into this shape; nothing downstream sees
// raw provider keys.
type Item struct {
	ItemID         string
	SKU            string
	Description    string
	CurrentStock   float64
	ReorderPoint   float64
	MaxStock       float64
	UnitCost       float64
	Supplier       string
	Category       string
	TrackInventory bool
}

// Location is one warehouse stock entry from an item detail lookup.
type Location struct {
	LocationID     string
	Name           string
	StockOnHand    float64
	AvailableStock float64
}

// ItemDetail is the stock-level view returned by an item detail lookup.
// AvailableStock is nil when the provider omitted it.
type ItemDetail struct {
	ItemID         string
	Locations      []Location
	AvailableStock *float64
}

// Stock resolves the current stock from the detail, preferring the top-level
// available figure and falling back to the sum over locations.
func (d ItemDetail) Stock() (float64, bool) {
	if d.AvailableStock != nil {
		return *d.AvailableStock, true
	}
	if len(d.Locations) == 0 {
		return 0, false
	}
	var total float64
	for _, loc := range d.Locations {
		total += loc.AvailableStock
	}
	return total, true
}

// SalesLine is one line item on a sales record.
type SalesLine struct {
	ItemID   string
	Quantity float64
}

// SalesRecord is a transaction (invoice) with its line items. Lines is empty
// on list results and populated by a detail fetch.
type SalesRecord struct {
	RecordID string
	Date     string
	Lines    []SalesLine
}

// Job is one precompute run.
type Job struct {
	JobID          string     `json:"job_id"`
	Status         JobStatus  `json:"status"`
	TotalItems     int        `json:"total_items"`
	ProcessedItems int        `json:"processed_items"`
	CursorPos      int        `json:"cursor_pos"`
	Months         int        `json:"months"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Error          *string    `json:"error,omitempty"`
	Version        int64      `json:"-"`
}

// Progress returns round(100 * processed / total) clamped to [0, 100]. A job
// with no items is 100% once done and 0% otherwise.
func (j Job) Progress() int {
	if j.TotalItems <= 0 {
		if j.Status == JobStatusDone {
			return 100
		}
		return 0
	}
	p := (200*j.ProcessedItems + j.TotalItems) / (2 * j.TotalItems)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// JobUpdate carries the counters a chunk commit writes back to the job row.
type JobUpdate struct {
	Status         JobStatus
	ProcessedItems int
	CursorPos      int
	FinishedAt     *time.Time
}

// SuggestionRow is one persisted reorder suggestion, keyed by (JobID, SKU).
type SuggestionRow struct {
	JobID             string          `json:"job_id"`
	SKU               string          `json:"sku"`
	Description       string          `json:"description"`
	CurrentStock      float64         `json:"current_stock"`
	SuggestedQuantity int64           `json:"suggested_quantity"`
	Priority          Priority        `json:"priority_level"`
	Reason            string          `json:"reason"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	DaysUntilStockout *int            `json:"days_until_stockout"`
	AvgMonthlySales   float64         `json:"avg_monthly_sales"`
	SalesTrend        Trend           `json:"sales_trend"`
	Supplier          string          `json:"supplier"`
	Category          string          `json:"category"`
	UnitCost          float64         `json:"unit_cost"`
	DataIncomplete    bool            `json:"data_incomplete"`
	ComputedAt        time.Time       `json:"computed_at"`
}

// ItemPage is one page of the provider catalog.
type ItemPage struct {
	Items   []Item
	HasMore bool
}

// SalesPage is one page of sales records for an item and date window.
type SalesPage struct {
	Records []SalesRecord
	HasMore bool
}
