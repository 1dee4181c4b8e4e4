package suggest

import (
	"math"
	"slices"
	"strings"

	"reorder/internal/types"

	"github.com/shopspring/decimal"
)

// Reasons attached to suggestions. They are part of the persisted output.
const (
	ReasonBelowReorderIncreasing = "Below reorder point with increasing sales trend"
	ReasonBelowReorderDeclining  = "Below reorder point but declining sales trend"
	ReasonBelowReorder           = "Below reorder point"
	ReasonLowStockRisingDemand   = "Low stock with increasing demand"
	ReasonStockoutWithinTwoWeeks = "Will run out of stock within 2 weeks"
	ReasonLowStock               = "Low stock level"
)

// excludedPrefixes are reserved SKU namespaces that are never ordered.
var excludedPrefixes = []string{"0-", "800-", "2000-"}

// defaultMaxStock applies when an item has no maximum stock level.
const defaultMaxStock = 100

// Input is the per-item view the rules run on.
type Input struct {
	SKU            string
	Description    string
	CurrentStock   float64
	ReorderPoint   float64
	MaxStock       float64
	AvgMonthlyRate float64
	UnitCost       float64
	Trend          types.Trend
}

// Suggestion is a sized reorder recommendation.
type Suggestion struct {
	SKU               string
	Description       string
	CurrentStock      float64
	SuggestedQuantity int64
	Priority          types.Priority
	Reason            string
	EstimatedCost     decimal.Decimal
	// DaysUntilStockout is nil when there are no sales to deplete stock.
	DaysUntilStockout *int
}

// IsExcludedSKU reports whether sku falls in a non-orderable namespace.
func IsExcludedSKU(sku string) bool {
	s := strings.ToLower(strings.TrimSpace(sku))
	for _, p := range excludedPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Suggest applies the first matching rule:
//
//  1. at or below the reorder point: high, fill to 80% of max, scaled by trend
//  2. under 30% of max with rising sales: medium, fill to 60% of max
//  3. stockout expected within 14 days: medium, cover 110% of a month
//  4. under 20% of max: low, fill to 40% of max
//
// It reports false when no rule matches or the rounded quantity is not
// positive. Exclusion is the caller's job.
func Suggest(in Input) (Suggestion, bool) {
	maxStock := in.MaxStock
	if maxStock == 0 {
		maxStock = defaultMaxStock
	}
	maxStock = max(1, maxStock)
	avg := max(0, in.AvgMonthlyRate)
	stock := in.CurrentStock

	stockRatio := stock / maxStock
	dailyRate := avg / 30

	var daysUntilStockout *int
	days := math.Inf(1)
	if dailyRate > 0 {
		days = stock / dailyRate
		d := int(math.Round(days))
		daysUntilStockout = &d
	}

	var (
		qty      float64
		priority types.Priority
		reason   string
	)

	switch {
	case stock <= in.ReorderPoint:
		priority = types.PriorityHigh
		qty = max(0, maxStock*0.8-stock)
		switch in.Trend {
		case types.TrendIncreasing:
			qty *= 1.2
			reason = ReasonBelowReorderIncreasing
		case types.TrendDecreasing:
			qty *= 0.8
			reason = ReasonBelowReorderDeclining
		default:
			reason = ReasonBelowReorder
		}
	case stockRatio < 0.3 && in.Trend == types.TrendIncreasing:
		priority = types.PriorityMedium
		qty = max(0, maxStock*0.6-stock)
		reason = ReasonLowStockRisingDemand
	case days < 14 && avg > 0:
		priority = types.PriorityMedium
		qty = max(0, avg*1.1-stock)
		reason = ReasonStockoutWithinTwoWeeks
	case stockRatio < 0.2:
		priority = types.PriorityLow
		qty = max(0, maxStock*0.4-stock)
		reason = ReasonLowStock
	default:
		return Suggestion{}, false
	}

	rounded := int64(math.Round(qty))
	if rounded <= 0 {
		return Suggestion{}, false
	}

	return Suggestion{
		SKU:               in.SKU,
		Description:       in.Description,
		CurrentStock:      stock,
		SuggestedQuantity: rounded,
		Priority:          priority,
		Reason:            reason,
		EstimatedCost:     EstimateCost(rounded, in.UnitCost),
		DaysUntilStockout: daysUntilStockout,
	}, true
}

// EstimateCost returns qty * unitCost rounded to cents.
func EstimateCost(qty int64, unitCost float64) decimal.Decimal {
	return decimal.NewFromInt(qty).Mul(decimal.NewFromFloat(unitCost)).Round(2)
}

// SortByPriority orders rows high, medium, low, keeping input order within a
// priority.
func SortByPriority(rows []types.SuggestionRow) {
	slices.SortStableFunc(rows, func(a, b types.SuggestionRow) int {
		return b.Priority.Rank() - a.Priority.Rank()
	})
}
