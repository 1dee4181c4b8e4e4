package suggest

import (
	"reorder/internal/types"

	"github.com/shopspring/decimal"
)

// Stats summarizes a batch of suggestions.
type Stats struct {
	TotalSuggestions   int             `json:"totalSuggestions"`
	High               int             `json:"high"`
	Medium             int             `json:"medium"`
	Low                int             `json:"low"`
	TotalEstimatedCost decimal.Decimal `json:"totalEstimatedCost"`
}

// Add counts one suggestion.
func (s *Stats) Add(p types.Priority, cost decimal.Decimal) {
	s.TotalSuggestions++
	switch p {
	case types.PriorityHigh:
		s.High++
	case types.PriorityMedium:
		s.Medium++
	case types.PriorityLow:
		s.Low++
	}
	s.TotalEstimatedCost = s.TotalEstimatedCost.Add(cost).Round(2)
}

// ComputeStats summarizes persisted suggestion rows.
func ComputeStats(rows []types.SuggestionRow) Stats {
	var st Stats
	for _, r := range rows {
		st.Add(r.Priority, r.EstimatedCost)
	}
	return st
}
