package suggest

import (
	"testing"

	"reorder/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	st := ComputeStats([]types.SuggestionRow{
		{Priority: types.PriorityHigh, EstimatedCost: decimal.RequireFromString("420.00")},
		{Priority: types.PriorityHigh, EstimatedCost: decimal.RequireFromString("0.10")},
		{Priority: types.PriorityMedium, EstimatedCost: decimal.RequireFromString("0.20")},
		{Priority: types.PriorityLow, EstimatedCost: decimal.RequireFromString("19.99")},
	})

	assert.Equal(t, 4, st.TotalSuggestions)
	assert.Equal(t, 2, st.High)
	assert.Equal(t, 1, st.Medium)
	assert.Equal(t, 1, st.Low)
	assert.Equal(t, "440.29", st.TotalEstimatedCost.StringFixed(2))
}

func TestComputeStats_Empty(t *testing.T) {
	st := ComputeStats(nil)
	assert.Zero(t, st.TotalSuggestions)
	assert.True(t, st.TotalEstimatedCost.IsZero())
}
