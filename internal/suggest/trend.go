// Package suggest turns weekly sales history and stock levels into reorder
// suggestions. Everything here is pure computation with no I/O.
package suggest

import "reorder/internal/types"

// Point is one week of sales. WeekStart is the Monday of the week, formatted
// YYYY-MM-DD.
type Point struct {
	WeekStart string
	Quantity  float64
}

// Series is a sparse weekly sales history, ascending by WeekStart.
type Series []Point

// TrendSummary is the velocity signal derived from a Series.
type TrendSummary struct {
	Trend          types.Trend
	AvgMonthlyRate float64
	LastDate       *string
}

// trendThreshold is the relative change between the older and recent halves
// that counts as a trend. Comparisons are strict.
const trendThreshold = 0.10

// Summarize computes the average monthly rate (four weekly buckets to a month)
// and compares the mean of the recent half of the series with the older half.
func Summarize(series Series) TrendSummary {
	n := len(series)
	if n == 0 {
		return TrendSummary{Trend: types.TrendStable}
	}

	var total float64
	last := series[0].WeekStart
	for _, p := range series {
		total += p.Quantity
		if p.WeekStart > last {
			last = p.WeekStart
		}
	}

	months := max(1, float64(n)/4)
	avg := total / months

	split := max(1, n/2)
	olderAvg := avg
	if older := series[:split]; len(older) > 0 {
		olderAvg = mean(older)
	}
	recentAvg := olderAvg
	if recent := series[split:]; len(recent) > 0 {
		recentAvg = mean(recent)
	}

	var change float64
	if olderAvg != 0 {
		change = (recentAvg - olderAvg) / olderAvg
	}

	trend := types.TrendStable
	switch {
	case change > trendThreshold:
		trend = types.TrendIncreasing
	case change < -trendThreshold:
		trend = types.TrendDecreasing
	}

	return TrendSummary{Trend: trend, AvgMonthlyRate: avg, LastDate: &last}
}

func mean(points []Point) float64 {
	var sum float64
	for _, p := range points {
		sum += p.Quantity
	}
	return sum / float64(len(points))
}
