package precompute

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"reorder/internal/suggest"
	"reorder/internal/types"
)

// SalesSource lists sales records touching an item and fetches their line
// items.
type SalesSource interface {
	ListSalesRecords(ctx context.Context, itemID string, from, to time.Time, page int) (types.SalesPage, error)
	GetSalesRecord(ctx context.Context, recordID string) (types.SalesRecord, error)
}

// Aggregator builds weekly sales series for single items.
type Aggregator struct {
	source SalesSource
	logger *slog.Logger
}

// NewAggregator creates an Aggregator reading from source.
func NewAggregator(source SalesSource, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{source: source, logger: logger}
}

// Aggregate sums the quantity of itemID sold per Monday-aligned UTC week
// within [from, to], reading at most maxPages pages of records. The series is
// ascending by week and holds only nonzero weeks.
//
// Failures degrade instead of aborting: a record whose detail cannot be read
// is skipped, and a failing page ends pagination with what was gathered so far.
// complete is false whenever anything was skipped.
func (a *Aggregator) Aggregate(ctx context.Context, itemID string, from, to time.Time, maxPages int) (suggest.Series, bool) {
	buckets := make(map[string]float64)
	complete := true

	for page := 1; page <= max(maxPages, 1); page++ {
		res, err := a.source.ListSalesRecords(ctx, itemID, from, to, page)
		if err != nil {
			a.logger.DebugContext(ctx, "sales page unavailable",
				"item_id", itemID,
				"page", page,
				"error", err,
			)
			complete = false
			break
		}

		for _, rec := range res.Records {
			if !a.addRecord(ctx, itemID, rec, buckets) {
				complete = false
			}
		}

		if !res.HasMore {
			break
		}
	}

	return toSeries(buckets), complete
}

// addRecord adds one record's quantity for itemID to its week bucket. It
// reports false when the record had to be skipped.
func (a *Aggregator) addRecord(ctx context.Context, itemID string, rec types.SalesRecord, buckets map[string]float64) bool {
	if len(rec.Lines) == 0 {
		detail, err := a.source.GetSalesRecord(ctx, rec.RecordID)
		if err != nil {
			a.logger.DebugContext(ctx, "skipping sales record",
				"item_id", itemID,
				"record_id", rec.RecordID,
				"error", err,
			)
			return false
		}
		if detail.Date == "" {
			detail.Date = rec.Date
		}
		rec = detail
	}

	week, ok := WeekStart(rec.Date)
	if !ok {
		a.logger.DebugContext(ctx, "skipping sales record with unparseable date",
			"item_id", itemID,
			"record_id", rec.RecordID,
			"date", rec.Date,
		)
		return false
	}

	for _, line := range rec.Lines {
		if line.ItemID == itemID {
			buckets[week] += line.Quantity
		}
	}
	return true
}

// WeekStart returns the Monday of the UTC week containing date, which may be
// YYYY-MM-DD or RFC 3339.
func WeekStart(date string) (string, bool) {
	date = strings.TrimSpace(date)
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		t, err = time.Parse(time.RFC3339, date)
		if err != nil {
			return "", false
		}
	}
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset).Format(time.DateOnly), true
}

func toSeries(buckets map[string]float64) suggest.Series {
	weeks := make([]string, 0, len(buckets))
	for w, q := range buckets {
		if q != 0 {
			weeks = append(weeks, w)
		}
	}
	slices.Sort(weeks)

	series := make(suggest.Series, len(weeks))
	for i, w := range weeks {
		series[i] = suggest.Point{WeekStart: w, Quantity: buckets[w]}
	}
	return series
}
