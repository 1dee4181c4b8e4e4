package precompute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reorder/internal/types"
)

// fakeCatalog is an in-memory provider with call counting and fault injection.
type fakeCatalog struct {
	mu sync.Mutex

	items   []types.Item
	details map[string]types.ItemDetail
	sales   map[string][]types.SalesRecord

	listErr     error
	listErrPage int // 0 means every page fails when listErr is set
	detailErr   map[string]error

	listCalls   []int
	detailCalls map[string]int
	salesCalls  map[string]int
}

func newFakeCatalog(items ...types.Item) *fakeCatalog {
	return &fakeCatalog{
		items:       items,
		details:     map[string]types.ItemDetail{},
		sales:       map[string][]types.SalesRecord{},
		detailErr:   map[string]error{},
		detailCalls: map[string]int{},
		salesCalls:  map[string]int{},
	}
}

func (f *fakeCatalog) ListItems(_ context.Context, page, perPage int) (types.ItemPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, page)
	if f.listErr != nil && (f.listErrPage == 0 || f.listErrPage == page) {
		return types.ItemPage{}, f.listErr
	}
	start := (page - 1) * perPage
	if start >= len(f.items) {
		return types.ItemPage{}, nil
	}
	end := min(start+perPage, len(f.items))
	out := make([]types.Item, end-start)
	copy(out, f.items[start:end])
	return types.ItemPage{Items: out, HasMore: end < len(f.items)}, nil
}

func (f *fakeCatalog) GetItemDetail(_ context.Context, itemID string) (types.ItemDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[itemID]++
	if err := f.detailErr[itemID]; err != nil {
		return types.ItemDetail{}, err
	}
	return f.details[itemID], nil
}

func (f *fakeCatalog) ListSalesRecords(_ context.Context, itemID string, _, _ time.Time, page int) (types.SalesPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.salesCalls[itemID]++
	if page > 1 {
		return types.SalesPage{}, nil
	}
	return types.SalesPage{Records: f.sales[itemID]}, nil
}

func (f *fakeCatalog) GetSalesRecord(_ context.Context, recordID string) (types.SalesRecord, error) {
	return types.SalesRecord{}, fmt.Errorf("record %s not found", recordID)
}

func (f *fakeCatalog) touched(itemID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls[itemID] > 0 || f.salesCalls[itemID] > 0
}

// memStore is a JobStore and SuggestionReader with the same version and
// uniqueness rules as the Postgres store.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]types.Job
	rows map[string][]types.SuggestionRow

	// bumpBeforeCommit simulates another runner committing first.
	bumpBeforeCommit bool
	snapshots        []types.Job
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]types.Job{}, rows: map[string][]types.SuggestionRow{}}
}

func conflict(jobID string) error {
	return types.NewAppError(types.ErrCodeConflictConcurrent, "job "+jobID+" was modified concurrently", nil)
}

func (s *memStore) Create(_ context.Context, job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = *job
	s.snapshots = append(s.snapshots, *job)
	return nil
}

func (s *memStore) Get(_ context.Context, jobID string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found", nil)
	}
	return &j, nil
}

func (s *memStore) MarkRunning(_ context.Context, jobID string, version int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Version != version || j.Status.IsTerminal() {
		return 0, conflict(jobID)
	}
	j.Status = types.JobStatusRunning
	j.Version++
	s.jobs[jobID] = j
	s.snapshots = append(s.snapshots, j)
	return j.Version, nil
}

func (s *memStore) CommitChunk(_ context.Context, jobID string, version int64, rows []types.SuggestionRow, upd types.JobUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[jobID]
	if s.bumpBeforeCommit {
		j.Version++
		s.jobs[jobID] = j
	}
	if j.Version != version {
		return 0, conflict(jobID)
	}

	existing := map[string]bool{}
	for _, r := range s.rows[jobID] {
		existing[r.SKU] = true
	}
	for _, r := range rows {
		if !existing[r.SKU] {
			s.rows[jobID] = append(s.rows[jobID], r)
			existing[r.SKU] = true
		}
	}

	j.Status = upd.Status
	j.ProcessedItems = upd.ProcessedItems
	j.CursorPos = upd.CursorPos
	if upd.FinishedAt != nil {
		j.FinishedAt = upd.FinishedAt
	}
	j.Version++
	s.jobs[jobID] = j
	s.snapshots = append(s.snapshots, j)
	return j.Version, nil
}

func (s *memStore) MarkFailed(_ context.Context, jobID string, version int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[jobID]
	if j.Version != version {
		return conflict(jobID)
	}
	j.Status = types.JobStatusError
	j.Error = &message
	j.Version++
	s.jobs[jobID] = j
	s.snapshots = append(s.snapshots, j)
	return nil
}

func (s *memStore) ListByJob(_ context.Context, jobID string) ([]types.SuggestionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SuggestionRow, len(s.rows[jobID]))
	copy(out, s.rows[jobID])
	return out, nil
}

func (s *memStore) job(jobID string) types.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[jobID]
}

// stepClock advances by step on every read.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// fakeMetrics records published metrics.
type fakeMetrics struct {
	mu     sync.Mutex
	chunks []ChunkResult
	failed []string
}

func (m *fakeMetrics) PublishChunk(_ context.Context, res ChunkResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, res)
	return nil
}

func (m *fakeMetrics) PublishJobFailed(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, jobID)
	return nil
}

// lowStockItems returns n tracked items that each produce a high-priority
// suggestion.
func lowStockItems(n int) []types.Item {
	items := make([]types.Item, n)
	for i := range items {
		items[i] = types.Item{
			ItemID:         fmt.Sprintf("id-%03d", i),
			SKU:            fmt.Sprintf("SKU-%03d", i),
			Description:    fmt.Sprintf("Item %d", i),
			CurrentStock:   0,
			ReorderPoint:   10,
			MaxStock:       100,
			UnitCost:       1.5,
			Supplier:       "Acme",
			Category:       "General",
			TrackInventory: true,
		}
	}
	return items
}
