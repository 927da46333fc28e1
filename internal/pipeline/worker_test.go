package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	fail      map[string]bool
	flaky     map[string]int
	calls     atomic.Int64
	mu        sync.Mutex
	attempted map[string]int
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{fail: map[string]bool{}, flaky: map[string]int{}, attempted: map[string]int{}}
}

func (f *fakePipeline) Name() string           { return "fake" }
func (f *fakePipeline) GetOutputTable() string { return "fake_rows" }
func (f *fakePipeline) Columns() []string      { return []string{"product_id", "value"} }

func (f *fakePipeline) Validate(table domain.RawTable) error {
	if len(table.Header) == 0 {
		return errors.New("empty header")
	}
	return nil
}

func (f *fakePipeline) Transform(_ context.Context, _ domain.RawTable, productID string) ([]TransformedRow, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.attempted[productID]++
	attempt := f.attempted[productID]
	f.mu.Unlock()

	if f.fail[productID] {
		return nil, &domain.DataError{ProductID: productID, Reason: "no rows"}
	}
	if attempt <= f.flaky[productID] {
		return nil, errors.New("transient")
	}
	return []TransformedRow{{Data: map[string]interface{}{"product_id": productID, "value": len(productID)}}}, nil
}

var fakeTable = domain.RawTable{Header: []string{"date", "units_ordered"}, Rows: [][]string{{"2024-01-01", "1"}}}

func testConfig(t *testing.T) PipelineConfig {
	cfg := DefaultPipelineConfig("fake")
	cfg.OutputDir = t.TempDir()
	cfg.WorkerCount = 3
	cfg.BatchSize = 2
	return cfg
}

func TestProcessBatchContinuesPastFailedProducts(t *testing.T) {
	p := newFakePipeline()
	p.fail["B"] = true
	store := NewMemoryStore()

	var flushed []string
	var flushMu sync.Mutex
	flush := func(_ context.Context, path string) error {
		flushMu.Lock()
		defer flushMu.Unlock()
		flushed = append(flushed, path)
		return nil
	}

	w := NewWorker(p, testConfig(t), store, flush)
	run, err := w.ProcessBatch(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "report.csv", fakeTable, []string{"A", "B", "C", "D", "E"})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 5, run.TotalProducts)
	assert.Equal(t, 4, run.ProcessedProducts)
	assert.Equal(t, 1, run.FailedProducts)
	assert.Equal(t, 4, run.TotalRows)
	assert.Equal(t, "1 of 5 products failed", run.ErrorMessage)
	require.NotNil(t, run.CompletedAt)

	statuses := map[string]JobStatus{}
	for _, j := range store.Jobs() {
		statuses[j.ProductID] = j.Status
	}
	assert.Equal(t, JobFailed, statuses["B"])
	for _, id := range []string{"A", "C", "D", "E"} {
		assert.Equal(t, JobCompleted, statuses[id], id)
	}

	// Four rows with a batch size of two products: two full parts.
	require.Len(t, flushed, 2)
	var products []string
	for _, path := range flushed {
		assert.Equal(t, "20240301", filepath.Base(path)[:8])
		records := readCSV(t, path)
		assert.Equal(t, []string{"product_id", "value"}, records[0])
		for _, r := range records[1:] {
			products = append(products, r[0])
		}
	}
	sort.Strings(products)
	assert.Equal(t, []string{"A", "C", "D", "E"}, products)
}

func TestProcessBatchAllFailed(t *testing.T) {
	p := newFakePipeline()
	p.fail["A"] = true
	p.fail["B"] = true

	run, err := NewWorker(p, testConfig(t), nil, nil).ProcessBatch(context.Background(), time.Now(), "r.csv", fakeTable, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 2, run.FailedProducts)
}

func TestProcessBatchValidationFailure(t *testing.T) {
	store := NewMemoryStore()
	run, err := NewWorker(newFakePipeline(), testConfig(t), store, nil).
		ProcessBatch(context.Background(), time.Now(), "r.csv", domain.RawTable{}, []string{"A"})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Empty(t, store.Jobs())
}

func TestProcessBatchRetriesTransientErrors(t *testing.T) {
	p := newFakePipeline()
	p.flaky["A"] = 2

	cfg := testConfig(t)
	cfg.RetryAttempts = 3
	store := NewMemoryStore()
	run, err := NewWorker(p, cfg, store, nil).ProcessBatch(context.Background(), time.Now(), "r.csv", fakeTable, []string{"A"})
	require.NoError(t, err)

	assert.Equal(t, 1, run.ProcessedProducts)
	jobs := store.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].RetryCount)
	assert.Equal(t, JobCompleted, jobs[0].Status)
}

func TestProcessBatchSkipsRetryOfPermanentErrors(t *testing.T) {
	p := newFakePipeline()
	p.fail["A"] = true
	p.flaky["B"] = 1

	cfg := testConfig(t)
	cfg.RetryAttempts = 3
	cfg.Permanent = func(err error) bool {
		var dataErr *domain.DataError
		return errors.As(err, &dataErr)
	}
	store := NewMemoryStore()
	run, err := NewWorker(p, cfg, store, nil).ProcessBatch(context.Background(), time.Now(), "r.csv", fakeTable, []string{"A", "B"})
	require.NoError(t, err)

	assert.Equal(t, 1, run.ProcessedProducts)
	assert.Equal(t, 1, run.FailedProducts)
	assert.Equal(t, 1, p.attempted["A"], "data errors are not retried")
	assert.Equal(t, 2, p.attempted["B"], "transient errors still are")

	retries := map[string]int{}
	for _, j := range store.Jobs() {
		retries[j.ProductID] = j.RetryCount
	}
	assert.Equal(t, 0, retries["A"])
	assert.Equal(t, 1, retries["B"])
}

func TestProcessBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newFakePipeline()
	run, err := NewWorker(p, testConfig(t), nil, nil).ProcessBatch(ctx, time.Now(), "r.csv", fakeTable, []string{"A", "B", "C"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Zero(t, p.calls.Load())
}

func TestRetryFailed(t *testing.T) {
	p := newFakePipeline()
	p.fail["B"] = true
	store := NewMemoryStore()
	w := NewWorker(p, testConfig(t), store, nil)

	_, err := w.ProcessBatch(context.Background(), time.Now(), "r.csv", fakeTable, []string{"A", "B"})
	require.NoError(t, err)

	p.fail["B"] = false
	run, err := w.RetryFailed(context.Background(), time.Now(), "r.csv", fakeTable, []string{"A", "B"})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 1, run.TotalProducts)
	assert.Equal(t, 1, run.ProcessedProducts)
	assert.Len(t, store.Runs(), 2)

	statuses := map[JobStatus]int{}
	for _, j := range store.Jobs() {
		statuses[j.Status]++
	}
	assert.Equal(t, map[JobStatus]int{JobCompleted: 2, JobRetried: 1}, statuses)

	again, err := w.RetryFailed(context.Background(), time.Now(), "r.csv", fakeTable, []string{"A", "B"})
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestRetryFailedStopsAtRetryBudget(t *testing.T) {
	p := newFakePipeline()
	p.fail["B"] = true
	cfg := testConfig(t)
	cfg.RetryAttempts = 1
	store := NewMemoryStore()
	w := NewWorker(p, cfg, store, nil)
	ctx := context.Background()

	_, err := w.ProcessBatch(ctx, time.Now(), "r.csv", fakeTable, []string{"B"})
	require.NoError(t, err)

	run, err := w.RetryFailed(ctx, time.Now(), "r.csv", fakeTable, []string{"B"})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 1, run.FailedProducts)

	// The rerun failed with one retry used, which is the whole budget.
	run, err = w.RetryFailed(ctx, time.Now(), "r.csv", fakeTable, []string{"B"})
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.Equal(t, 2, p.attempted["B"])
}

func TestOrchestratorRetryFailedTable(t *testing.T) {
	p := newFakePipeline()
	p.fail["B"] = true
	table := domain.RawTable{
		Header: []string{"date", "parent_product_id", "units_ordered"},
		Rows:   [][]string{{"2024-01-01", "A", "1"}, {"2024-01-01", "B", "2"}},
	}
	orch := NewOrchestrator(NewMemoryStore(), testConfig(t), nil)
	ctx := context.Background()

	run, err := orch.RetryFailedTable(ctx, p, time.Now(), "r.csv", table)
	require.NoError(t, err)
	assert.Nil(t, run, "nothing has failed yet")

	run, err = orch.RunTable(ctx, p, time.Now(), "r.csv", table, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, run.FailedProducts)

	p.fail["B"] = false
	run, err = orch.RetryFailedTable(ctx, p, time.Now(), "r.csv", table)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 1, run.TotalProducts)
	assert.Equal(t, 1, run.ProcessedProducts)
}

func TestSnapshotDate(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
		ok   bool
	}{
		{"Compact", "sales_20240315.csv", "2024-03-15", true},
		{"Dashed", "/tmp/reports/2023-11-24 traffic.xlsx", "2023-11-24", true},
		{"NoDate", "sales.csv", "", false},
		{"InvalidMonth", "20241315.csv", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SnapshotDate(tt.file)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}
