package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/ingest"
)

var snapshotDatePattern = regexp.MustCompile(`(\d{4})-?(\d{2})-?(\d{2})`)

// SnapshotDate extracts a YYYYMMDD or YYYY-MM-DD date from a report file
// name. It returns false when the name carries no valid date.
func SnapshotDate(filename string) (time.Time, bool) {
	for _, m := range snapshotDatePattern.FindAllStringSubmatch(filepath.Base(filename), -1) {
		d, err := time.Parse("20060102", m[1]+m[2]+m[3])
		if err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Orchestrator coordinates running a Pipeline over source reports.
type Orchestrator struct {
	repo  RunStore
	cfg   PipelineConfig
	flush FlushFunc
	now   func() time.Time
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(repo RunStore, cfg PipelineConfig, flush FlushFunc) *Orchestrator {
	return &Orchestrator{
		repo:  repo,
		cfg:   cfg,
		flush: flush,
		now:   time.Now,
	}
}

// Run reads each file and runs one worker batch per file. When productIDs is
// empty every product found in a report is processed.
func (o *Orchestrator) Run(ctx context.Context, p Pipeline, files []string, productIDs []string) ([]*PipelineRun, error) {
	var runs []*PipelineRun
	for _, f := range files {
		table, err := ingest.ReadFile(f)
		if err != nil {
			return runs, fmt.Errorf("failed to read %s: %w", f, err)
		}

		date, ok := SnapshotDate(f)
		if !ok {
			date = o.now()
		}

		run, err := o.RunTable(ctx, p, date, f, table, productIDs)
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			return runs, fmt.Errorf("failed to process %s: %w", f, err)
		}
	}
	return runs, nil
}

// RunTable runs one batch over an already loaded report.
func (o *Orchestrator) RunTable(ctx context.Context, p Pipeline, date time.Time, source string, table domain.RawTable, productIDs []string) (*PipelineRun, error) {
	products := productIDs
	if len(products) == 0 {
		products = ingest.ProductIDs(table)
	}
	worker := NewWorker(p, o.cfg, o.repo, o.flush)
	return worker.ProcessBatch(ctx, date.Truncate(24*time.Hour), source, table, products)
}

// RetryFailedTable reruns the products whose earlier jobs failed and that
// appear in table. It returns a nil run when there is nothing to retry.
func (o *Orchestrator) RetryFailedTable(ctx context.Context, p Pipeline, date time.Time, source string, table domain.RawTable) (*PipelineRun, error) {
	worker := NewWorker(p, o.cfg, o.repo, o.flush)
	return worker.RetryFailed(ctx, date.Truncate(24*time.Hour), source, table, ingest.ProductIDs(table))
}
