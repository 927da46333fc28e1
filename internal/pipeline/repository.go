package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Repository handles database operations for pipeline tracking
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new pipeline repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreatePipelineRun creates a new pipeline run record
func (r *Repository) CreatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (
			pipeline_name, date, source, status, total_products,
			processed_products, failed_products, total_rows, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		run.PipelineName, run.Date, run.Source, run.Status, run.TotalProducts,
		run.ProcessedProducts, run.FailedProducts, run.TotalRows, run.StartedAt,
	).Scan(&run.ID)
}

// UpdatePipelineRun updates an existing pipeline run
func (r *Repository) UpdatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = $1, processed_products = $2, failed_products = $3,
		    total_rows = $4, completed_at = $5, error_message = $6
		WHERE id = $7
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.ProcessedProducts, run.FailedProducts,
		run.TotalRows, run.CompletedAt, run.ErrorMessage, run.ID,
	)
	return err
}

// GetPipelineRun retrieves a pipeline run by ID
func (r *Repository) GetPipelineRun(ctx context.Context, id int64) (*PipelineRun, error) {
	query := `
		SELECT id, pipeline_name, date, source, status, total_products,
		       processed_products, failed_products, total_rows,
		       started_at, completed_at, error_message
		FROM pipeline_runs
		WHERE id = $1
	`

	run := &PipelineRun{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.PipelineName, &run.Date, &run.Source, &run.Status,
		&run.TotalProducts, &run.ProcessedProducts, &run.FailedProducts, &run.TotalRows,
		&run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CreateProductJob creates a new product job record
func (r *Repository) CreateProductJob(ctx context.Context, job *ProductJob) error {
	query := `
		INSERT INTO pipeline_product_jobs (
			pipeline_run_id, product_id, status, error_message
		) VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		job.PipelineRunID, job.ProductID, job.Status, job.ErrorMessage,
	).Scan(&job.ID)
}

// UpdateProductJob updates an existing product job
func (r *Repository) UpdateProductJob(ctx context.Context, job *ProductJob) error {
	query := `
		UPDATE pipeline_product_jobs
		SET status = $1, error_message = $2, processed_at = $3, retry_count = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(
		ctx, query,
		job.Status, job.ErrorMessage, job.ProcessedAt, job.RetryCount, job.ID,
	)
	return err
}

// GetFailedProductJobs retrieves failed product jobs that may still be retried
func (r *Repository) GetFailedProductJobs(ctx context.Context, pipelineName string, maxRetries int) ([]*ProductJob, error) {
	query := `
		SELECT pj.id, pj.pipeline_run_id, pj.product_id, pj.status,
		       pj.error_message, pj.processed_at, pj.retry_count
		FROM pipeline_product_jobs pj
		JOIN pipeline_runs pr ON pj.pipeline_run_id = pr.id
		WHERE pr.pipeline_name = $1
		  AND pj.status = $2
		  AND pj.retry_count < $3
		ORDER BY pj.id
	`

	rows, err := r.db.QueryContext(ctx, query, pipelineName, JobFailed, maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ProductJob
	for rows.Next() {
		job := &ProductJob{}
		if err := rows.Scan(
			&job.ID, &job.PipelineRunID, &job.ProductID, &job.Status,
			&job.ErrorMessage, &job.ProcessedAt, &job.RetryCount,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetPipelineStats retrieves statistics for a pipeline
func (r *Repository) GetPipelineStats(ctx context.Context, pipelineName string, since time.Time) (*PipelineMetrics, error) {
	query := `
		SELECT
			COUNT(CASE WHEN status = $2 THEN 1 END) AS runs_completed,
			COALESCE(SUM(total_rows), 0) AS rows_processed,
			COALESCE(SUM(failed_products), 0) AS error_count,
			MAX(completed_at) AS last_processed_at
		FROM pipeline_runs
		WHERE pipeline_name = $1
		  AND started_at >= $3
	`

	metrics := &PipelineMetrics{}
	err := r.db.QueryRowContext(ctx, query, pipelineName, StatusCompleted, since).Scan(
		&metrics.RunsCompleted,
		&metrics.RowsProcessed,
		&metrics.ErrorCount,
		&metrics.LastProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &PipelineMetrics{}, nil
	}
	return metrics, err
}

// MemoryStore keeps tracking records in process. It is used when no database
// is configured and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	nextID atomic.Int64
	runs   map[int64]PipelineRun
	jobs   map[int64]ProductJob
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[int64]PipelineRun),
		jobs: make(map[int64]ProductJob),
	}
}

func (m *MemoryStore) CreatePipelineRun(_ context.Context, run *PipelineRun) error {
	run.ID = m.nextID.Add(1)
	m.mu.Lock()
	m.runs[run.ID] = *run
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) UpdatePipelineRun(_ context.Context, run *PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *MemoryStore) CreateProductJob(_ context.Context, job *ProductJob) error {
	job.ID = m.nextID.Add(1)
	m.mu.Lock()
	m.jobs[job.ID] = *job
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) UpdateProductJob(_ context.Context, job *ProductJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemoryStore) GetFailedProductJobs(_ context.Context, pipelineName string, maxRetries int) ([]*ProductJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ProductJob
	for _, j := range m.jobs {
		run, ok := m.runs[j.PipelineRunID]
		if !ok || run.PipelineName != pipelineName {
			continue
		}
		if j.Status == JobFailed && j.RetryCount < maxRetries {
			job := j
			out = append(out, &job)
		}
	}
	return out, nil
}

// Runs returns a snapshot of every recorded run.
func (m *MemoryStore) Runs() []PipelineRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PipelineRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out
}

// Jobs returns a snapshot of every recorded product job.
func (m *MemoryStore) Jobs() []ProductJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProductJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}
