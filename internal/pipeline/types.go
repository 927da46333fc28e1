package pipeline

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
)

// Pipeline defines the interface that all report pipelines must implement.
// A pipeline turns one product of a source report into output rows.
type Pipeline interface {
	// Name returns the unique identifier for this pipeline
	Name() string

	// GetOutputTable returns the target database table name
	GetOutputTable() string

	// Columns returns the output columns in CSV order
	Columns() []string

	// Validate checks that a source report can be processed at all
	Validate(table domain.RawTable) error

	// Transform processes a single product of the report
	Transform(ctx context.Context, table domain.RawTable, productID string) ([]TransformedRow, error)
}

// TransformedRow is a single output row keyed by column name.
type TransformedRow struct {
	Data map[string]interface{}
}

// PipelineConfig holds configuration for a pipeline instance
type PipelineConfig struct {
	Name          string
	BatchSize     int           // Number of products to buffer before flushing
	FlushInterval time.Duration // Max time to wait before flushing
	WorkerCount   int           // Number of concurrent workers
	OutputDir     string        // Directory for aggregated CSVs
	RetryAttempts int           // Attempts per product job
	RetryBackoff  time.Duration // Backoff between attempts

	// Permanent reports errors that fail identically on every attempt; the
	// job is marked failed without retrying. Nil retries every error.
	Permanent func(error) bool
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig(name string) PipelineConfig {
	return PipelineConfig{
		Name:          name,
		BatchSize:     500,
		FlushInterval: 5 * time.Minute,
		WorkerCount:   4,
		OutputDir:     "data/seeds/" + name,
		RetryAttempts: 1,
		RetryBackoff:  0,
	}
}

// RunStatus represents the current state of a pipeline run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// JobStatus represents the state of a single product job
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"

	// JobRetried marks a failed job that a later run picked up again.
	JobRetried JobStatus = "retried"
)

// PipelineRun tracks one execution of a pipeline over a source report.
type PipelineRun struct {
	ID                int64      `json:"id"`
	PipelineName      string     `json:"pipeline_name"`
	Date              time.Time  `json:"date"`
	Source            string     `json:"source"`
	Status            RunStatus  `json:"status"`
	TotalProducts     int        `json:"total_products"`
	ProcessedProducts int        `json:"processed_products"`
	FailedProducts    int        `json:"failed_products"`
	TotalRows         int        `json:"total_rows"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
}

// ProductJob tracks the processing of a single product.
type ProductJob struct {
	ID            int64
	PipelineRunID int64
	ProductID     string
	Status        JobStatus
	ErrorMessage  string
	ProcessedAt   *time.Time
	RetryCount    int
}

// PipelineMetrics holds metrics for monitoring
type PipelineMetrics struct {
	RunsCompleted   int64
	RowsProcessed   int64
	ErrorCount      int64
	LastProcessedAt *time.Time
}

// RunStore persists run and job tracking records.
type RunStore interface {
	CreatePipelineRun(ctx context.Context, run *PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *PipelineRun) error
	CreateProductJob(ctx context.Context, job *ProductJob) error
	UpdateProductJob(ctx context.Context, job *ProductJob) error
	GetFailedProductJobs(ctx context.Context, pipelineName string, maxRetries int) ([]*ProductJob, error)
}
