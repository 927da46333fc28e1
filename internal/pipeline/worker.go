package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/rs/zerolog/log"
)

// Worker runs a pipeline over the products of one source report.
type Worker struct {
	pipeline Pipeline
	config   PipelineConfig
	repo     RunStore
	flush    FlushFunc
	mu       sync.Mutex
}

// NewWorker creates a new pipeline worker. flush may be nil when the CSV
// parts do not need to be seeded anywhere.
func NewWorker(pipeline Pipeline, config PipelineConfig, repo RunStore, flush FlushFunc) *Worker {
	if repo == nil {
		repo = NewMemoryStore()
	}
	return &Worker{
		pipeline: pipeline,
		config:   config,
		repo:     repo,
		flush:    flush,
	}
}

// ProcessBatch transforms every product in productIDs. A failing product marks
// its job failed and the batch carries on; only report validation and tracking
// store failures abort the run.
func (w *Worker) ProcessBatch(ctx context.Context, date time.Time, source string, table domain.RawTable, productIDs []string) (*PipelineRun, error) {
	return w.runBatch(ctx, date, source, table, productIDs, nil)
}

// runBatch starts each new job at priorRetries[productID].
func (w *Worker) runBatch(ctx context.Context, date time.Time, source string, table domain.RawTable, productIDs []string, priorRetries map[string]int) (*PipelineRun, error) {
	logger := log.With().Str("pipeline", w.pipeline.Name()).Str("source", source).Logger()
	logger.Info().Int("products", len(productIDs)).Str("date", date.Format("2006-01-02")).Msg("starting batch")

	run := &PipelineRun{
		PipelineName:  w.pipeline.Name(),
		Date:          date,
		Source:        source,
		Status:        StatusPending,
		TotalProducts: len(productIDs),
		StartedAt:     time.Now(),
	}
	if err := w.repo.CreatePipelineRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create pipeline run: %w", err)
	}

	if err := w.pipeline.Validate(table); err != nil {
		w.finishRun(ctx, run, StatusFailed, fmt.Sprintf("validation failed: %v", err))
		return run, fmt.Errorf("validation failed: %w", err)
	}

	jobs := make([]*ProductJob, len(productIDs))
	for i, id := range productIDs {
		job := &ProductJob{
			PipelineRunID: run.ID,
			ProductID:     id,
			Status:        JobQueued,
			RetryCount:    priorRetries[id],
		}
		if err := w.repo.CreateProductJob(ctx, job); err != nil {
			return run, fmt.Errorf("failed to create product job: %w", err)
		}
		jobs[i] = job
	}

	run.Status = StatusProcessing
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to update pipeline run: %w", err)
	}

	aggregator := NewStreamingAggregator(w.pipeline, w.config, date, w.flush)

	if err := w.processProductsParallel(ctx, run, table, jobs, aggregator); err != nil {
		w.finishRun(ctx, run, StatusFailed, err.Error())
		return run, err
	}

	if err := aggregator.Finalize(ctx); err != nil {
		w.finishRun(ctx, run, StatusFailed, fmt.Sprintf("aggregation failed: %v", err))
		return run, fmt.Errorf("failed to finalize aggregation: %w", err)
	}

	status, msg := StatusCompleted, ""
	if run.FailedProducts > 0 {
		msg = fmt.Sprintf("%d of %d products failed", run.FailedProducts, run.TotalProducts)
		if run.FailedProducts == run.TotalProducts {
			status = StatusFailed
		}
	}
	if err := w.finishRun(ctx, run, status, msg); err != nil {
		return run, fmt.Errorf("failed to complete pipeline run: %w", err)
	}

	logger.Info().
		Int("processed", run.ProcessedProducts).
		Int("failed", run.FailedProducts).
		Int("rows", run.TotalRows).
		Dur("took", time.Since(run.StartedAt)).
		Msg("batch completed")
	return run, nil
}

func (w *Worker) finishRun(ctx context.Context, run *PipelineRun, status RunStatus, msg string) error {
	now := time.Now()
	run.Status = status
	run.ErrorMessage = msg
	run.CompletedAt = &now
	err := w.repo.UpdatePipelineRun(ctx, run)
	if err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("failed to update pipeline run")
	}
	return err
}

// processProductsParallel fans the jobs out to WorkerCount goroutines. Only
// infrastructure errors are returned; product failures are recorded on the jobs.
func (w *Worker) processProductsParallel(ctx context.Context, run *PipelineRun, table domain.RawTable, jobs []*ProductJob, aggregator *StreamingAggregator) error {
	workerCount := w.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	jobChan := make(chan *ProductJob, len(jobs))
	errChan := make(chan error, workerCount)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				if ctx.Err() != nil {
					return
				}
				if err := w.processProduct(ctx, run, table, job, aggregator); err != nil {
					log.Error().Err(err).Int("worker", workerID).Str("product_id", job.ProductID).Msg("product job aborted")
					select {
					case errChan <- err:
					default:
					}
				}
			}
		}(i)
	}

	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return err
	}
	return ctx.Err()
}

// processProduct returns an error only when tracking or aggregation fails.
func (w *Worker) processProduct(ctx context.Context, run *PipelineRun, table domain.RawTable, job *ProductJob, aggregator *StreamingAggregator) error {
	start := time.Now()

	job.Status = JobProcessing
	if err := w.repo.UpdateProductJob(ctx, job); err != nil {
		return err
	}

	attempts := w.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		rows []TransformedRow
		err  error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			job.RetryCount++
			if err := sleepContext(ctx, w.config.RetryBackoff); err != nil {
				return err
			}
		}
		rows, err = w.pipeline.Transform(ctx, table, job.ProductID)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if w.config.Permanent != nil && w.config.Permanent(err) {
			break
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.markJobFailed(ctx, run, job, err)
	}

	if err := aggregator.AddProductData(ctx, rows); err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	now := time.Now()
	job.Status = JobCompleted
	job.ErrorMessage = ""
	job.ProcessedAt = &now
	if err := w.repo.UpdateProductJob(ctx, job); err != nil {
		return err
	}

	w.mu.Lock()
	run.ProcessedProducts++
	run.TotalRows += len(rows)
	w.mu.Unlock()

	log.Debug().
		Str("pipeline", w.pipeline.Name()).
		Str("product_id", job.ProductID).
		Int("rows", len(rows)).
		Dur("took", time.Since(start)).
		Msg("product completed")
	return nil
}

// markJobFailed records a product failure. It returns an error only when the
// job record itself cannot be written.
func (w *Worker) markJobFailed(ctx context.Context, run *PipelineRun, job *ProductJob, cause error) error {
	now := time.Now()
	job.Status = JobFailed
	job.ErrorMessage = cause.Error()
	job.ProcessedAt = &now

	w.mu.Lock()
	run.FailedProducts++
	w.mu.Unlock()

	log.Warn().Err(cause).
		Str("pipeline", w.pipeline.Name()).
		Str("product_id", job.ProductID).
		Int("retries", job.RetryCount).
		Msg("product failed")

	return w.repo.UpdateProductJob(ctx, job)
}

// RetryFailed reprocesses products whose earlier jobs failed and that still
// appear in table. The previous jobs are marked retried and the new jobs, in
// a run of their own, carry the retry count forward so a product stops being
// picked up once RetryAttempts reruns have failed.
func (w *Worker) RetryFailed(ctx context.Context, date time.Time, source string, table domain.RawTable, available []string) (*PipelineRun, error) {
	budget := w.config.RetryAttempts
	if budget < 1 {
		budget = 1
	}
	jobs, err := w.repo.GetFailedProductJobs(ctx, w.pipeline.Name(), budget)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed jobs: %w", err)
	}

	present := make(map[string]bool, len(available))
	for _, id := range available {
		present[id] = true
	}

	prior := make(map[string]int)
	var retry []string
	for _, job := range jobs {
		if !present[job.ProductID] {
			continue
		}
		job.Status = JobRetried
		if err := w.repo.UpdateProductJob(ctx, job); err != nil {
			return nil, err
		}
		count, seen := prior[job.ProductID]
		if !seen {
			retry = append(retry, job.ProductID)
		}
		if job.RetryCount+1 > count {
			prior[job.ProductID] = job.RetryCount + 1
		}
	}

	if len(retry) == 0 {
		log.Info().Str("pipeline", w.pipeline.Name()).Msg("no failed jobs to retry")
		return nil, nil
	}
	return w.runBatch(ctx, date, source, table, retry, prior)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
