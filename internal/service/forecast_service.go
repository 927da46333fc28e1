package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/export"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/ingest"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline/demand_forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/storage"
	"github.com/rs/zerolog/log"
)

// ForecastRequest describes one forecast run over a loaded sales report.
type ForecastRequest struct {
	Table      domain.RawTable
	Source     string
	RunDate    time.Time
	ProductIDs []string
	Stock      demand_forecast.StockLevels
	Publish    bool

	// RetryFailed reruns only the products whose earlier jobs failed,
	// instead of ProductIDs.
	RetryFailed bool
}

// ForecastResponse carries the run bookkeeping and its results.
type ForecastResponse struct {
	Run             *pipeline.PipelineRun            `json:"run"`
	Recommendations []domain.InventoryRecommendation `json:"recommendations"`
	Outcomes        []*forecast.Outcome              `json:"-"`
	ExportKey       string                           `json:"export_key,omitempty"`
}

type ForecastService struct {
	engine       demand_forecast.Runner
	orchestrator *pipeline.Orchestrator
	recs         *RecommendationService
	store        storage.ObjectStorage
	exportPrefix string
}

// NewForecastService wires the engine to the batch orchestrator. recs and
// store are optional; without them results are neither cached nor published.
func NewForecastService(engine demand_forecast.Runner, orchestrator *pipeline.Orchestrator, recs *RecommendationService, store storage.ObjectStorage, exportPrefix string) *ForecastService {
	return &ForecastService{
		engine:       engine,
		orchestrator: orchestrator,
		recs:         recs,
		store:        store,
		exportPrefix: exportPrefix,
	}
}

// Forecast runs every requested product through the engine. Product level
// failures are recorded on the run; an error is returned only when the batch
// itself could not run.
func (s *ForecastService) Forecast(ctx context.Context, req ForecastRequest) (*ForecastResponse, error) {
	runDate := req.RunDate
	if runDate.IsZero() {
		runDate = time.Now().UTC().Truncate(24 * time.Hour)
	}

	p := demand_forecast.NewDemandForecastPipeline(s.engine, runDate, req.Stock)
	var (
		run *pipeline.PipelineRun
		err error
	)
	if req.RetryFailed {
		run, err = s.orchestrator.RetryFailedTable(ctx, p, runDate, req.Source, req.Table)
	} else {
		run, err = s.orchestrator.RunTable(ctx, p, runDate, req.Source, req.Table, req.ProductIDs)
	}
	if err != nil {
		return &ForecastResponse{Run: run}, err
	}
	if run == nil {
		log.Info().Str("source", req.Source).Msg("no failed products to retry")
		return &ForecastResponse{Recommendations: []domain.InventoryRecommendation{}}, nil
	}

	resp := &ForecastResponse{
		Run:             run,
		Recommendations: p.Recommendations(),
		Outcomes:        p.Outcomes(),
	}

	if s.recs != nil {
		s.recs.Invalidate(ctx)
	}

	if req.Publish {
		if s.store == nil {
			return resp, fmt.Errorf("publishing requested but no object storage is configured")
		}
		key, err := export.Publish(ctx, s.store, s.exportPrefix, runDate, resp.Recommendations)
		if err != nil {
			log.Error().Stack().Err(err).Str("prefix", s.exportPrefix).Msg("export publish failed")
			return resp, fmt.Errorf("failed to publish export: %w", err)
		}
		resp.ExportKey = key
	}

	log.Info().
		Str("source", req.Source).
		Int("processed", run.ProcessedProducts).
		Int("failed", run.FailedProducts).
		Str("status", string(run.Status)).
		Msg("forecast run finished")

	return resp, nil
}

// FileRequest is a forecast over a report on local disk.
type FileRequest struct {
	Path       string
	StockPath  string
	ProductIDs []string
	RunDate    time.Time
	Publish    bool

	RetryFailed bool
}

// ForecastFile loads the report (and optional stock file) and forecasts it.
// The run date defaults to the date in the report file name.
func (s *ForecastService) ForecastFile(ctx context.Context, req FileRequest) (*ForecastResponse, error) {
	table, err := ingest.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}

	var stock demand_forecast.StockLevels
	if req.StockPath != "" {
		if stock, err = demand_forecast.LoadStockLevels(req.StockPath); err != nil {
			return nil, err
		}
	}

	runDate := req.RunDate
	if runDate.IsZero() {
		if d, ok := pipeline.SnapshotDate(req.Path); ok {
			runDate = d
		}
	}

	return s.Forecast(ctx, ForecastRequest{
		Table:      table,
		Source:     filepath.Base(req.Path),
		RunDate:    runDate,
		ProductIDs: req.ProductIDs,
		Stock:      stock,
		Publish:    req.Publish,

		RetryFailed: req.RetryFailed,
	})
}
