package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline/demand_forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct{}

func (stubEngine) Run(_ context.Context, _ domain.RawTable, productID string) (*forecast.Outcome, error) {
	if productID == "BAD" {
		return nil, &domain.DataError{ProductID: productID, Reason: "no rows match product"}
	}
	return &forecast.Outcome{
		ProductID: productID,
		Recommendation: domain.InventoryRecommendation{
			ProductID:          productID,
			RequiredInventory:  1000,
			EffectiveThreshold: 800,
			ReplenishmentDays:  120,
		},
	}, nil
}

var salesTable = domain.RawTable{
	Header: []string{"date", "parent_product_id", "units_ordered"},
	Rows: [][]string{
		{"2024-01-01", "A", "3"},
		{"2024-01-01", "B", "4"},
	},
}

func newTestForecastService(t *testing.T, recs *RecommendationService, store storage.ObjectStorage) *ForecastService {
	cfg := pipeline.DefaultPipelineConfig("demand_forecast")
	cfg.OutputDir = t.TempDir()
	orch := pipeline.NewOrchestrator(pipeline.NewMemoryStore(), cfg, nil)
	return NewForecastService(stubEngine{}, orch, recs, store, "exports")
}

func TestForecastAllProductsInReport(t *testing.T) {
	c := newFakeCache()
	svc := newTestForecastService(t, NewRecommendationService(&fakeRepo{}, c), nil)

	resp, err := svc.Forecast(context.Background(), ForecastRequest{
		Table:  salesTable,
		Source: "upload.csv",
		Stock:  demand_forecast.StockLevels{"A": {OnHand: 100}},
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, resp.Run.Status)
	require.Len(t, resp.Recommendations, 2)
	require.NotNil(t, resp.Recommendations[0].Decision)
	assert.True(t, resp.Recommendations[0].Decision.Reorder)
	assert.Nil(t, resp.Recommendations[1].Decision)
	assert.Equal(t, 1, c.invalidated)
}

func TestForecastRecordsProductFailures(t *testing.T) {
	svc := newTestForecastService(t, nil, nil)

	resp, err := svc.Forecast(context.Background(), ForecastRequest{
		Table:      salesTable,
		ProductIDs: []string{"A", "BAD"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Run.ProcessedProducts)
	assert.Equal(t, 1, resp.Run.FailedProducts)
	assert.Len(t, resp.Recommendations, 1)
}

// brokenEngine fails the listed products with an infrastructure error.
type brokenEngine struct {
	stubEngine
	broken map[string]bool
}

func (e *brokenEngine) Run(ctx context.Context, table domain.RawTable, productID string) (*forecast.Outcome, error) {
	if e.broken[productID] {
		return nil, errors.New("profile store unavailable")
	}
	return e.stubEngine.Run(ctx, table, productID)
}

func TestForecastRetryFailed(t *testing.T) {
	engine := &brokenEngine{broken: map[string]bool{"B": true}}
	cfg := pipeline.DefaultPipelineConfig("demand_forecast")
	cfg.OutputDir = t.TempDir()
	svc := NewForecastService(engine, pipeline.NewOrchestrator(pipeline.NewMemoryStore(), cfg, nil), nil, nil, "exports")
	ctx := context.Background()

	resp, err := svc.Forecast(ctx, ForecastRequest{Table: salesTable})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Run.FailedProducts)

	engine.broken["B"] = false
	resp, err = svc.Forecast(ctx, ForecastRequest{Table: salesTable, RetryFailed: true})
	require.NoError(t, err)
	require.NotNil(t, resp.Run)
	assert.Equal(t, 1, resp.Run.TotalProducts)
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "B", resp.Recommendations[0].ProductID)

	// B succeeded, so a further retry has nothing to do.
	resp, err = svc.Forecast(ctx, ForecastRequest{Table: salesTable, RetryFailed: true})
	require.NoError(t, err)
	assert.Nil(t, resp.Run)
	assert.Empty(t, resp.Recommendations)
}

func TestForecastPublishesExport(t *testing.T) {
	store, err := storage.NewDirStorage(t.TempDir())
	require.NoError(t, err)
	svc := newTestForecastService(t, nil, store)

	runDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	resp, err := svc.Forecast(context.Background(), ForecastRequest{
		Table:   salesTable,
		RunDate: runDate,
		Publish: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "exports/recommendations_20240601.xlsx", resp.ExportKey)
}

func TestForecastPublishWithoutStorage(t *testing.T) {
	svc := newTestForecastService(t, nil, nil)
	_, err := svc.Forecast(context.Background(), ForecastRequest{Table: salesTable, Publish: true})
	assert.ErrorContains(t, err, "no object storage")
}

func TestForecastFileUsesNameDate(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "sales_2024-03-15.csv")
	require.NoError(t, os.WriteFile(report, []byte("date,parent_product_id,units_ordered\n2024-01-01,A,3\n"), 0o644))
	stock := filepath.Join(dir, "stock.csv")
	require.NoError(t, os.WriteFile(stock, []byte("product_id,on_hand,incoming\nA,900,10\n"), 0o644))

	svc := newTestForecastService(t, nil, nil)
	resp, err := svc.ForecastFile(context.Background(), FileRequest{Path: report, StockPath: stock})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", resp.Run.Date.Format("2006-01-02"))
	assert.Equal(t, "sales_2024-03-15.csv", resp.Run.Source)
	require.Len(t, resp.Recommendations, 1)
	require.NotNil(t, resp.Recommendations[0].Decision)
	assert.False(t, resp.Recommendations[0].Decision.Reorder)
}

func TestForecastFileMissingReport(t *testing.T) {
	svc := newTestForecastService(t, nil, nil)
	_, err := svc.ForecastFile(context.Background(), FileRequest{Path: filepath.Join(t.TempDir(), "none.csv")})
	assert.Error(t, err)
}
