package demand_forecast

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	required map[string]float64
}

func (s stubRunner) Run(_ context.Context, _ domain.RawTable, productID string) (*forecast.Outcome, error) {
	req, ok := s.required[productID]
	if !ok {
		return nil, &domain.DataError{ProductID: productID, Reason: "no rows match product"}
	}
	return &forecast.Outcome{
		ProductID: productID,
		Model:     "SARIMA(1,1,1)(0,0,0)[0]",
		Recommendation: domain.InventoryRecommendation{
			ProductID:          productID,
			Checkpoints:        []domain.Checkpoint{{Days: 30, Cumulative: 300}, {Days: 60, Cumulative: 600}},
			RequiredInventory:  req,
			EffectiveThreshold: req * forecast.ThresholdRatio,
			ReplenishmentDays:  120,
		},
	}, nil
}

var reportTable = domain.RawTable{
	Header: []string{"date", "parent_product_id", "units_ordered"},
	Rows:   [][]string{{"2024-01-01", "A", "3"}},
}

func TestTransformAppliesStockLevels(t *testing.T) {
	runDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stock := StockLevels{"A": {OnHand: 100, Incoming: 50}}
	p := NewDemandForecastPipeline(stubRunner{required: map[string]float64{"A": 1000, "B": 10}}, runDate, stock)

	rows, err := p.Transform(context.Background(), reportTable, "A")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	data := rows[0].Data
	assert.Equal(t, runDate, data[ColRunDate])
	assert.Equal(t, "A", data[ColProductID])
	assert.Equal(t, 300.0, *data[ColCumulative30].(*float64))
	assert.Nil(t, data[ColCumulative90].(*float64))
	assert.True(t, *data[ColReorder].(*bool))
	assert.Equal(t, 850.0, *data[ColSuggestedQuantity].(*float64))
	assert.Equal(t, "SARIMA(1,1,1)(0,0,0)[0]", data[ColModel])

	// No stock figures for B: no decision.
	rows, err = p.Transform(context.Background(), reportTable, "B")
	require.NoError(t, err)
	assert.Nil(t, rows[0].Data[ColReorder].(*bool))

	recs := p.Recommendations()
	require.Len(t, recs, 2)
	assert.Equal(t, "A", recs[0].ProductID)
	require.NotNil(t, recs[0].Decision)
	assert.Nil(t, recs[1].Decision)
}

func TestValidate(t *testing.T) {
	p := NewDemandForecastPipeline(stubRunner{}, time.Now(), nil)

	assert.NoError(t, p.Validate(reportTable))

	err := p.Validate(domain.RawTable{Header: []string{"date", "title"}, Rows: [][]string{{"2024-01-01", "x"}}})
	var schemaErr *domain.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{domain.ColUnitsOrdered}, schemaErr.Missing)

	err = p.Validate(domain.RawTable{Header: reportTable.Header})
	var dataErr *domain.DataError
	assert.True(t, errors.As(err, &dataErr))
}

func TestPipelineRunsThroughWorker(t *testing.T) {
	p := NewDemandForecastPipeline(stubRunner{required: map[string]float64{"A": 10, "C": 20}}, time.Now(), nil)
	cfg := pipeline.DefaultPipelineConfig(p.Name())
	cfg.OutputDir = t.TempDir()
	store := pipeline.NewMemoryStore()

	run, err := pipeline.NewWorker(p, cfg, store, nil).
		ProcessBatch(context.Background(), time.Now(), "report.csv", reportTable, []string{"A", "B", "C"})
	require.NoError(t, err)

	assert.Equal(t, 2, run.ProcessedProducts)
	assert.Equal(t, 1, run.FailedProducts)
	assert.Len(t, p.Outcomes(), 2)

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEndToEndWithEngine(t *testing.T) {
	engine, err := forecast.NewEngine(forecast.DefaultOptions(), nil, nil)
	require.NoError(t, err)

	table := domain.RawTable{Header: []string{
		"date", "parent_product_id", "unique_page_views", "total_page_views", "conversion_rate", "units_ordered",
	}}
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		d := start.AddDate(0, 0, i)
		units := 10.0
		if d.Weekday() == time.Saturday {
			units = 50
		}
		table.Rows = append(table.Rows, []string{
			d.Format("2006-01-02"), "P1", "100", "200", "0.1", strconv.FormatFloat(units, 'f', -1, 64),
		})
	}

	p := NewDemandForecastPipeline(engine, time.Now(), StockLevels{"P1": {OnHand: 0}})
	rows, err := p.Transform(context.Background(), table, "P1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, *rows[0].Data[ColReorder].(*bool))
	assert.Greater(t, *rows[0].Data[ColSuggestedQuantity].(*float64), 0.0)
}

func TestLoadStockLevels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stock.csv")
	require.NoError(t, os.WriteFile(path, []byte("SKU,Stock,Inbound\nA,\"1,200\",30\nB,5,\n,9,9\n"), 0o644))

	levels, err := LoadStockLevels(path)
	require.NoError(t, err)
	assert.Equal(t, StockLevels{
		"A": {OnHand: 1200, Incoming: 30},
		"B": {OnHand: 5, Incoming: 0},
	}, levels)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("name,qty\nA,1\n"), 0o644))
	_, err = LoadStockLevels(bad)
	assert.Error(t, err)
}
