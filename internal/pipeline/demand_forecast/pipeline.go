package demand_forecast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast"
	"github.com/andresuchdata/autopo-py/forecast/internal/ingest"
	"github.com/andresuchdata/autopo-py/forecast/internal/pipeline"
)

// Output columns, in CSV order.
const (
	ColRunDate            = "run_date"
	ColProductID          = "product_id"
	ColCumulative30       = "cumulative_30d"
	ColCumulative60       = "cumulative_60d"
	ColCumulative90       = "cumulative_90d"
	ColCumulative120      = "cumulative_120d"
	ColCumulative180      = "cumulative_180d"
	ColMeanDailyForecast  = "mean_daily_forecast"
	ColSafetyStock        = "safety_stock"
	ColRequiredInventory  = "required_inventory"
	ColEffectiveThreshold = "effective_threshold"
	ColTrailingMean       = "trailing_30d_mean_demand"
	ColReplenishmentDays  = "replenishment_days"
	ColOnHand             = "on_hand"
	ColIncoming           = "incoming"
	ColReorder            = "reorder"
	ColSuggestedQuantity  = "suggested_quantity"
	ColModel              = "model"
)

var columns = []string{
	ColRunDate, ColProductID,
	ColCumulative30, ColCumulative60, ColCumulative90, ColCumulative120, ColCumulative180,
	ColMeanDailyForecast, ColSafetyStock, ColRequiredInventory, ColEffectiveThreshold,
	ColTrailingMean, ColReplenishmentDays,
	ColOnHand, ColIncoming, ColReorder, ColSuggestedQuantity,
	ColModel,
}

// Runner runs the forecasting engine for one product.
type Runner interface {
	Run(ctx context.Context, table domain.RawTable, productID string) (*forecast.Outcome, error)
}

// DemandForecastPipeline implements pipeline.Pipeline with one forecast per
// product. Completed outcomes are kept for export once the batch is done.
type DemandForecastPipeline struct {
	engine  Runner
	runDate time.Time
	stock   StockLevels

	mu       sync.Mutex
	outcomes map[string]*forecast.Outcome
}

// NewDemandForecastPipeline creates a pipeline around engine. stock may be
// nil; when present it supplies on-hand figures for the reorder decision.
func NewDemandForecastPipeline(engine Runner, runDate time.Time, stock StockLevels) *DemandForecastPipeline {
	return &DemandForecastPipeline{
		engine:   engine,
		runDate:  runDate,
		stock:    stock,
		outcomes: make(map[string]*forecast.Outcome),
	}
}

// Name returns the unique identifier of this pipeline.
func (p *DemandForecastPipeline) Name() string {
	return "demand_forecast"
}

// GetOutputTable returns the table the recommendations are seeded into.
func (p *DemandForecastPipeline) GetOutputTable() string {
	return "inventory_recommendations"
}

// Columns returns the output columns in CSV order.
func (p *DemandForecastPipeline) Columns() []string {
	return append([]string(nil), columns...)
}

// Validate rejects reports that lack the date or demand column, since no
// product in them could be forecast.
func (p *DemandForecastPipeline) Validate(table domain.RawTable) error {
	resolved := ingest.ResolveColumns(table.Header)
	var missing []string
	for _, c := range []string{domain.ColDate, domain.ColUnitsOrdered} {
		if _, ok := resolved[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &domain.SchemaError{Missing: missing}
	}
	if len(table.Rows) == 0 {
		return &domain.DataError{Reason: "report has no rows"}
	}
	return nil
}

// Transform forecasts one product and returns its recommendation row.
func (p *DemandForecastPipeline) Transform(ctx context.Context, table domain.RawTable, productID string) ([]pipeline.TransformedRow, error) {
	out, err := p.engine.Run(ctx, table, productID)
	if err != nil {
		return nil, err
	}

	if p.stock != nil {
		if level, ok := p.stock[out.ProductID]; ok {
			forecast.Decide(&out.Recommendation, level.OnHand, level.Incoming)
		}
	}

	p.mu.Lock()
	p.outcomes[out.ProductID] = out
	p.mu.Unlock()

	return []pipeline.TransformedRow{{Data: rowData(p.runDate, out)}}, nil
}

// Outcomes returns the completed outcomes ordered by product id.
func (p *DemandForecastPipeline) Outcomes() []*forecast.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*forecast.Outcome, 0, len(p.outcomes))
	for _, o := range p.outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Recommendations returns the completed recommendations ordered by product id.
func (p *DemandForecastPipeline) Recommendations() []domain.InventoryRecommendation {
	outcomes := p.Outcomes()
	recs := make([]domain.InventoryRecommendation, len(outcomes))
	for i, o := range outcomes {
		recs[i] = o.Recommendation
	}
	return recs
}

func rowData(runDate time.Time, out *forecast.Outcome) map[string]interface{} {
	row := domain.NewRecommendationRow(runDate, out.Recommendation)
	return map[string]interface{}{
		ColRunDate:            row.RunDate,
		ColProductID:          row.ProductID,
		ColCumulative30:       row.Cumulative30,
		ColCumulative60:       row.Cumulative60,
		ColCumulative90:       row.Cumulative90,
		ColCumulative120:      row.Cumulative120,
		ColCumulative180:      row.Cumulative180,
		ColMeanDailyForecast:  row.MeanDailyForecast,
		ColSafetyStock:        row.SafetyStock,
		ColRequiredInventory:  row.RequiredInventory,
		ColEffectiveThreshold: row.EffectiveThreshold,
		ColTrailingMean:       row.TrailingMeanDemand,
		ColReplenishmentDays:  row.ReplenishmentDays,
		ColOnHand:             row.OnHand,
		ColIncoming:           row.Incoming,
		ColReorder:            row.Reorder,
		ColSuggestedQuantity:  row.SuggestedQuantity,
		ColModel:              out.Model,
	}
}

// String describes the pipeline for logs.
func (p *DemandForecastPipeline) String() string {
	return fmt.Sprintf("%s(run_date=%s)", p.Name(), p.runDate.Format("2006-01-02"))
}
