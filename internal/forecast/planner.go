package forecast

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
)

const (
	// DefaultReplenishmentDays covers production plus shipping.
	DefaultReplenishmentDays = 120
	// ThresholdRatio scales required inventory down to the reorder trigger.
	ThresholdRatio = 0.8
	// TrailingDemandDays is the window for the mean daily demand estimate.
	TrailingDemandDays = 30
)

// safetyStockWeights blends short, medium and long demand variability.
var safetyStockWeights = []struct {
	days   int
	weight float64
}{
	{30, 0.2},
	{90, 0.4},
	{120, 0.4},
}

// SafetyStock returns the recency-weighted square-root-of-time buffer for a
// lead time of leadDays.
func SafetyStock(demand []float64, leadDays int) float64 {
	if leadDays <= 0 {
		return 0
	}
	sigma := 0.0
	for _, w := range safetyStockWeights {
		sigma += w.weight * sampleStdDev(trailing(demand, w.days))
	}
	return sigma * math.Sqrt(float64(leadDays))
}

// RequiredInventory is the demand over one replenishment cycle plus safety stock.
func RequiredInventory(meanDaily float64, cycleDays int, safetyStock float64) float64 {
	return meanDaily*float64(cycleDays) + safetyStock
}

// PlanInventory turns a forecast and the demand history into an inventory
// recommendation. Lead time equals the replenishment cycle. Checkpoints beyond
// the forecast horizon are omitted.
func PlanInventory(fc *domain.ForecastResult, history *domain.Series, cycleDays int) domain.InventoryRecommendation {
	if cycleDays <= 0 {
		cycleDays = DefaultReplenishmentDays
	}

	var demand []float64
	if history != nil {
		demand = history.Demand()
	}

	rec := domain.InventoryRecommendation{
		ReplenishmentDays:  cycleDays,
		TrailingMeanDemand: mean(trailing(demand, TrailingDemandDays)),
		SafetyStock:        SafetyStock(demand, cycleDays),
		GeneratedAt:        time.Now().UTC(),
	}
	if history != nil {
		rec.ProductID = history.ProductID
	}

	rec.RequiredInventory = RequiredInventory(rec.TrailingMeanDemand, cycleDays, rec.SafetyStock)
	rec.EffectiveThreshold = rec.RequiredInventory * ThresholdRatio

	if fc != nil {
		if fc.ProductID != "" {
			rec.ProductID = fc.ProductID
		}
		rec.MeanDailyForecast = mean(fc.Daily)
		for _, days := range domain.CheckpointDays {
			if v, ok := fc.CumulativeAt(days); ok {
				rec.Checkpoints = append(rec.Checkpoints, domain.Checkpoint{Days: days, Cumulative: v})
			}
		}
	}

	return rec
}

// Decide fills in the externally supplied stock figures and the reorder
// decision. A reorder is signalled when on-hand stock is below the effective
// threshold; the suggested quantity tops stock up to the required inventory
// net of incoming units and is never negative.
func Decide(rec *domain.InventoryRecommendation, onHand, incoming float64) domain.ReorderDecision {
	decision := domain.ReorderDecision{
		Reorder:           onHand < rec.EffectiveThreshold,
		SuggestedQuantity: math.Max(0, rec.RequiredInventory-onHand-incoming),
	}
	if !decision.Reorder {
		decision.SuggestedQuantity = 0
	}

	rec.OnHand = &onHand
	rec.Incoming = &incoming
	rec.Decision = &decision
	return decision
}
