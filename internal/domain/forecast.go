package domain

import "time"

// CheckpointDays are the horizons at which cumulative demand is reported.
var CheckpointDays = []int{30, 60, 90, 120, 180}

// ForecastResult is the blended daily forecast for one product.
type ForecastResult struct {
	ProductID   string      `json:"product_id"`
	Dates       []time.Time `json:"dates"`
	Daily       []float64   `json:"daily_forecast"`
	Cumulative  []float64   `json:"cumulative_forecast"`
	Statistical []float64   `json:"statistical_forecast"`
	Tree        []float64   `json:"tree_forecast"`
	// StatisticalWeight + TreeWeight == 1.
	StatisticalWeight float64 `json:"statistical_weight"`
	TreeWeight        float64 `json:"tree_weight"`
}

// Horizon returns the number of forecast days.
func (f *ForecastResult) Horizon() int {
	return len(f.Dates)
}

// CumulativeAt returns the cumulative forecast after the given number of days.
func (f *ForecastResult) CumulativeAt(days int) (float64, bool) {
	if days <= 0 || days > len(f.Cumulative) {
		return 0, false
	}
	return f.Cumulative[days-1], true
}

// Checkpoint is cumulative forecast demand at a fixed horizon.
type Checkpoint struct {
	Days       int     `json:"days"`
	Cumulative float64 `json:"cumulative"`
}

// ReorderDecision is the reorder signal given external on-hand figures.
type ReorderDecision struct {
	Reorder           bool    `json:"reorder"`
	SuggestedQuantity float64 `json:"suggested_quantity"`
}

// InventoryRecommendation is the replenishment figure set for one product.
type InventoryRecommendation struct {
	ProductID          string       `json:"product_id" db:"product_id"`
	Checkpoints        []Checkpoint `json:"checkpoints" db:"-"`
	MeanDailyForecast  float64      `json:"mean_daily_forecast" db:"mean_daily_forecast"`
	SafetyStock        float64      `json:"safety_stock" db:"safety_stock"`
	RequiredInventory  float64      `json:"required_inventory" db:"required_inventory"`
	EffectiveThreshold float64      `json:"effective_threshold" db:"effective_threshold"`
	TrailingMeanDemand float64      `json:"trailing_30d_mean_demand" db:"trailing_mean_demand"`
	ReplenishmentDays  int          `json:"replenishment_days" db:"replenishment_days"`

	// Supplied by an external inventory system.
	OnHand   *float64         `json:"on_hand,omitempty" db:"on_hand"`
	Incoming *float64         `json:"incoming,omitempty" db:"incoming"`
	Decision *ReorderDecision `json:"decision,omitempty" db:"-"`

	GeneratedAt time.Time `json:"generated_at" db:"generated_at"`
}

// Checkpoint returns the cumulative forecast for the given horizon.
func (r InventoryRecommendation) Checkpoint(days int) (float64, bool) {
	for _, c := range r.Checkpoints {
		if c.Days == days {
			return c.Cumulative, true
		}
	}
	return 0, false
}

// RecommendationRow is the flat persisted form of a recommendation.
type RecommendationRow struct {
	ID                 int64     `json:"id" db:"id"`
	RunDate            time.Time `json:"run_date" db:"run_date"`
	ProductID          string    `json:"product_id" db:"product_id"`
	Cumulative30       *float64  `json:"cumulative_30d" db:"cumulative_30d"`
	Cumulative60       *float64  `json:"cumulative_60d" db:"cumulative_60d"`
	Cumulative90       *float64  `json:"cumulative_90d" db:"cumulative_90d"`
	Cumulative120      *float64  `json:"cumulative_120d" db:"cumulative_120d"`
	Cumulative180      *float64  `json:"cumulative_180d" db:"cumulative_180d"`
	MeanDailyForecast  float64   `json:"mean_daily_forecast" db:"mean_daily_forecast"`
	SafetyStock        float64   `json:"safety_stock" db:"safety_stock"`
	RequiredInventory  float64   `json:"required_inventory" db:"required_inventory"`
	EffectiveThreshold float64   `json:"effective_threshold" db:"effective_threshold"`
	TrailingMeanDemand float64   `json:"trailing_30d_mean_demand" db:"trailing_mean_demand"`
	ReplenishmentDays  int       `json:"replenishment_days" db:"replenishment_days"`
	OnHand             *float64  `json:"on_hand,omitempty" db:"on_hand"`
	Incoming           *float64  `json:"incoming,omitempty" db:"incoming"`
	Reorder            *bool     `json:"reorder,omitempty" db:"reorder"`
	SuggestedQuantity  *float64  `json:"suggested_quantity,omitempty" db:"suggested_quantity"`
	Model              string    `json:"model,omitempty" db:"model"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// RecommendationFilter narrows recommendation queries.
type RecommendationFilter struct {
	RunDate     string   `json:"run_date"`
	ProductIDs  []string `json:"product_ids"`
	ReorderOnly bool     `json:"reorder_only"`
	SortField   string   `json:"sort_field"`
	SortDir     string   `json:"sort_direction"`
	Page        int      `json:"page"`
	PageSize    int      `json:"page_size"`
}

// FeatureImportance is the normalized split gain attributed to one feature.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// NewRecommendationRow flattens rec for persistence under runDate. Checkpoints
// beyond the forecast horizon stay nil.
func NewRecommendationRow(runDate time.Time, rec InventoryRecommendation) RecommendationRow {
	row := RecommendationRow{
		RunDate:            runDate,
		ProductID:          rec.ProductID,
		MeanDailyForecast:  rec.MeanDailyForecast,
		SafetyStock:        rec.SafetyStock,
		RequiredInventory:  rec.RequiredInventory,
		EffectiveThreshold: rec.EffectiveThreshold,
		TrailingMeanDemand: rec.TrailingMeanDemand,
		ReplenishmentDays:  rec.ReplenishmentDays,
		OnHand:             rec.OnHand,
		Incoming:           rec.Incoming,
		UpdatedAt:          rec.GeneratedAt,
	}
	for _, c := range rec.Checkpoints {
		v := c.Cumulative
		switch c.Days {
		case 30:
			row.Cumulative30 = &v
		case 60:
			row.Cumulative60 = &v
		case 90:
			row.Cumulative90 = &v
		case 120:
			row.Cumulative120 = &v
		case 180:
			row.Cumulative180 = &v
		}
	}
	if rec.Decision != nil {
		reorder := rec.Decision.Reorder
		qty := rec.Decision.SuggestedQuantity
		row.Reorder = &reorder
		row.SuggestedQuantity = &qty
	}
	return row
}

// RecommendationPage is one page of a recommendation query.
type RecommendationPage struct {
	Rows     []RecommendationRow `json:"rows"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// Recommendation rebuilds the in-memory form of a persisted row.
func (r RecommendationRow) Recommendation() InventoryRecommendation {
	rec := InventoryRecommendation{
		ProductID:          r.ProductID,
		MeanDailyForecast:  r.MeanDailyForecast,
		SafetyStock:        r.SafetyStock,
		RequiredInventory:  r.RequiredInventory,
		EffectiveThreshold: r.EffectiveThreshold,
		TrailingMeanDemand: r.TrailingMeanDemand,
		ReplenishmentDays:  r.ReplenishmentDays,
		OnHand:             r.OnHand,
		Incoming:           r.Incoming,
		GeneratedAt:        r.UpdatedAt,
	}
	for _, c := range []struct {
		days  int
		value *float64
	}{
		{30, r.Cumulative30}, {60, r.Cumulative60}, {90, r.Cumulative90},
		{120, r.Cumulative120}, {180, r.Cumulative180},
	} {
		if c.value != nil {
			rec.Checkpoints = append(rec.Checkpoints, Checkpoint{Days: c.days, Cumulative: *c.value})
		}
	}
	if r.Reorder != nil {
		rec.Decision = &ReorderDecision{Reorder: *r.Reorder}
		if r.SuggestedQuantity != nil {
			rec.Decision.SuggestedQuantity = *r.SuggestedQuantity
		}
	}
	return rec
}
