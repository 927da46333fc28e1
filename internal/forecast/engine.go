package forecast

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/calendar"
	"github.com/andresuchdata/autopo-py/forecast/internal/config"
	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast/gbm"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast/sarima"
	"github.com/rs/zerolog/log"
)

// Options configures an Engine.
type Options struct {
	SignificanceThreshold float64
	HorizonDays           int
	ReplenishmentDays     int
	EventBaselineDays     int
	// ApplyEventUplift scales forecast days inside calendar windows by the
	// measured event impact. Off by default.
	ApplyEventUplift bool
	Hybrid           HybridConfig
}

// DefaultOptions returns the standard policy: 180-day horizon, 120-day cycle.
func DefaultOptions() Options {
	return Options{
		SignificanceThreshold: DefaultSignificanceThreshold,
		HorizonDays:           180,
		ReplenishmentDays:     DefaultReplenishmentDays,
		EventBaselineDays:     DefaultBaselineDays,
		Hybrid:                DefaultHybridConfig(),
	}
}

// OptionsFromConfig maps the FORECAST_* settings onto Options.
func OptionsFromConfig(c config.ForecastConfig) Options {
	return Options{
		SignificanceThreshold: c.SignificanceThreshold,
		HorizonDays:           c.HorizonDays,
		ReplenishmentDays:     c.ReplenishmentDays,
		EventBaselineDays:     c.EventBaselineDays,
		ApplyEventUplift:      c.ApplyEventUplift,
		Hybrid: HybridConfig{
			SeasonalPeriod:    c.SeasonalPeriod,
			StatisticalWeight: c.StatisticalWeight,
			ClampNegative:     c.ClampNegative,
			RetryReducedOrder: c.RetryReducedOrder,
			SARIMA: sarima.Config{
				MaxIterations:  c.MaxIterations,
				MaxEvaluations: c.MaxEvaluations,
			},
			Trees: gbm.Params{
				NEstimators:  c.Trees,
				MaxDepth:     c.TreeDepth,
				LearningRate: c.LearningRate,
			},
		},
	}
}

// Validate reports the first out-of-range option.
func (o Options) Validate() error {
	switch {
	case o.SignificanceThreshold <= 0 || o.SignificanceThreshold >= 1:
		return fmt.Errorf("significance threshold must be in (0,1), got %v", o.SignificanceThreshold)
	case o.HorizonDays <= 0:
		return fmt.Errorf("horizon days must be positive, got %d", o.HorizonDays)
	case o.ReplenishmentDays <= 0:
		return fmt.Errorf("replenishment days must be positive, got %d", o.ReplenishmentDays)
	case o.EventBaselineDays <= 0:
		return fmt.Errorf("event baseline days must be positive, got %d", o.EventBaselineDays)
	case o.Hybrid.StatisticalWeight < 0 || o.Hybrid.StatisticalWeight > 1 || math.IsNaN(o.Hybrid.StatisticalWeight):
		return fmt.Errorf("statistical weight must be in [0,1], got %v", o.Hybrid.StatisticalWeight)
	case o.Hybrid.SeasonalPeriod < 0:
		return fmt.Errorf("seasonal period must not be negative, got %d", o.Hybrid.SeasonalPeriod)
	}
	return nil
}

// ProfileStore caches seasonal profiles. Keys always include the product id.
type ProfileStore interface {
	GetProfile(ctx context.Context, key string) (*domain.SeasonalProfile, error)
	SetProfile(ctx context.Context, key string, profile domain.SeasonalProfile) error
}

// Outcome is everything one product run produces.
type Outcome struct {
	ProductID      string
	Series         *domain.Series
	Profile        domain.SeasonalProfile
	Impacts        []domain.EventImpact
	Forecast       *domain.ForecastResult
	Recommendation domain.InventoryRecommendation
	Importances    []domain.FeatureImportance
	Model          string
	Took           time.Duration
}

// Engine runs the per-product forecasting pipeline. It holds no per-product
// state, so one Engine may serve many products concurrently.
type Engine struct {
	opts     Options
	calendar *calendar.Calendar
	profiles ProfileStore
}

// NewEngine validates opts. cal may be nil for the default calendar and
// profiles may be nil to disable profile caching.
func NewEngine(opts Options, cal *calendar.Calendar, profiles ProfileStore) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid forecast options: %w", err)
	}
	if cal == nil {
		cal = calendar.Default()
	}
	return &Engine{opts: opts, calendar: cal, profiles: profiles}, nil
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Run forecasts one product from table. Returned errors concern this product
// only and wrap the domain error types, so callers can use errors.As.
func (e *Engine) Run(ctx context.Context, table domain.RawTable, productID string) (*Outcome, error) {
	start := time.Now()
	logger := log.With().Str("product_id", productID).Logger()

	series, err := Preprocess(table, productID)
	if err != nil {
		return nil, fmt.Errorf("preprocess %s: %w", productID, err)
	}

	profile := e.Profile(ctx, series)
	impacts := AnalyzeEvents(series, e.calendar.Windows(), e.opts.EventBaselineDays)

	features, err := BuildFeatures(series, profile)
	if err != nil {
		return nil, fmt.Errorf("build features %s: %w", productID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := NewHybridForecaster(e.opts.Hybrid)
	if err := h.Train(ctx, features); err != nil {
		return nil, fmt.Errorf("train %s: %w", productID, err)
	}

	var adjust Adjuster
	if e.opts.ApplyEventUplift {
		adjust = EventAdjuster(e.calendar.Windows(), impacts)
	}
	fc, err := h.Forecast(e.opts.HorizonDays, adjust)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", productID, err)
	}
	if fc.ProductID == "" {
		fc.ProductID = series.ProductID
	}

	rec := PlanInventory(fc, series, e.opts.ReplenishmentDays)

	out := &Outcome{
		ProductID:      series.ProductID,
		Series:         series,
		Profile:        profile,
		Impacts:        impacts,
		Forecast:       fc,
		Recommendation: rec,
		Importances:    h.FeatureImportances(),
		Took:           time.Since(start),
	}
	if m := h.StatisticalModel(); m != nil {
		out.Model = m.String()
	}

	logger.Info().
		Int("history_days", series.Len()).
		Int("peak_months", len(profile.PeakMonths)).
		Float64("required_inventory", rec.RequiredInventory).
		Dur("took", out.Took).
		Msg("forecast complete")
	return out, nil
}

// Profile returns the seasonal profile of series, going through the profile
// store when one is configured. Cache failures only cost a recomputation.
func (e *Engine) Profile(ctx context.Context, series *domain.Series) domain.SeasonalProfile {
	if e.profiles == nil {
		return AnalyzeSeasonality(series, e.opts.SignificanceThreshold)
	}

	key := ProfileKey(series, e.opts.SignificanceThreshold)
	cached, err := e.profiles.GetProfile(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("profile cache get failed")
	} else if cached != nil {
		return *cached
	}

	profile := AnalyzeSeasonality(series, e.opts.SignificanceThreshold)
	if err := e.profiles.SetProfile(ctx, key, profile); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("profile cache set failed")
	}
	return profile
}

// ProfileKey identifies a profile by product id and a fingerprint of the
// demand history, so a changed history never reuses a stale profile.
func ProfileKey(series *domain.Series, threshold float64) string {
	h := fnv.New64a()
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	write(math.Float64bits(threshold))
	for _, r := range series.Records {
		write(uint64(r.Date.Unix()))
		write(math.Float64bits(r.UnitsOrdered))
	}
	return fmt.Sprintf("%s:%016x", series.ProductID, h.Sum64())
}

// IsProductError reports whether err is scoped to a single product's data or
// model, as opposed to an infrastructure failure.
func IsProductError(err error) bool {
	var (
		dataErr   *domain.DataError
		schemaErr *domain.SchemaError
		fitErr    *domain.ModelFitError
	)
	return errors.As(err, &dataErr) || errors.As(err, &schemaErr) || errors.As(err, &fitErr)
}
