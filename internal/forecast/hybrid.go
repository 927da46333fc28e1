package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast/gbm"
	"github.com/andresuchdata/autopo-py/forecast/internal/forecast/sarima"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrNotTrained is returned when Forecast is called before Train.
var ErrNotTrained = errors.New("forecast: hybrid forecaster not trained")

// TrainingState is the lifecycle stage of a HybridForecaster.
type TrainingState int

const (
	Untrained TrainingState = iota
	Trained
)

func (s TrainingState) String() string {
	switch s {
	case Trained:
		return "trained"
	default:
		return "untrained"
	}
}

// Adjuster returns a multiplicative factor for a forecast date.
type Adjuster func(date time.Time) float64

// NoAdjustment leaves every forecast value unchanged.
func NoAdjustment(time.Time) float64 { return 1 }

// EventAdjuster scales dates that fall inside a calendar window by the average
// measured impact of that event. Dates outside every window are unchanged.
func EventAdjuster(windows []domain.EventWindow, impacts []domain.EventImpact) Adjuster {
	factors := ImpactByEvent(impacts)
	return func(date time.Time) float64 {
		for _, w := range windows {
			if !w.Contains(date) {
				continue
			}
			if f, ok := factors[w.Name]; ok {
				return f
			}
		}
		return 1
	}
}

// HybridConfig parameterizes both models and the blend.
type HybridConfig struct {
	SeasonalPeriod int
	// StatisticalWeight is clamped to [0,1]; the tree model gets the remainder.
	StatisticalWeight float64
	ClampNegative     bool
	RetryReducedOrder bool
	SARIMA            sarima.Config
	Trees             gbm.Params
}

// DefaultHybridConfig returns SARIMA(1,1,1)(1,1,1)[52] blended 0.6/0.4 with
// 100 depth-5 trees.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		SeasonalPeriod:    52,
		StatisticalWeight: 0.6,
		ClampNegative:     true,
		RetryReducedOrder: true,
		SARIMA:            sarima.DefaultConfig(),
		Trees:             gbm.DefaultParams(),
	}
}

// HybridForecaster fits a seasonal ARIMA model on the raw demand series and a
// boosted tree ensemble on engineered features, then blends their projections.
// Once trained it may forecast any number of times; the fitted state is read only.
type HybridForecaster struct {
	cfg HybridConfig

	mu        sync.RWMutex
	state     TrainingState
	stat      *sarima.Model
	tree      *gbm.Regressor
	history   []domain.FeatureRow
	productID string
}

// NewHybridForecaster returns an untrained forecaster.
func NewHybridForecaster(cfg HybridConfig) *HybridForecaster {
	if cfg.SeasonalPeriod < 0 {
		cfg.SeasonalPeriod = 0
	}
	cfg.StatisticalWeight = math.Max(0, math.Min(1, cfg.StatisticalWeight))
	return &HybridForecaster{cfg: cfg}
}

// State returns the current lifecycle stage.
func (h *HybridForecaster) State() TrainingState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Weights returns the statistical and tree blend weights. They sum to 1.
func (h *HybridForecaster) Weights() (statistical, tree float64) {
	return h.cfg.StatisticalWeight, 1 - h.cfg.StatisticalWeight
}

// StatisticalModel returns the fitted SARIMA model, or nil before training.
func (h *HybridForecaster) StatisticalModel() *sarima.Model {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stat
}

// Train fits both models on features. The two fits run concurrently and are
// joined before Train returns. A failed fit leaves the previous state intact.
func (h *HybridForecaster) Train(ctx context.Context, features []domain.FeatureRow) error {
	if len(features) == 0 {
		return &domain.DataError{Reason: "no feature rows to train on"}
	}

	demand := make([]float64, len(features))
	X := make([][]float64, len(features))
	for i, f := range features {
		demand[i] = f.UnitsOrdered
		X[i] = FeatureVector(f)
	}
	productID := features[0].ProductID

	var (
		stat *sarima.Model
		tree *gbm.Regressor
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		m, err := h.fitStatistical(productID, demand)
		if err != nil {
			return err
		}
		stat = m
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		r := gbm.New(h.cfg.Trees)
		if err := r.Fit(X, demand); err != nil {
			return &domain.ModelFitError{Model: "gbm", Err: err}
		}
		tree = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	h.mu.Lock()
	h.stat = stat
	h.tree = tree
	h.history = append([]domain.FeatureRow(nil), features...)
	h.productID = productID
	h.state = Trained
	h.mu.Unlock()
	return nil
}

func (h *HybridForecaster) fitStatistical(productID string, demand []float64) (*sarima.Model, error) {
	s := h.cfg.SeasonalPeriod
	m, err := sarima.New(sarima.Order{P: 1, D: 1, Q: 1}, sarima.SeasonalOrder{P: 1, D: 1, Q: 1, Period: s}, h.cfg.SARIMA)
	if err != nil {
		return nil, &domain.ModelFitError{Model: "sarima", Err: err}
	}

	start := time.Now()
	fitErr := m.Fit(demand)
	if fitErr == nil {
		log.Debug().Str("product_id", productID).Str("model", m.String()).Int("iterations", m.Iterations()).
			Float64("aic", m.AIC()).Dur("took", time.Since(start)).Msg("statistical model fitted")
		return m, nil
	}
	if !h.cfg.RetryReducedOrder {
		return nil, &domain.ModelFitError{Model: m.String(), Err: fitErr}
	}

	log.Warn().Err(fitErr).Str("product_id", productID).Str("model", m.String()).Msg("statistical fit failed, retrying with reduced order")

	reduced, err := sarima.New(sarima.Order{P: 1, D: 1, Q: 1}, sarima.SeasonalOrder{}, h.cfg.SARIMA)
	if err != nil {
		return nil, &domain.ModelFitError{Model: "sarima", Err: err}
	}
	if err := reduced.Fit(demand); err != nil {
		return nil, &domain.ModelFitError{Model: reduced.String(), Err: fmt.Errorf("%v; reduced order: %w", fitErr, err)}
	}
	return reduced, nil
}

// Forecast projects horizon days past the last training date. adjust may be
// nil, which is the same as NoAdjustment.
func (h *HybridForecaster) Forecast(horizon int, adjust Adjuster) (*domain.ForecastResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state != Trained {
		return nil, ErrNotTrained
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("forecast: horizon must be positive, got %d", horizon)
	}
	if adjust == nil {
		adjust = NoAdjustment
	}

	last := h.history[len(h.history)-1].Date
	dates := make([]time.Time, horizon)
	for i := range dates {
		dates[i] = last.AddDate(0, 0, i+1)
	}

	statistical, err := h.stat.Forecast(horizon)
	if err != nil {
		return nil, fmt.Errorf("statistical forecast: %w", err)
	}
	for _, v := range statistical {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &domain.ModelFitError{Model: h.stat.String(), Err: errors.New("non-finite projection")}
		}
	}

	future := FutureFeatures(dates, h.history)
	X := make([][]float64, len(future))
	for i, f := range future {
		X[i] = FeatureVector(f)
	}
	tree, err := h.tree.PredictBatch(X)
	if err != nil {
		return nil, fmt.Errorf("tree forecast: %w", err)
	}

	ws, wt := h.Weights()
	daily := make([]float64, horizon)
	cumulative := make([]float64, horizon)
	running := 0.0
	for i := range daily {
		v := (ws*statistical[i] + wt*tree[i]) * adjust(dates[i])
		if h.cfg.ClampNegative && v < 0 {
			v = 0
		}
		daily[i] = v
		running += v
		cumulative[i] = running
	}

	return &domain.ForecastResult{
		ProductID:         h.productID,
		Dates:             dates,
		Daily:             daily,
		Cumulative:        cumulative,
		Statistical:       statistical,
		Tree:              tree,
		StatisticalWeight: ws,
		TreeWeight:        wt,
	}, nil
}

// FeatureImportances returns the tree model's split-gain share per feature,
// named in FeatureVector order.
func (h *HybridForecaster) FeatureImportances() []domain.FeatureImportance {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.tree == nil {
		return nil
	}
	values := h.tree.FeatureImportances()
	out := make([]domain.FeatureImportance, len(values))
	for i, v := range values {
		out[i] = domain.FeatureImportance{Feature: FeatureNames[i], Importance: v}
	}
	return out
}

// TrainAndForecast trains a fresh forecaster on features and forecasts horizon days.
func TrainAndForecast(ctx context.Context, features []domain.FeatureRow, horizon int, cfg HybridConfig) (*domain.ForecastResult, error) {
	h := NewHybridForecaster(cfg)
	if err := h.Train(ctx, features); err != nil {
		return nil, err
	}
	return h.Forecast(horizon, nil)
}
