// Package gbm implements gradient-boosted regression trees with squared-error loss.
package gbm

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyTrainingSet = errors.New("gbm: empty training set")
	ErrNotFitted        = errors.New("gbm: regressor not fitted")
)

// Params are the boosting hyperparameters.
type Params struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	LearningRate    float64 `json:"learning_rate"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
}

// DefaultParams returns 100 trees of depth 5 with learning rate 0.1.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		MaxDepth:        5,
		LearningRate:    0.1,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.NEstimators <= 0 {
		p.NEstimators = def.NEstimators
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = def.MaxDepth
	}
	if p.LearningRate <= 0 {
		p.LearningRate = def.LearningRate
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = def.MinSamplesSplit
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = def.MinSamplesLeaf
	}
	return p
}

// Regressor is a fitted or unfitted boosted ensemble. Fitting is deterministic.
type Regressor struct {
	params      Params
	nFeatures   int
	init        float64
	trees       []*tree
	importances []float64
}

// New returns an unfitted regressor. Zero fields in p take their defaults.
func New(p Params) *Regressor {
	return &Regressor{params: p.withDefaults()}
}

// Params returns the hyperparameters in use.
func (r *Regressor) Params() Params { return r.params }

// Fit trains the ensemble on rows X against targets y.
func (r *Regressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(y) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return fmt.Errorf("gbm: %d rows but %d targets", len(X), len(y))
	}
	nf := len(X[0])
	for i, row := range X {
		if len(row) != nf {
			return fmt.Errorf("gbm: row %d has %d features, want %d", i, len(row), nf)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("gbm: row %d has non-finite feature value", i)
			}
		}
	}

	n := len(y)
	init := 0.0
	for _, v := range y {
		init += v
	}
	init /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = init
	}
	resid := make([]float64, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	b := &treeBuilder{
		X:               X,
		target:          resid,
		maxDepth:        r.params.MaxDepth,
		minSamplesSplit: r.params.MinSamplesSplit,
		minSamplesLeaf:  r.params.MinSamplesLeaf,
		gains:           make([]float64, nf),
	}

	trees := make([]*tree, 0, r.params.NEstimators)
	for m := 0; m < r.params.NEstimators; m++ {
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		t := b.build(idx)
		for i, row := range X {
			pred[i] += r.params.LearningRate * t.predict(row)
		}
		trees = append(trees, t)
	}

	total := 0.0
	for _, g := range b.gains {
		total += g
	}
	importances := make([]float64, nf)
	if total > 0 {
		for i, g := range b.gains {
			importances[i] = g / total
		}
	}

	r.nFeatures = nf
	r.init = init
	r.trees = trees
	r.importances = importances
	return nil
}

// Fitted reports whether Fit has completed.
func (r *Regressor) Fitted() bool { return r.trees != nil }

// Predict returns the ensemble prediction for one feature row.
func (r *Regressor) Predict(x []float64) (float64, error) {
	if !r.Fitted() {
		return 0, ErrNotFitted
	}
	if len(x) != r.nFeatures {
		return 0, fmt.Errorf("gbm: got %d features, want %d", len(x), r.nFeatures)
	}
	out := r.init
	for _, t := range r.trees {
		out += r.params.LearningRate * t.predict(x)
	}
	return out, nil
}

// PredictBatch predicts every row of X.
func (r *Regressor) PredictBatch(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		v, err := r.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// FeatureImportances returns the share of total split gain per feature. The
// values sum to 1 unless no split was ever made.
func (r *Regressor) FeatureImportances() []float64 {
	return append([]float64(nil), r.importances...)
}
