package gbm

import (
	"errors"
	"math"
	"testing"
)

func stepData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		X = append(X, []float64{float64(i), 3})
		if i < 10 {
			y = append(y, 0)
		} else {
			y = append(y, 10)
		}
	}
	return X, y
}

func TestSingleStumpMatchesGroupMeans(t *testing.T) {
	X, y := stepData()
	r := New(Params{NEstimators: 1, MaxDepth: 1, LearningRate: 1})
	if err := r.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	tests := []struct {
		name string
		x    []float64
		want float64
	}{
		{"LowSide", []float64{2, 3}, 0},
		{"Boundary", []float64{9, 3}, 0},
		{"HighSide", []float64{10, 3}, 10},
		{"Beyond", []float64{100, 3}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Predict(tt.x)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Predict(%v) = %v, want %v", tt.x, got, tt.want)
			}
		})
	}
}

func TestBoostingConvergesOnStep(t *testing.T) {
	X, y := stepData()
	r := New(DefaultParams())
	if err := r.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	preds, err := r.PredictBatch(X)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range preds {
		// 100 rounds at 0.1 leave (0.9)^100 of the initial residual.
		if math.Abs(p-y[i]) > 1e-3 {
			t.Errorf("row %d: prediction %v, want %v", i, p, y[i])
		}
	}
}

func TestFeatureImportancesIgnoreConstantFeature(t *testing.T) {
	X, y := stepData()
	r := New(DefaultParams())
	if err := r.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	imp := r.FeatureImportances()
	if len(imp) != 2 {
		t.Fatalf("len(FeatureImportances()) = %d, want 2", len(imp))
	}
	if math.Abs(imp[0]-1) > 1e-12 || imp[1] != 0 {
		t.Errorf("FeatureImportances() = %v, want [1 0]", imp)
	}
}

func TestFitIsDeterministic(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 150; i++ {
		a := float64(i % 7)
		b := float64((i * 37) % 11)
		X = append(X, []float64{a, b, float64(i)})
		y = append(y, 3*a+math.Sin(b)+0.01*float64(i))
	}

	first, second := New(DefaultParams()), New(DefaultParams())
	if err := first.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := second.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	p1, _ := first.PredictBatch(X)
	p2, _ := second.PredictBatch(X)
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("row %d differs between fits: %v != %v", i, p1[i], p2[i])
		}
	}
}

func TestFitErrors(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []float64
	}{
		{"Empty", nil, nil},
		{"LengthMismatch", [][]float64{{1}, {2}}, []float64{1}},
		{"RaggedRows", [][]float64{{1, 2}, {3}}, []float64{1, 2}},
		{"NaNFeature", [][]float64{{math.NaN()}}, []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New(DefaultParams()).Fit(tt.X, tt.y); err == nil {
				t.Error("Fit() should fail")
			}
		})
	}
}

func TestPredictBeforeFit(t *testing.T) {
	if _, err := New(DefaultParams()).Predict([]float64{1}); !errors.Is(err, ErrNotFitted) {
		t.Errorf("Predict() error = %v, want ErrNotFitted", err)
	}
}
