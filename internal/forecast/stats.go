package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// mean returns the arithmetic mean, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// sampleStdDev returns the n-1 standard deviation, or 0 when fewer than two values exist.
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// trailing returns the last k values of xs (all of xs when shorter).
func trailing(xs []float64, k int) []float64 {
	if k >= len(xs) {
		return xs
	}
	return xs[len(xs)-k:]
}

// oneSampleTTest tests whether the mean of xs differs from mu. It returns the
// t statistic and the two-sided p-value.
func oneSampleTTest(xs []float64, mu float64) (t, p float64) {
	n := len(xs)
	if n < 2 {
		return 0, 1
	}

	m, sd := stat.MeanStdDev(xs, nil)
	if sd == 0 || math.IsNaN(sd) {
		switch {
		case m > mu:
			return math.Inf(1), 0
		case m < mu:
			return math.Inf(-1), 0
		default:
			return 0, 1
		}
	}

	t = (m - mu) / (sd / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	p = 2 * dist.Survival(math.Abs(t))
	if p > 1 {
		p = 1
	}
	return t, p
}

// forwardFill replaces NaN values with the last preceding non-NaN value.
func forwardFill(xs []float64) {
	last := math.NaN()
	for i, v := range xs {
		if math.IsNaN(v) {
			xs[i] = last
			continue
		}
		last = v
	}
}

// backwardFill replaces NaN values with the next non-NaN value.
func backwardFill(xs []float64) {
	next := math.NaN()
	for i := len(xs) - 1; i >= 0; i-- {
		if math.IsNaN(xs[i]) {
			xs[i] = next
			continue
		}
		next = xs[i]
	}
}

// fillNaN replaces remaining NaN values with v.
func fillNaN(xs []float64, v float64) {
	for i := range xs {
		if math.IsNaN(xs[i]) {
			xs[i] = v
		}
	}
}

func forwardFillStrings(xs []string) {
	last := ""
	for i, v := range xs {
		if v == "" {
			xs[i] = last
			continue
		}
		last = v
	}
}

func backwardFillStrings(xs []string) {
	next := ""
	for i := len(xs) - 1; i >= 0; i-- {
		if xs[i] == "" {
			xs[i] = next
			continue
		}
		next = xs[i]
	}
}
