// Package sarima fits seasonal ARIMA(p,d,q)(P,D,Q)[s] models by conditional
// maximum likelihood and projects them forward.
//
// The model is
//
//	φ(B)Φ(B^s)(1-B)^d(1-B^s)^D y_t = θ(B)Θ(B^s) e_t
//
// with Gaussian innovations. Coefficients are estimated without stationarity or
// invertibility constraints so that short and irregular histories still fit.
package sarima

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrSeriesTooShort means there are fewer usable observations than the
	// differencing and lag structure need.
	ErrSeriesTooShort = errors.New("sarima: series too short for model order")
	// ErrNotConverged means the optimizer hit its iteration or evaluation bound.
	ErrNotConverged = errors.New("sarima: likelihood optimization did not converge")
	// ErrNonFinite means the likelihood could not be evaluated at any tried point.
	ErrNonFinite = errors.New("sarima: non-finite likelihood")
	// ErrNotFitted is returned when forecasting before Fit.
	ErrNotFitted = errors.New("sarima: model not fitted")
)

// penalty replaces non-finite objective values so the simplex moves away from them.
const penalty = 1e100

// Order is the non-seasonal (p,d,q) order.
type Order struct {
	P, D, Q int
}

// SeasonalOrder is the seasonal (P,D,Q) order at Period s.
type SeasonalOrder struct {
	P, D, Q int
	Period  int
}

func (s SeasonalOrder) active() bool {
	return s.Period > 1 && (s.P > 0 || s.D > 0 || s.Q > 0)
}

// Config bounds the likelihood optimization.
type Config struct {
	MaxIterations  int
	MaxEvaluations int
	Tolerance      float64
}

// DefaultConfig returns the bounds used when a field is left at zero.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  2000,
		MaxEvaluations: 10000,
		Tolerance:      1e-8,
	}
}

// Params are the estimated coefficients.
type Params struct {
	AR  []float64 `json:"ar"`
	MA  []float64 `json:"ma"`
	SAR []float64 `json:"sar"`
	SMA []float64 `json:"sma"`
}

// Model is a SARIMA model. The zero value is not usable; create one with New.
type Model struct {
	order    Order
	seasonal SeasonalOrder
	cfg      Config

	fitted bool
	params Params
	sigma2 float64
	loglik float64
	nobs   int

	iterations int
	status     optimize.Status

	// fitted state for forecasting
	y     []float64
	resid []float64
	ar    []float64
	ma    []float64
}

// New validates the orders and returns an unfitted model.
func New(order Order, seasonal SeasonalOrder, cfg Config) (*Model, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, fmt.Errorf("sarima: negative order %+v", order)
	}
	if seasonal.P < 0 || seasonal.D < 0 || seasonal.Q < 0 || seasonal.Period < 0 {
		return nil, fmt.Errorf("sarima: negative seasonal order %+v", seasonal)
	}
	if !seasonal.active() {
		seasonal = SeasonalOrder{}
	}

	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.MaxEvaluations <= 0 {
		cfg.MaxEvaluations = def.MaxEvaluations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}

	return &Model{order: order, seasonal: seasonal, cfg: cfg}, nil
}

// Order returns the non-seasonal order.
func (m *Model) Order() Order { return m.order }

// SeasonalOrder returns the seasonal order.
func (m *Model) SeasonalOrder() SeasonalOrder { return m.seasonal }

func (m *Model) numParams() int {
	return m.order.P + m.order.Q + m.seasonal.P + m.seasonal.Q
}

func (m *Model) unpack(x []float64) Params {
	var p Params
	i := 0
	take := func(n int) []float64 {
		out := append([]float64(nil), x[i:i+n]...)
		i += n
		return out
	}
	p.AR = take(m.order.P)
	p.MA = take(m.order.Q)
	p.SAR = take(m.seasonal.P)
	p.SMA = take(m.seasonal.Q)
	return p
}

// polynomials returns the full autoregressive polynomial, differencing
// included, and the moving-average polynomial for params.
func (m *Model) polynomials(p Params) (ar, ma []float64) {
	s := m.seasonal.Period
	if s < 1 {
		s = 1
	}
	ar = polyMul(arPoly(p.AR, 1), arPoly(p.SAR, s))
	ar = polyMul(ar, diffPoly(m.order.D, 1))
	ar = polyMul(ar, diffPoly(m.seasonal.D, s))
	ma = polyMul(maPoly(p.MA, 1), maPoly(p.SMA, s))
	return ar, ma
}

// residuals runs the conditional recursion. Innovations before the first
// usable observation are taken as zero. It returns the full-length residual
// slice and the sum of squares over the usable span.
func residuals(y, ar, ma []float64) ([]float64, float64) {
	start := len(ar) - 1
	e := make([]float64, len(y))

	arIdx := nonZero(ar)
	maIdx := nonZero(ma)

	ss := 0.0
	for t := start; t < len(y); t++ {
		v := y[t]
		for _, k := range arIdx {
			v += ar[k] * y[t-k]
		}
		for _, k := range maIdx {
			if t-k >= 0 {
				v -= ma[k] * e[t-k]
			}
		}
		e[t] = v
		ss += v * v
	}
	return e, ss
}

func nonZero(p []float64) []int {
	var idx []int
	for k := 1; k < len(p); k++ {
		if p[k] != 0 {
			idx = append(idx, k)
		}
	}
	return idx
}

// Fit estimates the coefficients on y. On error the model stays unfitted.
func (m *Model) Fit(y []float64) error {
	ar0, _ := m.polynomials(m.unpack(make([]float64, m.numParams())))
	n := len(y) - (len(ar0) - 1)
	k := m.numParams()
	if n <= k+1 {
		return fmt.Errorf("%w: %d observations, %d usable, %d parameters", ErrSeriesTooShort, len(y), n, k)
	}

	obs := append([]float64(nil), y...)
	objective := func(x []float64) float64 {
		ar, ma := m.polynomials(m.unpack(x))
		_, ss := residuals(obs, ar, ma)
		v := negLogLikelihood(ss, n)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return penalty
		}
		return v
	}

	x := make([]float64, k)
	for i := range x {
		x[i] = 0.1
	}

	status := optimize.Success
	iterations := 0
	if k > 0 {
		result, err := optimize.Minimize(
			optimize.Problem{Func: objective},
			x,
			&optimize.Settings{
				MajorIterations: m.cfg.MaxIterations,
				FuncEvaluations: m.cfg.MaxEvaluations,
				Converger: &optimize.FunctionConverge{
					Absolute:   m.cfg.Tolerance,
					Relative:   m.cfg.Tolerance,
					Iterations: 100,
				},
			},
			&optimize.NelderMead{},
		)
		if err != nil {
			return fmt.Errorf("sarima: optimize: %w", err)
		}
		switch result.Status {
		case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
			return fmt.Errorf("%w after %d iterations (%s)", ErrNotConverged, result.MajorIterations, result.Status)
		}
		if result.F >= penalty {
			return ErrNonFinite
		}
		x = result.X
		status = result.Status
		iterations = result.MajorIterations
	}

	params := m.unpack(x)
	ar, ma := m.polynomials(params)
	resid, ss := residuals(obs, ar, ma)
	ll := -negLogLikelihood(ss, n)
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return ErrNonFinite
	}

	m.params = params
	m.sigma2 = sigma2(ss, n)
	m.loglik = ll
	m.nobs = n
	m.iterations = iterations
	m.status = status
	m.y = obs
	m.resid = resid
	m.ar = ar
	m.ma = ma
	m.fitted = true
	return nil
}

// sigma2 is floored so that a perfectly explained series keeps a finite likelihood.
func sigma2(ss float64, n int) float64 {
	return math.Max(ss/float64(n), 1e-12)
}

// negLogLikelihood is the concentrated Gaussian negative log-likelihood.
func negLogLikelihood(ss float64, n int) float64 {
	return 0.5 * float64(n) * (math.Log(2*math.Pi*sigma2(ss, n)) + 1)
}

// Forecast projects steps values past the end of the fitted series. Future
// innovations are set to their expectation of zero.
func (m *Model) Forecast(steps int) ([]float64, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if steps <= 0 {
		return nil, nil
	}

	T := len(m.y)
	y := make([]float64, T+steps)
	copy(y, m.y)
	e := make([]float64, T+steps)
	copy(e, m.resid)

	arIdx := nonZero(m.ar)
	maIdx := nonZero(m.ma)

	for t := T; t < T+steps; t++ {
		v := 0.0
		for _, k := range arIdx {
			if t-k >= 0 {
				v -= m.ar[k] * y[t-k]
			}
		}
		for _, k := range maIdx {
			if t-k >= 0 {
				v += m.ma[k] * e[t-k]
			}
		}
		y[t] = v
	}

	return y[T:], nil
}

// Params returns the estimated coefficients.
func (m *Model) Params() Params { return m.params }

// Sigma2 returns the innovation variance estimate.
func (m *Model) Sigma2() float64 { return m.sigma2 }

// LogLikelihood returns the conditional log-likelihood at the estimate.
func (m *Model) LogLikelihood() float64 { return m.loglik }

// NObs returns the number of observations the likelihood was conditioned on.
func (m *Model) NObs() int { return m.nobs }

// Iterations returns the optimizer's major iteration count.
func (m *Model) Iterations() int { return m.iterations }

// Status returns the optimizer's termination status.
func (m *Model) Status() string { return m.status.String() }

// Fitted reports whether Fit has succeeded.
func (m *Model) Fitted() bool { return m.fitted }

// k counts estimated parameters including the innovation variance.
func (m *Model) k() float64 { return float64(m.numParams() + 1) }

// AIC returns the Akaike information criterion.
func (m *Model) AIC() float64 {
	return 2*m.k() - 2*m.loglik
}

// AICc returns the small-sample corrected AIC.
func (m *Model) AICc() float64 {
	k, n := m.k(), float64(m.nobs)
	if n-k-1 <= 0 {
		return math.Inf(1)
	}
	return m.AIC() + 2*k*(k+1)/(n-k-1)
}

// BIC returns the Bayesian information criterion.
func (m *Model) BIC() float64 {
	return m.k()*math.Log(float64(m.nobs)) - 2*m.loglik
}

// String describes the model order.
func (m *Model) String() string {
	return fmt.Sprintf("SARIMA(%d,%d,%d)(%d,%d,%d)[%d]",
		m.order.P, m.order.D, m.order.Q,
		m.seasonal.P, m.seasonal.D, m.seasonal.Q, m.seasonal.Period)
}
