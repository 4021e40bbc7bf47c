// Package risk computes tail risk measures, backtests and volatility
// estimators.
package risk

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"FinDS/internal/services/numeric"
)

var (
	ErrEmpty  = errors.New("risk: empty series")
	ErrLength = errors.New("risk: series lengths differ")
	ErrAlpha  = errors.New("risk: alpha must lie in (0, 1)")
)

// Measure computes value at risk and expected shortfall of a return series
// at confidence Alpha (0.95 for the 5% left tail).
type Measure struct {
	X     []float64
	Alpha float64
}

func NewMeasure(x []float64, alpha float64) (*Measure, error) {
	if len(x) == 0 {
		return nil, ErrEmpty
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, ErrAlpha
	}
	return &Measure{X: x, Alpha: alpha}, nil
}

// ValueAtRisk is the (1-Alpha) percentile of X, or under normality
// std(X) * Phi^-1(1-Alpha).
func (m *Measure) ValueAtRisk(normal bool) float64 {
	if normal {
		return numeric.PopStdDev(m.X) * distuv.UnitNormal.Quantile(1-m.Alpha)
	}
	return numeric.Quantile(m.X, 1-m.Alpha, numeric.Linear)
}

// ExpectedShortfall is the mean of X below the empirical VaR, or under
// normality -std(X) * phi(Phi^-1(1-Alpha)) / (1-Alpha).
func (m *Measure) ExpectedShortfall(normal bool) float64 {
	if normal {
		z := distuv.UnitNormal.Quantile(1 - m.Alpha)
		return -numeric.PopStdDev(m.X) * distuv.UnitNormal.Prob(z) / (1 - m.Alpha)
	}
	v := m.ValueAtRisk(false)
	var sum float64
	var n int
	for _, x := range m.X {
		if x < v {
			sum += x
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// LRTest is a likelihood ratio test outcome.
type LRTest struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"pvalue"`
	S         int     `json:"s,omitempty"`
	N         int     `json:"n,omitempty"`
}

// xlogy is x*log(y) with 0*log(0) = 0.
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}

// KupiecLR is the proportion-of-failures likelihood ratio test of s VaR
// violations in n trials at level v (e.g. 0.95).
func KupiecLR(s, n int, v float64) (LRTest, error) {
	if n <= 0 || s < 0 || s > n {
		return LRTest{}, errors.New("risk: need 0 <= s <= n and n > 0")
	}
	if v <= 0 || v >= 1 {
		return LRTest{}, ErrAlpha
	}
	p := 1 - v
	fs, fn := float64(s), float64(n)
	num := xlogy(fn-fs, 1-p) + xlogy(fs, p)
	den := xlogy(fn-fs, 1-fs/fn) + xlogy(fs, fs/fn)
	lr := -2 * (num - den)
	chi := distuv.ChiSquared{K: 1}
	return LRTest{Statistic: lr, PValue: 1 - chi.CDF(lr), S: s, N: n}, nil
}

// POF backtests realized x against predicted standard deviations pred,
// counting violations x/pred < Phi^-1(1-v). A single pred value applies to
// every observation.
func POF(x, pred []float64, v float64) (LRTest, error) {
	if len(x) == 0 {
		return LRTest{}, ErrEmpty
	}
	if len(pred) != 1 && len(pred) != len(x) {
		return LRTest{}, ErrLength
	}
	if v <= 0 || v >= 1 {
		return LRTest{}, ErrAlpha
	}
	z := distuv.UnitNormal.Quantile(1 - v)
	s := 0
	for i, xi := range x {
		sd := pred[0]
		if len(pred) > 1 {
			sd = pred[i]
		}
		if xi/sd < z {
			s++
		}
	}
	return KupiecLR(s, len(x), v)
}

// Halflife converts an exponential smoothing alpha to a halflife in periods.
func Halflife(alpha float64) float64 {
	switch {
	case alpha > 0 && alpha < 1:
		return -math.Ln2 / math.Log(1-alpha)
	case alpha > 0:
		return math.Inf(1)
	}
	return 0
}
