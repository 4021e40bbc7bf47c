package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"FinDS/internal/services/numeric"
)

func returns() []float64 {
	x := make([]float64, 100)
	for i := range x {
		x[i] = float64(i-50) / 1000
	}
	return x
}

func TestMeasure(t *testing.T) {
	m, err := NewMeasure(returns(), 0.95)
	require.NoError(t, err)

	assert.InDelta(t, -0.04505, m.ValueAtRisk(false), 1e-12)
	assert.InDelta(t, -0.048, m.ExpectedShortfall(false), 1e-12)

	std := numeric.PopStdDev(returns())
	assert.InDelta(t, -1.6448536269514722*std, m.ValueAtRisk(true), 1e-9)
	assert.InDelta(t, -std*0.10313564037537128/0.05, m.ExpectedShortfall(true), 1e-9)

	_, err = NewMeasure(nil, 0.95)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = NewMeasure(returns(), 1.5)
	assert.ErrorIs(t, err, ErrAlpha)
}

func TestKupiecLR(t *testing.T) {
	exact, err := KupiecLR(5, 100, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, exact.Statistic, 1e-12)
	assert.InDelta(t, 1.0, exact.PValue, 1e-12)

	none, err := KupiecLR(0, 100, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 10.258658877510115, none.Statistic, 1e-9)
	assert.InDelta(t, 0.0013604454302788005, none.PValue, 1e-9)

	_, err = KupiecLR(101, 100, 0.95)
	assert.Error(t, err)
}

func TestPOF(t *testing.T) {
	x := returns()
	res, err := POF(x, []float64{0.01}, 0.95)
	require.NoError(t, err)
	// x/0.01 < -1.645 for x <= -0.017
	assert.Equal(t, 34, res.S)
	assert.Equal(t, 100, res.N)

	_, err = POF(x, []float64{1, 2}, 0.95)
	assert.ErrorIs(t, err, ErrLength)
}

func TestHalflife(t *testing.T) {
	assert.InDelta(t, 1.0, Halflife(0.5), 1e-12)
	assert.True(t, math.IsInf(Halflife(1), 1))
	assert.Equal(t, 0.0, Halflife(0))
	assert.Equal(t, 0.0, Halflife(-0.3))
}

func TestMaximumDrawdown(t *testing.T) {
	prices := []float64{100, 120, 90, 110, 80, 130}
	dates := []int{20240131, 20240229, 20240331, 20240430, 20240531, 20240630}
	d, err := MaximumDrawdown(prices, dates, true)
	require.NoError(t, err)
	assert.Equal(t, 1, d.PeakIndex)
	assert.Equal(t, 4, d.TroughIndex)
	assert.Equal(t, 20240229, d.PeakDate)
	assert.Equal(t, 20240531, d.TroughDate)
	assert.InDelta(t, 120, d.PeakLevel, 1e-9)
	assert.InDelta(t, 80, d.TroughLevel, 1e-9)
	assert.InDelta(t, -1.0/3, d.Loss(), 1e-9)

	r, err := MaximumDrawdown([]float64{0.1, -0.5, 0.2}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, r.PeakIndex)
	assert.Equal(t, 1, r.TroughIndex)
	assert.InDelta(t, 0.55, r.TroughLevel, 1e-12)

	_, err = MaximumDrawdown(prices, dates[:2], true)
	assert.ErrorIs(t, err, ErrLength)
}

func constant(r, c int, v float64) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, v)
		}
	}
	return m
}

func TestRangeVolatility(t *testing.T) {
	low := constant(4, 2, 100)
	high := constant(4, 2, 100*math.Exp(0.02))
	high.Set(2, 1, math.NaN())

	v, err := Parkinson(OHLC{High: high, Low: low})
	require.NoError(t, err)
	assert.InDelta(t, 0.0120112240878645, v[0], 1e-12)
	assert.InDelta(t, 0.0120112240878645, v[1], 1e-12, "NaN rows are skipped")

	open := constant(4, 2, 100)
	closes := constant(4, 2, 100)
	gk, err := GarmanKlass(OHLC{Open: open, High: high, Low: low, Close: closes}, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.01414213562373095, gk[0], 1e-12)

	_, err = GarmanKlass(OHLC{High: high, Low: low}, false)
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parkinson(OHLC{High: high, Low: constant(3, 2, 1)})
	assert.ErrorIs(t, err, ErrLength)
}

func TestRogersSatchell(t *testing.T) {
	one := constant(3, 1, 1)
	high := constant(3, 1, math.Exp(0.01))
	low := constant(3, 1, math.Exp(-0.02))
	v, err := RogersSatchell(OHLC{Open: one, High: high, Low: low, Close: one}, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.022360679774997897, v[0], 1e-12)

	open := mat.DenseCopyOf(one)
	open.Set(1, 0, math.NaN())
	filled, err := RogersSatchell(OHLC{Open: open, High: high, Low: low, Close: one}, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.022360679774997897, filled[0], 1e-12)
}

func TestMinVariance(t *testing.T) {
	w, err := MinVariance(mat.NewDense(2, 2, []float64{1, 0, 0, 4}))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, w[0], 1e-8)
	assert.InDelta(t, 0.2, w[1], 1e-8)

	corner, err := MinVariance(mat.NewDense(2, 2, []float64{1, 1.8, 1.8, 4}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corner[0], 1e-8)
	assert.InDelta(t, 0.0, corner[1], 1e-8)

	_, err = MinVariance(mat.NewDense(2, 2, []float64{1, 0.5, 0.2, 1}))
	assert.ErrorIs(t, err, ErrCovariance)
}
