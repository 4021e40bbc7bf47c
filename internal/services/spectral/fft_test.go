package spectral

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func wave(n, offset int) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i + offset)
		out[i] = math.Sin(0.7*t) + 0.3*math.Cos(1.3*t*t)
	}
	return out
}

func TestAutocorrelation(t *testing.T) {
	x := make([]float64, 32)
	for i := range x {
		ti := float64(i)
		x[i] = math.Sin(0.7*ti) + 0.3*math.Cos(2.1*ti) + 0.05*ti
	}
	c, err := Correlation(x, nil)
	require.NoError(t, err)
	require.Len(t, c.Values, 33)
	assert.Equal(t, -16, c.Lags[0])
	assert.Equal(t, 16, c.Lags[32])
	assert.InDelta(t, 1.0, c.At(0), 1e-12)
	assert.InDelta(t, 0.7390509957074571, c.At(1), 1e-9)
	for d := 1; d <= 16; d++ {
		assert.InDelta(t, c.At(d), c.At(-d), 1e-12)
	}
	assert.True(t, math.IsNaN(c.At(40)))
}

func TestCorrelationFindsDisplacement(t *testing.T) {
	base := wave(40, 0)
	x := base[2:]
	y := base[:len(base)-2]
	c, err := Correlation(x, y)
	require.NoError(t, err)

	best := 0
	for i, v := range c.Values {
		if v > c.Values[best] {
			best = i
		}
	}
	assert.Equal(t, -2, c.Lags[best])
	assert.InDelta(t, 0.9616018786880551, c.Values[best], 1e-9)
}

func TestCorrelationErrors(t *testing.T) {
	_, err := Correlation([]float64{1}, nil)
	assert.ErrorIs(t, err, ErrLength)
	_, err = Correlation([]float64{1, 2, 3}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrLength)
	_, err = Correlation([]float64{2, 2, 2}, nil)
	assert.ErrorIs(t, err, ErrFlat)
}

func panel(cols ...[]float64) *mat.Dense {
	x := mat.NewDense(len(cols[0]), len(cols), nil)
	for j, col := range cols {
		x.SetCol(j, col)
	}
	return x
}

func TestAlign(t *testing.T) {
	base := wave(40, 0)
	x := base[2:]
	y := base[:len(base)-2]
	pairs, err := Align(panel(x, y, x))
	require.NoError(t, err)
	require.Len(t, pairs, 3)

	assert.Equal(t, Pair{I: 0, J: 1, Value: pairs[0].Value, Lag: -2}, pairs[0])
	assert.Equal(t, 0, pairs[1].Lag)
	assert.InDelta(t, 1.0, pairs[1].Value, 1e-12)
	assert.Equal(t, 2, pairs[2].Lag)
}

func TestNeweyWestMatchesWeightedCorrelogram(t *testing.T) {
	x := wave(30, 0)
	y := wave(30, 5)
	pairs, err := NeweyWest(panel(x, y))
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	c, err := Correlation(x, y)
	require.NoError(t, err)
	half := len(c.Values) / 2
	var want float64
	for k, v := range c.Values {
		want += (1 - math.Abs(float64(k-half))/float64(half+1)) * v
	}
	assert.InDelta(t, want, pairs[0].Value, 1e-12)

	_, err = NeweyWest(panel(x))
	assert.ErrorIs(t, err, ErrColumns)
}

func TestPairKeepsZeroLag(t *testing.T) {
	b, err := json.Marshal(Pair{I: 0, J: 1, Value: 0.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"i":0,"j":1,"value":0.5,"lag":0}`, string(b))
}
