package filters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var withOutlier = []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 100}

func TestOutlierBounds(t *testing.T) {
	tests := []struct {
		method string
		want   Bounds
	}{
		{"tukey", Bounds{Low: 3.25 - 1.5*4.5, High: 7.75 + 1.5*4.5}},
		{"farout", Bounds{Low: 3.25 - 3*4.5, High: 7.75 + 3*4.5}},
		{"iq2", Bounds{Low: 5.5 - 9, High: 5.5 + 9}},
		{"iq10", Bounds{Low: 5.5 - 45, High: 5.5 + 45}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, err := OutlierBounds(withOutlier, tt.method)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Low, got.Low, 1e-12)
			assert.InDelta(t, tt.want.High, got.High, 1e-12)
		})
	}
}

func TestNotOutlier(t *testing.T) {
	x := append([]float64{math.NaN()}, withOutlier...)
	got, err := NotOutlier(x, "tukey")
	require.NoError(t, err)
	assert.False(t, got[0], "NaN is never an inlier")
	assert.False(t, got[len(got)-1])
	for _, ok := range got[1 : len(got)-1] {
		assert.True(t, ok)
	}

	_, err = NotOutlier(x, "zscore")
	assert.ErrorIs(t, err, ErrMethod)
	_, err = NotOutlier(x, "iq")
	assert.ErrorIs(t, err, ErrMethod)
}

func TestRemoveOutliers(t *testing.T) {
	x := mat.NewDense(10, 2, nil)
	for i, v := range withOutlier {
		x.Set(i, 0, v)
		x.Set(i, 1, float64(i))
	}
	got, err := RemoveOutliers(x, "tukey")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.At(9, 0)))
	assert.Equal(t, 9.0, got.At(8, 0))
	assert.Equal(t, 9.0, got.At(9, 1))
	assert.Equal(t, 100.0, x.At(9, 0), "input is not modified")
}

func TestWinsorize(t *testing.T) {
	x := mat.NewDense(10, 1, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	got, err := Winsorize(x, 0.1, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.At(0, 0))
	assert.Equal(t, 2.0, got.At(1, 0))
	assert.Equal(t, 5.0, got.At(4, 0))
	assert.Equal(t, 9.0, got.At(9, 0))

	_, err = Winsorize(x, -0.1, 0.9)
	assert.Error(t, err)
}

func TestFractiles(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, math.NaN()}
	pct := []float64{80, 20, 60, 40}

	asc := Fractiles(values, pct, nil, true)
	assert.Equal(t, []int{1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 0}, asc)

	desc := Fractiles(values, pct, nil, false)
	assert.Equal(t, []int{5, 5, 4, 4, 3, 3, 2, 2, 1, 1, 0}, desc)

	keys := []float64{0, 10, 20, 30, 40}
	assert.Equal(t, []int{1, 2}, Fractiles([]float64{5, 35}, []float64{50}, keys, true))
}

func TestWeightedAverage(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		1, math.NaN(),
		2, 4,
		3, 6,
	})
	got, err := WeightedAverage(x, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, got)

	got, err = WeightedAverage(x, []float64{1, 1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 9.0/4, got[0], 1e-12)
	assert.InDelta(t, 16.0/3, got[1], 1e-12)

	_, err = WeightedAverage(x, []float64{1})
	assert.ErrorIs(t, err, ErrWeights)
}
