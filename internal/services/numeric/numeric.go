// Package numeric holds the column statistics shared by the recipe packages.
package numeric

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmpty     = errors.New("numeric: empty input")
	ErrDimension = errors.New("numeric: dimension mismatch")
)

// Interpolation selects how a quantile falls between two order statistics.
type Interpolation int

const (
	Linear Interpolation = iota
	Lower
	Higher
)

// Quantile returns the q-th quantile (0..1) of the non-NaN values of x.
// Linear matches the default "type 7" estimator. NaN is returned when x has no
// finite values.
func Quantile(x []float64, q float64, how Interpolation) float64 {
	sorted := DropNaN(x)
	if len(sorted) == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	return quantileSorted(sorted, q, how)
}

// Quantiles evaluates several quantiles with a single sort.
func Quantiles(x []float64, qs []float64, how Interpolation) []float64 {
	out := make([]float64, len(qs))
	sorted := DropNaN(x)
	if len(sorted) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sort.Float64s(sorted)
	for i, q := range qs {
		out[i] = quantileSorted(sorted, q, how)
	}
	return out
}

func quantileSorted(sorted []float64, q float64, how Interpolation) float64 {
	n := len(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	switch how {
	case Lower:
		return sorted[lo]
	case Higher:
		return sorted[hi]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// DropNaN returns a copy of x without NaN entries.
func DropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// NaNMean is the mean of the non-NaN values, NaN if there are none.
func NaNMean(x []float64) float64 {
	v := DropNaN(x)
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}

// PopStdDev is the population (ddof=0) standard deviation.
func PopStdDev(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	mean := stat.Mean(x, nil)
	var ss float64
	for _, v := range x {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(x)))
}

// PopVariance is the population (ddof=0) variance.
func PopVariance(x []float64) float64 {
	s := PopStdDev(x)
	return s * s
}

// Col copies column j of m.
func Col(m mat.Matrix, j int) []float64 {
	return mat.Col(nil, j, m)
}

// Standardize demeans each column and divides by its standard deviation,
// population (ddof=0) or sample (ddof=1). It returns the scaled copy along
// with the means and deviations used.
func Standardize(x mat.Matrix, ddof int) (*mat.Dense, []float64, []float64) {
	r, c := x.Dims()
	z := mat.NewDense(r, c, nil)
	means := make([]float64, c)
	stds := make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)
		mean := stat.Mean(col, nil)
		var ss float64
		for _, v := range col {
			d := v - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(r-ddof))
		means[j], stds[j] = mean, std
		for i, v := range col {
			z.Set(i, j, (v-mean)/std)
		}
	}
	return z, means, stds
}

// Unstandardize reverses Standardize in place.
func Unstandardize(z *mat.Dense, means, stds []float64) {
	r, c := z.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			z.Set(i, j, z.At(i, j)*stds[j]+means[j])
		}
	}
}

// HasZeroVariance reports the first column whose values are all equal.
func HasZeroVariance(x mat.Matrix) (int, bool) {
	_, c := x.Dims()
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)
		if floats.Max(col) == floats.Min(col) {
			return j, true
		}
	}
	return -1, false
}

// FromRows builds a dense matrix from row slices, checking that rows are
// rectangular.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmpty
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for _, row := range rows {
		if len(row) != c {
			return nil, ErrDimension
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), c, data), nil
}

// ToRows converts a matrix back to row slices.
func ToRows(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

// Column builds a single-column matrix from x.
func Column(x []float64) *mat.Dense {
	return mat.NewDense(len(x), 1, append([]float64(nil), x...))
}
