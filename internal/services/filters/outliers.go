// Package filters screens outliers and clips or buckets panel columns.
package filters

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"FinDS/internal/services/numeric"
)

var ErrMethod = errors.New("filters: outlier method must be iq{D}, tukey or farout")

// Bounds is the closed inlier range of a column.
type Bounds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether v is a finite value within the bounds.
func (b Bounds) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= b.Low && v <= b.High
}

// parseMethod returns whether the method is interquartile-around-median and
// its IQR multiplier.
func parseMethod(method string) (aroundMedian bool, scale float64, err error) {
	m := strings.ToLower(strings.TrimSpace(method))
	switch {
	case strings.HasPrefix(m, "tukey"):
		return false, 1.5, nil
	case strings.HasPrefix(m, "far"):
		return false, 3.0, nil
	case strings.HasPrefix(m, "iq"):
		d, err := strconv.ParseFloat(m[2:], 64)
		if err != nil || d <= 0 {
			return false, 0, fmt.Errorf("%w: %q", ErrMethod, method)
		}
		return true, d, nil
	}
	return false, 0, fmt.Errorf("%w: %q", ErrMethod, method)
}

// OutlierBounds computes the inlier range of x, ignoring NaN.
//   - iq{D}:  median +/- D (Q3 - Q1)
//   - tukey:  [Q1 - 1.5 (Q3 - Q1), Q3 + 1.5 (Q3 - Q1)]
//   - farout: [Q1 - 3 (Q3 - Q1), Q3 + 3 (Q3 - Q1)]
func OutlierBounds(x []float64, method string) (Bounds, error) {
	aroundMedian, w, err := parseMethod(method)
	if err != nil {
		return Bounds{}, err
	}
	q := numeric.Quantiles(x, []float64{0.25, 0.5, 0.75}, numeric.Linear)
	iq := q[2] - q[0]
	if aroundMedian {
		return Bounds{Low: q[1] - w*iq, High: q[1] + w*iq}, nil
	}
	return Bounds{Low: q[0] - w*iq, High: q[2] + w*iq}, nil
}

// NotOutlier flags the elements of x inside the inlier range. NaN elements
// are never inliers.
func NotOutlier(x []float64, method string) ([]bool, error) {
	b, err := OutlierBounds(x, method)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(x))
	for i, v := range x {
		out[i] = b.Contains(v)
	}
	return out, nil
}

// RemoveOutliers returns a copy of x with column-wise outliers set to NaN.
func RemoveOutliers(x mat.Matrix, method string) (*mat.Dense, error) {
	r, c := x.Dims()
	out := mat.DenseCopyOf(x)
	for j := 0; j < c; j++ {
		b, err := OutlierBounds(mat.Col(nil, j, x), method)
		if err != nil {
			return nil, err
		}
		for i := 0; i < r; i++ {
			v := out.At(i, j)
			if !math.IsNaN(v) && !b.Contains(v) {
				out.Set(i, j, math.NaN())
			}
		}
	}
	return out, nil
}

// Winsorize clips each column of x at its lower and upper quantiles. The
// lower cut rounds up to an observed value and the upper cut rounds down.
func Winsorize(x mat.Matrix, lower, upper float64) (*mat.Dense, error) {
	if lower > upper {
		lower, upper = upper, lower
	}
	if lower < 0 || upper > 1 {
		return nil, fmt.Errorf("filters: quantiles must lie in [0, 1], got %v and %v", lower, upper)
	}
	r, c := x.Dims()
	out := mat.DenseCopyOf(x)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x)
		lo := numeric.Quantile(col, lower, numeric.Higher)
		hi := numeric.Quantile(col, upper, numeric.Lower)
		for i := 0; i < r; i++ {
			v := out.At(i, j)
			switch {
			case math.IsNaN(v):
			case v < lo:
				out.Set(i, j, lo)
			case v > hi:
				out.Set(i, j, hi)
			}
		}
	}
	return out, nil
}
