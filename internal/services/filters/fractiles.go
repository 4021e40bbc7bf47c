package filters

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"FinDS/internal/services/numeric"
)

var ErrWeights = errors.New("filters: weights length must match rows")

// Fractiles assigns each value a fractile label in 1..len(pct)+1 using the
// percentiles (0..100) of keys as breakpoints: a value is labelled by the
// first breakpoint it does not exceed. Descending order (the default) labels
// the largest values 1. keys = nil uses values; NaN keys are dropped and NaN
// values get label 0.
func Fractiles(values, pct, keys []float64, ascending bool) []int {
	if keys == nil {
		keys = values
	}
	sorted := append([]float64(nil), pct...)
	sort.Float64s(sorted)
	for i := range sorted {
		sorted[i] /= 100
	}
	bp := append(numeric.Quantiles(keys, sorted, numeric.Linear), math.Inf(1))

	out := make([]int, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		pos := sort.SearchFloat64s(bp, v)
		if ascending {
			out[i] = 1 + pos
		} else {
			out[i] = 1 + len(pct) - pos
		}
	}
	return out
}

// WeightedAverage returns the column means of x ignoring NaN cells, weighted
// by weights when given. Rows with a NaN weight are skipped.
func WeightedAverage(x mat.Matrix, weights []float64) ([]float64, error) {
	r, c := x.Dims()
	if weights != nil && len(weights) != r {
		return nil, ErrWeights
	}
	out := make([]float64, c)
	for j := 0; j < c; j++ {
		var sum, total float64
		for i := 0; i < r; i++ {
			v := x.At(i, j)
			w := 1.0
			if weights != nil {
				w = weights[i]
			}
			if math.IsNaN(v) || math.IsNaN(w) {
				continue
			}
			sum += w * v
			total += w
		}
		if total == 0 {
			out[j] = math.NaN()
			continue
		}
		out[j] = sum / total
	}
	return out, nil
}
