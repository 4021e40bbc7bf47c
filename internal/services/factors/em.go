package factors

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"FinDS/internal/services/numeric"
)

const (
	DefaultMaxIter = 50
	DefaultTol     = 1e-12
	DefaultPenalty = 2
)

// Iteration reports the state after one EM pass.
type Iteration struct {
	Iter    int     `json:"iter"`
	Delta   float64 `json:"delta"`
	Factors int     `json:"factors"`
}

// Options configures FactorsEM. P = 0 fixes the number of factors at Kmax;
// P in {1, 2, 3} selects it each iteration with the ICp criterion bounded by
// Kmax. Kmax = 0 means rank - 1.
type Options struct {
	Kmax     int
	P        int
	MaxIter  int
	Tol      float64
	Progress func(Iteration)
}

// DefaultOptions mirrors the FRED-MD defaults.
func DefaultOptions() Options {
	return Options{P: DefaultPenalty, MaxIter: DefaultMaxIter, Tol: DefaultTol}
}

// Result summarizes an EM run.
type Result struct {
	Iterations int     `json:"iterations"`
	Factors    int     `json:"factors"`
	Delta      float64 `json:"delta"`
	Converged  bool    `json:"converged"`
}

// missingMask marks NaN cells and rejects rows or columns with no data.
func missingMask(x mat.Matrix) ([][]bool, error) {
	r, c := x.Dims()
	mask := make([][]bool, r)
	colMissing := make([]int, c)
	for i := 0; i < r; i++ {
		mask[i] = make([]bool, c)
		rowMissing := 0
		for j := 0; j < c; j++ {
			if math.IsNaN(x.At(i, j)) {
				mask[i][j] = true
				rowMissing++
				colMissing[j]++
			}
		}
		if rowMissing == c {
			return nil, fmt.Errorf("%w: row %d", ErrAllMissingRow, i)
		}
	}
	for j, n := range colMissing {
		if n == r {
			return nil, fmt.Errorf("%w: column %d", ErrAllMissingCol, j)
		}
	}
	return mask, nil
}

// fillColumnMeans replaces masked cells with the mean of observed cells.
func fillColumnMeans(z *mat.Dense, mask [][]bool) {
	r, c := z.Dims()
	for j := 0; j < c; j++ {
		var sum float64
		var n int
		for i := 0; i < r; i++ {
			if !mask[i][j] {
				sum += z.At(i, j)
				n++
			}
		}
		mean := sum / float64(n)
		for i := 0; i < r; i++ {
			if mask[i][j] {
				z.Set(i, j, mean)
			}
		}
	}
}

// FactorsEM fills the NaN cells of x with the factor-model EM algorithm and
// returns the completed panel. Observed cells are returned unchanged.
func FactorsEM(x mat.Matrix, opts Options) (*mat.Dense, Result, error) {
	var res Result
	r, c := x.Dims()
	if r < 2 || c < 2 {
		return nil, res, ErrTooSmall
	}
	if opts.P < 0 || opts.P > 3 {
		return nil, res, ErrPenalty
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = DefaultMaxIter
	}
	if opts.Tol <= 0 {
		opts.Tol = DefaultTol
	}
	mask, err := missingMask(x)
	if err != nil {
		return nil, res, err
	}

	z := mat.DenseCopyOf(x)
	fillColumnMeans(z, mask)

	for iter := 0; iter < opts.MaxIter; iter++ {
		old := mat.DenseCopyOf(z)
		std, means, stds := numeric.Standardize(z, 1)
		for j, s := range stds {
			if s == 0 || math.IsNaN(s) {
				return nil, res, fmt.Errorf("%w: column %d", ErrConstantColumn, j)
			}
		}

		u, s, v, err := thinSVD(std)
		if err != nil {
			return nil, res, err
		}
		kmax := opts.Kmax
		if kmax <= 0 {
			kmax = len(s) - 1
		}
		k := kmax
		if opts.P > 0 {
			if k, err = SelectBaiNg(std, kmax, opts.P); err != nil {
				return nil, res, fmt.Errorf("select factors: %w", err)
			}
		}
		k = min(k, len(s))

		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if !mask[i][j] {
					continue
				}
				var e float64
				for f := 0; f < k; f++ {
					e += u.At(i, f) * s[f] * v.At(j, f)
				}
				std.Set(i, j, e)
			}
		}
		numeric.Unstandardize(std, means, stds)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if !mask[i][j] {
					std.Set(i, j, x.At(i, j))
				}
			}
		}
		z = std

		var diff mat.Dense
		diff.Sub(z, old)
		ratio := mat.Norm(&diff, 2) / mat.Norm(z, 2)
		res = Result{Iterations: iter + 1, Factors: k, Delta: ratio * ratio}
		if opts.Progress != nil {
			opts.Progress(Iteration{Iter: iter, Delta: res.Delta, Factors: k})
		}
		if res.Delta < opts.Tol {
			res.Converged = true
			break
		}
	}
	return z, res, nil
}
