package factors

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ImputeOptions configures ImputeEM.
type ImputeOptions struct {
	AddIntercept bool
	Tol          float64
	MaxIter      int
	Progress     func(iter int, nll float64)
}

// ImputeResult summarizes an ImputeEM run.
type ImputeResult struct {
	Iterations int     `json:"iterations"`
	NLL        float64 `json:"nll"`
}

// ImputeEM fills NaN cells assuming rows are draws from a multivariate normal.
// Each iteration re-predicts the missing cells of a column from its linear
// regression on the other columns, read off the inverse cross-product matrix,
// and stops once the negative log-likelihood improves by less than Tol.
func ImputeEM(x mat.Matrix, opts ImputeOptions) (*mat.Dense, ImputeResult, error) {
	var res ImputeResult
	if opts.Tol <= 0 {
		opts.Tol = DefaultTol
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 200
	}
	r, c := x.Dims()
	if r < 2 || c < 1 {
		return nil, res, ErrTooSmall
	}
	offset := 0
	if opts.AddIntercept {
		offset = 1
	}
	w := mat.NewDense(r, c+offset, nil)
	for i := 0; i < r; i++ {
		if offset == 1 {
			w.Set(i, 0, 1)
		}
		for j := 0; j < c; j++ {
			w.Set(i, j+offset, x.At(i, j))
		}
	}
	mask, err := missingMask(w)
	if err != nil {
		return nil, res, err
	}
	var cols []int
	for j := 0; j < c+offset; j++ {
		for i := 0; i < r; i++ {
			if mask[i][j] {
				cols = append(cols, j)
				break
			}
		}
	}

	var prev float64
	for iter := 0; iter <= opts.MaxIter; iter++ {
		if iter == 0 {
			fillColumnMeans(w, mask)
		} else {
			var xx, inv mat.Dense
			xx.Mul(w.T(), w)
			if err := inv.Inverse(&xx); err != nil {
				return nil, res, fmt.Errorf("invert cross products: %w", err)
			}
			for _, col := range cols {
				pivot := inv.At(col, col)
				for i := 0; i < r; i++ {
					if !mask[i][col] {
						continue
					}
					var y float64
					for k := 0; k < c+offset; k++ {
						if k != col {
							y += w.At(i, k) * (-inv.At(k, col) / pivot)
						}
					}
					w.Set(i, col, y)
				}
			}
		}

		data := w.Slice(0, r, offset, c+offset)
		nll, err := negLogLikelihood(data)
		if err != nil {
			return nil, res, err
		}
		res = ImputeResult{Iterations: iter, NLL: nll}
		if opts.Progress != nil {
			opts.Progress(iter, nll)
		}
		if iter > 0 && prev-nll < opts.Tol {
			break
		}
		prev = nll
	}
	return mat.DenseCopyOf(w.Slice(0, r, offset, c+offset)), res, nil
}

// negLogLikelihood evaluates the rows of x under a normal distribution with
// their own mean and population covariance. Singular covariances use the
// pseudo-determinant and pseudo-inverse over the non-negligible eigenvalues.
func negLogLikelihood(x mat.Matrix) (float64, error) {
	r, c := x.Dims()
	means := make([]float64, c)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			means[j] += x.At(i, j)
		}
		means[j] /= float64(r)
	}
	centered := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			centered.Set(i, j, x.At(i, j)-means[j])
		}
	}
	cov := mat.NewSymDense(c, nil)
	cov.SymOuterK(1/float64(r), centered.T())

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return 0, fmt.Errorf("factors: covariance eigen decomposition failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	largest := 0.0
	for _, v := range vals {
		largest = math.Max(largest, math.Abs(v))
	}
	eps := 1e6 * 2.220446049250313e-16 * largest

	var logPdet float64
	var keep []int
	for k, v := range vals {
		if v > eps {
			logPdet += math.Log(v)
			keep = append(keep, k)
		}
	}
	rank := float64(len(keep))

	var total float64
	for i := 0; i < r; i++ {
		var maha float64
		for _, k := range keep {
			var proj float64
			for j := 0; j < c; j++ {
				proj += centered.At(i, j) * vecs.At(j, k)
			}
			maha += proj * proj / vals[k]
		}
		total += -0.5 * (rank*math.Log(2*math.Pi) + logPdet + maha)
	}
	return -total, nil
}
