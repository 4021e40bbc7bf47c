package risk

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var ErrCovariance = errors.New("risk: covariance must be square and symmetric")

const (
	minVarMaxIter = 100000
	minVarTol     = 1e-12
)

// MinVariance solves min w'Σw subject to w >= 0 and sum(w) = 1 by projected
// gradient descent on the probability simplex.
func MinVariance(sigma mat.Matrix) ([]float64, error) {
	r, c := sigma.Dims()
	if r == 0 || r != c {
		return nil, ErrCovariance
	}
	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			if math.Abs(sigma.At(i, j)-sigma.At(j, i)) > 1e-12*math.Max(1, math.Abs(sigma.At(i, j))) {
				return nil, ErrCovariance
			}
			sym.SetSym(i, j, sigma.At(i, j))
		}
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return nil, ErrCovariance
	}
	largest := floats.Max(eig.Values(nil))
	if largest <= 0 {
		return nil, ErrCovariance
	}
	step := 1 / (2 * largest)

	w := make([]float64, r)
	for i := range w {
		w[i] = 1 / float64(r)
	}
	wv := mat.NewVecDense(r, w)
	var grad mat.VecDense
	next := make([]float64, r)
	for iter := 0; iter < minVarMaxIter; iter++ {
		grad.MulVec(sym, wv)
		for i := range next {
			next[i] = w[i] - step*2*grad.AtVec(i)
		}
		projectSimplex(next)
		moved := floats.Distance(next, w, math.Inf(1))
		copy(w, next)
		if moved < minVarTol {
			break
		}
	}
	return w, nil
}

// projectSimplex maps v in place onto {w >= 0, sum(w) = 1}.
func projectSimplex(v []float64) {
	u := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))
	var cum, theta float64
	for j, uj := range u {
		cum += uj
		t := (cum - 1) / float64(j+1)
		if uj-t > 0 {
			theta = t
		}
	}
	for i := range v {
		v[i] = math.Max(v[i]-theta, 0)
	}
}
