// Package factors estimates approximate factor models on T x N panels
// (observations in rows, variables in columns) and fills missing cells
// with their low-rank reconstruction, following Bai and Ng (2002) and
// McCracken and Ng's FRED-MD procedures.
package factors

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"FinDS/internal/services/numeric"
)

var (
	ErrPenalty        = errors.New("factors: penalty must be 1, 2 or 3")
	ErrTooSmall       = errors.New("factors: panel needs at least 2 rows and 2 columns")
	ErrConstantColumn = errors.New("factors: column has zero variance")
	ErrAllMissingRow  = errors.New("factors: row is entirely missing")
	ErrAllMissingCol  = errors.New("factors: column is entirely missing")
	ErrMissingValues  = errors.New("factors: panel contains missing values")
	ErrSVD            = errors.New("factors: svd did not converge")
)

// thinSVD factorizes z and returns U, singular values and V.
func thinSVD(z mat.Matrix) (*mat.Dense, []float64, *mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(z, mat.SVDThin); !ok {
		return nil, nil, nil, ErrSVD
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	return &u, svd.Values(nil), &v, nil
}

func checkComplete(x mat.Matrix) error {
	r, c := x.Dims()
	if r < 2 || c < 2 {
		return ErrTooSmall
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(x.At(i, j)) {
				return ErrMissingValues
			}
		}
	}
	if j, ok := numeric.HasZeroVariance(x); ok {
		return fmt.Errorf("%w: column %d", ErrConstantColumn, j)
	}
	return nil
}

// penalty returns the per-factor penalty CT_p of the ICp criteria.
func penalty(t, n, p int) (float64, error) {
	nt := float64(n * t)
	nt1 := float64(n + t)
	gct := float64(min(n, t))
	switch p {
	case 1:
		return math.Log(nt/nt1) * (nt1 / nt), nil
	case 2:
		return (nt1 / nt) * math.Log(gct), nil
	case 3:
		return math.Log(gct) / gct, nil
	}
	return 0, ErrPenalty
}

// InformationCriteria returns ICp_k for k = 0..kmax-1 (kmax = 0 means
// min(T, N)), using population-standardized columns.
func InformationCriteria(x mat.Matrix, kmax, p int) ([]float64, error) {
	if err := checkComplete(x); err != nil {
		return nil, err
	}
	t, n := x.Dims()
	ct, err := penalty(t, n, p)
	if err != nil {
		return nil, err
	}
	z, _, _ := numeric.Standardize(x, 0)
	_, s, _, err := thinSVD(z)
	if err != nil {
		return nil, err
	}

	gct := min(n, t)
	var total float64
	for _, v := range s {
		total += v * v
	}
	size := gct
	if kmax > 0 && kmax < gct {
		size = kmax
	}
	ic := make([]float64, size)
	explained := 0.0
	for k := 0; k < size; k++ {
		if k > 0 && k-1 < len(s) {
			explained += s[k-1] * s[k-1]
		}
		sigma := (total - explained) / total
		ic[k] = math.Log(sigma) + float64(k)*ct
	}
	return ic, nil
}

// SelectBaiNg picks the number of factors at the first local minimum of the
// ICp criterion, or 0 when the criterion has no local minimum below kmax.
func SelectBaiNg(x mat.Matrix, kmax, p int) (int, error) {
	ic, err := InformationCriteria(x, kmax, p)
	if err != nil {
		return 0, err
	}
	for k := 0; k+1 < len(ic); k++ {
		if ic[k] < ic[k+1] {
			return k, nil
		}
	}
	return 0, nil
}

// MarginalRSquared returns an N x k matrix: entry (j, k) is the share of the
// variance of variable j explained by the k-th principal component alone.
// kmax = 0 keeps every component.
func MarginalRSquared(x mat.Matrix, kmax int) (*mat.Dense, error) {
	if err := checkComplete(x); err != nil {
		return nil, err
	}
	t, n := x.Dims()
	z, _, _ := numeric.Standardize(x, 0)
	_, s, v, err := thinSVD(z)
	if err != nil {
		return nil, err
	}
	k := len(s)
	if kmax > 0 && kmax < k {
		k = kmax
	}

	// u_k u_k' Z has entries u[t,k] s_k v[j,k], and the columns of U are
	// orthonormal, so its mean square over rows is s_k^2 v[j,k]^2 / T.
	denom := make([]float64, n)
	for j := 0; j < n; j++ {
		for c := range s {
			denom[j] += s[c] * s[c] * v.At(j, c) * v.At(j, c)
		}
		denom[j] /= float64(t)
	}
	out := mat.NewDense(n, k, nil)
	for j := 0; j < n; j++ {
		for c := 0; c < k; c++ {
			num := s[c] * s[c] * v.At(j, c) * v.At(j, c) / float64(t)
			out.Set(j, c, num/denom[j])
		}
	}
	return out, nil
}
