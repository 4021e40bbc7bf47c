// Package econ provides regression helpers, structural-break statistics and
// unit root testing.
package econ

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"FinDS/internal/services/numeric"
)

var (
	ErrRows     = errors.New("econ: x and y must have the same number of rows")
	ErrSingular = errors.New("econ: design matrix is singular")
	ErrShort    = errors.New("econ: sample size is too short")
)

const InterceptName = "Intercept"

// LinearModel is the result of a multiple regression of each column of Y on X.
type LinearModel struct {
	Coefficients *mat.Dense `json:"-"`
	Fitted       *mat.Dense `json:"-"`
	Residuals    *mat.Dense `json:"-"`
	RSquared     []float64  `json:"rsq"`
	RValue       []float64  `json:"rvalue"`
	StdErr       []float64  `json:"stderr"`
}

func withIntercept(x mat.Matrix) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c+1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, 1)
		for j := 0; j < c; j++ {
			out.Set(i, j+1, x.At(i, j))
		}
	}
	return out
}

func solve(x, y mat.Matrix) (*mat.Dense, error) {
	var xtx, xty, b mat.Dense
	xtx.Mul(x.T(), x)
	xty.Mul(x.T(), y)
	if err := b.Solve(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return &b, nil
}

// LM regresses every column of y on x, optionally prepending an intercept.
// Residuals are y - fitted, R-squared is var(fitted)/var(y) and StdErr is
// the population deviation of the residuals.
func LM(x, y mat.Matrix, addConstant bool) (LinearModel, error) {
	rx, _ := x.Dims()
	ry, cy := y.Dims()
	if rx != ry {
		return LinearModel{}, ErrRows
	}
	design := mat.DenseCopyOf(x)
	if addConstant {
		design = withIntercept(x)
	}
	b, err := solve(design, y)
	if err != nil {
		return LinearModel{}, err
	}
	var fitted, resid mat.Dense
	fitted.Mul(design, b)
	resid.Sub(y, &fitted)

	m := LinearModel{
		Coefficients: b,
		Fitted:       &fitted,
		Residuals:    &resid,
		RSquared:     make([]float64, cy),
		RValue:       make([]float64, cy),
		StdErr:       make([]float64, cy),
	}
	for j := 0; j < cy; j++ {
		m.RSquared[j] = numeric.PopVariance(mat.Col(nil, j, &fitted)) / numeric.PopVariance(mat.Col(nil, j, y))
		m.RValue[j] = math.Sqrt(m.RSquared[j])
		m.StdErr[j] = numeric.PopStdDev(mat.Col(nil, j, &resid))
	}
	return m, nil
}

// CoefficientTable labels regression coefficients: one row per dependent
// variable, one column per regressor.
type CoefficientTable struct {
	Index   []string    `json:"index"`
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// Row returns the coefficients of the named dependent variable.
func (t CoefficientTable) Row(name string) (map[string]float64, bool) {
	for i, n := range t.Index {
		if n == name {
			out := make(map[string]float64, len(t.Columns))
			for j, c := range t.Columns {
				out[c] = t.Values[i][j]
			}
			return out, true
		}
	}
	return nil, false
}

// LeastSquares regresses each y column on the x columns and returns labelled
// coefficients, with an optional "stdres" column of residual deviations.
func LeastSquares(x, y mat.Matrix, xNames, yNames []string, addConstant, stdres bool) (CoefficientTable, error) {
	_, cx := x.Dims()
	_, cy := y.Dims()
	if len(xNames) != cx || len(yNames) != cy {
		return CoefficientTable{}, fmt.Errorf("econ: %d x names for %d columns, %d y names for %d columns",
			len(xNames), cx, len(yNames), cy)
	}
	m, err := LM(x, y, addConstant)
	if err != nil {
		return CoefficientTable{}, err
	}
	cols := append([]string(nil), xNames...)
	if addConstant {
		cols = append([]string{InterceptName}, cols...)
	}
	if stdres {
		cols = append(cols, "stdres")
	}
	t := CoefficientTable{Index: yNames, Columns: cols, Values: make([][]float64, cy)}
	for j := 0; j < cy; j++ {
		row := mat.Col(nil, j, m.Coefficients)
		if stdres {
			row = append(row, m.StdErr[j])
		}
		t.Values[j] = row
	}
	return t, nil
}

// FStats computes a Chow-style F statistic for a break in the mean at every
// candidate point between the tail fractions. Points outside that range, and
// splits leaving an empty side, score 0.
func FStats(x []float64, tail float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n < 3 {
		return out
	}
	rse := numeric.PopVariance(x)
	if rse == 0 {
		return out
	}
	lo := int(float64(n) * tail)
	hi := int((1 - tail) * float64(n))
	for i := max(lo, 1); i <= hi && i < n; i++ {
		sse := (numeric.PopVariance(x[:i])*float64(i) + numeric.PopVariance(x[i:])*float64(n-i)) / float64(n)
		out[i] = (float64(n-2) / 2) * (rse - sse) / rse
	}
	return out
}

// olsFit carries the statistics the unit root test needs from a single
// regression.
type olsFit struct {
	params  []float64
	tvalues []float64
	llf     float64
	nobs    int
}

func (f olsFit) aic() float64 { return -2*f.llf + 2*float64(len(f.params)) }
func (f olsFit) bic() float64 {
	return -2*f.llf + math.Log(float64(f.nobs))*float64(len(f.params))
}

func fitOLS(x *mat.Dense, y []float64) (olsFit, error) {
	n, k := x.Dims()
	if n <= k {
		return olsFit{}, ErrShort
	}
	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var xtx, inv mat.Dense
	xtx.Mul(x.T(), x)
	if err := inv.Inverse(&xtx); err != nil {
		return olsFit{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	var xty, b, fitted mat.VecDense
	xty.MulVec(x.T(), yv)
	b.MulVec(&inv, &xty)
	fitted.MulVec(x, &b)

	var ssr float64
	for i := 0; i < n; i++ {
		e := y[i] - fitted.AtVec(i)
		ssr += e * e
	}
	sigma2 := ssr / float64(n-k)
	fit := olsFit{
		params:  make([]float64, k),
		tvalues: make([]float64, k),
		nobs:    n,
		llf:     -float64(n) / 2 * (math.Log(2*math.Pi) + math.Log(ssr/float64(n)) + 1),
	}
	for j := 0; j < k; j++ {
		fit.params[j] = b.AtVec(j)
		fit.tvalues[j] = b.AtVec(j) / math.Sqrt(sigma2*inv.At(j, j))
	}
	return fit, nil
}
