package econ

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrAutoLag = errors.New("econ: autolag must be AIC, BIC or t-stat")

// ADFOptions configures the augmented Dickey-Fuller test with a constant.
// MaxLag <= 0 uses 12 (nobs/100)^(1/4). AutoLag is "AIC", "BIC", "t-stat" or
// empty to fit exactly MaxLag lags.
type ADFOptions struct {
	MaxLag  int
	AutoLag string
}

// ADFResult reports the unit root test.
type ADFResult struct {
	Stat     float64            `json:"stat"`
	PValue   float64            `json:"pvalue"`
	UsedLag  int                `json:"used_lag"`
	NObs     int                `json:"nobs"`
	Critical map[string]float64 `json:"critical"`
	ICBest   float64            `json:"ic_best,omitempty"`
}

// MacKinnon (1994) response surface coefficients for one variable with a
// constant, and MacKinnon (2010) critical value coefficients.
var (
	tauMaxC   = 2.74
	tauMinC   = -18.83
	tauStarC  = -1.61
	tauSmallP = []float64{2.1659, 1.4412, 0.038269}
	tauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
	tauCrit   = map[string][]float64{
		"1%":  {-3.43035, -6.5393, -16.786, -79.433},
		"5%":  {-2.86154, -2.8903, -4.234, -40.040},
		"10%": {-2.56677, -1.5384, -2.809, 0},
	}
)

func polyval(coef []float64, x float64) float64 {
	var out float64
	for i := len(coef) - 1; i >= 0; i-- {
		out = out*x + coef[i]
	}
	return out
}

// MacKinnonP approximates the p-value of a Dickey-Fuller statistic for a
// regression with a constant.
func MacKinnonP(stat float64) float64 {
	switch {
	case stat > tauMaxC:
		return 1
	case stat < tauMinC:
		return 0
	}
	coef := tauLargeP
	if stat <= tauStarC {
		coef = tauSmallP
	}
	return distuv.UnitNormal.CDF(polyval(coef, stat))
}

// MacKinnonCritical returns the 1%, 5% and 10% critical values for nobs.
func MacKinnonCritical(nobs int) map[string]float64 {
	out := make(map[string]float64, len(tauCrit))
	for k, c := range tauCrit {
		out[k] = polyval(c, 1/float64(nobs))
	}
	return out
}

// adfDesign builds the regression of the differenced series on the lagged
// level and p lagged differences, trimmed to a common sample.
func adfDesign(x []float64, p int, constantFirst bool) (*mat.Dense, []float64) {
	dx := make([]float64, len(x)-1)
	for i := range dx {
		dx[i] = x[i+1] - x[i]
	}
	nobs := len(dx) - p
	cols := p + 2
	design := mat.NewDense(nobs, cols, nil)
	y := make([]float64, nobs)
	for r := 0; r < nobs; r++ {
		t := p + r
		y[r] = dx[t]
		row := make([]float64, 0, cols)
		if constantFirst {
			row = append(row, 1)
		}
		row = append(row, x[t])
		for l := 1; l <= p; l++ {
			row = append(row, dx[t-l])
		}
		if !constantFirst {
			row = append(row, 1)
		}
		design.SetRow(r, row)
	}
	return design, y
}

// ADF runs the augmented Dickey-Fuller unit root test with a constant.
func ADF(x []float64, opts ADFOptions) (ADFResult, error) {
	const ntrend = 1
	nobs := len(x)
	limit := nobs/2 - ntrend - 1
	maxlag := opts.MaxLag
	if maxlag <= 0 {
		maxlag = int(math.Ceil(12 * math.Pow(float64(nobs)/100, 0.25)))
		maxlag = min(limit, maxlag)
		if maxlag < 0 {
			return ADFResult{}, ErrShort
		}
	} else if maxlag > limit {
		return ADFResult{}, fmt.Errorf("%w: maxlag must be less than %d", ErrShort, limit+1)
	}

	var res ADFResult
	usedlag := maxlag
	if method := strings.ToLower(opts.AutoLag); method != "" {
		full, y := adfDesign(x, maxlag, true)
		n, _ := full.Dims()
		fits := make([]olsFit, maxlag+1)
		for lag := 0; lag <= maxlag; lag++ {
			fit, err := fitOLS(mat.DenseCopyOf(full.Slice(0, n, 0, lag+2)), y)
			if err != nil {
				return ADFResult{}, err
			}
			fits[lag] = fit
		}
		switch method {
		case "aic", "bic":
			best := math.Inf(1)
			for lag, fit := range fits {
				ic := fit.aic()
				if method == "bic" {
					ic = fit.bic()
				}
				if ic < best {
					best, usedlag = ic, lag
				}
			}
			res.ICBest = best
		case "t-stat":
			const stop = 1.6448536269514722
			for lag := maxlag; lag >= 0; lag-- {
				tv := fits[lag].tvalues
				res.ICBest = math.Abs(tv[len(tv)-1])
				usedlag = lag
				if res.ICBest >= stop {
					break
				}
			}
		default:
			return ADFResult{}, fmt.Errorf("%w: %q", ErrAutoLag, opts.AutoLag)
		}
	}

	design, y := adfDesign(x, usedlag, false)
	fit, err := fitOLS(design, y)
	if err != nil {
		return ADFResult{}, err
	}
	res.Stat = fit.tvalues[0]
	res.PValue = MacKinnonP(res.Stat)
	res.UsedLag = usedlag
	res.NObs = len(y)
	res.Critical = MacKinnonCritical(len(y))
	return res, nil
}

// IntegrationOrder differences x until the ADF test rejects a unit root at
// pvalue, returning the number of differences or -1 if maxOrder is reached.
func IntegrationOrder(x []float64, maxOrder int, pvalue float64, opts ADFOptions) (int, error) {
	if maxOrder <= 0 {
		maxOrder = 5
	}
	if pvalue <= 0 {
		pvalue = 0.05
	}
	series := append([]float64(nil), x...)
	for order := 0; order < maxOrder; order++ {
		res, err := ADF(series, opts)
		if err != nil {
			return 0, fmt.Errorf("adf at order %d: %w", order, err)
		}
		if res.PValue < pvalue {
			return order, nil
		}
		diff := make([]float64, len(series)-1)
		for i := range diff {
			diff[i] = series[i+1] - series[i]
		}
		series = diff
	}
	return -1, nil
}
