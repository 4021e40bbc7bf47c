package usecase

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"FinDS/internal/domain/models"
	"FinDS/internal/services/bonds"
	"FinDS/internal/services/econ"
	"FinDS/internal/services/risk"
)

// columnNames labels a panel's columns, generating prefix0, prefix1, ...
// when it carries none.
func columnNames(p *models.Panel, prefix string) []string {
	if len(p.Columns) > 0 {
		return p.Columns
	}
	_, c := p.Dims()
	names := make([]string, c)
	for j := range names {
		names[j] = fmt.Sprintf("%s%d", prefix, j)
	}
	return names
}

func regressionInputs(req *models.RegressionRequest) (*mat.Dense, *mat.Dense, error) {
	x, err := req.X.Matrix()
	if err != nil {
		return nil, nil, fmt.Errorf("x: %w", err)
	}
	y, err := req.Y.Matrix()
	if err != nil {
		return nil, nil, fmt.Errorf("y: %w", err)
	}
	return x, y, nil
}

func addConstant(req *models.RegressionRequest) bool {
	return req.AddConstant == nil || *req.AddConstant
}

// LeastSquares returns the labelled coefficient table of y on x.
func (s *RecipeService) LeastSquares(ctx context.Context, req *models.RegressionRequest) (*econ.CoefficientTable, error) {
	return compute(ctx, s, "least_squares", req, func() (*econ.CoefficientTable, error) {
		x, y, err := regressionInputs(req)
		if err != nil {
			return nil, err
		}
		t, err := econ.LeastSquares(x, y, columnNames(req.X, "x"), columnNames(req.Y, "y"), addConstant(req), req.StdRes)
		if err != nil {
			return nil, err
		}
		return &t, nil
	})
}

type LinearModelResult struct {
	Coefficients []models.Values `json:"coefficients"`
	Fitted       *models.Panel   `json:"fitted"`
	Residuals    *models.Panel   `json:"residuals"`
	RSquared     models.Values   `json:"rsq"`
	RValue       models.Values   `json:"rvalue"`
	StdErr       models.Values   `json:"stderr"`
}

// LM fits every y column on x.
func (s *RecipeService) LM(ctx context.Context, req *models.RegressionRequest) (*LinearModelResult, error) {
	return compute(ctx, s, "lm", req, func() (*LinearModelResult, error) {
		x, y, err := regressionInputs(req)
		if err != nil {
			return nil, err
		}
		m, err := econ.LM(x, y, addConstant(req))
		if err != nil {
			return nil, err
		}
		rows, _ := m.Coefficients.Dims()
		coef := make([]models.Values, rows)
		for i := range coef {
			coef[i] = mat.Row(nil, i, m.Coefficients)
		}
		return &LinearModelResult{
			Coefficients: coef,
			Fitted:       models.PanelFromMatrix(m.Fitted, req.Y.Index, req.Y.Columns),
			Residuals:    models.PanelFromMatrix(m.Residuals, req.Y.Index, req.Y.Columns),
			RSquared:     m.RSquared,
			RValue:       m.RValue,
			StdErr:       m.StdErr,
		}, nil
	})
}

// FStats scores a break in the mean at every candidate point.
func (s *RecipeService) FStats(ctx context.Context, req *models.FStatsRequest) (models.Values, error) {
	return compute(ctx, s, "fstats", req, func() (models.Values, error) {
		return econ.FStats(req.X, req.Tail), nil
	})
}

type ADFResult struct {
	Stat     models.Float            `json:"stat"`
	PValue   models.Float            `json:"pvalue"`
	UsedLag  int                     `json:"used_lag"`
	NObs     int                     `json:"nobs"`
	Critical map[string]models.Float `json:"critical"`
	ICBest   models.Float            `json:"ic_best"`
}

func adfOptions(maxLag int, autoLag string) econ.ADFOptions {
	if autoLag == "none" {
		autoLag = ""
	}
	return econ.ADFOptions{MaxLag: maxLag, AutoLag: autoLag}
}

// ADF runs the augmented Dickey-Fuller unit root test with a constant.
func (s *RecipeService) ADF(ctx context.Context, req *models.ADFRequest) (*ADFResult, error) {
	return compute(ctx, s, "adfuller", req, func() (*ADFResult, error) {
		r, err := econ.ADF(req.X, adfOptions(req.MaxLag, req.AutoLag))
		if err != nil {
			return nil, err
		}
		crit := make(map[string]models.Float, len(r.Critical))
		for k, v := range r.Critical {
			crit[k] = models.Float(v)
		}
		return &ADFResult{
			Stat:     models.Float(r.Stat),
			PValue:   models.Float(r.PValue),
			UsedLag:  r.UsedLag,
			NObs:     r.NObs,
			Critical: crit,
			ICBest:   models.Float(r.ICBest),
		}, nil
	})
}

type IntegrationOrderResult struct {
	Order int `json:"order"`
}

// IntegrationOrder counts the differences needed for stationarity, -1 when
// max_order is not enough.
func (s *RecipeService) IntegrationOrder(ctx context.Context, req *models.IntegrationOrderRequest) (*IntegrationOrderResult, error) {
	return compute(ctx, s, "integration_order", req, func() (*IntegrationOrderResult, error) {
		d, err := econ.IntegrationOrder(req.X, req.MaxOrder, req.PValue, adfOptions(req.MaxLag, req.AutoLag))
		if err != nil {
			return nil, err
		}
		return &IntegrationOrderResult{Order: d}, nil
	})
}

type RiskMeasuresResult struct {
	Alpha             float64      `json:"alpha"`
	ValueAtRisk       models.Float `json:"var"`
	ExpectedShortfall models.Float `json:"es"`
	NormalVaR         models.Float `json:"var_normal"`
	NormalES          models.Float `json:"es_normal"`
}

// RiskMeasures reports historical and normal VaR and expected shortfall.
func (s *RecipeService) RiskMeasures(_ context.Context, req *models.RiskMeasuresRequest) (*RiskMeasuresResult, error) {
	return measure(s, "risk_measures", func() (*RiskMeasuresResult, error) {
		m, err := risk.NewMeasure(req.X, req.Alpha)
		if err != nil {
			return nil, err
		}
		return &RiskMeasuresResult{
			Alpha:             req.Alpha,
			ValueAtRisk:       models.Float(m.ValueAtRisk(false)),
			ExpectedShortfall: models.Float(m.ExpectedShortfall(false)),
			NormalVaR:         models.Float(m.ValueAtRisk(true)),
			NormalES:          models.Float(m.ExpectedShortfall(true)),
		}, nil
	})
}

type LRTestResult struct {
	Statistic models.Float `json:"statistic"`
	PValue    models.Float `json:"pvalue"`
	S         int          `json:"s"`
	N         int          `json:"n"`
}

func lrResult(t risk.LRTest) *LRTestResult {
	return &LRTestResult{
		Statistic: models.Float(t.Statistic),
		PValue:    models.Float(t.PValue),
		S:         t.S,
		N:         t.N,
	}
}

// Kupiec is the proportion-of-failures test of s violations in n trials.
func (s *RecipeService) Kupiec(_ context.Context, req *models.KupiecRequest) (*LRTestResult, error) {
	return measure(s, "kupiec_lr", func() (*LRTestResult, error) {
		t, err := risk.KupiecLR(req.S, req.N, req.Level)
		if err != nil {
			return nil, err
		}
		return lrResult(t), nil
	})
}

// POF backtests realized returns against predicted deviations.
func (s *RecipeService) POF(_ context.Context, req *models.POFRequest) (*LRTestResult, error) {
	return measure(s, "pof", func() (*LRTestResult, error) {
		t, err := risk.POF(req.X, req.Pred, req.Level)
		if err != nil {
			return nil, err
		}
		return lrResult(t), nil
	})
}

type DrawdownResult struct {
	risk.Drawdown
	Loss models.Float `json:"loss"`
}

// MaximumDrawdown finds the deepest peak to trough decline.
func (s *RecipeService) MaximumDrawdown(_ context.Context, req *models.DrawdownRequest) (*DrawdownResult, error) {
	return measure(s, "maximum_drawdown", func() (*DrawdownResult, error) {
		var dates []int
		if len(req.Dates) > 0 {
			dates = req.Dates
		}
		d, err := risk.MaximumDrawdown(req.X, dates, req.IsPriceLevel)
		if err != nil {
			return nil, err
		}
		return &DrawdownResult{Drawdown: d, Loss: models.Float(d.Loss())}, nil
	})
}

// Volatility estimates per-asset volatility from OHLC panels.
func (s *RecipeService) Volatility(ctx context.Context, req *models.VolatilityRequest) (models.Values, error) {
	return compute(ctx, s, "volatility_"+req.Method, req, func() (models.Values, error) {
		var p risk.OHLC
		var err error
		for _, f := range []struct {
			src *models.Panel
			dst **mat.Dense
		}{{req.Open, &p.Open}, {req.High, &p.High}, {req.Low, &p.Low}, {req.Close, &p.Close}} {
			if f.src == nil {
				continue
			}
			if *f.dst, err = f.src.Matrix(); err != nil {
				return nil, err
			}
		}
		switch req.Method {
		case "garman-klass":
			return risk.GarmanKlass(p, req.FFill)
		case "rogers-satchell":
			return risk.RogersSatchell(p, req.FFill)
		default:
			return risk.Parkinson(p)
		}
	})
}

// Halflife converts an exponential smoothing weight to its half life.
func (s *RecipeService) Halflife(_ context.Context, req *models.HalflifeRequest) (models.Float, error) {
	return measure(s, "halflife", func() (models.Float, error) {
		return models.Float(risk.Halflife(req.Alpha)), nil
	})
}

// MinVariance solves for long-only minimum variance weights.
func (s *RecipeService) MinVariance(ctx context.Context, req *models.MinVarianceRequest) (models.Values, error) {
	return compute(ctx, s, "min_variance", req, func() (models.Values, error) {
		sigma, err := req.Sigma.Matrix()
		if err != nil {
			return nil, err
		}
		return risk.MinVariance(sigma)
	})
}

// PresentValue discounts a single flow.
func (s *RecipeService) PresentValue(_ context.Context, req *models.PresentValueRequest) (models.Float, error) {
	return measure(s, "present_value", func() (models.Float, error) {
		return models.Float(bonds.PresentValue(req.Flow, req.N, req.Spot)), nil
	})
}

type CashFlowResult struct {
	PresentValue     models.Float `json:"present_value"`
	WeightedMaturity models.Float `json:"weighted_maturity"`
}

// DiscountedCashFlow prices a stream of flows and its weighted maturity.
func (s *RecipeService) DiscountedCashFlow(_ context.Context, req *models.CashFlowRequest) (*CashFlowResult, error) {
	return measure(s, "discounted_cash_flow", func() (*CashFlowResult, error) {
		first := 1.0
		if req.First != nil {
			first = *req.First
		}
		pv, err := bonds.DiscountedCashFlow(req.Flows, req.Spot, first)
		if err != nil {
			return nil, err
		}
		wm, _, err := bonds.WeightedMaturity(req.Flows, req.Spot, first)
		if err != nil {
			return nil, err
		}
		return &CashFlowResult{PresentValue: models.Float(pv), WeightedMaturity: models.Float(wm)}, nil
	})
}

// ForwardRates returns one-period forwards implied by spot rates.
func (s *RecipeService) ForwardRates(_ context.Context, req *models.ForwardRequest) (models.Values, error) {
	return measure(s, "forward_rates", func() (models.Values, error) {
		return bonds.ForwardRates(req.Spot, req.Base), nil
	})
}

// BootstrapCurve bootstraps spot rates from par yields.
func (s *RecipeService) BootstrapCurve(_ context.Context, req *models.BootstrapRequest) (models.Values, error) {
	return measure(s, "bootstrap_rates", func() (models.Values, error) {
		return bonds.BootstrapCurve(req.YTM, req.M)
	})
}

// ParDuration is the Macaulay duration of a par bond. The first coupon
// defaults to one period out.
func (s *RecipeService) ParDuration(_ context.Context, req *models.DurationRequest) (models.Float, error) {
	return measure(s, "par_duration", func() (models.Float, error) {
		first := 1 / float64(req.M)
		if req.First != nil {
			first = *req.First
		}
		d, err := bonds.ParDuration(req.Nominal, req.N, req.Face, req.M, first)
		return models.Float(d), err
	})
}
