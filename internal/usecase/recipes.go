package usecase

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"FinDS/internal/domain/models"
	domrepo "FinDS/internal/domain/repository"
	"FinDS/internal/services/factors"
	"FinDS/internal/services/filters"
	"FinDS/internal/services/spectral"
	"FinDS/pkg/cache"
	applogger "FinDS/pkg/logger"
)

// RecipeError marks input that a numerical recipe rejected.
type RecipeError struct {
	Recipe string
	Err    error
}

func (e *RecipeError) Error() string { return e.Recipe + ": " + e.Err.Error() }

func (e *RecipeError) Unwrap() error { return e.Err }

// RecipeService runs the numerical recipes behind the API. Results of the
// expensive recipes are cached by a hash of their request.
type RecipeService struct {
	cache   cache.Service
	metrics domrepo.Metrics
	ttl     time.Duration
	log     *applogger.Logger
}

// NewRecipeService creates the service. A nil cache disables result caching
// and nil metrics discard measurements.
func NewRecipeService(c cache.Service, m domrepo.Metrics, ttl time.Duration, lgr *applogger.Logger) *RecipeService {
	if m == nil {
		m = nopMetrics{}
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}
	return &RecipeService{cache: c, metrics: m, ttl: ttl, log: lgr}
}

// compute runs fn through the result cache and records the recipe call.
func compute[T any](ctx context.Context, s *RecipeService, recipe string, req interface{}, fn func() (T, error)) (T, error) {
	start := time.Now()
	key, err := cache.RequestKey("recipe:"+recipe, req)
	if err != nil {
		var zero T
		return zero, err
	}
	v, hit, err := cache.Remember(ctx, s.cache, key, s.ttl, func(context.Context) (T, error) {
		return measure(s, recipe, fn)
	})
	if s.cache != nil {
		s.metrics.CacheLookup("recipe", hit)
	}
	if hit {
		s.log.Debug("recipe served from cache",
			applogger.String("recipe", recipe),
			applogger.Duration("latency_ms", time.Since(start)))
	}
	return v, err
}

// measure runs fn uncached and records the recipe call.
func measure[T any](s *RecipeService, recipe string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	s.metrics.ObserveRecipe(recipe, time.Since(start), err)
	if err != nil {
		return v, &RecipeError{Recipe: recipe, Err: err}
	}
	return v, nil
}

type FactorsEMResult struct {
	Panel      *models.Panel       `json:"panel"`
	Iterations int                 `json:"iterations"`
	Factors    int                 `json:"factors"`
	Delta      models.Float        `json:"delta"`
	Converged  bool                `json:"converged"`
	History    []factors.Iteration `json:"history"`
}

// FactorsEM imputes the missing cells of a panel with the EM factor model.
func (s *RecipeService) FactorsEM(ctx context.Context, req *models.FactorsEMRequest) (*FactorsEMResult, error) {
	return compute(ctx, s, "factors_em", req, func() (*FactorsEMResult, error) {
		x, err := req.Panel.Matrix()
		if err != nil {
			return nil, err
		}
		opts := factorsOptions(req.Kmax, req.P, req.MaxIter, req.Tol)
		return runFactorsEM(x, req.Panel, opts)
	})
}

func factorsOptions(kmax int, p *int, maxIter int, tol float64) factors.Options {
	opts := factors.DefaultOptions()
	opts.Kmax = kmax
	if p != nil {
		opts.P = *p
	}
	if maxIter > 0 {
		opts.MaxIter = maxIter
	}
	if tol > 0 {
		opts.Tol = tol
	}
	return opts
}

func runFactorsEM(x *mat.Dense, labels *models.Panel, opts factors.Options) (*FactorsEMResult, error) {
	var history []factors.Iteration
	progress := opts.Progress
	opts.Progress = func(it factors.Iteration) {
		history = append(history, it)
		if progress != nil {
			progress(it)
		}
	}
	out, res, err := factors.FactorsEM(x, opts)
	if err != nil {
		return nil, err
	}
	return &FactorsEMResult{
		Panel:      models.PanelFromMatrix(out, labels.Index, labels.Columns),
		Iterations: res.Iterations,
		Factors:    res.Factors,
		Delta:      models.Float(res.Delta),
		Converged:  res.Converged,
		History:    history,
	}, nil
}

type SelectFactorsResult struct {
	Factors int           `json:"factors"`
	IC      models.Values `json:"ic"`
}

// SelectFactors picks the number of factors of a complete panel by the
// Bai and Ng criterion.
func (s *RecipeService) SelectFactors(ctx context.Context, req *models.FactorsSelectRequest) (*SelectFactorsResult, error) {
	return compute(ctx, s, "select_bai_ng", req, func() (*SelectFactorsResult, error) {
		x, err := req.Panel.Matrix()
		if err != nil {
			return nil, err
		}
		k, err := factors.SelectBaiNg(x, req.Kmax, req.P)
		if err != nil {
			return nil, err
		}
		ic, err := factors.InformationCriteria(x, req.Kmax, req.P)
		if err != nil {
			return nil, err
		}
		return &SelectFactorsResult{Factors: k, IC: ic}, nil
	})
}

type MRSQResult struct {
	Variables  []string        `json:"variables,omitempty"`
	Components []string        `json:"components"`
	Data       []models.Values `json:"data"`
}

// MarginalRSquared reports each variable's variance share per principal
// component.
func (s *RecipeService) MarginalRSquared(ctx context.Context, req *models.PanelRequest) (*MRSQResult, error) {
	return compute(ctx, s, "mrsq", req, func() (*MRSQResult, error) {
		x, err := req.Panel.Matrix()
		if err != nil {
			return nil, err
		}
		m, err := factors.MarginalRSquared(x, req.Kmax)
		if err != nil {
			return nil, err
		}
		rows, cols := m.Dims()
		out := &MRSQResult{Variables: req.Panel.Columns, Components: make([]string, cols), Data: make([]models.Values, rows)}
		for k := range out.Components {
			out.Components[k] = fmt.Sprintf("PC%d", k+1)
		}
		for i := range out.Data {
			out.Data[i] = mat.Row(nil, i, m)
		}
		return out, nil
	})
}

type ImputeEMResult struct {
	Panel      *models.Panel `json:"panel"`
	Iterations int           `json:"iterations"`
	NLL        models.Float  `json:"nll"`
}

// ImputeEM fills missing cells under a multivariate normal model.
func (s *RecipeService) ImputeEM(ctx context.Context, req *models.ImputeEMRequest) (*ImputeEMResult, error) {
	return compute(ctx, s, "impute_em", req, func() (*ImputeEMResult, error) {
		x, err := req.Panel.Matrix()
		if err != nil {
			return nil, err
		}
		out, res, err := factors.ImputeEM(x, factors.ImputeOptions{
			AddIntercept: req.AddIntercept,
			Tol:          req.Tol,
			MaxIter:      req.MaxIter,
		})
		if err != nil {
			return nil, err
		}
		return &ImputeEMResult{
			Panel:      models.PanelFromMatrix(out, req.Panel.Index, req.Panel.Columns),
			Iterations: res.Iterations,
			NLL:        models.Float(res.NLL),
		}, nil
	})
}

type CorrelogramResult struct {
	Lags   []int         `json:"lags"`
	Values models.Values `json:"values"`
}

// Correlation is the FFT cross-correlation of x and y, or the
// autocorrelation of x when y is empty.
func (s *RecipeService) Correlation(ctx context.Context, req *models.CorrelationRequest) (*CorrelogramResult, error) {
	return compute(ctx, s, "fft_correlation", req, func() (*CorrelogramResult, error) {
		var y []float64
		if len(req.Y) > 0 {
			y = req.Y
		}
		c, err := spectral.Correlation(req.X, y)
		if err != nil {
			return nil, err
		}
		return &CorrelogramResult{Lags: c.Lags, Values: c.Values}, nil
	})
}

// Align finds the lag of maximum cross-correlation for every column pair.
func (s *RecipeService) Align(ctx context.Context, req *models.PanelRequest) ([]spectral.Pair, error) {
	return compute(ctx, s, "fft_align", req, func() ([]spectral.Pair, error) {
		x, err := req.Panel.Matrix()
		if err != nil {
			return nil, err
		}
		return spectral.Align(x)
	})
}

// NeweyWest is the Bartlett weighted cross-correlation of every column pair.
func (s *RecipeService) NeweyWest(ctx context.Context, req *models.PanelRequest) ([]spectral.Pair, error) {
	return compute(ctx, s, "fft_neweywest", req, func() ([]spectral.Pair, error) {
		x, err := req.Panel.Matrix()
		if err != nil {
			return nil, err
		}
		return spectral.NeweyWest(x)
	})
}

type BoundsResult struct {
	Low  models.Float `json:"low"`
	High models.Float `json:"high"`
}

type OutliersResult struct {
	Panel  *models.Panel  `json:"panel"`
	Bounds []BoundsResult `json:"bounds"`
}

// RemoveOutliers replaces each column's outliers with NaN.
func (s *RecipeService) RemoveOutliers(ctx context.Context, req *models.OutliersRequest) (*OutliersResult, error) {
	return compute(ctx, s, "remove_outliers", req, func() (*OutliersResult, error) {
		x, err := req.Panel.Matrix()
		if err != nil {
			return nil, err
		}
		out, err := filters.RemoveOutliers(x, req.Method)
		if err != nil {
			return nil, err
		}
		_, cols := x.Dims()
		bounds := make([]BoundsResult, cols)
		for j := range bounds {
			b, err := filters.OutlierBounds(mat.Col(nil, j, x), req.Method)
			if err != nil {
				return nil, err
			}
			bounds[j] = BoundsResult{Low: models.Float(b.Low), High: models.Float(b.High)}
		}
		return &OutliersResult{
			Panel:  models.PanelFromMatrix(out, req.Panel.Index, req.Panel.Columns),
			Bounds: bounds,
		}, nil
	})
}

// Winsorize clips each column at its quantiles.
func (s *RecipeService) Winsorize(ctx context.Context, req *models.WinsorizeRequest) (*models.Panel, error) {
	return compute(ctx, s, "winsorize", req, func() (*models.Panel, error) {
		x, err := req.Panel.Matrix()
		if err != nil {
			return nil, err
		}
		out, err := filters.Winsorize(x, req.Lower, req.Upper)
		if err != nil {
			return nil, err
		}
		return models.PanelFromMatrix(out, req.Panel.Index, req.Panel.Columns), nil
	})
}

// Fractiles labels values by the fractile of their key. Keys default to the
// values themselves.
func (s *RecipeService) Fractiles(_ context.Context, req *models.FractilesRequest) ([]int, error) {
	return measure(s, "fractiles", func() ([]int, error) {
		keys := req.Keys
		if len(keys) == 0 {
			keys = req.Values
		}
		if len(keys) != len(req.Values) {
			return nil, fmt.Errorf("%d keys for %d values", len(keys), len(req.Values))
		}
		return filters.Fractiles(req.Values, req.Pct, keys, req.Ascending), nil
	})
}

// WeightedAverage is the NaN-ignoring, optionally weighted, column mean.
func (s *RecipeService) WeightedAverage(_ context.Context, req *models.WeightedAverageRequest) (models.Values, error) {
	return measure(s, "weighted_average", func() (models.Values, error) {
		x, err := req.Panel.Matrix()
		if err != nil {
			return nil, err
		}
		return filters.WeightedAverage(x, req.Weights)
	})
}

type nopMetrics struct{}

func (nopMetrics) ObserveRecipe(string, time.Duration, error) {}
func (nopMetrics) CacheLookup(string, bool)                   {}
func (nopMetrics) JobFinished(string, string, time.Duration)  {}
func (nopMetrics) Ingested(string, int)                       {}
