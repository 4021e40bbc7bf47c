package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"FinDS/internal/usecase"
	xhttp "FinDS/pkg/http"
	xlogger "FinDS/pkg/logger"
)

// RecipesHandler exposes the numerical recipes under /api.
type RecipesHandler struct {
	logger  *xlogger.Logger
	recipes *usecase.RecipeService
}

func NewRecipesHandler(logger *xlogger.Logger, recipes *usecase.RecipeService) *RecipesHandler {
	return &RecipesHandler{logger: logger, recipes: recipes}
}

func (h *RecipesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.POST("/factors/em", handle(h, h.recipes.FactorsEM))
	g.POST("/factors/select", handle(h, h.recipes.SelectFactors))
	g.POST("/factors/mrsq", handle(h, h.recipes.MarginalRSquared))
	g.POST("/impute/em", handle(h, h.recipes.ImputeEM))

	g.POST("/spectral/correlation", handle(h, h.recipes.Correlation))
	g.POST("/spectral/align", handle(h, h.recipes.Align))
	g.POST("/spectral/neweywest", handle(h, h.recipes.NeweyWest))

	g.POST("/filters/outliers", handle(h, h.recipes.RemoveOutliers))
	g.POST("/filters/winsorize", handle(h, h.recipes.Winsorize))
	g.POST("/filters/fractiles", handle(h, h.recipes.Fractiles))
	g.POST("/filters/weighted-average", handle(h, h.recipes.WeightedAverage))

	g.POST("/econ/ols", handle(h, h.recipes.LeastSquares))
	g.POST("/econ/lm", handle(h, h.recipes.LM))
	g.POST("/econ/fstats", handle(h, h.recipes.FStats))
	g.POST("/econ/adf", handle(h, h.recipes.ADF))
	g.POST("/econ/integration-order", handle(h, h.recipes.IntegrationOrder))

	g.POST("/risk/measures", handle(h, h.recipes.RiskMeasures))
	g.POST("/risk/kupiec", handle(h, h.recipes.Kupiec))
	g.POST("/risk/pof", handle(h, h.recipes.POF))
	g.POST("/risk/drawdown", handle(h, h.recipes.MaximumDrawdown))
	g.POST("/risk/volatility", handle(h, h.recipes.Volatility))
	g.POST("/risk/halflife", handle(h, h.recipes.Halflife))
	g.POST("/risk/min-variance", handle(h, h.recipes.MinVariance))

	g.POST("/bonds/present-value", handle(h, h.recipes.PresentValue))
	g.POST("/bonds/dcf", handle(h, h.recipes.DiscountedCashFlow))
	g.POST("/bonds/forward", handle(h, h.recipes.ForwardRates))
	g.POST("/bonds/bootstrap", handle(h, h.recipes.BootstrapCurve))
	g.POST("/bonds/duration", handle(h, h.recipes.ParDuration))
}

// handle binds and validates a Req body, runs fn and writes its result.
func handle[Req any, Res any](h *RecipesHandler, fn func(context.Context, *Req) (Res, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(Req)
		if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
			return xhttp.BadRequestResponse(c, verr)
		}
		res, err := fn(c.Request().Context(), req)
		if err != nil {
			appErr := toAppError(err)
			if appErr.Status >= 500 {
				h.logger.Error("recipe failed", xlogger.String("route", c.Path()), xlogger.Error(err))
			}
			return xhttp.AppErrorResponse(c, appErr)
		}
		return xhttp.SuccessResponse(c, res)
	}
}

