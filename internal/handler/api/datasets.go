package api

import (
	"github.com/labstack/echo/v4"

	"FinDS/internal/usecase"
	xhttp "FinDS/pkg/http"
	xlogger "FinDS/pkg/logger"
)

// DatasetsHandler serves downloaded datasets.
type DatasetsHandler struct {
	logger   *xlogger.Logger
	datasets *usecase.DatasetService
}

func NewDatasetsHandler(logger *xlogger.Logger, datasets *usecase.DatasetService) *DatasetsHandler {
	return &DatasetsHandler{logger: logger, datasets: datasets}
}

func (h *DatasetsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/datasets")
	g.GET("/fredmd", h.FredMD)
	g.GET("/shiller/:page", h.Shiller)
	g.GET("/popular", h.Popular)
}

// FredMD handles GET /api/datasets/fredmd?kind=md&vintage=202001&transform=true.
func (h *DatasetsHandler) FredMD(c echo.Context) error {
	kind := c.QueryParam("kind")
	if kind == "" {
		kind = "md"
	}
	vintage := xhttp.QueryInt(c, "vintage", 0)
	transform := c.QueryParam("transform") == "true" || c.QueryParam("transform") == "1"

	ds, err := h.datasets.FredMD(c.Request().Context(), kind, vintage, transform)
	if err != nil {
		return errorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return xhttp.SuccessResponse(c, ds)
}

func (h *DatasetsHandler) Shiller(c echo.Context) error {
	points, err := h.datasets.Shiller(c.Request().Context(), c.Param("page"))
	if err != nil {
		return errorResponse(c, err)
	}
	return xhttp.ListResponse(c, points, int64(len(points)))
}

func (h *DatasetsHandler) Popular(c echo.Context) error {
	ids, err := h.datasets.Popular(c.Request().Context(), xhttp.QueryInt(c, "page", 1))
	if err != nil {
		return errorResponse(c, err)
	}
	return xhttp.ListResponse(c, ids, int64(len(ids)))
}
