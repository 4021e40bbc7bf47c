package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"FinDS/internal/domain/models"
	"FinDS/internal/usecase"
	xhttp "FinDS/pkg/http"
	xlogger "FinDS/pkg/logger"
)

// VintageHandler serves stored ALFRED series and the series built from them.
type VintageHandler struct {
	logger  *xlogger.Logger
	vintage *usecase.VintageService
}

func NewVintageHandler(logger *xlogger.Logger, vintage *usecase.VintageService) *VintageHandler {
	return &VintageHandler{logger: logger, vintage: vintage}
}

func (h *VintageHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/vintage")
	g.POST("/construct", h.Construct)
	g.POST("/transform", h.Transform)
	g.POST("/spans", h.Spans)
	g.GET("/series", h.List)
	g.GET("/observations/:series", h.Observations)
	g.PUT("/observations/:series", h.PutObservations)
	g.DELETE("/observations/:series", h.Delete)
}

func (h *VintageHandler) Construct(c echo.Context) error {
	req := &models.VintageQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	points, err := h.vintage.Construct(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, points)
}

func (h *VintageHandler) Transform(c echo.Context) error {
	req := &models.VintageTransformRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	points, err := h.vintage.Transform(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, points)
}

func (h *VintageHandler) Spans(c echo.Context) error {
	req := &models.VintageSpansRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	spans, err := h.vintage.Spans(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	if spans == nil {
		spans = []models.Span{}
	}
	return xhttp.SuccessResponse(c, spans)
}

func (h *VintageHandler) List(c echo.Context) error {
	series, err := h.vintage.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list series", xlogger.Error(err))
		return errorResponse(c, err)
	}
	return xhttp.ListResponse(c, series, int64(len(series)))
}

func (h *VintageHandler) Observations(c echo.Context) error {
	obs, err := h.vintage.Get(c.Request().Context(), c.Param("series"))
	if err != nil {
		return errorResponse(c, err)
	}
	return xhttp.ListResponse(c, obs, int64(len(obs)))
}

func (h *VintageHandler) PutObservations(c echo.Context) error {
	req := &models.PutObservationsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	series := c.Param("series")
	n, err := h.vintage.Put(c.Request().Context(), "http", series, req.Observations)
	if err != nil {
		h.logger.Error("store observations", xlogger.String("series_id", series), xlogger.Error(err))
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"series_id": series, "rows": n})
}

func (h *VintageHandler) Delete(c echo.Context) error {
	if err := h.vintage.Delete(c.Request().Context(), c.Param("series")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
