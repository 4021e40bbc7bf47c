package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	domrepo "FinDS/internal/domain/repository"
	"FinDS/internal/services/alfred"
	"FinDS/internal/usecase"
	xhttp "FinDS/pkg/http"
	"FinDS/pkg/queue"
)

// toAppError maps use case errors onto the API error taxonomy.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	var recipeErr *usecase.RecipeError
	var upErr *usecase.UpstreamError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, domrepo.ErrSeriesNotFound),
		errors.Is(err, usecase.ErrJobNotFound),
		errors.Is(err, alfred.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.As(err, &recipeErr):
		return xhttp.UnprocessableError(err)
	case errors.As(err, &upErr):
		return xhttp.UpstreamError(err)
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrNotRunning):
		return xhttp.ServiceUnavailableError(err.Error()).WithError(err)
	}
	return xhttp.InternalError("Something went wrong").WithError(err)
}

func errorResponse(c echo.Context, err error) error {
	return xhttp.AppErrorResponse(c, toAppError(err))
}
