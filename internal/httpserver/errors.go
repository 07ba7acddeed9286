package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/velmart/backend/internal/apperr"
	"github.com/velmart/backend/internal/logging"
)

// errorHandler maps service errors onto HTTP statuses. Client-caused errors
// carry their message through; anything else is logged and hidden behind a
// generic 500 so internals never leak.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = c.JSON(he.Code, map[string]any{"error": he.Message})
		return
	}

	if !apperr.IsClient(err) {
		logging.FromContext(c.Request().Context()).Error("unhandled_error", "error", err)
		_ = c.JSON(http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrGateway):
		status = http.StatusBadGateway
	}
	_ = c.JSON(status, map[string]any{"error": err.Error()})
}
