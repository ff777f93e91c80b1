package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/override"
	"github.com/iliyamo/gate-redemption/internal/redemption"
	"github.com/iliyamo/gate-redemption/internal/repository"
)

// errorJSON maps service errors to a status code and a short message.
func errorJSON(c echo.Context, err error) error {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, model.ErrMalformedInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, override.ErrInvalidRequest):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, repository.ErrTicketNotFound):
		status, msg = http.StatusNotFound, "ticket not found"
	case errors.Is(err, model.ErrAlreadyRedeemed):
		status, msg = http.StatusConflict, "ticket already redeemed"
	case errors.Is(err, repository.ErrStoreUnavailable), errors.Is(err, redemption.ErrNoActiveOccasion):
		status, msg = http.StatusServiceUnavailable, "ticket store unavailable, nothing was applied"
	}
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("request failed: %v", err)
	}
	return c.JSON(status, echo.Map{"error": msg})
}
