package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gate-redemption/internal/middleware"
	"github.com/iliyamo/gate-redemption/internal/override"
)

// OverrideHandler exposes the supervisor actions.  The operator id always
// comes from the token, never from the body.
type OverrideHandler struct {
	Overrides *override.Service
}

func NewOverrideHandler(svc *override.Service) *OverrideHandler {
	if svc == nil {
		panic("nil override service passed to NewOverrideHandler")
	}
	return &OverrideHandler{Overrides: svc}
}

type overrideReq struct {
	Justification string `json:"justification"`
}

func (h *OverrideHandler) request(c echo.Context) (override.Request, error) {
	var body overrideReq
	if err := c.Bind(&body); err != nil {
		return override.Request{}, err
	}
	return override.Request{
		TicketID:      c.Param("id"),
		Justification: body.Justification,
		OperatorID:    middleware.OperatorID(c),
	}, nil
}

// ForceAdmit handles POST /v1/tickets/:id/force-admit.
func (h *OverrideHandler) ForceAdmit(c echo.Context) error {
	req, err := h.request(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	res, err := h.Overrides.ForceAdmit(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Reset handles POST /v1/tickets/:id/reset.
func (h *OverrideHandler) Reset(c echo.Context) error {
	req, err := h.request(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	res, err := h.Overrides.ResetEntry(c.Request().Context(), req)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// History handles GET /v1/tickets/:id/overrides.
func (h *OverrideHandler) History(c echo.Context) error {
	entries, err := h.Overrides.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": entries, "count": len(entries)})
}
