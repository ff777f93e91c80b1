package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gate-redemption/internal/lookup"
	"github.com/iliyamo/gate-redemption/internal/model"
	"github.com/iliyamo/gate-redemption/internal/redemption"
	"github.com/iliyamo/gate-redemption/internal/repository"
)

// TicketHandler serves the gate: scanning, redeeming and read-only
// lookups.
type TicketHandler struct {
	Engine *redemption.Engine
	Lookup *lookup.Service
}

func NewTicketHandler(engine *redemption.Engine, lk *lookup.Service) *TicketHandler {
	if engine == nil || lk == nil {
		panic("nil dependency passed to NewTicketHandler")
	}
	return &TicketHandler{Engine: engine, Lookup: lk}
}

// outcomeResp is the body of every scan and redeem response.  Admitted is
// the only field a gate display needs to decide.
type outcomeResp struct {
	Admitted bool `json:"admitted"`
	model.Outcome
}

func outcomeStatus(k model.OutcomeKind) int {
	switch k {
	case model.Admitted:
		return http.StatusOK
	case model.RejectedAlreadyUsed:
		return http.StatusConflict
	case model.RejectedNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func writeOutcome(c echo.Context, status int, o model.Outcome) error {
	return c.JSON(status, outcomeResp{Admitted: o.Admitted(), Outcome: o})
}

type scanReq struct {
	Input string `json:"input"`
}

// Scan accepts whatever the scanner produced (QR payload or typed code),
// resolves it to a ticket and redeems it.
func (h *TicketHandler) Scan(c echo.Context) error {
	var req scanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	id, err := h.Lookup.Resolve(c.Request().Context(), req.Input)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrMalformedInput):
		return writeOutcome(c, http.StatusBadRequest, model.Outcome{Kind: model.RejectedNotFound, Reason: "unrecognised ticket input"})
	case errors.Is(err, repository.ErrTicketNotFound):
		return writeOutcome(c, http.StatusNotFound, model.Outcome{Kind: model.RejectedNotFound, Reason: "no ticket with this code"})
	default:
		c.Logger().Errorf("scan resolve failed: %v", err)
		return writeOutcome(c, http.StatusServiceUnavailable, model.Outcome{Kind: model.RejectedSystemError, Reason: "ticket store unavailable, nothing was applied"})
	}
	o := h.Engine.Redeem(c.Request().Context(), id)
	return writeOutcome(c, outcomeStatus(o.Kind), o)
}

// Redeem handles POST /v1/tickets/:id/redeem.
func (h *TicketHandler) Redeem(c echo.Context) error {
	raw := c.Param("id")
	if _, err := model.ParseTicketID(raw); err != nil {
		return writeOutcome(c, http.StatusBadRequest, model.Outcome{Kind: model.RejectedNotFound, Reason: "malformed ticket identifier"})
	}
	o := h.Engine.Redeem(c.Request().Context(), raw)
	return writeOutcome(c, outcomeStatus(o.Kind), o)
}

// Get handles GET /v1/tickets/:id.
func (h *TicketHandler) Get(c echo.Context) error {
	v, err := h.Lookup.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// GetByCode handles GET /v1/tickets/code/:code.
func (h *TicketHandler) GetByCode(c echo.Context) error {
	v, err := h.Lookup.GetByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Search handles GET /v1/tickets/search?q=.
func (h *TicketHandler) Search(c echo.Context) error {
	items, err := h.Lookup.Search(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}
