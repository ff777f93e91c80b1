package router // package router defines how HTTP routes are registered for the API

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gate-redemption/internal/handler"
	"github.com/iliyamo/gate-redemption/internal/middleware"
	"github.com/iliyamo/gate-redemption/internal/model"
)

// Deps carries everything the routes need.  Limiter may be nil.
type Deps struct {
	JWTSecret string
	Ping      func(ctx context.Context) error
	Auth      *handler.AuthHandler
	Tickets   *handler.TicketHandler
	Overrides *handler.OverrideHandler
	Limiter   echo.MiddlewareFunc
}

// Register mounts every route on e.
//
//	GET  /healthz                         public
//	POST /v1/auth/login                   public
//	POST /v1/scan                         SCANNER, SUPERVISOR (rate limited)
//	POST /v1/tickets/:id/redeem           SCANNER, SUPERVISOR (rate limited)
//	GET  /v1/tickets/:id                  SCANNER, SUPERVISOR
//	GET  /v1/tickets/code/:code           SCANNER, SUPERVISOR
//	GET  /v1/tickets/search?q=            SCANNER, SUPERVISOR
//	POST /v1/tickets/:id/force-admit      SUPERVISOR
//	POST /v1/tickets/:id/reset            SUPERVISOR
//	GET  /v1/tickets/:id/overrides        SUPERVISOR
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.Ping))
	e.POST("/v1/auth/login", d.Auth.Login)

	// one authenticated group; roles are enforced per route
	v1 := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	registerGate(v1, d.Tickets, d.Limiter)
	registerSupervisor(v1, d.Overrides)
}

func registerGate(g *echo.Group, h *handler.TicketHandler, limiter echo.MiddlewareFunc) {
	staff := middleware.RequireRole(model.RoleScanner, model.RoleSupervisor)
	writes := []echo.MiddlewareFunc{staff}
	if limiter != nil {
		writes = append(writes, limiter)
	}

	g.POST("/scan", h.Scan, writes...)
	g.POST("/tickets/:id/redeem", h.Redeem, writes...)
	g.GET("/tickets/search", h.Search, staff)
	g.GET("/tickets/code/:code", h.GetByCode, staff)
	g.GET("/tickets/:id", h.Get, staff)
}

func registerSupervisor(g *echo.Group, h *handler.OverrideHandler) {
	sup := middleware.RequireRole(model.RoleSupervisor)
	g.POST("/tickets/:id/force-admit", h.ForceAdmit, sup)
	g.POST("/tickets/:id/reset", h.Reset, sup)
	g.GET("/tickets/:id/overrides", h.History, sup)
}
