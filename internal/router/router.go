package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-reassignment/internal/handler"
	"github.com/iliyamo/venue-reassignment/internal/middleware"
)

// OperatorRoles are the JWT roles allowed to drive move mode.
var OperatorRoles = []string{"OPERATOR", "ADMIN"}

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterMoveMode registers the move-mode API under /v1/move-mode.  When
// jwtSecret is empty the routes are served without authentication.
func RegisterMoveMode(e *echo.Echo, h *handler.MoveModeHandler, jwtSecret string) {
	g := e.Group(
		"/v1/move-mode",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(jwtSecret != "", OperatorRoles...),
	)
	g.GET("/state", h.State)
	g.GET("/undo-history", h.History)
	g.GET("/events", h.Events)

	g.POST("/activate", h.Activate)
	g.POST("/deactivate", h.Deactivate)
	g.POST("/force-deactivate", h.ForceDeactivate)

	g.POST("/unassign", h.Unassign)
	g.POST("/assign", h.Assign)
	g.POST("/undo", h.Undo)

	g.POST("/select", h.Select)
	g.POST("/deselect", h.Deselect)
	g.POST("/keys", h.Key)
}

// RegisterJournal registers the read side of the move journal under
// /v1/journal, guarded like the move-mode API.
func RegisterJournal(e *echo.Echo, h *handler.JournalHandler, jwtSecret string) {
	g := e.Group(
		"/v1/journal",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(jwtSecret != "", OperatorRoles...),
	)
	g.GET("/reservations/:id", h.ByReservation)
}
