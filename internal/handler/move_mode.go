package handler

// This file exposes the move-mode coordinator to the map UI.  Every
// endpoint works on the single session owned by the coordinator; the UI
// renders what it receives here and on the event stream.

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-reassignment/internal/backend"
	"github.com/iliyamo/venue-reassignment/internal/model"
	"github.com/iliyamo/venue-reassignment/internal/movemode"
)

// MoveModeHandler translates HTTP requests into coordinator calls.
type MoveModeHandler struct {
	Coordinator *movemode.Coordinator
}

// NewMoveModeHandler constructs a MoveModeHandler.  The coordinator must
// be non-nil.
func NewMoveModeHandler(c *movemode.Coordinator) *MoveModeHandler {
	if c == nil {
		panic("nil coordinator passed to NewMoveModeHandler")
	}
	return &MoveModeHandler{Coordinator: c}
}

// Activate handles POST /v1/move-mode/activate with body {"date": "YYYY-MM-DD"}.
func (h *MoveModeHandler) Activate(c echo.Context) error {
	var body struct {
		Date string `json:"date"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.Coordinator.Activate(body.Date); err != nil {
		return moveError(c, err)
	}
	return c.JSON(http.StatusOK, h.Coordinator.State())
}

// Deactivate handles POST /v1/move-mode/deactivate.  It answers 409 while
// reservations in the pool still need furniture.
func (h *MoveModeHandler) Deactivate(c echo.Context) error {
	if err := h.Coordinator.Deactivate(); err != nil {
		return moveError(c, err)
	}
	return c.JSON(http.StatusOK, h.Coordinator.State())
}

// ForceDeactivate handles POST /v1/move-mode/force-deactivate.
func (h *MoveModeHandler) ForceDeactivate(c echo.Context) error {
	abandoned := len(h.Coordinator.State().Pool)
	if err := h.Coordinator.ForceDeactivate(); err != nil {
		return moveError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"forced": true, "abandoned": abandoned})
}

// State handles GET /v1/move-mode/state.
func (h *MoveModeHandler) State(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Coordinator.State())
}

// History handles GET /v1/move-mode/undo-history.
func (h *MoveModeHandler) History(c echo.Context) error {
	items := h.Coordinator.UndoHistory()
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// Unassign handles POST /v1/move-mode/unassign.  initial_furniture is what
// the reservation held right before this release, as drawn on the map.
func (h *MoveModeHandler) Unassign(c echo.Context) error {
	var body struct {
		ReservationID    uint64            `json:"reservation_id"`
		FurnitureIDs     []uint64          `json:"furniture_ids"`
		CtrlClick        bool              `json:"ctrl_click"`
		InitialFurniture []model.Furniture `json:"initial_furniture"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	out, err := h.Coordinator.UnassignFurniture(c.Request().Context(), body.ReservationID, body.FurnitureIDs, body.CtrlClick, body.InitialFurniture)
	if err != nil {
		return moveError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Assign handles POST /v1/move-mode/assign.
func (h *MoveModeHandler) Assign(c echo.Context) error {
	var body struct {
		ReservationID uint64   `json:"reservation_id"`
		FurnitureIDs  []uint64 `json:"furniture_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	out, err := h.Coordinator.AssignFurniture(c.Request().Context(), body.ReservationID, body.FurnitureIDs)
	if err != nil {
		return moveError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Undo handles POST /v1/move-mode/undo.
func (h *MoveModeHandler) Undo(c echo.Context) error {
	action, err := h.Coordinator.Undo(c.Request().Context())
	if err != nil {
		return moveError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"undone": action})
}

// Select handles POST /v1/move-mode/select with body {"reservation_id": n}.
func (h *MoveModeHandler) Select(c echo.Context) error {
	var body struct {
		ReservationID uint64 `json:"reservation_id"`
	}
	if err := c.Bind(&body); err != nil || body.ReservationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	entry, err := h.Coordinator.SelectReservation(c.Request().Context(), body.ReservationID)
	if err != nil {
		return moveError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": entry})
}

// Deselect handles POST /v1/move-mode/deselect.
func (h *MoveModeHandler) Deselect(c echo.Context) error {
	if err := h.Coordinator.DeselectReservation(); err != nil {
		return moveError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Key handles POST /v1/move-mode/keys with body {"key": "z", "ctrl": true}.
func (h *MoveModeHandler) Key(c echo.Context) error {
	var body struct {
		Key  string `json:"key"`
		Ctrl bool   `json:"ctrl"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	handled, err := h.Coordinator.HandleKey(c.Request().Context(), body.Key, body.Ctrl)
	if err != nil {
		return moveError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"handled": handled})
}

// moveError maps coordinator and backend failures onto status codes.
func moveError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, movemode.ErrInvalidDate),
		errors.Is(err, movemode.ErrInvalidReservation),
		errors.Is(err, movemode.ErrNoFurniture):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, movemode.ErrNotInPool):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, movemode.ErrExitBlocked):
		return c.JSON(http.StatusConflict, echo.Map{"error": "exit_blocked", "message": err.Error()})
	case errors.Is(err, movemode.ErrModeInactive),
		errors.Is(err, movemode.ErrAlreadyActive),
		errors.Is(err, movemode.ErrEmptyUndo),
		errors.Is(err, movemode.ErrStaleResponse):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case backend.IsRejection(err):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": backend.RejectionMessage(err)})
	case backend.IsTransport(err):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "reservation service unavailable"})
	}
	c.Logger().Errorf("move-mode: unexpected error: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
