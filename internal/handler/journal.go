package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-reassignment/internal/repository"
)

// maxJournalLimit caps how many journal rows one request may return.
const maxJournalLimit = 500

// JournalReader lists journal entries.  *repository.JournalRepo satisfies it.
type JournalReader interface {
	ListByReservation(ctx context.Context, reservationID uint64, limit int) ([]repository.JournalEntry, error)
}

// JournalHandler serves the move journal recorded by cmd/journal.
type JournalHandler struct {
	Journal JournalReader
}

func NewJournalHandler(r JournalReader) *JournalHandler {
	if r == nil {
		panic("nil journal passed to NewJournalHandler")
	}
	return &JournalHandler{Journal: r}
}

// ByReservation handles GET /v1/journal/reservations/:id?limit=n and lists
// what happened to a reservation, newest first.
func (h *JournalHandler) ByReservation(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = min(n, maxJournalLimit)
	}

	items, err := h.Journal.ListByReservation(c.Request().Context(), id, limit)
	if err != nil {
		c.Logger().Errorf("journal: list reservation=%d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if items == nil {
		items = []repository.JournalEntry{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}
