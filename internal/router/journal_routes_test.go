package router

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-reassignment/internal/handler"
	"github.com/iliyamo/venue-reassignment/internal/repository"
)

type stubJournal struct {
	entries   map[uint64][]repository.JournalEntry
	err       error
	lastLimit int
}

func (s *stubJournal) ListByReservation(_ context.Context, id uint64, limit int) ([]repository.JournalEntry, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.entries[id], nil
}

func newJournalServer(t *testing.T, secret string) (*echo.Echo, *stubJournal) {
	t.Helper()
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	sj := &stubJournal{entries: map[uint64][]repository.JournalEntry{
		10: {
			{ID: 2, EventType: "undo", ReservationID: 10, ActionKind: "assign", FurnitureIDs: []uint64{9}, OccurredAt: at.Add(time.Minute)},
			{ID: 1, EventType: "move", ReservationID: 10, ActionKind: "assign", FurnitureIDs: []uint64{9}, OccurredAt: at},
		},
	}}
	e := echo.New()
	RegisterJournal(e, handler.NewJournalHandler(sj), secret)
	return e, sj
}

func TestJournalByReservation(t *testing.T) {
	e, sj := newJournalServer(t, "")

	rec := do(e, http.MethodGet, "/v1/journal/reservations/10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	require.Equal(t, float64(2), out["count"])
	first := out["items"].([]any)[0].(map[string]any)
	require.Equal(t, "undo", first["event_type"])
	require.Equal(t, []any{float64(9)}, first["furniture_ids"])
	require.Equal(t, 50, sj.lastLimit)

	rec = do(e, http.MethodGet, "/v1/journal/reservations/11?limit=9999", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{}, decode(t, rec)["items"])
	require.Equal(t, 500, sj.lastLimit)
}

func TestJournalRejectsBadInput(t *testing.T) {
	e, sj := newJournalServer(t, "")
	require.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/journal/reservations/abc", "", "").Code)
	require.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/journal/reservations/10?limit=0", "", "").Code)

	sj.err = errors.New("db gone")
	require.Equal(t, http.StatusInternalServerError, do(e, http.MethodGet, "/v1/journal/reservations/10", "", "").Code)
}

func TestJournalRequiresOperatorToken(t *testing.T) {
	e, _ := newJournalServer(t, "s3cret")
	require.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/v1/journal/reservations/10", "", "").Code)
	require.Equal(t, http.StatusOK, do(e, http.MethodGet, "/v1/journal/reservations/10", "", signed(t, "s3cret", "ADMIN")).Code)
}
