// Package queue moves move-mode events through RabbitMQ: the server
// publishes them and the journal consumer records them.
package queue

import (
    "time"

    "github.com/iliyamo/venue-reassignment/internal/events"
)

// DefaultQueue is the durable queue carrying move-mode events.
const DefaultQueue = "moves.events"

// MoveEvent is the JSON payload published for every bus event.  It is
// flat so that consumers need not know the in-process event types.
type MoveEvent struct {
    Type          string   `json:"type"`
    OccurredAt    string   `json:"occurred_at"` // RFC3339Nano, UTC
    Date          string   `json:"date,omitempty"`
    Forced        bool     `json:"forced,omitempty"`
    ReservationID uint64   `json:"reservation_id,omitempty"`
    ActionKind    string   `json:"action_kind,omitempty"`
    FurnitureIDs  []uint64 `json:"furniture_ids,omitempty"`
    PoolSize      int      `json:"pool_size"`
    PoolIDs       []uint64 `json:"pool_reservation_ids,omitempty"`
    ErrorType     string   `json:"error_type,omitempty"`
    Level         string   `json:"level,omitempty"`
    Message       string   `json:"message,omitempty"`
}

// FromEvent flattens a bus event.
func FromEvent(e events.Event) MoveEvent {
    at := e.At
    if at.IsZero() {
        at = time.Now()
    }
    m := MoveEvent{
        Type:          string(e.Type),
        OccurredAt:    at.UTC().Format(time.RFC3339Nano),
        Date:          e.Date,
        Forced:        e.Forced,
        ReservationID: e.ReservationID(),
        PoolSize:      len(e.Pool),
        ErrorType:     e.ErrorType,
        Level:         string(e.Level),
        Message:       e.Message,
    }
    for _, p := range e.Pool {
        m.PoolIDs = append(m.PoolIDs, p.ReservationID)
    }
    switch {
    case e.Action != nil:
        m.ActionKind = string(e.Action.Kind)
        m.Date = e.Action.Date
        m.FurnitureIDs = append([]uint64(nil), e.Action.FurnitureIDs...)
    case e.Type == events.TypeResourceHighlight:
        m.FurnitureIDs = append([]uint64(nil), e.MatchedFurnitureIDs...)
    }
    return m
}

// Journaled reports whether the journal keeps this kind of event.
func (m MoveEvent) Journaled() bool {
    switch events.Type(m.Type) {
    case events.TypeMove, events.TypeUndo, events.TypePoolUpdate, events.TypeError:
        return true
    }
    return false
}
