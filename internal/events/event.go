// Package events carries move-mode notifications from the coordinator to
// whoever renders them: the map UI, the broker publisher, tests.
package events

import (
	"time"

	"github.com/iliyamo/venue-reassignment/internal/model"
)

// Type names a notification.
type Type string

const (
	TypeActivate          Type = "activate"
	TypeDeactivate        Type = "deactivate"
	TypePoolUpdate        Type = "pool-update"
	TypeSelectionChange   Type = "selection-change"
	TypeResourceHighlight Type = "resource-highlight"
	TypeMove              Type = "move"
	TypeUndo              Type = "undo"
	TypeError             Type = "error"
	TypeNotice            Type = "notice"
)

// Level is the severity of a notice shown to the operator.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Error types reported on TypeError events.
const (
	ErrTypeExitBlocked   = "exit_blocked"
	ErrTypeUnassign      = "unassign"
	ErrTypeAssign        = "assign"
	ErrTypeUndo          = "undo"
	ErrTypePoolRefresh   = "pool_refresh"
	ErrTypeStaleResponse = "stale_response"
)

// Event is a single notification.  Only the fields relevant to Type are
// populated.
type Event struct {
	Type Type      `json:"type"`
	At   time.Time `json:"at"`

	Date   string `json:"date,omitempty"`   // activate
	Forced bool   `json:"forced,omitempty"` // deactivate

	Pool        []model.PoolEntry `json:"pool"`                  // pool-update, [] when empty
	Reservation *model.PoolEntry  `json:"reservation,omitempty"` // selection-change, nil when cleared

	MatchedFurnitureIDs []uint64 `json:"matched_furniture_ids,omitempty"` // resource-highlight
	Preferences         []string `json:"preferences,omitempty"`

	Action *model.UndoAction `json:"action,omitempty"` // move, undo

	ErrorType string `json:"error_type,omitempty"` // error
	Level     Level  `json:"level,omitempty"`      // notice
	Message   string `json:"message,omitempty"`    // error, notice
}

// Clone deep-copies e so that a listener cannot alter what the next one sees.
func (e Event) Clone() Event {
	out := e
	if e.Pool != nil {
		out.Pool = make([]model.PoolEntry, 0, len(e.Pool))
		for _, p := range e.Pool {
			out.Pool = append(out.Pool, p.Clone())
		}
	}
	if e.Reservation != nil {
		r := e.Reservation.Clone()
		out.Reservation = &r
	}
	out.MatchedFurnitureIDs = append([]uint64(nil), e.MatchedFurnitureIDs...)
	out.Preferences = append([]string(nil), e.Preferences...)
	if e.Action != nil {
		a := e.Action.Clone()
		out.Action = &a
	}
	return out
}

// ReservationID returns the reservation an event refers to, or 0.
func (e Event) ReservationID() uint64 {
	switch {
	case e.Action != nil:
		return e.Action.ReservationID
	case e.Reservation != nil:
		return e.Reservation.ReservationID
	}
	return 0
}
