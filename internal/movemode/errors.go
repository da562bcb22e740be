package movemode

import "errors"

// Failures returned by the coordinator.  Transport failures and business
// rejections from the backend are returned as the backend package's
// *TransportError and *RejectionError.
var (
	// ErrModeInactive is returned by every session operation while move
	// mode is off.  No request reaches the backend.
	ErrModeInactive = errors.New("move mode is not active")

	// ErrAlreadyActive is returned by Activate during a session.
	ErrAlreadyActive = errors.New("move mode is already active")

	// ErrExitBlocked is returned by Deactivate while reservations are
	// still waiting for furniture.
	ErrExitBlocked = errors.New("reservations in the pool still need furniture")

	// ErrEmptyUndo is returned by Undo when there is nothing to undo.
	ErrEmptyUndo = errors.New("nothing to undo")

	// ErrNotInPool is returned when selecting a reservation that is not
	// in the pool.  The selection is left unchanged.
	ErrNotInPool = errors.New("reservation is not in the pool")

	// ErrStaleResponse is returned when the session ended while a backend
	// call was in flight; the response is not applied.
	ErrStaleResponse = errors.New("move session ended before the backend answered")

	ErrInvalidDate        = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidReservation = errors.New("invalid reservation id")
	ErrNoFurniture        = errors.New("no furniture ids given")
)
