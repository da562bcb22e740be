// Package movemode coordinates a move-mode session: an operator frees
// furniture from reservations, hands it to others, and may not leave the
// mode until every disturbed reservation is whole again.  Every confirmed
// move can be undone.
package movemode

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/venue-reassignment/internal/backend"
	"github.com/iliyamo/venue-reassignment/internal/events"
	"github.com/iliyamo/venue-reassignment/internal/model"
	"github.com/iliyamo/venue-reassignment/internal/pool"
	"github.com/iliyamo/venue-reassignment/internal/undo"
)

const dateLayout = "2006-01-02"

// Backend is the reservation service the coordinator moves furniture with.
type Backend interface {
	Unassign(ctx context.Context, req backend.MoveRequest) (backend.UnassignResult, error)
	Assign(ctx context.Context, req backend.MoveRequest) (backend.AssignResult, error)
	PoolData(ctx context.Context, reservationID uint64, date string) (model.ReservationSnapshot, error)
	PreferencesMatch(ctx context.Context, date string, prefs []string) ([]uint64, error)
}

// Options tunes a Coordinator.  Zero values select defaults.
type Options struct {
	UndoLimit        int
	HighlightTimeout time.Duration
}

// Coordinator owns one operator's move-mode session.  It is safe for
// concurrent use, but two moves touching the same reservation at the same
// time are not serialized.
type Coordinator struct {
	mu     sync.Mutex
	active bool
	date   string
	epoch  uint64
	undo   *undo.Stack

	pool    *pool.Store
	backend Backend
	bus     *events.Bus

	highlightTimeout time.Duration
	highlights       sync.WaitGroup
}

// New returns an inactive coordinator.
func New(b Backend, bus *events.Bus, opts Options) *Coordinator {
	if b == nil || bus == nil {
		panic("nil dependency passed to movemode.New")
	}
	if opts.HighlightTimeout <= 0 {
		opts.HighlightTimeout = 5 * time.Second
	}
	return &Coordinator{
		undo:             undo.NewStack(opts.UndoLimit),
		pool:             pool.NewStore(b, bus),
		backend:          b,
		bus:              bus,
		highlightTimeout: opts.HighlightTimeout,
	}
}

// Events returns the bus notifications are emitted on.
func (c *Coordinator) Events() *events.Bus { return c.bus }

// State is a read-only view of the session.
type State struct {
	Active                bool              `json:"active"`
	Date                  string            `json:"date,omitempty"`
	Pool                  []model.PoolEntry `json:"pool"`
	SelectedReservationID *uint64           `json:"selected_reservation_id"`
	UndoSize              int               `json:"undo_size"`
	CanUndo               bool              `json:"can_undo"`
}

// State returns a copy of the current session.
func (c *Coordinator) State() State {
	c.mu.Lock()
	st := State{Active: c.active, Date: c.date, UndoSize: c.undo.Size(), CanUndo: c.undo.CanUndo()}
	c.mu.Unlock()

	st.Pool = c.pool.Entries()
	if sel, ok := c.pool.Selected(); ok {
		id := sel.ReservationID
		st.SelectedReservationID = &id
	}
	return st
}

// UndoHistory returns the recorded actions, oldest first.
func (c *Coordinator) UndoHistory() []model.UndoAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undo.Actions()
}

// Activate starts a session for date.
func (c *Coordinator) Activate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return ErrInvalidDate
	}
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.active = true
	c.date = date
	c.resetLocked()
	c.mu.Unlock()

	log.Printf("move-mode: activated date=%s", date)
	c.bus.Emit(events.Event{Type: events.TypeActivate, Date: date})
	c.notice(events.LevelInfo, "Move mode activated. Free furniture and reassign it; every reservation must be complete before exiting.")
	return nil
}

// Deactivate ends the session when the pool is empty.  Otherwise the
// session stays active and ErrExitBlocked is returned.
func (c *Coordinator) Deactivate() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrModeInactive
	}
	if n := c.pool.Len(); n > 0 {
		c.mu.Unlock()
		msg := fmt.Sprintf("%d reservation(s) still need furniture; assign it before leaving move mode", n)
		log.Printf("move-mode: exit blocked, pool=%d", n)
		c.bus.Emit(events.Event{Type: events.TypeError, ErrorType: events.ErrTypeExitBlocked, Message: msg})
		c.notice(events.LevelWarning, msg)
		return fmt.Errorf("%w: %d pending", ErrExitBlocked, n)
	}
	c.active = false
	c.date = ""
	c.resetLocked()
	c.mu.Unlock()

	log.Printf("move-mode: deactivated")
	c.bus.Emit(events.Event{Type: events.TypeDeactivate})
	return nil
}

// ForceDeactivate ends the session regardless of the pool.  Reservations
// still in the pool are abandoned as they are on the server.
func (c *Coordinator) ForceDeactivate() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	abandoned := c.pool.Len()
	c.active = false
	c.date = ""
	c.resetLocked()
	c.mu.Unlock()

	log.Printf("move-mode: force deactivated, abandoned=%d", abandoned)
	c.bus.Emit(events.Event{Type: events.TypeDeactivate, Forced: true})
	if abandoned > 0 {
		c.notice(events.LevelWarning, fmt.Sprintf("Left move mode with %d incomplete reservation(s)", abandoned))
	}
	return nil
}

// resetLocked starts a new epoch.  The epoch is the pool store's
// generation, so a refresh tagged with an old epoch is rejected by the
// store however late it runs.
func (c *Coordinator) resetLocked() {
	c.undo.Clear()
	c.epoch = c.pool.Reset()
}

// session returns the active date and epoch.
func (c *Coordinator) session() (string, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return "", 0, ErrModeInactive
	}
	return c.date, c.epoch, nil
}

func (c *Coordinator) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && c.epoch == epoch
}

// pushUndo records a, unless the session it belongs to has ended.
func (c *Coordinator) pushUndo(epoch uint64, a model.UndoAction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.epoch != epoch {
		return false
	}
	c.undo.Push(a)
	return true
}

// MoveOutcome describes a confirmed assign or unassign.
type MoveOutcome struct {
	Count        int              `json:"count"`
	FurnitureIDs []uint64         `json:"furniture_ids"`
	Entry        *model.PoolEntry `json:"entry,omitempty"`
	Pool         string           `json:"pool"`
	Message      string           `json:"message,omitempty"`
}

// UnassignFurniture releases furniture from a reservation.
//
// override is the furniture the reservation held just before this release;
// it seeds the reservation's restoration target the first time it enters
// the pool.  A ctrl-click with no ids releases everything the reservation
// holds.
func (c *Coordinator) UnassignFurniture(ctx context.Context, reservationID uint64, furnitureIDs []uint64, isCtrlClick bool, override []model.Furniture) (MoveOutcome, error) {
	date, epoch, err := c.session()
	if err != nil {
		return MoveOutcome{}, err
	}
	if reservationID == 0 {
		return MoveOutcome{}, ErrInvalidReservation
	}
	ids := uniqueIDs(furnitureIDs)
	if len(ids) == 0 && isCtrlClick {
		snap, err := c.backend.PoolData(ctx, reservationID, date)
		if err != nil {
			c.reportFailure(events.ErrTypeUnassign, err)
			return MoveOutcome{}, err
		}
		ids = uniqueIDs(model.FurnitureIDs(snap.Furniture))
		if len(override) == 0 {
			override = snap.Furniture
		}
	}
	if len(ids) == 0 {
		return MoveOutcome{}, ErrNoFurniture
	}

	res, err := c.backend.Unassign(ctx, backend.MoveRequest{ReservationID: reservationID, FurnitureIDs: ids, Date: date})
	if err != nil {
		c.reportFailure(events.ErrTypeUnassign, err)
		return MoveOutcome{}, err
	}
	if !c.current(epoch) {
		return MoveOutcome{}, c.stale(reservationID)
	}
	out := MoveOutcome{Count: res.UnassignedCount, FurnitureIDs: res.FurnitureIDs, Pool: pool.OutcomeNone.String()}
	if res.UnassignedCount <= 0 {
		c.notice(events.LevelInfo, "No furniture was released")
		return out, nil
	}

	if len(res.FurnitureIDs) > 0 {
		action := model.UndoAction{Kind: model.ActionUnassign, ReservationID: reservationID, FurnitureIDs: res.FurnitureIDs, Date: date}
		if !c.pushUndo(epoch, action) {
			return out, c.stale(reservationID)
		}
		c.bus.Emit(events.Event{Type: events.TypeMove, Action: &action})
	} else {
		log.Printf("move-mode: unassign reservation=%d released %d without ids, not undoable", reservationID, res.UnassignedCount)
	}

	if err := c.refresh(ctx, epoch, reservationID, date, override, &out); err != nil {
		return out, err
	}
	out.Message = fmt.Sprintf("Released %d furniture unit(s)", res.UnassignedCount)
	if isCtrlClick {
		out.Message = fmt.Sprintf("Released all furniture (%d unit(s))", res.UnassignedCount)
	}
	c.notice(events.LevelSuccess, out.Message)
	return out, nil
}

// AssignFurniture gives furniture to a reservation.  A business rejection
// from the backend is shown to the operator as a warning and returned.
func (c *Coordinator) AssignFurniture(ctx context.Context, reservationID uint64, furnitureIDs []uint64) (MoveOutcome, error) {
	date, epoch, err := c.session()
	if err != nil {
		return MoveOutcome{}, err
	}
	if reservationID == 0 {
		return MoveOutcome{}, ErrInvalidReservation
	}
	ids := uniqueIDs(furnitureIDs)
	if len(ids) == 0 {
		return MoveOutcome{}, ErrNoFurniture
	}

	res, err := c.backend.Assign(ctx, backend.MoveRequest{ReservationID: reservationID, FurnitureIDs: ids, Date: date})
	if err != nil {
		if backend.IsRejection(err) {
			c.notice(events.LevelWarning, backend.RejectionMessage(err))
			return MoveOutcome{}, err
		}
		c.reportFailure(events.ErrTypeAssign, err)
		return MoveOutcome{}, err
	}
	if !c.current(epoch) {
		return MoveOutcome{}, c.stale(reservationID)
	}

	out := MoveOutcome{Count: len(res.FurnitureIDs), FurnitureIDs: res.FurnitureIDs, Pool: pool.OutcomeNone.String()}
	if len(res.FurnitureIDs) > 0 {
		action := model.UndoAction{Kind: model.ActionAssign, ReservationID: reservationID, FurnitureIDs: res.FurnitureIDs, Date: date}
		if !c.pushUndo(epoch, action) {
			return out, c.stale(reservationID)
		}
		c.bus.Emit(events.Event{Type: events.TypeMove, Action: &action})
	}
	if err := c.refresh(ctx, epoch, reservationID, date, nil, &out); err != nil {
		return out, err
	}
	out.Message = res.Message
	if out.Message == "" {
		out.Message = fmt.Sprintf("Assigned %d furniture unit(s)", len(res.FurnitureIDs))
	}
	c.notice(events.LevelSuccess, out.Message)
	return out, nil
}

// Undo reverts the most recent confirmed move by calling the opposite
// endpoint directly, so undoing never records a new action.  If the
// backend cannot be reached the action is put back on the stack.
func (c *Coordinator) Undo(ctx context.Context) (model.UndoAction, error) {
	_, epoch, err := c.session()
	if err != nil {
		return model.UndoAction{}, err
	}
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return model.UndoAction{}, ErrModeInactive
	}
	action, ok := c.undo.Pop()
	c.mu.Unlock()
	if !ok {
		c.notice(events.LevelInfo, "Nothing to undo")
		return model.UndoAction{}, ErrEmptyUndo
	}

	req := backend.MoveRequest{ReservationID: action.ReservationID, FurnitureIDs: action.FurnitureIDs, Date: action.Date}
	switch action.Kind.Inverse() {
	case model.ActionAssign:
		_, err = c.backend.Assign(ctx, req)
	default:
		_, err = c.backend.Unassign(ctx, req)
	}
	if err != nil && !backend.IsRejection(err) {
		if c.pushUndo(epoch, action) {
			log.Printf("move-mode: undo %s reservation=%d failed, restored: %v", action.Kind, action.ReservationID, err)
		}
		c.reportFailure(events.ErrTypeUndo, err)
		return action, err
	}
	if !c.current(epoch) {
		return action, c.stale(action.ReservationID)
	}
	if err != nil {
		c.notice(events.LevelWarning, backend.RejectionMessage(err))
	}

	var out MoveOutcome
	if err := c.refresh(ctx, epoch, action.ReservationID, action.Date, nil, &out); errors.Is(err, ErrStaleResponse) {
		return action, err
	}
	undone := action.Clone()
	c.bus.Emit(events.Event{Type: events.TypeUndo, Action: &undone})
	c.notice(events.LevelSuccess, "Move undone")
	return action, nil
}

// refresh re-evaluates the reservation's pool entry and starts the
// preference highlight when the reservation was auto-selected.  Snapshot
// failures were already reported by the store.
func (c *Coordinator) refresh(ctx context.Context, epoch uint64, reservationID uint64, date string, override []model.Furniture, out *MoveOutcome) error {
	res, err := c.pool.RefreshIn(ctx, epoch, reservationID, date, override)
	if errors.Is(err, pool.ErrStale) {
		return c.stale(reservationID)
	}
	if err != nil {
		return err
	}
	entry := res.Entry
	out.Entry = &entry
	out.Pool = res.Outcome.String()
	if res.AutoSelected {
		c.highlight(date, epoch, res.Entry)
	}
	return nil
}

// SelectReservation selects a pool entry and asks the backend which
// furniture matches its preferences.  The lookup runs in the background;
// its failure is only logged.
func (c *Coordinator) SelectReservation(ctx context.Context, reservationID uint64) (model.PoolEntry, error) {
	date, epoch, err := c.session()
	if err != nil {
		return model.PoolEntry{}, err
	}
	entry, ok := c.pool.Select(reservationID)
	if !ok {
		return model.PoolEntry{}, ErrNotInPool
	}
	c.highlight(date, epoch, entry)
	return entry, nil
}

// DeselectReservation clears the selection and any highlighted furniture.
func (c *Coordinator) DeselectReservation() error {
	if _, _, err := c.session(); err != nil {
		return err
	}
	c.pool.Deselect()
	c.bus.Emit(events.Event{Type: events.TypeResourceHighlight})
	return nil
}

func (c *Coordinator) highlight(date string, epoch uint64, entry model.PoolEntry) {
	prefs := append([]string(nil), entry.Preferences...)
	if len(prefs) == 0 {
		c.bus.Emit(events.Event{Type: events.TypeResourceHighlight})
		return
	}
	c.highlights.Add(1)
	go func() {
		defer c.highlights.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.highlightTimeout)
		defer cancel()

		ids, err := c.backend.PreferencesMatch(ctx, date, prefs)
		if err != nil {
			log.Printf("move-mode: preference match for reservation=%d failed: %v", entry.ReservationID, err)
			return
		}
		if !c.current(epoch) {
			return
		}
		if sel, ok := c.pool.Selected(); !ok || sel.ReservationID != entry.ReservationID {
			return
		}
		c.bus.Emit(events.Event{Type: events.TypeResourceHighlight, MatchedFurnitureIDs: ids, Preferences: prefs})
	}()
}

// Wait blocks until background preference lookups have finished.
func (c *Coordinator) Wait() { c.highlights.Wait() }

func (c *Coordinator) notice(level events.Level, msg string) {
	c.bus.Emit(events.Event{Type: events.TypeNotice, Level: level, Message: msg})
}

func (c *Coordinator) reportFailure(errType string, err error) {
	log.Printf("move-mode: %s failed: %v", errType, err)
	msg := err.Error()
	if m := backend.RejectionMessage(err); m != "" {
		msg = m
	}
	c.bus.Emit(events.Event{Type: events.TypeError, ErrorType: errType, Message: msg})
}

func (c *Coordinator) stale(reservationID uint64) error {
	log.Printf("move-mode: dropped response for reservation=%d, session ended", reservationID)
	c.bus.Emit(events.Event{
		Type:      events.TypeError,
		ErrorType: events.ErrTypeStaleResponse,
		Message:   fmt.Sprintf("response for reservation %d arrived after move mode ended", reservationID),
	})
	return ErrStaleResponse
}

// uniqueIDs drops zero and duplicate ids, keeping first-seen order.
func uniqueIDs(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
