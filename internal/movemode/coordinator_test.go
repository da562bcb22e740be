package movemode

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-reassignment/internal/backend"
	"github.com/iliyamo/venue-reassignment/internal/events"
	"github.com/iliyamo/venue-reassignment/internal/model"
)

const testDate = "2025-06-01"

type call struct {
	op  string
	req backend.MoveRequest
}

// fakeBackend keeps furniture assignments in memory the way the real
// reservation service does.
type fakeBackend struct {
	mu          sync.Mutex
	capacity    map[uint64]int      // furniture id -> capacity
	assigned    map[uint64][]uint64 // reservation id -> furniture ids
	people      map[uint64]int
	prefs       map[uint64][]string
	matches     []uint64
	calls       []call
	unassignErr error
	assignErr   error
	poolErr     error
	prefsErr    error
	releaseOnly []uint64 // when set, unassign only releases these
	beforeReply func(op string)
	beforePool  func() // runs once, at the start of the next PoolData
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		capacity: map[uint64]int{1: 2, 2: 1, 9: 3},
		assigned: map[uint64][]uint64{10: {1, 2}},
		people:   map[uint64]int{10: 3},
		prefs:    map[uint64][]string{},
	}
}

func (f *fakeBackend) record(op string, req backend.MoveRequest) {
	f.calls = append(f.calls, call{op: op, req: req})
}

func (f *fakeBackend) Unassign(_ context.Context, req backend.MoveRequest) (backend.UnassignResult, error) {
	f.mu.Lock()
	f.record("unassign", req)
	hook := f.beforeReply
	if f.unassignErr != nil {
		err := f.unassignErr
		f.mu.Unlock()
		return backend.UnassignResult{}, err
	}
	want := req.FurnitureIDs
	if f.releaseOnly != nil {
		want = f.releaseOnly
	}
	var released []uint64
	keep := []uint64{}
	for _, id := range f.assigned[req.ReservationID] {
		if contains(want, id) {
			released = append(released, id)
			continue
		}
		keep = append(keep, id)
	}
	f.assigned[req.ReservationID] = keep
	f.mu.Unlock()
	if hook != nil {
		hook("unassign")
	}
	return backend.UnassignResult{UnassignedCount: len(released), FurnitureIDs: released}, nil
}

func (f *fakeBackend) Assign(_ context.Context, req backend.MoveRequest) (backend.AssignResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("assign", req)
	if f.assignErr != nil {
		return backend.AssignResult{}, f.assignErr
	}
	for res, ids := range f.assigned {
		for _, id := range req.FurnitureIDs {
			if contains(ids, id) && res != req.ReservationID {
				return backend.AssignResult{}, &backend.RejectionError{Op: "assign", Message: "furniture already taken"}
			}
		}
	}
	f.assigned[req.ReservationID] = append(f.assigned[req.ReservationID], req.FurnitureIDs...)
	return backend.AssignResult{FurnitureIDs: req.FurnitureIDs}, nil
}

func (f *fakeBackend) PoolData(_ context.Context, id uint64, _ string) (model.ReservationSnapshot, error) {
	f.mu.Lock()
	hook := f.beforePool
	f.beforePool = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poolErr != nil {
		return model.ReservationSnapshot{}, f.poolErr
	}
	snap := model.ReservationSnapshot{ReservationID: id, NumPeople: f.people[id], Preferences: f.prefs[id]}
	for _, fid := range f.assigned[id] {
		snap.Furniture = append(snap.Furniture, model.Furniture{ID: fid, Capacity: f.capacity[fid]})
	}
	return snap, nil
}

func (f *fakeBackend) PreferencesMatch(_ context.Context, _ string, _ []string) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prefsErr != nil {
		return nil, f.prefsErr
	}
	return f.matches, nil
}

func (f *fakeBackend) moveCalls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func contains(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type eventLog struct {
	mu  sync.Mutex
	got []events.Event
}

func (l *eventLog) Notify(e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, e)
}

func (l *eventLog) ofType(t events.Type) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.got {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = nil
}

func setup(t *testing.T) (*Coordinator, *fakeBackend, *eventLog) {
	t.Helper()
	fb := newFakeBackend()
	bus := events.NewBus()
	log := &eventLog{}
	bus.SubscribeAll(log)
	c := New(fb, bus, Options{})
	t.Cleanup(c.Wait)
	return c, fb, log
}

var initialOf10 = []model.Furniture{{ID: 1, Capacity: 2}, {ID: 2, Capacity: 1}}

func TestOperationsRequireActiveMode(t *testing.T) {
	c, fb, _ := setup(t)
	ctx := context.Background()

	_, err := c.UnassignFurniture(ctx, 10, []uint64{1}, false, nil)
	require.ErrorIs(t, err, ErrModeInactive)
	_, err = c.AssignFurniture(ctx, 10, []uint64{1})
	require.ErrorIs(t, err, ErrModeInactive)
	_, err = c.Undo(ctx)
	require.ErrorIs(t, err, ErrModeInactive)
	_, err = c.SelectReservation(ctx, 10)
	require.ErrorIs(t, err, ErrModeInactive)
	require.ErrorIs(t, c.DeselectReservation(), ErrModeInactive)
	require.ErrorIs(t, c.Deactivate(), ErrModeInactive)

	require.Empty(t, fb.moveCalls())
}

func TestActivate(t *testing.T) {
	c, _, log := setup(t)
	require.ErrorIs(t, c.Activate("01/06/2025"), ErrInvalidDate)
	require.NoError(t, c.Activate(testDate))
	require.ErrorIs(t, c.Activate(testDate), ErrAlreadyActive)

	st := c.State()
	require.True(t, st.Active)
	require.Equal(t, testDate, st.Date)
	require.Empty(t, st.Pool)
	require.Nil(t, st.SelectedReservationID)

	act := log.ofType(events.TypeActivate)
	require.Len(t, act, 1)
	require.Equal(t, testDate, act[0].Date)
	require.NotEmpty(t, log.ofType(events.TypeNotice))
}

func TestUnassignAssignUndoScenario(t *testing.T) {
	c, fb, log := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(testDate))

	out, err := c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	require.Equal(t, "added", out.Pool)

	st := c.State()
	require.Len(t, st.Pool, 1)
	entry := st.Pool[0]
	require.Equal(t, uint64(10), entry.ReservationID)
	require.Equal(t, 3, entry.TotalNeeded)
	require.Equal(t, 0, entry.AssignedCount)
	require.False(t, entry.IsComplete)
	require.NotNil(t, st.SelectedReservationID)
	require.Equal(t, uint64(10), *st.SelectedReservationID)
	require.Equal(t, 1, st.UndoSize)

	out, err = c.AssignFurniture(ctx, 10, []uint64{9})
	require.NoError(t, err)
	require.Equal(t, "removed", out.Pool)
	st = c.State()
	require.Empty(t, st.Pool)
	require.Nil(t, st.SelectedReservationID)
	require.Equal(t, 2, st.UndoSize)

	action, err := c.Undo(ctx)
	require.NoError(t, err)
	require.Equal(t, model.ActionAssign, action.Kind)

	calls := fb.moveCalls()
	last := calls[len(calls)-1]
	require.Equal(t, "unassign", last.op)
	require.Equal(t, backend.MoveRequest{ReservationID: 10, FurnitureIDs: []uint64{9}, Date: testDate}, last.req)

	st = c.State()
	require.Len(t, st.Pool, 1)
	require.Equal(t, 0, st.Pool[0].AssignedCount)
	require.Equal(t, 1, st.UndoSize)

	undone := log.ofType(events.TypeUndo)
	require.Len(t, undone, 1)
	require.Equal(t, []uint64{9}, undone[0].Action.FurnitureIDs)
}

func TestUndoUnassignIssuesAssign(t *testing.T) {
	c, fb, _ := setup(t)
	ctx := context.Background()
	fb.capacity[5], fb.capacity[7] = 1, 1
	fb.assigned[20] = []uint64{5, 7}
	fb.people[20] = 2
	require.NoError(t, c.Activate(testDate))

	_, err := c.UnassignFurniture(ctx, 20, []uint64{5, 7}, false, nil)
	require.NoError(t, err)

	_, err = c.Undo(ctx)
	require.NoError(t, err)
	calls := fb.moveCalls()
	last := calls[len(calls)-1]
	require.Equal(t, "assign", last.op)
	require.Equal(t, backend.MoveRequest{ReservationID: 20, FurnitureIDs: []uint64{5, 7}, Date: testDate}, last.req)

	st := c.State()
	require.Zero(t, st.UndoSize)
	require.Empty(t, st.Pool)
}

func TestUndoRecordsBackendConfirmedIDs(t *testing.T) {
	c, fb, _ := setup(t)
	require.NoError(t, c.Activate(testDate))
	fb.releaseOnly = []uint64{2}

	out, err := c.UnassignFurniture(context.Background(), 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, out.FurnitureIDs)

	hist := c.UndoHistory()
	require.Len(t, hist, 1)
	require.Equal(t, []uint64{2}, hist[0].FurnitureIDs)
	require.Equal(t, 2, out.Entry.AssignedCount)
}

func TestConfirmedMovesAreAnnounced(t *testing.T) {
	c, fb, log := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(testDate))
	fb.releaseOnly = []uint64{2}

	_, err := c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)
	fb.releaseOnly = nil
	_, err = c.AssignFurniture(ctx, 10, []uint64{9})
	require.NoError(t, err)

	moves := log.ofType(events.TypeMove)
	require.Len(t, moves, 2)
	require.Equal(t, model.UndoAction{Kind: model.ActionUnassign, ReservationID: 10, FurnitureIDs: []uint64{2}, Date: testDate}, *moves[0].Action)
	require.Equal(t, model.UndoAction{Kind: model.ActionAssign, ReservationID: 10, FurnitureIDs: []uint64{9}, Date: testDate}, *moves[1].Action)
	require.Equal(t, uint64(10), moves[1].ReservationID())

	// Undo replays without announcing a new move.
	_, err = c.Undo(ctx)
	require.NoError(t, err)
	require.Len(t, log.ofType(events.TypeMove), 2)
}

func TestUnassignNothingReleasedPushesNothing(t *testing.T) {
	c, _, _ := setup(t)
	require.NoError(t, c.Activate(testDate))

	out, err := c.UnassignFurniture(context.Background(), 10, []uint64{77}, false, nil)
	require.NoError(t, err)
	require.Zero(t, out.Count)
	st := c.State()
	require.Zero(t, st.UndoSize)
	require.Empty(t, st.Pool)
}

func TestUnassignTransportFailureLeavesStateUntouched(t *testing.T) {
	c, fb, log := setup(t)
	require.NoError(t, c.Activate(testDate))
	fb.unassignErr = &backend.TransportError{Op: "unassign", Err: errors.New("connection refused")}

	_, err := c.UnassignFurniture(context.Background(), 10, []uint64{1}, false, nil)
	require.True(t, backend.IsTransport(err))
	st := c.State()
	require.Zero(t, st.UndoSize)
	require.Empty(t, st.Pool)

	errs := log.ofType(events.TypeError)
	require.Len(t, errs, 1)
	require.Equal(t, events.ErrTypeUnassign, errs[0].ErrorType)
}

func TestAssignRejectionIsWarning(t *testing.T) {
	c, fb, log := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(testDate))
	_, err := c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)
	log.reset()

	fb.assignErr = &backend.RejectionError{Op: "assign", Message: "Capacidad insuficiente"}
	_, err = c.AssignFurniture(ctx, 10, []uint64{9})
	require.True(t, backend.IsRejection(err))
	require.Equal(t, 1, c.State().UndoSize)

	notices := log.ofType(events.TypeNotice)
	require.Len(t, notices, 1)
	require.Equal(t, events.LevelWarning, notices[0].Level)
	require.Equal(t, "Capacidad insuficiente", notices[0].Message)
	require.Empty(t, log.ofType(events.TypePoolUpdate))
}

func TestDeactivateBlockedWhilePoolNotEmpty(t *testing.T) {
	c, _, log := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(testDate))
	_, err := c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)

	err = c.Deactivate()
	require.ErrorIs(t, err, ErrExitBlocked)
	require.True(t, c.State().Active)
	errs := log.ofType(events.TypeError)
	require.Len(t, errs, 1)
	require.Equal(t, events.ErrTypeExitBlocked, errs[0].ErrorType)

	_, err = c.AssignFurniture(ctx, 10, []uint64{1, 2})
	require.NoError(t, err)
	require.NoError(t, c.Deactivate())

	st := c.State()
	require.False(t, st.Active)
	require.Empty(t, st.Pool)
	require.Zero(t, st.UndoSize)
	require.Nil(t, st.SelectedReservationID)

	deact := log.ofType(events.TypeDeactivate)
	require.Len(t, deact, 1)
	require.False(t, deact[0].Forced)
}

func TestForceDeactivateAbandonsPool(t *testing.T) {
	c, _, log := setup(t)
	require.NoError(t, c.Activate(testDate))
	_, err := c.UnassignFurniture(context.Background(), 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)

	require.NoError(t, c.ForceDeactivate())
	st := c.State()
	require.False(t, st.Active)
	require.Empty(t, st.Pool)
	require.Zero(t, st.UndoSize)

	deact := log.ofType(events.TypeDeactivate)
	require.Len(t, deact, 1)
	require.True(t, deact[0].Forced)

	require.NoError(t, c.ForceDeactivate())
	require.Len(t, log.ofType(events.TypeDeactivate), 1)
}

func TestUndoEmpty(t *testing.T) {
	c, fb, log := setup(t)
	require.NoError(t, c.Activate(testDate))
	_, err := c.Undo(context.Background())
	require.ErrorIs(t, err, ErrEmptyUndo)
	require.Empty(t, fb.moveCalls())
	notices := log.ofType(events.TypeNotice)
	require.Equal(t, "Nothing to undo", notices[len(notices)-1].Message)
}

func TestUndoTransportFailureRestoresAction(t *testing.T) {
	c, fb, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(testDate))
	_, err := c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)

	fb.assignErr = &backend.TransportError{Op: "assign", Err: errors.New("timeout")}
	_, err = c.Undo(ctx)
	require.True(t, backend.IsTransport(err))

	hist := c.UndoHistory()
	require.Len(t, hist, 1)
	require.Equal(t, model.ActionUnassign, hist[0].Kind)

	fb.assignErr = nil
	_, err = c.Undo(ctx)
	require.NoError(t, err)
	require.Zero(t, c.State().UndoSize)
}

func TestUndoRejectionStillResyncs(t *testing.T) {
	c, fb, log := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(testDate))
	_, err := c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)
	log.reset()

	fb.assignErr = &backend.RejectionError{Op: "assign", Message: "taken"}
	_, err = c.Undo(ctx)
	require.NoError(t, err)
	require.Zero(t, c.State().UndoSize)
	require.Len(t, log.ofType(events.TypePoolUpdate), 1)
	require.Len(t, log.ofType(events.TypeUndo), 1)
}

func TestUndoStackIsBounded(t *testing.T) {
	fb := newFakeBackend()
	c := New(fb, events.NewBus(), Options{UndoLimit: 3})
	ctx := context.Background()
	require.NoError(t, c.Activate(testDate))
	for i := 0; i < 3; i++ {
		_, err := c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
		require.NoError(t, err)
		_, err = c.AssignFurniture(ctx, 10, []uint64{1, 2})
		require.NoError(t, err)
	}
	hist := c.UndoHistory()
	require.Len(t, hist, 3)
	require.Equal(t, model.ActionAssign, hist[0].Kind)
	require.Equal(t, model.ActionAssign, hist[2].Kind)
}

func TestCtrlClickReleasesEverything(t *testing.T) {
	c, fb, _ := setup(t)
	require.NoError(t, c.Activate(testDate))

	out, err := c.UnassignFurniture(context.Background(), 10, nil, true, nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	require.Equal(t, []uint64{1, 2}, fb.moveCalls()[0].req.FurnitureIDs)

	entry, ok := c.pool.Get(10)
	require.True(t, ok)
	require.Equal(t, initialOf10, entry.InitialFurniture)
	require.Equal(t, 3, entry.TotalNeeded)
}

func TestUnassignRequiresFurniture(t *testing.T) {
	c, _, _ := setup(t)
	require.NoError(t, c.Activate(testDate))
	_, err := c.UnassignFurniture(context.Background(), 10, []uint64{0}, false, nil)
	require.ErrorIs(t, err, ErrNoFurniture)
	_, err = c.AssignFurniture(context.Background(), 0, []uint64{1})
	require.ErrorIs(t, err, ErrInvalidReservation)
}

func TestResponseAfterForcedExitIsDropped(t *testing.T) {
	c, fb, log := setup(t)
	require.NoError(t, c.Activate(testDate))
	fb.beforeReply = func(string) { _ = c.ForceDeactivate() }

	_, err := c.UnassignFurniture(context.Background(), 10, []uint64{1, 2}, false, initialOf10)
	require.ErrorIs(t, err, ErrStaleResponse)

	st := c.State()
	require.False(t, st.Active)
	require.Empty(t, st.Pool)
	require.Zero(t, st.UndoSize)
	errs := log.ofType(events.TypeError)
	require.Equal(t, events.ErrTypeStaleResponse, errs[len(errs)-1].ErrorType)
}

func TestRefreshFromEndedSessionDoesNotReachNewSession(t *testing.T) {
	c, fb, _ := setup(t)
	require.NoError(t, c.Activate(testDate))
	fb.beforePool = func() {
		require.NoError(t, c.ForceDeactivate())
		require.NoError(t, c.Activate(testDate))
	}

	_, err := c.UnassignFurniture(context.Background(), 10, []uint64{1, 2}, false, initialOf10)
	require.ErrorIs(t, err, ErrStaleResponse)

	st := c.State()
	require.True(t, st.Active)
	require.Empty(t, st.Pool)
	require.Nil(t, st.SelectedReservationID)
	require.Zero(t, st.UndoSize)
}

func TestSelectHighlightsPreferredFurniture(t *testing.T) {
	c, fb, log := setup(t)
	ctx := context.Background()
	fb.prefs[10] = []string{"sombra"}
	fb.matches = []uint64{4, 8}
	fb.capacity[3] = 1
	fb.assigned[11] = []uint64{3}
	fb.people[11] = 1
	require.NoError(t, c.Activate(testDate))

	_, err := c.UnassignFurniture(ctx, 11, []uint64{3}, false, nil)
	require.NoError(t, err)
	_, err = c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)
	c.Wait()
	log.reset()

	entry, err := c.SelectReservation(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(10), entry.ReservationID)
	c.Wait()

	hl := log.ofType(events.TypeResourceHighlight)
	require.Len(t, hl, 1)
	require.Equal(t, []uint64{4, 8}, hl[0].MatchedFurnitureIDs)
	require.Equal(t, []string{"sombra"}, hl[0].Preferences)

	sel := log.ofType(events.TypeSelectionChange)
	require.Len(t, sel, 1)
	require.Equal(t, uint64(10), sel[0].Reservation.ReservationID)

	require.NoError(t, c.DeselectReservation())
	hl = log.ofType(events.TypeResourceHighlight)
	require.Len(t, hl, 2)
	require.Empty(t, hl[1].MatchedFurnitureIDs)
	require.Nil(t, c.State().SelectedReservationID)
}

func TestHighlightFailureKeepsSelection(t *testing.T) {
	c, fb, log := setup(t)
	ctx := context.Background()
	fb.prefs[10] = []string{"sombra"}
	fb.prefsErr = errors.New("unavailable")
	require.NoError(t, c.Activate(testDate))

	_, err := c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)
	_, err = c.SelectReservation(ctx, 10)
	require.NoError(t, err)
	c.Wait()

	require.Empty(t, log.ofType(events.TypeResourceHighlight))
	st := c.State()
	require.NotNil(t, st.SelectedReservationID)
	require.Equal(t, uint64(10), *st.SelectedReservationID)
}

func TestSelectUnknownReservation(t *testing.T) {
	c, _, _ := setup(t)
	require.NoError(t, c.Activate(testDate))
	_, err := c.SelectReservation(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotInPool)
}

func TestHandleKey(t *testing.T) {
	c, _, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, c.Activate(testDate))
	_, err := c.UnassignFurniture(ctx, 10, []uint64{1, 2}, false, initialOf10)
	require.NoError(t, err)

	handled, err := c.HandleKey(ctx, "Escape", false)
	require.True(t, handled)
	require.ErrorIs(t, err, ErrExitBlocked)

	handled, err = c.HandleKey(ctx, "z", true)
	require.True(t, handled)
	require.NoError(t, err)

	handled, err = c.HandleKey(ctx, "z", false)
	require.False(t, handled)
	require.NoError(t, err)
}
