// Package pool keeps the set of reservations that are short of the
// capacity they held when they first lost furniture in the current move
// session, and decides when a reservation is whole again.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/iliyamo/venue-reassignment/internal/capacity"
	"github.com/iliyamo/venue-reassignment/internal/events"
	"github.com/iliyamo/venue-reassignment/internal/model"
)

// ErrStale is returned by Refresh when the store was reset while the
// snapshot request was in flight.  The snapshot is discarded.
var ErrStale = errors.New("pool: session changed during refresh")

// SnapshotFetcher loads the server's current view of a reservation.
type SnapshotFetcher interface {
	PoolData(ctx context.Context, reservationID uint64, date string) (model.ReservationSnapshot, error)
}

// Emitter receives pool and selection notifications.
type Emitter interface {
	Emit(events.Event)
}

// Outcome describes what a refresh did to the pool.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeAdded
	OutcomeUpdated
	OutcomeRemoved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRemoved:
		return "removed"
	}
	return "none"
}

// RefreshResult reports the evaluated entry and its effect on the pool.
type RefreshResult struct {
	Entry            model.PoolEntry
	Outcome          Outcome
	AutoSelected     bool
	SelectionCleared bool
}

// Store owns the pool and the current selection.  Methods are safe for
// concurrent use; notifications are emitted after the store's lock has
// been released so listeners may read the store.
type Store struct {
	mu         sync.Mutex
	entries    []model.PoolEntry
	selected   uint64
	hasSel     bool
	generation uint64

	fetcher SnapshotFetcher
	emitter Emitter
}

// NewStore returns an empty store.  Both dependencies must be non-nil.
func NewStore(fetcher SnapshotFetcher, emitter Emitter) *Store {
	if fetcher == nil || emitter == nil {
		panic("nil dependency passed to pool.NewStore")
	}
	return &Store{fetcher: fetcher, emitter: emitter}
}

// Refresh fetches the reservation's snapshot for date and applies it with
// Apply.  When the fetch fails nothing changes, an error notification is
// emitted and the error is returned.
func (s *Store) Refresh(ctx context.Context, reservationID uint64, date string, override []model.Furniture) (RefreshResult, error) {
	return s.RefreshIn(ctx, s.Generation(), reservationID, date, override)
}

// RefreshIn is Refresh on behalf of the session identified by gen.  It
// returns ErrStale without fetching when the store has been reset since
// gen was read, and discards the snapshot if a reset happens during the
// fetch.
func (s *Store) RefreshIn(ctx context.Context, gen uint64, reservationID uint64, date string, override []model.Furniture) (RefreshResult, error) {
	if s.Generation() != gen {
		return RefreshResult{}, ErrStale
	}
	snap, err := s.fetcher.PoolData(ctx, reservationID, date)
	if err != nil {
		log.Printf("pool: refresh reservation=%d date=%s failed: %v", reservationID, date, err)
		s.emitter.Emit(events.Event{
			Type:      events.TypeError,
			ErrorType: events.ErrTypePoolRefresh,
			Message:   fmt.Sprintf("could not load reservation %d: %v", reservationID, err),
		})
		return RefreshResult{}, err
	}
	if snap.ReservationID == 0 {
		snap.ReservationID = reservationID
	}
	return s.apply(gen, snap, override)
}

// Apply evaluates snap against the pool.
//
// The initial furniture is, in order of preference, the stored value of an
// entry already in the pool, a non-empty override, or the snapshot's own
// furniture.  An entry already in the pool is complete once its assigned
// capacity reaches the capacity of its stored initial furniture (or the
// headcount when that is zero) and is then removed.  A reservation that is
// not yet in the pool always enters it: refreshes only follow a move, so
// entering implies the reservation was just disturbed.
func (s *Store) Apply(snap model.ReservationSnapshot, override []model.Furniture) RefreshResult {
	res, _ := s.apply(s.Generation(), snap, override)
	return res
}

func (s *Store) apply(gen uint64, snap model.ReservationSnapshot, override []model.Furniture) (RefreshResult, error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return RefreshResult{}, ErrStale
	}

	idx := s.indexOf(snap.ReservationID)
	present := idx >= 0

	var initial []model.Furniture
	switch {
	case present:
		initial = s.entries[idx].InitialFurniture
	case len(override) > 0:
		initial = append([]model.Furniture(nil), override...)
	default:
		initial = append([]model.Furniture(nil), snap.Furniture...)
	}

	assigned := capacity.Sum(snap.Furniture)
	target := capacity.Target(initial, snap.NumPeople)
	entry := model.PoolEntry{
		ReservationID:    snap.ReservationID,
		TotalNeeded:      target,
		AssignedCount:    assigned,
		InitialFurniture: initial,
		IsComplete:       present && capacity.IsComplete(assigned, target),
		NumPeople:        snap.NumPeople,
		Preferences:      append([]string(nil), snap.Preferences...),
		Display:          snap.Display,
	}
	entry = entry.Clone()

	res := RefreshResult{Entry: entry.Clone()}
	switch {
	case present && entry.IsComplete:
		s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
		res.Outcome = OutcomeRemoved
		if s.hasSel && s.selected == entry.ReservationID {
			s.hasSel, s.selected = false, 0
			res.SelectionCleared = true
		}
	case present:
		s.entries[idx] = entry
		res.Outcome = OutcomeUpdated
	default:
		s.entries = append(s.entries, entry)
		res.Outcome = OutcomeAdded
		if len(s.entries) == 1 {
			s.hasSel, s.selected = true, entry.ReservationID
			res.AutoSelected = true
		}
	}
	snapshot := s.copyEntries()
	s.mu.Unlock()

	s.emitter.Emit(events.Event{Type: events.TypePoolUpdate, Pool: snapshot})
	switch {
	case res.SelectionCleared:
		s.emitter.Emit(events.Event{Type: events.TypeSelectionChange})
	case res.AutoSelected:
		sel := res.Entry.Clone()
		s.emitter.Emit(events.Event{Type: events.TypeSelectionChange, Reservation: &sel})
	}
	return res, nil
}

// Select makes reservationID the current selection.  It returns false and
// changes nothing when the reservation is not in the pool.
func (s *Store) Select(reservationID uint64) (model.PoolEntry, bool) {
	s.mu.Lock()
	idx := s.indexOf(reservationID)
	if idx < 0 {
		s.mu.Unlock()
		return model.PoolEntry{}, false
	}
	s.hasSel, s.selected = true, reservationID
	entry := s.entries[idx].Clone()
	s.mu.Unlock()

	sel := entry.Clone()
	s.emitter.Emit(events.Event{Type: events.TypeSelectionChange, Reservation: &sel})
	return entry, true
}

// Deselect clears the selection and reports whether there was one.
func (s *Store) Deselect() bool {
	s.mu.Lock()
	had := s.hasSel
	s.hasSel, s.selected = false, 0
	s.mu.Unlock()

	s.emitter.Emit(events.Event{Type: events.TypeSelectionChange})
	return had
}

// Selected returns the selected entry, if any.
func (s *Store) Selected() (model.PoolEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSel {
		return model.PoolEntry{}, false
	}
	idx := s.indexOf(s.selected)
	if idx < 0 {
		return model.PoolEntry{}, false
	}
	return s.entries[idx].Clone(), true
}

// Get returns a copy of the entry for reservationID.
func (s *Store) Get(reservationID uint64) (model.PoolEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(reservationID)
	if idx < 0 {
		return model.PoolEntry{}, false
	}
	return s.entries[idx].Clone(), true
}

// Entries returns a copy of the pool in insertion order.
func (s *Store) Entries() []model.PoolEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyEntries()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Generation identifies the current session.  It changes on every Reset.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Reset empties the pool and the selection without emitting anything and
// returns the new generation.  Refreshes started before the reset are
// discarded with ErrStale.
func (s *Store) Reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.hasSel, s.selected = false, 0
	s.generation++
	return s.generation
}

func (s *Store) indexOf(reservationID uint64) int {
	for i, e := range s.entries {
		if e.ReservationID == reservationID {
			return i
		}
	}
	return -1
}

func (s *Store) copyEntries() []model.PoolEntry {
	out := make([]model.PoolEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out
}
