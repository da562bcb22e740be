// Package undo implements the bounded history of server-confirmed moves.
// Once the stack is full the oldest action is evicted and can no longer be
// undone.
package undo

import "github.com/iliyamo/venue-reassignment/internal/model"

// DefaultLimit is the number of actions kept when no limit is configured.
const DefaultLimit = 20

// Stack is a LIFO of undo actions with FIFO eviction from the bottom.  It
// is not safe for concurrent use; the coordinator serializes access.
type Stack struct {
	limit   int
	actions []model.UndoAction
}

// NewStack returns an empty stack holding at most limit actions.  A limit
// below 1 falls back to DefaultLimit.
func NewStack(limit int) *Stack {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Stack{limit: limit}
}

// Push appends a, dropping the oldest action when the limit is exceeded.
func (s *Stack) Push(a model.UndoAction) {
	s.actions = append(s.actions, a.Clone())
	if over := len(s.actions) - s.limit; over > 0 {
		s.actions = append(s.actions[:0:0], s.actions[over:]...)
	}
}

// Pop removes and returns the most recent action.  ok is false when the
// stack is empty.
func (s *Stack) Pop() (a model.UndoAction, ok bool) {
	n := len(s.actions)
	if n == 0 {
		return model.UndoAction{}, false
	}
	a = s.actions[n-1]
	s.actions = s.actions[:n-1]
	return a, true
}

// Peek returns the most recent action without removing it.
func (s *Stack) Peek() (model.UndoAction, bool) {
	n := len(s.actions)
	if n == 0 {
		return model.UndoAction{}, false
	}
	return s.actions[n-1].Clone(), true
}

func (s *Stack) Size() int     { return len(s.actions) }
func (s *Stack) CanUndo() bool { return len(s.actions) > 0 }
func (s *Stack) Limit() int    { return s.limit }

// Clear drops every recorded action.
func (s *Stack) Clear() { s.actions = nil }

// Actions returns a copy of the history, oldest first.
func (s *Stack) Actions() []model.UndoAction {
	out := make([]model.UndoAction, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a.Clone())
	}
	return out
}
