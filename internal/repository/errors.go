// Package repository stores the move journal.
package repository

import "errors"

// ErrInvalidEntry is returned when a journal entry lacks its event type
// or timestamp.
var ErrInvalidEntry = errors.New("invalid journal entry")
