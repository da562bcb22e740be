package movemode

import (
	"context"
	"strings"
)

// Key names understood by HandleKey.
const (
	KeyUndo = "z"
	KeyExit = "escape"
)

// HandleKey dispatches a keyboard shortcut from the map UI: ctrl+z undoes
// the last move and escape asks to leave move mode, which is still refused
// while the pool is not empty.  handled is false for keys that are not
// shortcuts.
func (c *Coordinator) HandleKey(ctx context.Context, key string, ctrl bool) (handled bool, err error) {
	switch k := strings.ToLower(strings.TrimSpace(key)); {
	case ctrl && k == KeyUndo:
		_, err = c.Undo(ctx)
		return true, err
	case k == KeyExit || k == "esc":
		return true, c.Deactivate()
	}
	return false, nil
}
