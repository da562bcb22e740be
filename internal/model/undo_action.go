package model

// ActionKind identifies the mutation an UndoAction recorded.
type ActionKind string

const (
    ActionAssign   ActionKind = "assign"
    ActionUnassign ActionKind = "unassign"
)

// Inverse returns the kind that reverts k.
func (k ActionKind) Inverse() ActionKind {
    if k == ActionAssign {
        return ActionUnassign
    }
    return ActionAssign
}

// UndoAction records a server-confirmed mutation.  FurnitureIDs always come
// from the backend response, never from the request, so partial successes
// are undone exactly.
//
// Fields:
//  Kind          – assign or unassign.
//  ReservationID – reservation the furniture was moved for.
//  FurnitureIDs  – furniture the backend confirmed as moved.
//  Date          – session date (YYYY-MM-DD) the mutation applied to.
type UndoAction struct {
    Kind          ActionKind `json:"kind"`
    ReservationID uint64     `json:"reservation_id"`
    FurnitureIDs  []uint64   `json:"furniture_ids"`
    Date          string     `json:"date"`
}

// Clone returns a copy that does not share the id slice.
func (a UndoAction) Clone() UndoAction {
    out := a
    out.FurnitureIDs = append([]uint64(nil), a.FurnitureIDs...)
    return out
}
