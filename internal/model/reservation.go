package model

// ReservationSnapshot is the server's view of a reservation as returned by
// the pool-data endpoint.  Furniture lists what is assigned right now and
// NumPeople is the raw headcount.  Preferences holds the reservation's
// preference codes used for highlighting candidate furniture.  Any other
// fields the backend sends are kept verbatim in Display and never
// interpreted.
//
// Fields:
//  ReservationID – reservation identifier.
//  Furniture     – furniture currently assigned on the session date.
//  NumPeople     – headcount requested by the reservation.
//  Preferences   – preference codes (e.g. "sombra", "primera_linea").
//  Display       – opaque display fields passed through to listeners.
type ReservationSnapshot struct {
    ReservationID uint64         `json:"reservation_id"`
    Furniture     []Furniture    `json:"original_furniture"`
    NumPeople     int            `json:"num_people"`
    Preferences   []string       `json:"preferences,omitempty"`
    Display       map[string]any `json:"display,omitempty"`
}

// PoolEntry is a reservation that currently holds less capacity than it had
// when it first entered the pool in this session.
//
// Fields:
//  ReservationID    – unique key inside the pool.
//  TotalNeeded      – capacity required to be whole again (display value).
//  AssignedCount    – capacity assigned right now.
//  InitialFurniture – furniture held when the reservation first entered the
//                     pool; never overwritten while the entry is present.
//  IsComplete       – whether AssignedCount reached the restoration target.
//  NumPeople        – raw headcount, used when InitialFurniture is empty.
//  Preferences      – preference codes carried from the snapshot.
//  Display          – opaque display fields.
type PoolEntry struct {
    ReservationID    uint64         `json:"reservation_id"`
    TotalNeeded      int            `json:"total_needed"`
    AssignedCount    int            `json:"assigned_count"`
    InitialFurniture []Furniture    `json:"initial_furniture"`
    IsComplete       bool           `json:"is_complete"`
    NumPeople        int            `json:"num_people"`
    Preferences      []string       `json:"preferences,omitempty"`
    Display          map[string]any `json:"display,omitempty"`
}

// Clone returns a deep copy so callers outside the pool can never mutate
// pool state through shared slices or maps.
func (e PoolEntry) Clone() PoolEntry {
    out := e
    out.InitialFurniture = append([]Furniture(nil), e.InitialFurniture...)
    out.Preferences = append([]string(nil), e.Preferences...)
    out.Display = CloneDisplay(e.Display)
    return out
}

// CloneDisplay deep-copies decoded JSON: nested objects and arrays are
// copied at every level, scalars are shared.
func CloneDisplay(m map[string]any) map[string]any {
    if m == nil {
        return nil
    }
    out := make(map[string]any, len(m))
    for k, v := range m {
        out[k] = cloneJSON(v)
    }
    return out
}

func cloneJSON(v any) any {
    switch t := v.(type) {
    case map[string]any:
        return CloneDisplay(t)
    case []any:
        out := make([]any, len(t))
        for i, x := range t {
            out[i] = cloneJSON(x)
        }
        return out
    }
    return v
}
