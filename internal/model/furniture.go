package model

// Furniture is an immutable snapshot of a furniture unit as it was assigned
// to a reservation at some point in time.  Capacity is the number of people
// the unit seats; a missing or zero capacity counts as 1.
//
// Fields:
//  ID       – furniture identifier on the venue map.
//  Capacity – seats contributed towards a reservation's headcount.
type Furniture struct {
    ID       uint64 `json:"id"`       // furniture.id
    Capacity int    `json:"capacity"` // furniture.capacity (0 means 1)
}

// FurnitureIDs returns the identifiers of the given snapshots in order.
func FurnitureIDs(items []Furniture) []uint64 {
    ids := make([]uint64, 0, len(items))
    for _, f := range items {
        ids = append(ids, f.ID)
    }
    return ids
}
