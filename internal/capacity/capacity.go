// Package capacity holds the pure accounting used to decide whether a
// reservation has been made whole again.  Nothing here has side effects
// and nothing returns an error; degenerate inputs yield zero.
package capacity

import "github.com/iliyamo/venue-reassignment/internal/model"

// Of returns the capacity a single unit contributes.  Missing or
// non-positive capacities count as 1.
func Of(f model.Furniture) int {
	if f.Capacity < 1 {
		return 1
	}
	return f.Capacity
}

// Sum returns the total capacity of the given furniture.
func Sum(items []model.Furniture) int {
	total := 0
	for _, f := range items {
		total += Of(f)
	}
	return total
}

// IsComplete reports whether assigned capacity has reached the original.
func IsComplete(assigned, original int) bool {
	return assigned >= original
}

// Target returns the capacity a reservation must hold to be whole: the
// capacity of its initial furniture, or its headcount (at least 1) when the
// reservation held nothing.
func Target(initial []model.Furniture, headcount int) int {
	if c := Sum(initial); c > 0 {
		return c
	}
	if headcount < 1 {
		return 1
	}
	return headcount
}
