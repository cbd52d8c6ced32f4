package tract

import (
	"fmt"
)

// Filter removes streamlines whose arc length falls outside [minLength,
// maxLength]. Bounds are inclusive: a streamline of exactly minLength or
// maxLength is kept. The returned lengths slice reports the length of every
// input streamline in input order, kept or not, so downstream statistics see
// the full distribution.
//
// An input set with zero streamlines is an *EmptyInputError; a result where
// every streamline was rejected is a valid empty set, not an error.
func Filter(set Set, minLength, maxLength float64) (Set, []float64, error) {
	if minLength < 0 {
		return Set{}, nil, fmt.Errorf("filter: minLength must be >= 0, got %g", minLength)
	}
	if maxLength < minLength {
		return Set{}, nil, fmt.Errorf("filter: maxLength %g is below minLength %g", maxLength, minLength)
	}
	if len(set.Streamlines) == 0 {
		return Set{}, nil, &EmptyInputError{Op: "filter"}
	}

	lengths := make([]float64, len(set.Streamlines))
	kept := make([]Streamline, 0, len(set.Streamlines))
	for i, sl := range set.Streamlines {
		lengths[i] = sl.Length()
		if lengths[i] >= minLength && lengths[i] <= maxLength {
			kept = append(kept, sl)
		}
	}

	out := Set{
		Space:       set.Space,
		Grid:        set.Grid,
		Streamlines: kept,
	}
	return out, lengths, nil
}
