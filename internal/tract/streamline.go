// Package tract holds the in-memory fiber streamline model and the
// post-processing transforms applied to tracking output: length filtering,
// spline smoothing and voxel/world orientation correction.
//
// Streamline collections are immutable once produced; every transform
// returns a new Set rather than editing in place, so a compiled graph can
// fan the same set into several consumers without copies racing each other.
package tract

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/joanrue/connectomemapper3/internal/volume"
)

// Streamline is one putative fiber pathway: an ordered polyline of 3-D
// points in the coordinate space recorded on the owning Set.
type Streamline struct {
	Points []r3.Vec
}

// Length returns the arc length of the streamline, the sum of Euclidean
// distances between consecutive points. Single-point and empty streamlines
// have length zero.
func (s Streamline) Length() float64 {
	var total float64
	for i := 1; i < len(s.Points); i++ {
		total += r3.Norm(r3.Sub(s.Points[i], s.Points[i-1]))
	}
	return total
}

// Set is an ordered collection of streamlines sharing one coordinate-space
// tag and one voxel grid.
type Set struct {
	// Space names the coordinate convention the points are expressed in:
	// a three-letter anatomical voxel order such as "RAS" or "LPS", or
	// "voxmm" for raw voxel-millimetre output straight from a tracker.
	Space string
	// Grid is the voxel lattice of the image the streamlines were tracked
	// on, including the origin recorded in the source file header.
	Grid        volume.Grid
	Streamlines []Streamline
}

// EmptyInputError reports a streamline operation that requires at least one
// input streamline but received none.
type EmptyInputError struct {
	Op string
}

func (e *EmptyInputError) Error() string {
	return e.Op + ": streamline set is empty"
}
