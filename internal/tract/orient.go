package tract

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/joanrue/connectomemapper3/internal/volume"
)

// axisClass maps each anatomical direction letter to its axis family, so a
// valid order must use one letter from each family exactly once.
var axisClass = map[byte]int{
	'R': 0, 'L': 0,
	'A': 1, 'P': 1,
	'S': 2, 'I': 2,
}

// AxisCodeError reports an anatomical axis-order string that is not a
// permutation of three single-letter direction codes.
type AxisCodeError struct {
	Value  string
	Reason string
}

func (e *AxisCodeError) Error() string {
	return fmt.Sprintf("invalid anatomical axis order %q: %s", e.Value, e.Reason)
}

func validateAxisOrder(order string) error {
	if len(order) != 3 {
		return &AxisCodeError{Value: order, Reason: "must be exactly three letters"}
	}
	seen := [3]bool{}
	for i := 0; i < 3; i++ {
		class, ok := axisClass[order[i]]
		if !ok {
			return &AxisCodeError{Value: order, Reason: fmt.Sprintf("unknown direction code %q", string(order[i]))}
		}
		if seen[class] {
			return &AxisCodeError{Value: order, Reason: "repeats an axis family"}
		}
		seen[class] = true
	}
	return nil
}

// Correct remaps streamline coordinates from the voxel order recorded in the
// source tracking output onto the orientation of a reference grid, so tracks
// from tools with differing left/right or anterior/posterior sign
// conventions overlay the same anatomical image without resampling it.
//
// Per axis i: if the reference axis code differs from the source voxel order
// at that index the sign flips, and each point is remapped as
//
//	p'[i] = sign[i]*(p[i] - origin[i]) + voxelSize[i]/2
//
// with the origin taken from the source set's recorded grid and the voxel
// size from the reference. The output set is tagged with the reference axis
// codes and carries the reference grid with a zeroed origin.
func Correct(set Set, ref volume.Grid, sourceOrder string) (Set, error) {
	refOrder := strings.ToUpper(ref.AxisCodes)
	srcOrder := strings.ToUpper(sourceOrder)
	if err := validateAxisOrder(refOrder); err != nil {
		return Set{}, err
	}
	if err := validateAxisOrder(srcOrder); err != nil {
		return Set{}, err
	}

	var sign [3]float64
	for i := 0; i < 3; i++ {
		if refOrder[i] != srcOrder[i] {
			sign[i] = -1
		} else {
			sign[i] = 1
		}
	}

	origin := set.Grid.Origin
	remapped := make([]Streamline, len(set.Streamlines))
	for i, sl := range set.Streamlines {
		points := make([]r3.Vec, len(sl.Points))
		for j, p := range sl.Points {
			points[j] = r3.Vec{
				X: sign[0]*(p.X-origin[0]) + ref.VoxelSize[0]/2,
				Y: sign[1]*(p.Y-origin[1]) + ref.VoxelSize[1]/2,
				Z: sign[2]*(p.Z-origin[2]) + ref.VoxelSize[2]/2,
			}
		}
		remapped[i] = Streamline{Points: points}
	}

	outGrid := ref
	outGrid.Origin = [3]float64{}
	outGrid.AxisCodes = refOrder
	return Set{
		Space:       refOrder,
		Grid:        outGrid,
		Streamlines: remapped,
	}, nil
}
