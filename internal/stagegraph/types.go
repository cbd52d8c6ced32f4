package stagegraph

import (
	"reflect"

	"github.com/zclconf/go-cty/cty"

	"github.com/joanrue/connectomemapper3/internal/tract"
	"github.com/joanrue/connectomemapper3/internal/volume"
)

// Port value types. Domain payloads travel as capsule values so the graph
// layer can type-check edges without knowing anything about voxel data;
// opaque file references (gradient tables, parameter records) stay plain
// strings.
var (
	// VolumeType carries a *volume.Volume.
	VolumeType = cty.Capsule("volume", reflect.TypeOf(volume.Volume{}))

	// StreamlineSetType carries a *tract.Set.
	StreamlineSetType = cty.Capsule("streamline_set", reflect.TypeOf(tract.Set{}))

	// MatrixType carries a *[][]float64 connectivity matrix.
	MatrixType = cty.Capsule("matrix", reflect.TypeOf([][]float64{}))
)

// VolumeVal wraps a volume as a port value.
func VolumeVal(v *volume.Volume) cty.Value { return cty.CapsuleVal(VolumeType, v) }

// VolumeFromVal unwraps a port value produced by VolumeVal.
func VolumeFromVal(v cty.Value) *volume.Volume {
	return v.EncapsulatedValue().(*volume.Volume)
}

// SetVal wraps a streamline set as a port value.
func SetVal(s *tract.Set) cty.Value { return cty.CapsuleVal(StreamlineSetType, s) }

// SetFromVal unwraps a port value produced by SetVal.
func SetFromVal(v cty.Value) *tract.Set {
	return v.EncapsulatedValue().(*tract.Set)
}

// MatrixVal wraps a connectivity matrix as a port value.
func MatrixVal(m *[][]float64) cty.Value { return cty.CapsuleVal(MatrixType, m) }

// MatrixFromVal unwraps a port value produced by MatrixVal.
func MatrixFromVal(v cty.Value) *[][]float64 {
	return v.EncapsulatedValue().(*[][]float64)
}
