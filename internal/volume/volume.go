// Package volume models 3-D scalar volumes aligned to a diffusion image grid.
//
// Volumes arrive already parsed: the image I/O collaborator hands this core
// in-memory arrays plus grid metadata, and persisting stage outputs is the
// execution engine's job. Nothing here reads or writes image bytes.
package volume

import (
	"fmt"
	"strings"
)

// Grid describes the sampling lattice a volume lives on: its dimensions,
// voxel size in millimetres, the world-space origin recorded in the source
// header, and the anatomical storage orientation (e.g. "RAS", "LPS").
type Grid struct {
	Dims      [3]int
	VoxelSize [3]float64
	Origin    [3]float64
	AxisCodes string
}

// SameLattice reports whether two grids share dimensions and voxel size.
// Origin and orientation are deliberately excluded: two volumes on the same
// lattice can still disagree on orientation, which is the orientation
// corrector's problem, not a mismatch.
func (g Grid) SameLattice(other Grid) bool {
	return g.Dims == other.Dims && g.VoxelSize == other.VoxelSize
}

// String renders the grid the way error messages quote it, e.g.
// "(128,128,64)@1mm" for isotropic voxels or "(128,128,64)@1x1x3mm" otherwise.
func (g Grid) String() string {
	var size string
	if g.VoxelSize[0] == g.VoxelSize[1] && g.VoxelSize[1] == g.VoxelSize[2] {
		size = fmt.Sprintf("%gmm", g.VoxelSize[0])
	} else {
		size = fmt.Sprintf("%gx%gx%gmm", g.VoxelSize[0], g.VoxelSize[1], g.VoxelSize[2])
	}
	return fmt.Sprintf("(%d,%d,%d)@%s", g.Dims[0], g.Dims[1], g.Dims[2], size)
}

// Voxels returns the total number of voxels on the grid.
func (g Grid) Voxels() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// Volume is a scalar field sampled on a Grid. Data is stored flat,
// x-fastest, so the voxel (x,y,z) lives at z*nx*ny + y*nx + x.
type Volume struct {
	ID   string
	Grid Grid
	Data []float64
}

// New allocates a zero-filled volume on the given grid.
func New(id string, grid Grid) *Volume {
	return &Volume{
		ID:   id,
		Grid: grid,
		Data: make([]float64, grid.Voxels()),
	}
}

// At returns the value at voxel (x,y,z). Callers are expected to stay in
// bounds; the index arithmetic is not range checked beyond the slice itself.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.index(x, y, z)]
}

// Set stores a value at voxel (x,y,z).
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.index(x, y, z)] = value
}

func (v *Volume) index(x, y, z int) int {
	nx, ny := v.Grid.Dims[0], v.Grid.Dims[1]
	return z*nx*ny + y*nx + x
}

// SeedVolume is a volume produced by seed-mask generation, tagged with the
// region volume it came from and, in per-region mode, the region label it
// isolates. Merged-mode seeds keep Label zero and retain per-label values.
// Seed volumes are produced once and never mutated afterwards.
type SeedVolume struct {
	Volume *Volume
	Region string
	Label  int
}

// Name returns the collision-safe identifier for a seed volume. Per-region
// seeds embed the label so parallel per-seed tracking runs never share an
// output name.
func (s SeedVolume) Name() string {
	base := strings.TrimSpace(s.Region)
	if base == "" {
		base = "seed"
	}
	if s.Label == 0 {
		return base + "_seeds"
	}
	return fmt.Sprintf("%s_seed_%d", base, s.Label)
}

// GridMismatchError reports a region volume and tissue mask that do not share
// a voxel lattice. It carries both grids so callers can tell the user exactly
// what to resample.
type GridMismatchError struct {
	RegionID string
	Region   Grid
	Mask     Grid
}

func (e *GridMismatchError) Error() string {
	return fmt.Sprintf("region volume %s and tissue mask differ in voxel grid: %s=%s vs mask=%s",
		e.RegionID, e.RegionID, e.Region, e.Mask)
}
