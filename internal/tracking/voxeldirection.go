package tracking

import "fmt"

// VoxelDirectionParams configures streamlining over a precomputed voxel
// direction field, plus the optional spline-smoothing and length-filter
// post-processing passes.
type VoxelDirectionParams struct {
	Common

	// FlipX/Y/Z invert the corresponding axis of the direction field
	// before tracking.
	FlipX, FlipY, FlipZ bool

	// SplineFilter enables spline smoothing of the raw tracker output at
	// SplineStepLength millimetre intervals.
	SplineFilter     bool
	SplineStepLength float64

	// LengthFilter enables the [MinLength, MaxLength] length window.
	LengthFilter         bool
	MinLength, MaxLength float64
}

// DefaultVoxelDirection returns the canonical voxel-direction configuration.
func DefaultVoxelDirection() *VoxelDirectionParams {
	return &VoxelDirectionParams{
		Common: Common{
			ImagingModel:   DTI,
			TrackingMode:   Deterministic,
			StepSize:       1.0,
			AngleThreshold: 60,
			SeedCount:      32,
		},
		SplineFilter:     true,
		SplineStepLength: 1,
		LengthFilter:     true,
		MinLength:        20,
		MaxLength:        500,
	}
}

func (p *VoxelDirectionParams) Backend() Backend { return VoxelDirection }
func (p *VoxelDirectionParams) Base() *Common    { return &p.Common }

func (p *VoxelDirectionParams) Validate() error {
	if err := p.Common.validate(VoxelDirection); err != nil {
		return err
	}
	if p.SplineFilter && p.SplineStepLength <= 0 {
		return fmt.Errorf("%s: spline step length must be > 0, got %g", VoxelDirection, p.SplineStepLength)
	}
	if p.LengthFilter {
		if p.MinLength < 0 {
			return fmt.Errorf("%s: min length must be >= 0, got %g", VoxelDirection, p.MinLength)
		}
		if p.MaxLength < p.MinLength {
			return fmt.Errorf("%s: max length %g is below min length %g", VoxelDirection, p.MaxLength, p.MinLength)
		}
	}
	return nil
}
