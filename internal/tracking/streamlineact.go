package tracking

import "fmt"

// StreamlineACTParams configures streamline tracking with optional
// anatomically-constrained tissue handling. The three interface flags
// (CropAtInterface, SeedFromInterface, Backtrack) only make sense under
// UseACT; clearing UseACT through its setter forces them off, and a
// configuration that asks for interface seeding without ACT is rejected at
// validation.
type StreamlineACTParams struct {
	Common

	SphericalDeconvolution bool
	DesiredTrackCount      int
	MinLength, MaxLength   float64
	CutoffValue            float64

	// Curvature is a dependent default of (TrackingMode,
	// SphericalDeconvolution); see the setters.
	Curvature float64

	UseACT            bool
	CropAtInterface   bool
	SeedFromInterface bool
	Backtrack         bool
}

// DefaultStreamlineACT returns the canonical anatomically-constrained
// streamline configuration.
func DefaultStreamlineACT() *StreamlineACTParams {
	p := &StreamlineACTParams{
		Common: Common{
			ImagingModel:   DTI,
			TrackingMode:   Deterministic,
			StepSize:       0.5,
			AngleThreshold: 45,
			SeedCount:      1000,
		},
		DesiredTrackCount: 1_000_000,
		MinLength:         5,
		MaxLength:         500,
		CutoffValue:       1,
		UseACT:            true,
		CropAtInterface:   true,
		Backtrack:         true,
	}
	p.Curvature = deriveCurvature(p.TrackingMode, p.SphericalDeconvolution)
	return p
}

func (p *StreamlineACTParams) Backend() Backend { return StreamlineACT }
func (p *StreamlineACTParams) Base() *Common    { return &p.Common }

// SetTrackingMode changes the propagation mode and recomputes the dependent
// curvature radius.
func (p *StreamlineACTParams) SetTrackingMode(mode Mode) {
	p.TrackingMode = mode
	p.Curvature = snapCurvature(deriveCurvature(p.TrackingMode, p.SphericalDeconvolution))
}

// SetSphericalDeconvolution toggles FOD-based tracking and recomputes the
// dependent curvature radius.
func (p *StreamlineACTParams) SetSphericalDeconvolution(on bool) {
	p.SphericalDeconvolution = on
	p.Curvature = snapCurvature(deriveCurvature(p.TrackingMode, p.SphericalDeconvolution))
}

// SetCurvature overrides the curvature radius, snapping near-zero values to
// exactly zero.
func (p *StreamlineACTParams) SetCurvature(v float64) {
	p.Curvature = snapCurvature(v)
}

// SetUseACT toggles anatomically-constrained tracking. Disabling it forces
// the three dependent interface flags off.
func (p *StreamlineACTParams) SetUseACT(on bool) {
	p.UseACT = on
	if !on {
		p.CropAtInterface = false
		p.SeedFromInterface = false
		p.Backtrack = false
	}
}

func (p *StreamlineACTParams) Validate() error {
	if err := p.Common.validate(StreamlineACT); err != nil {
		return err
	}
	if p.DesiredTrackCount <= 0 {
		return fmt.Errorf("%s: desired track count must be > 0, got %d", StreamlineACT, p.DesiredTrackCount)
	}
	if p.MinLength < 0 {
		return fmt.Errorf("%s: min length must be >= 0, got %g", StreamlineACT, p.MinLength)
	}
	if p.MaxLength < p.MinLength {
		return fmt.Errorf("%s: max length %g is below min length %g", StreamlineACT, p.MaxLength, p.MinLength)
	}
	if !p.UseACT {
		if p.SeedFromInterface {
			return &UnsupportedBackendCombinationError{
				Backend: StreamlineACT,
				Detail:  "seeding from the grey/white interface requires anatomically-constrained tracking",
			}
		}
		if p.CropAtInterface || p.Backtrack {
			return &UnsupportedBackendCombinationError{
				Backend: StreamlineACT,
				Detail:  "interface cropping and backtracking require anatomically-constrained tracking",
			}
		}
	}
	return nil
}
