package tracking

import "fmt"

// TensorODFParams configures tensor- or ODF-informed streamlining. When
// SphericalDeconvolution is set the pipeline reconstructs fiber orientation
// distributions (CSD, or SHORE for DSI acquisitions) and tracks through a
// direction getter; otherwise DTI data takes a direct tensor Euler path.
type TensorODFParams struct {
	Common

	SphericalDeconvolution bool
	// FiberOrderSH is the spherical-harmonic order of the CSD fit.
	FiberOrderSH int
	FAThreshold  float64

	// Curvature is the curvature radius handed to the solver. It is a
	// dependent default of (TrackingMode, SphericalDeconvolution); use the
	// setters to keep it in sync, or assign it directly to override.
	Curvature float64

	// UseACT enables the partial-volume tissue classifier during
	// propagation; TissueClassCount is the number of tissue classes the
	// segmentation stage estimates for it.
	UseACT           bool
	TissueClassCount int
}

// DefaultTensorODF returns the canonical tensor/ODF configuration.
func DefaultTensorODF() *TensorODFParams {
	p := &TensorODFParams{
		Common: Common{
			ImagingModel:   DTI,
			TrackingMode:   Deterministic,
			StepSize:       0.5,
			AngleThreshold: 25,
			SeedCount:      1000,
		},
		FiberOrderSH:     8,
		FAThreshold:      0.2,
		TissueClassCount: 3,
	}
	p.Curvature = deriveCurvature(p.TrackingMode, p.SphericalDeconvolution)
	return p
}

func (p *TensorODFParams) Backend() Backend { return TensorODF }
func (p *TensorODFParams) Base() *Common    { return &p.Common }

// SetTrackingMode changes the propagation mode and recomputes the dependent
// curvature radius.
func (p *TensorODFParams) SetTrackingMode(mode Mode) {
	p.TrackingMode = mode
	p.Curvature = snapCurvature(deriveCurvature(p.TrackingMode, p.SphericalDeconvolution))
}

// SetSphericalDeconvolution toggles the CSD reconstruction path and
// recomputes the dependent curvature radius.
func (p *TensorODFParams) SetSphericalDeconvolution(on bool) {
	p.SphericalDeconvolution = on
	p.Curvature = snapCurvature(deriveCurvature(p.TrackingMode, p.SphericalDeconvolution))
}

// SetCurvature overrides the curvature radius, snapping near-zero values to
// exactly zero.
func (p *TensorODFParams) SetCurvature(v float64) {
	p.Curvature = snapCurvature(v)
}

func (p *TensorODFParams) Validate() error {
	if err := p.Common.validate(TensorODF); err != nil {
		return err
	}
	if p.SphericalDeconvolution && p.ImagingModel != DSI && p.FiberOrderSH <= 0 {
		return fmt.Errorf("%s: spherical-harmonic order must be > 0, got %d", TensorODF, p.FiberOrderSH)
	}
	if p.FAThreshold < 0 || p.FAThreshold > 1 {
		return fmt.Errorf("%s: FA threshold must be in [0,1], got %g", TensorODF, p.FAThreshold)
	}
	if p.UseACT && p.TissueClassCount < 2 {
		return fmt.Errorf("%s: tissue class count must be >= 2, got %d", TensorODF, p.TissueClassCount)
	}
	return nil
}
