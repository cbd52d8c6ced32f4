// Package tracking defines the per-backend tractography parameter sets and
// the dependent-default rules that tie them together.
//
// The parameter sets form a tagged union: one concrete struct per tracking
// backend, all satisfying Params. Dependent fields (curvature radius, the
// anatomically-constrained flags, diffusivity units) are recomputed by plain
// setter methods on the driving fields. There are no reactive callbacks,
// and an explicit later write to a dependent field wins.
package tracking

import (
	"fmt"
)

// Backend selects which tracking tool family a parameter set configures.
type Backend string

const (
	// VoxelDirection is streamlining over a precomputed voxel direction
	// field (DTB-style).
	VoxelDirection Backend = "voxel_direction"
	// TensorODF is tensor- or ODF-informed streamlining, with an optional
	// constrained-spherical-deconvolution reconstruction path.
	TensorODF Backend = "tensor_odf"
	// StreamlineACT is streamline tracking with optional
	// anatomically-constrained tissue handling (MRtrix-style).
	StreamlineACT Backend = "streamline_act"
	// PicoPDF is probabilistic tracking over per-voxel fiber-orientation
	// probability density functions (Camino PICo-style).
	PicoPDF Backend = "pico_pdf"
	// ResidualBootstrap is Monte-Carlo residual-bootstrap tracking whose
	// output is a connectivity matrix rather than streamlines.
	ResidualBootstrap Backend = "residual_bootstrap"
	// BayesianGlobal is Markov-chain global tractography (Gibbs-style).
	BayesianGlobal Backend = "bayesian_global"
)

// ImagingModel names the diffusion acquisition model.
type ImagingModel string

const (
	DTI   ImagingModel = "DTI"
	DSI   ImagingModel = "DSI"
	HARDI ImagingModel = "HARDI"
)

// Mode selects deterministic or probabilistic propagation.
type Mode string

const (
	Deterministic Mode = "Deterministic"
	Probabilistic Mode = "Probabilistic"
)

// Units names the diffusivity unit convention for trace values.
type Units string

const (
	UnitsM2PerS   Units = "m^2/s"
	UnitsSPerMM2  Units = "s/mm^2"
	traceRescale        = 1e6
	curvatureSnap       = 1e-6
)

// PDFModel names the orientation probability density used by PICo tracking.
type PDFModel string

const (
	PDFBingham PDFModel = "bingham"
	PDFWatson  PDFModel = "watson"
	PDFACG     PDFModel = "acg"
)

// Common carries the fields every backend shares.
type Common struct {
	ImagingModel   ImagingModel
	TrackingMode   Mode
	StepSize       float64
	AngleThreshold float64
	SeedCount      int
}

func (c *Common) validate(backend Backend) error {
	switch c.ImagingModel {
	case DTI, DSI, HARDI:
	default:
		return fmt.Errorf("%s: unknown imaging model %q", backend, c.ImagingModel)
	}
	switch c.TrackingMode {
	case Deterministic, Probabilistic:
	default:
		return fmt.Errorf("%s: unknown tracking mode %q", backend, c.TrackingMode)
	}
	if c.StepSize <= 0 {
		return fmt.Errorf("%s: step size must be > 0, got %g", backend, c.StepSize)
	}
	if c.AngleThreshold <= 0 || c.AngleThreshold > 180 {
		return fmt.Errorf("%s: angle threshold must be in (0,180], got %g", backend, c.AngleThreshold)
	}
	if c.SeedCount < 0 {
		return fmt.Errorf("%s: seed count must be >= 0, got %d", backend, c.SeedCount)
	}
	return nil
}

// Params is the tagged-union interface over the per-backend parameter sets.
type Params interface {
	Backend() Backend
	Base() *Common
	Validate() error
}

// UnsupportedBackendCombinationError reports a feature-flag combination with
// no defined pipeline topology, such as interface seeding without
// anatomically-constrained tracking.
type UnsupportedBackendCombinationError struct {
	Backend Backend
	Detail  string
}

func (e *UnsupportedBackendCombinationError) Error() string {
	return fmt.Sprintf("backend %s: unsupported combination: %s", e.Backend, e.Detail)
}

// deriveCurvature is the shared dependent-default rule for the curvature
// radius: deterministic tracking wants 2.0 unless spherical deconvolution is
// in play (then 0.0), probabilistic tracking wants 1.0.
func deriveCurvature(mode Mode, sphericalDeconvolution bool) float64 {
	switch {
	case mode == Deterministic && !sphericalDeconvolution:
		return 2.0
	case mode == Deterministic && sphericalDeconvolution:
		return 0.0
	default:
		return 1.0
	}
}

// snapCurvature collapses near-zero curvature radii to exactly zero, which
// downstream selects the non-Runge-Kutta solver mode.
func snapCurvature(v float64) float64 {
	if v <= curvatureSnap {
		return 0
	}
	return v
}
