// Package config turns declarative pipeline configuration into validated
// tracking parameters. Two layers feed the result: optional YAML presets
// supply per-backend defaults, then HCL pipeline files override individual
// fields. Dependent fields go through the parameter setters so derived
// values (curvature, constraint flags, unit rescaling) stay consistent.
package config

import (
	"fmt"

	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// Overrides is the set of optional per-field overrides a preset or a
// pipeline file may carry. Nil means "keep the current value". Fields that
// do not apply to the selected backend are rejected.
type Overrides struct {
	ImagingModel *string  `hcl:"imaging_model,optional" yaml:"imaging_model"`
	Mode         *string  `hcl:"mode,optional" yaml:"mode"`
	StepSize     *float64 `hcl:"step_size,optional" yaml:"step_size"`
	Angle        *float64 `hcl:"angle,optional" yaml:"angle"`
	Seeds        *int     `hcl:"seeds,optional" yaml:"seeds"`

	SphericalDeconvolution *bool    `hcl:"spherical_deconvolution,optional" yaml:"spherical_deconvolution"`
	Curvature              *float64 `hcl:"curvature,optional" yaml:"curvature"`
	FAThreshold            *float64 `hcl:"fa_threshold,optional" yaml:"fa_threshold"`
	ReconOrder             *int     `hcl:"recon_order,optional" yaml:"recon_order"`

	FlipX *bool `hcl:"flip_x,optional" yaml:"flip_x"`
	FlipY *bool `hcl:"flip_y,optional" yaml:"flip_y"`
	FlipZ *bool `hcl:"flip_z,optional" yaml:"flip_z"`

	Spline       *SplineBlock       `hcl:"spline,block" yaml:"spline"`
	LengthFilter *LengthFilterBlock `hcl:"length_filter,block" yaml:"length_filter"`
	ACT          *ACTBlock          `hcl:"act,block" yaml:"act"`
	Pico         *PicoBlock         `hcl:"pico,block" yaml:"pico"`
	Bootstrap    *BootstrapBlock    `hcl:"bootstrap,block" yaml:"bootstrap"`
	Global       *GlobalBlock       `hcl:"global,block" yaml:"global"`
}

// SplineBlock enables spline smoothing of the tracking output.
type SplineBlock struct {
	Enabled    *bool    `hcl:"enabled,optional" yaml:"enabled"`
	StepLength *float64 `hcl:"step_length,optional" yaml:"step_length"`
}

// LengthFilterBlock enables length-band filtering of the tracking output.
type LengthFilterBlock struct {
	Enabled   *bool    `hcl:"enabled,optional" yaml:"enabled"`
	MinLength *float64 `hcl:"min_length,optional" yaml:"min_length"`
	MaxLength *float64 `hcl:"max_length,optional" yaml:"max_length"`
}

// ACTBlock configures anatomically-constrained streamline tracking.
type ACTBlock struct {
	UseACT            *bool    `hcl:"use_act,optional" yaml:"use_act"`
	CropAtInterface   *bool    `hcl:"crop_at_gmwmi,optional" yaml:"crop_at_gmwmi"`
	SeedFromInterface *bool    `hcl:"seed_from_gmwmi,optional" yaml:"seed_from_gmwmi"`
	Backtrack         *bool    `hcl:"backtrack,optional" yaml:"backtrack"`
	DesiredCount      *int     `hcl:"desired_count,optional" yaml:"desired_count"`
	MinLength         *float64 `hcl:"min_length,optional" yaml:"min_length"`
	MaxLength         *float64 `hcl:"max_length,optional" yaml:"max_length"`
	Cutoff            *float64 `hcl:"cutoff,optional" yaml:"cutoff"`
}

// PicoBlock configures PDF-based probabilistic tracking.
type PicoBlock struct {
	Inversion  *int     `hcl:"inversion,optional" yaml:"inversion"`
	Fallback   *int     `hcl:"fallback,optional" yaml:"fallback"`
	CrossAngle *float64 `hcl:"cross_angle,optional" yaml:"cross_angle"`
	Units      *string  `hcl:"units,optional" yaml:"units"`
	Trace      *float64 `hcl:"trace,optional" yaml:"trace"`
	SNR        *float64 `hcl:"snr,optional" yaml:"snr"`
	Iterations *int     `hcl:"iterations,optional" yaml:"iterations"`
	PDF        *string  `hcl:"pdf,optional" yaml:"pdf"`
}

// BootstrapBlock configures residual-bootstrap tracking.
type BootstrapBlock struct {
	Samples            *int     `hcl:"samples,optional" yaml:"samples"`
	Steps              *int     `hcl:"steps,optional" yaml:"steps"`
	DistanceThreshold  *float64 `hcl:"dist_thresh,optional" yaml:"dist_thresh"`
	CurvatureThreshold *float64 `hcl:"c_thresh,optional" yaml:"c_thresh"`
}

// GlobalBlock configures global Bayesian tracking.
type GlobalBlock struct {
	Iterations         *int     `hcl:"iterations,optional" yaml:"iterations"`
	ParticleLength     *float64 `hcl:"particle_length,optional" yaml:"particle_length"`
	ParticleWidth      *float64 `hcl:"particle_width,optional" yaml:"particle_width"`
	ParticleWeight     *float64 `hcl:"particle_weight,optional" yaml:"particle_weight"`
	TempStart          *float64 `hcl:"temp_start,optional" yaml:"temp_start"`
	TempEnd            *float64 `hcl:"temp_end,optional" yaml:"temp_end"`
	InExBalance        *int     `hcl:"inex_balance,optional" yaml:"inex_balance"`
	FiberLength        *float64 `hcl:"fiber_length,optional" yaml:"fiber_length"`
	CurvatureThreshold *float64 `hcl:"curvature_threshold,optional" yaml:"curvature_threshold"`
}

// Build starts from the backend's canonical defaults, layers the preset and
// pipeline overrides in that order, and validates the result.
func Build(backend tracking.Backend, layers ...*Overrides) (tracking.Params, error) {
	params, err := defaults(backend)
	if err != nil {
		return nil, err
	}
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if err := apply(params, layer); err != nil {
			return nil, err
		}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func defaults(backend tracking.Backend) (tracking.Params, error) {
	switch backend {
	case tracking.VoxelDirection:
		return tracking.DefaultVoxelDirection(), nil
	case tracking.TensorODF:
		return tracking.DefaultTensorODF(), nil
	case tracking.StreamlineACT:
		return tracking.DefaultStreamlineACT(), nil
	case tracking.PicoPDF:
		return tracking.DefaultPicoPDF(), nil
	case tracking.ResidualBootstrap:
		return tracking.DefaultResidualBootstrap(), nil
	case tracking.BayesianGlobal:
		return tracking.DefaultBayesianGlobal(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func apply(params tracking.Params, o *Overrides) error {
	if err := applyCommon(params, o); err != nil {
		return err
	}
	switch p := params.(type) {
	case *tracking.VoxelDirectionParams:
		return applyVoxelDirection(p, o)
	case *tracking.TensorODFParams:
		return applyTensorODF(p, o)
	case *tracking.StreamlineACTParams:
		return applyStreamlineACT(p, o)
	case *tracking.PicoPDFParams:
		return applyPicoPDF(p, o)
	case *tracking.ResidualBootstrapParams:
		return applyBootstrap(p, o)
	case *tracking.BayesianGlobalParams:
		return applyGlobal(p, o)
	default:
		return fmt.Errorf("unknown parameter type %T", params)
	}
}

func applyCommon(params tracking.Params, o *Overrides) error {
	base := params.Base()
	if o.ImagingModel != nil {
		m, err := parseImagingModel(*o.ImagingModel)
		if err != nil {
			return err
		}
		base.ImagingModel = m
	}
	if o.StepSize != nil {
		base.StepSize = *o.StepSize
	}
	if o.Angle != nil {
		base.AngleThreshold = *o.Angle
	}
	if o.Seeds != nil {
		base.SeedCount = *o.Seeds
	}
	return nil
}

func parseImagingModel(s string) (tracking.ImagingModel, error) {
	switch tracking.ImagingModel(s) {
	case tracking.DTI, tracking.DSI, tracking.HARDI:
		return tracking.ImagingModel(s), nil
	default:
		return "", fmt.Errorf("unknown imaging model %q", s)
	}
}

func parseMode(s string) (tracking.Mode, error) {
	switch tracking.Mode(s) {
	case tracking.Deterministic, tracking.Probabilistic:
		return tracking.Mode(s), nil
	default:
		return "", fmt.Errorf("unknown tracking mode %q", s)
	}
}

func applyVoxelDirection(p *tracking.VoxelDirectionParams, o *Overrides) error {
	if o.Mode != nil {
		m, err := parseMode(*o.Mode)
		if err != nil {
			return err
		}
		if m != tracking.Deterministic {
			return &tracking.UnsupportedBackendCombinationError{
				Backend: tracking.VoxelDirection,
				Detail:  "voxel-direction tracking is deterministic only",
			}
		}
	}
	if o.FlipX != nil {
		p.FlipX = *o.FlipX
	}
	if o.FlipY != nil {
		p.FlipY = *o.FlipY
	}
	if o.FlipZ != nil {
		p.FlipZ = *o.FlipZ
	}
	if s := o.Spline; s != nil {
		if s.Enabled != nil {
			p.SplineFilter = *s.Enabled
		}
		if s.StepLength != nil {
			p.SplineStepLength = *s.StepLength
		}
	}
	if f := o.LengthFilter; f != nil {
		if f.Enabled != nil {
			p.LengthFilter = *f.Enabled
		}
		if f.MinLength != nil {
			p.MinLength = *f.MinLength
		}
		if f.MaxLength != nil {
			p.MaxLength = *f.MaxLength
		}
	}
	return nil
}

func applyTensorODF(p *tracking.TensorODFParams, o *Overrides) error {
	if o.Mode != nil {
		m, err := parseMode(*o.Mode)
		if err != nil {
			return err
		}
		p.SetTrackingMode(m)
	}
	if o.SphericalDeconvolution != nil {
		p.SetSphericalDeconvolution(*o.SphericalDeconvolution)
	}
	// An explicit curvature wins over the derived value, so it applies last.
	if o.Curvature != nil {
		p.SetCurvature(*o.Curvature)
	}
	if o.FAThreshold != nil {
		p.FAThreshold = *o.FAThreshold
	}
	if o.ReconOrder != nil {
		p.FiberOrderSH = *o.ReconOrder
	}
	return nil
}

func applyStreamlineACT(p *tracking.StreamlineACTParams, o *Overrides) error {
	if o.Mode != nil {
		m, err := parseMode(*o.Mode)
		if err != nil {
			return err
		}
		p.SetTrackingMode(m)
	}
	if o.SphericalDeconvolution != nil {
		p.SetSphericalDeconvolution(*o.SphericalDeconvolution)
	}
	if o.Curvature != nil {
		p.SetCurvature(*o.Curvature)
	}
	if a := o.ACT; a != nil {
		// UseACT applies first so an explicit dependent flag afterwards is
		// preserved for validation to rule on.
		if a.UseACT != nil {
			p.SetUseACT(*a.UseACT)
		}
		if a.CropAtInterface != nil {
			p.CropAtInterface = *a.CropAtInterface
		}
		if a.SeedFromInterface != nil {
			p.SeedFromInterface = *a.SeedFromInterface
		}
		if a.Backtrack != nil {
			p.Backtrack = *a.Backtrack
		}
		if a.DesiredCount != nil {
			p.DesiredTrackCount = *a.DesiredCount
		}
		if a.MinLength != nil {
			p.MinLength = *a.MinLength
		}
		if a.MaxLength != nil {
			p.MaxLength = *a.MaxLength
		}
		if a.Cutoff != nil {
			p.CutoffValue = *a.Cutoff
		}
	}
	return nil
}

func applyPicoPDF(p *tracking.PicoPDFParams, o *Overrides) error {
	if o.Mode != nil {
		m, err := parseMode(*o.Mode)
		if err != nil {
			return err
		}
		p.TrackingMode = m
	}
	if c := o.Pico; c != nil {
		if c.Inversion != nil {
			p.InversionIndex = *c.Inversion
		}
		if c.Fallback != nil {
			p.FallbackIndex = *c.Fallback
		}
		if c.CrossAngle != nil {
			p.CrossAngle = *c.CrossAngle
		}
		// Units switch first so a trace override is read in the configured
		// convention.
		if c.Units != nil {
			switch tracking.Units(*c.Units) {
			case tracking.UnitsM2PerS, tracking.UnitsSPerMM2:
				p.SetUnits(tracking.Units(*c.Units))
			default:
				return fmt.Errorf("unknown units %q", *c.Units)
			}
		}
		if c.Trace != nil {
			p.Trace = *c.Trace
		}
		if c.SNR != nil {
			p.SNR = *c.SNR
		}
		if c.Iterations != nil {
			p.IterationCount = *c.Iterations
		}
		if c.PDF != nil {
			p.PDFModel = tracking.PDFModel(*c.PDF)
		}
	}
	return nil
}

func applyBootstrap(p *tracking.ResidualBootstrapParams, o *Overrides) error {
	if o.Mode != nil {
		m, err := parseMode(*o.Mode)
		if err != nil {
			return err
		}
		if m != tracking.Probabilistic {
			return &tracking.UnsupportedBackendCombinationError{
				Backend: tracking.ResidualBootstrap,
				Detail:  "bootstrap tracking is probabilistic only",
			}
		}
	}
	if b := o.Bootstrap; b != nil {
		if b.Samples != nil {
			p.SampleCount = *b.Samples
		}
		if b.Steps != nil {
			p.StepCount = *b.Steps
		}
		if b.DistanceThreshold != nil {
			p.DistanceThreshold = *b.DistanceThreshold
		}
		if b.CurvatureThreshold != nil {
			p.CurvatureThreshold = *b.CurvatureThreshold
		}
	}
	return nil
}

func applyGlobal(p *tracking.BayesianGlobalParams, o *Overrides) error {
	if g := o.Global; g != nil {
		if g.Iterations != nil {
			p.IterationCount = *g.Iterations
		}
		if g.ParticleLength != nil {
			p.ParticleLength = *g.ParticleLength
		}
		if g.ParticleWidth != nil {
			p.ParticleWidth = *g.ParticleWidth
		}
		if g.ParticleWeight != nil {
			p.ParticleWeight = *g.ParticleWeight
		}
		if g.TempStart != nil {
			p.TempStart = *g.TempStart
		}
		if g.TempEnd != nil {
			p.TempEnd = *g.TempEnd
		}
		if g.InExBalance != nil {
			p.InExBalance = *g.InExBalance
		}
		if g.FiberLength != nil {
			p.FiberLength = *g.FiberLength
		}
		if g.CurvatureThreshold != nil {
			p.CurvatureThreshold = *g.CurvatureThreshold
		}
	}
	return nil
}
