package tracking

import "fmt"

// PicoPDFParams configures probabilistic tracking over fiber-orientation
// probability density functions. The inversion index selects the diffusion
// model the lookup tables are generated for; an index of 10 or above means a
// two-fiber-population model and brings a fallback table into play.
type PicoPDFParams struct {
	Common

	InversionIndex int
	FallbackIndex  int
	CrossAngle     float64

	// Trace is the expected diffusivity trace, expressed in Units. Toggle
	// Units through SetUnits so the value is rescaled with it.
	Trace float64
	Units Units

	SNR            float64
	IterationCount int
	PDFModel       PDFModel
}

// DefaultPicoPDF returns the canonical PDF-tracking configuration.
func DefaultPicoPDF() *PicoPDFParams {
	return &PicoPDFParams{
		Common: Common{
			ImagingModel:   DTI,
			TrackingMode:   Probabilistic,
			StepSize:       0.5,
			AngleThreshold: 60,
			SeedCount:      0,
		},
		InversionIndex: 1,
		FallbackIndex:  1,
		CrossAngle:     20,
		Trace:          2.1e-9,
		Units:          UnitsM2PerS,
		SNR:            20,
		IterationCount: 50,
		PDFModel:       PDFBingham,
	}
}

func (p *PicoPDFParams) Backend() Backend { return PicoPDF }
func (p *PicoPDFParams) Base() *Common    { return &p.Common }

// MultiFiber reports whether the inversion index selects a
// two-fiber-population model.
func (p *PicoPDFParams) MultiFiber() bool { return p.InversionIndex >= 10 }

// SetUnits switches the diffusivity unit convention and rescales Trace to
// keep the same physical quantity: m²/s values are a factor 1e6 smaller
// than s/mm² values.
func (p *PicoPDFParams) SetUnits(u Units) {
	if u == p.Units {
		return
	}
	switch u {
	case UnitsSPerMM2:
		p.Trace *= traceRescale
	case UnitsM2PerS:
		p.Trace /= traceRescale
	default:
		return
	}
	p.Units = u
}

func (p *PicoPDFParams) Validate() error {
	if err := p.Common.validate(PicoPDF); err != nil {
		return err
	}
	if p.InversionIndex < 1 {
		return fmt.Errorf("%s: inversion index must be >= 1, got %d", PicoPDF, p.InversionIndex)
	}
	if p.FallbackIndex < 1 {
		return fmt.Errorf("%s: fallback index must be >= 1, got %d", PicoPDF, p.FallbackIndex)
	}
	if p.Trace <= 0 {
		return fmt.Errorf("%s: trace must be > 0, got %g", PicoPDF, p.Trace)
	}
	switch p.Units {
	case UnitsM2PerS, UnitsSPerMM2:
	default:
		return fmt.Errorf("%s: unknown units %q", PicoPDF, p.Units)
	}
	switch p.PDFModel {
	case PDFBingham, PDFWatson, PDFACG:
	default:
		return fmt.Errorf("%s: unknown PDF model %q", PicoPDF, p.PDFModel)
	}
	if p.TrackingMode == Probabilistic && p.IterationCount <= 0 {
		return fmt.Errorf("%s: iteration count must be > 0, got %d", PicoPDF, p.IterationCount)
	}
	return nil
}
