package tracking

import "fmt"

// BayesianGlobalParams configures Markov-chain global tractography: a
// simulated-annealing particle model whose parameter record is handed to
// the external tool verbatim.
type BayesianGlobalParams struct {
	Common

	IterationCount int
	ParticleLength float64
	ParticleWidth  float64
	ParticleWeight float64
	TempStart      float64
	TempEnd        float64
	// InExBalance biases the energy balance between internal (curvature)
	// and external (data fit) terms; negative favours the data term.
	InExBalance        int
	FiberLength        float64
	CurvatureThreshold float64
}

// DefaultBayesianGlobal returns the canonical global-tracking configuration.
func DefaultBayesianGlobal() *BayesianGlobalParams {
	return &BayesianGlobalParams{
		Common: Common{
			ImagingModel:   DSI,
			TrackingMode:   Probabilistic,
			StepSize:       1.0,
			AngleThreshold: 90,
			SeedCount:      0,
		},
		IterationCount:     100_000_000,
		ParticleLength:     1.5,
		ParticleWidth:      0.5,
		ParticleWeight:     0.0003,
		TempStart:          0.1,
		TempEnd:            0.001,
		InExBalance:        -2,
		FiberLength:        20,
		CurvatureThreshold: 90,
	}
}

func (p *BayesianGlobalParams) Backend() Backend { return BayesianGlobal }
func (p *BayesianGlobalParams) Base() *Common    { return &p.Common }

func (p *BayesianGlobalParams) Validate() error {
	if err := p.Common.validate(BayesianGlobal); err != nil {
		return err
	}
	if p.IterationCount <= 0 {
		return fmt.Errorf("%s: iteration count must be > 0, got %d", BayesianGlobal, p.IterationCount)
	}
	if p.ParticleLength <= 0 || p.ParticleWidth <= 0 {
		return fmt.Errorf("%s: particle dimensions must be > 0, got %gx%g", BayesianGlobal, p.ParticleLength, p.ParticleWidth)
	}
	if p.TempEnd <= 0 || p.TempStart < p.TempEnd {
		return fmt.Errorf("%s: annealing temperatures must satisfy start >= end > 0, got %g -> %g", BayesianGlobal, p.TempStart, p.TempEnd)
	}
	if p.FiberLength <= 0 {
		return fmt.Errorf("%s: fiber length must be > 0, got %g", BayesianGlobal, p.FiberLength)
	}
	return nil
}
