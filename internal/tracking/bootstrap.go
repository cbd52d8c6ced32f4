package tracking

import "fmt"

// ResidualBootstrapParams configures Monte-Carlo residual-bootstrap
// tracking. Its pipeline fans one tracking invocation out per seed region
// and aggregates connectivity matrices; no streamline file is produced.
type ResidualBootstrapParams struct {
	Common

	SampleCount        int
	StepCount          int
	DistanceThreshold  float64
	CurvatureThreshold float64
}

// DefaultResidualBootstrap returns the canonical bootstrap-tracking
// configuration.
func DefaultResidualBootstrap() *ResidualBootstrapParams {
	return &ResidualBootstrapParams{
		Common: Common{
			ImagingModel:   DTI,
			TrackingMode:   Probabilistic,
			StepSize:       0.5,
			AngleThreshold: 80,
			SeedCount:      0,
		},
		SampleCount:        5000,
		StepCount:          2000,
		DistanceThreshold:  0,
		CurvatureThreshold: 0.2,
	}
}

func (p *ResidualBootstrapParams) Backend() Backend { return ResidualBootstrap }
func (p *ResidualBootstrapParams) Base() *Common    { return &p.Common }

func (p *ResidualBootstrapParams) Validate() error {
	if err := p.Common.validate(ResidualBootstrap); err != nil {
		return err
	}
	if p.SampleCount <= 0 {
		return fmt.Errorf("%s: sample count must be > 0, got %d", ResidualBootstrap, p.SampleCount)
	}
	if p.StepCount <= 0 {
		return fmt.Errorf("%s: step count must be > 0, got %d", ResidualBootstrap, p.StepCount)
	}
	if p.DistanceThreshold < 0 {
		return fmt.Errorf("%s: distance threshold must be >= 0, got %g", ResidualBootstrap, p.DistanceThreshold)
	}
	return nil
}
