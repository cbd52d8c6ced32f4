package compiler

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// compileResidualBootstrap builds the bootstrap-sampling pipeline. Tracking
// fans out over the per-region seed volumes, each invocation Monte-Carlo
// samples from the fibre-orientation distributions and emits a seed-to-target
// count matrix. No streamline geometry survives this backend; the matrices
// are the result.
func compileResidualBootstrap(ctx context.Context, p *tracking.ResidualBootstrapParams) (*stagegraph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	w := &wiring{g: stagegraph.New("residual_bootstrap")}

	w.add(&stagegraph.Stage{
		Name: stagegraph.InputStage,
		Kind: stagegraph.Boundary,
		Outputs: []stagegraph.Port{
			{Name: "phsamples", Type: cty.String},
			{Name: "thsamples", Type: cty.String},
			{Name: "fsamples", Type: cty.String},
			{Name: "wm_mask", Type: stagegraph.VolumeType},
			{Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType)},
		},
	})

	w.add(&stagegraph.Stage{
		Name: "fsl_seeds",
		Kind: stagegraph.Builtin,
		Op:   "seed_mask",
		Inputs: []stagegraph.Port{
			{Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType)},
			{Name: "tissue_mask", Type: stagegraph.VolumeType},
		},
		Outputs: []stagegraph.Port{
			{Name: "seed_files", Type: cty.List(stagegraph.VolumeType)},
		},
	})
	w.connect(stagegraph.InputStage, "roi_volumes", "fsl_seeds", "roi_volumes")
	w.connect(stagegraph.InputStage, "wm_mask", "fsl_seeds", "tissue_mask")

	// Each seed volume is both the seed image and the target mask, so the
	// matrix rows and columns index the same region.
	w.add(&stagegraph.Stage{
		Name: "probtrackx",
		Kind: stagegraph.Tool,
		Op:   "probtrackx",
		Inputs: []stagegraph.Port{
			{Name: "phsamples", Type: cty.String},
			{Name: "thsamples", Type: cty.String},
			{Name: "fsamples", Type: cty.String},
			{Name: "mask", Type: stagegraph.VolumeType},
			{Name: "seed", Type: stagegraph.VolumeType},
		},
		Outputs: []stagegraph.Port{{Name: "matrix", Type: stagegraph.MatrixType}},
		Params: map[string]cty.Value{
			"n_samples":   count(p.SampleCount),
			"n_steps":     count(p.StepCount),
			"step_length": num(p.StepSize),
			"dist_thresh": num(p.DistanceThreshold),
			"c_thresh":    num(p.CurvatureThreshold),
			"loop_check":  flag(true),
			"opd":         flag(false),
			"os2t":        flag(true),
			"s2tastext":   flag(true),
			"mode":        str("seedmask"),
			"force_dir":   flag(true),
		},
		Over: "seed",
	})
	w.connect(stagegraph.InputStage, "phsamples", "probtrackx", "phsamples")
	w.connect(stagegraph.InputStage, "thsamples", "probtrackx", "thsamples")
	w.connect(stagegraph.InputStage, "fsamples", "probtrackx", "fsamples")
	w.connect(stagegraph.InputStage, "wm_mask", "probtrackx", "mask")
	w.connect("fsl_seeds", "seed_files", "probtrackx", "seed")

	w.add(&stagegraph.Stage{
		Name: stagegraph.OutputStage,
		Kind: stagegraph.Boundary,
		Inputs: []stagegraph.Port{
			{Name: "matrices", Type: cty.List(stagegraph.MatrixType)},
		},
	})
	w.connect("probtrackx", "matrix", stagegraph.OutputStage, "matrices")

	if w.err != nil {
		return nil, w.err
	}
	logger.Debug("bootstrap pipeline wired",
		"samples", p.SampleCount, "steps", p.StepCount)
	return w.g, nil
}
