package compiler

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// compileBayesianGlobal builds the global-tractography pipeline: a single
// annealing run over the whole volume followed by an orientation correction
// that maps the emitted tracks into the reference grid. The parameter record
// the annealer consumed is surfaced alongside the tracks for provenance.
func compileBayesianGlobal(ctx context.Context, p *tracking.BayesianGlobalParams) (*stagegraph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	w := &wiring{g: stagegraph.New("bayesian_global")}

	w.add(&stagegraph.Stage{
		Name: stagegraph.InputStage,
		Kind: stagegraph.Boundary,
		Outputs: []stagegraph.Port{
			{Name: "diffusion", Type: stagegraph.VolumeType},
			{Name: "wm_mask", Type: stagegraph.VolumeType},
		},
	})

	record := paramRecord(p)
	w.add(&stagegraph.Stage{
		Name: "gibbs_tracking",
		Kind: stagegraph.Tool,
		Op:   "gibbs_tracking",
		Inputs: []stagegraph.Port{
			{Name: "diffusion", Type: stagegraph.VolumeType},
			{Name: "mask", Type: stagegraph.VolumeType},
		},
		Outputs: []stagegraph.Port{{Name: "tracks", Type: stagegraph.StreamlineSetType}},
		Params: map[string]cty.Value{
			"parameter_record": str(record),
			"iterations":       count(p.IterationCount),
		},
	})
	w.connect(stagegraph.InputStage, "diffusion", "gibbs_tracking", "diffusion")
	w.connect(stagegraph.InputStage, "wm_mask", "gibbs_tracking", "mask")

	w.add(&stagegraph.Stage{
		Name: "match_orientations",
		Kind: stagegraph.Builtin,
		Op:   "orient_match",
		Inputs: []stagegraph.Port{
			{Name: "tracks", Type: stagegraph.StreamlineSetType},
			{Name: "ref_volume", Type: stagegraph.VolumeType},
		},
		Outputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
	})
	w.connect("gibbs_tracking", "tracks", "match_orientations", "tracks")
	w.connect(stagegraph.InputStage, "wm_mask", "match_orientations", "ref_volume")

	w.add(&stagegraph.Stage{
		Name: stagegraph.OutputStage,
		Kind: stagegraph.Boundary,
		Inputs: []stagegraph.Port{
			{Name: "track_file", Type: stagegraph.StreamlineSetType},
		},
		Params: map[string]cty.Value{"parameter_record": str(record)},
	})
	w.connect("match_orientations", "track_file", stagegraph.OutputStage, "track_file")

	if w.err != nil {
		return nil, w.err
	}
	logger.Debug("global tracking pipeline wired", "iterations", p.IterationCount)
	return w.g, nil
}

// paramRecord renders the annealing parameters in the key:value line format
// the tracking tool reads.
func paramRecord(p *tracking.BayesianGlobalParams) string {
	return fmt.Sprintf(
		"iterations:%d\nparticle_length:%g\nparticle_width:%g\nparticle_weight:%g\n"+
			"temp_start:%g\ntemp_end:%g\ninex_balance:%d\nfiber_length:%g\ncurvature_threshold:%g\n",
		p.IterationCount, p.ParticleLength, p.ParticleWidth, p.ParticleWeight,
		p.TempStart, p.TempEnd, p.InExBalance, p.FiberLength, p.CurvatureThreshold)
}
