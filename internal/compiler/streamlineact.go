package compiler

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// compileStreamlineACT builds the anatomically-constrained streamline
// pipeline: mask erosion feeding a merged seed volume, the tracking stage
// itself, and a format converter before the output boundary. Whether the
// anatomical constraint is active decides where the tracking mask and seeds
// come from.
func compileStreamlineACT(ctx context.Context, p *tracking.StreamlineACTParams) (*stagegraph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	w := &wiring{g: stagegraph.New("streamline_act")}

	// The tissue model and interface mask are only pipeline inputs when the
	// constraint branch that reads them is compiled in.
	inputPorts := []stagegraph.Port{
		{Name: "diffusion", Type: stagegraph.VolumeType},
		{Name: "grad", Type: cty.String},
		{Name: "wm_mask", Type: stagegraph.VolumeType},
		{Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType)},
	}
	if p.UseACT {
		inputPorts = append(inputPorts, stagegraph.Port{Name: "act_5tt", Type: stagegraph.VolumeType})
		if p.SeedFromInterface {
			inputPorts = append(inputPorts, stagegraph.Port{Name: "gmwmi", Type: stagegraph.VolumeType})
		}
	}
	w.add(&stagegraph.Stage{
		Name:    stagegraph.InputStage,
		Kind:    stagegraph.Boundary,
		Outputs: inputPorts,
	})
	w.add(&stagegraph.Stage{
		Name:   stagegraph.OutputStage,
		Kind:   stagegraph.Boundary,
		Inputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
	})

	// The eroded mask and merged seed volume are always built; without the
	// anatomical constraint they simply are not the tracking inputs.
	w.add(&stagegraph.Stage{
		Name:    "wm_erode",
		Kind:    stagegraph.Tool,
		Op:      "maskfilter_erode",
		Inputs:  []stagegraph.Port{{Name: "in_volume", Type: stagegraph.VolumeType}},
		Outputs: []stagegraph.Port{{Name: "out_volume", Type: stagegraph.VolumeType}},
		Params:  map[string]cty.Value{"filter": str("erode"), "passes": count(3)},
	})
	w.connect(stagegraph.InputStage, "wm_mask", "wm_erode", "in_volume")

	w.add(&stagegraph.Stage{
		Name: "mrtrix_seeds",
		Kind: stagegraph.Builtin,
		Op:   "seed_mask_merged",
		Inputs: []stagegraph.Port{
			{Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType)},
			{Name: "tissue_mask", Type: stagegraph.VolumeType},
		},
		Outputs: []stagegraph.Port{{Name: "seed_file", Type: stagegraph.VolumeType}},
	})
	w.connect(stagegraph.InputStage, "roi_volumes", "mrtrix_seeds", "roi_volumes")
	w.connect("wm_erode", "out_volume", "mrtrix_seeds", "tissue_mask")

	algorithm := chooseStreamlineAlgorithm(p)
	trackingParams := map[string]cty.Value{
		"algorithm":     str(algorithm),
		"desired_count": count(p.DesiredTrackCount),
		"min_length":    num(p.MinLength),
		"max_length":    num(p.MaxLength),
		"cutoff":        num(p.CutoffValue),
		"step_size":     num(p.StepSize),
		"angle":         num(p.AngleThreshold),
		"seeds":         count(p.SeedCount),
	}
	if p.Curvature >= 1e-6 {
		trackingParams["rk4"] = flag(true)
		trackingParams["curvature"] = num(p.Curvature)
	}
	trackInputs := []stagegraph.Port{
		{Name: "diffusion", Type: stagegraph.VolumeType},
		{Name: "grad", Type: cty.String},
		{Name: "mask_file", Type: stagegraph.VolumeType},
		{Name: "seed_file", Type: stagegraph.VolumeType},
		{Name: "act_file", Type: stagegraph.VolumeType, Optional: true},
	}
	if p.UseACT {
		trackingParams["crop_at_gmwmi"] = flag(p.CropAtInterface)
		trackingParams["backtrack"] = flag(p.Backtrack)
	}
	w.add(&stagegraph.Stage{
		Name:    "tracking",
		Kind:    stagegraph.Tool,
		Op:      "tckgen",
		Inputs:  trackInputs,
		Outputs: []stagegraph.Port{{Name: "tracks", Type: stagegraph.StreamlineSetType}},
		Params:  trackingParams,
	})
	w.connect(stagegraph.InputStage, "diffusion", "tracking", "diffusion")
	w.connect(stagegraph.InputStage, "grad", "tracking", "grad")
	if p.UseACT {
		w.connect(stagegraph.InputStage, "act_5tt", "tracking", "act_file")
		w.connect("wm_erode", "out_volume", "tracking", "mask_file")
		if p.SeedFromInterface {
			w.connect(stagegraph.InputStage, "gmwmi", "tracking", "seed_file")
		} else {
			w.connect("mrtrix_seeds", "seed_file", "tracking", "seed_file")
		}
	} else {
		// Without the tissue model the raw white-matter mask is both the
		// tracking domain and the seed image.
		w.connect(stagegraph.InputStage, "wm_mask", "tracking", "mask_file")
		w.connect(stagegraph.InputStage, "wm_mask", "tracking", "seed_file")
	}

	w.add(&stagegraph.Stage{
		Name:    "converter",
		Kind:    stagegraph.Tool,
		Op:      "tck2trk",
		Inputs:  []stagegraph.Port{{Name: "tracks", Type: stagegraph.StreamlineSetType}},
		Outputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
	})
	w.connect("tracking", "tracks", "converter", "tracks")
	w.connect("converter", "track_file", stagegraph.OutputStage, "track_file")

	if w.err != nil {
		return nil, w.err
	}
	logger.Debug("streamline pipeline wired",
		"algorithm", algorithm, "use_act", p.UseACT,
		"seed_from_interface", p.SeedFromInterface)
	return w.g, nil
}

// chooseStreamlineAlgorithm maps (mode, spherical deconvolution) onto the
// tracking tool's algorithm name.
func chooseStreamlineAlgorithm(p *tracking.StreamlineACTParams) string {
	if p.TrackingMode == tracking.Probabilistic {
		if p.SphericalDeconvolution {
			return "iFOD2"
		}
		return "Tensor_Prob"
	}
	if p.SphericalDeconvolution {
		return "SD_Stream"
	}
	return "Tensor_Det"
}
