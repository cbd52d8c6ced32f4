package compiler

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// compileVoxelDirection builds the voxel-direction streamline pipeline: a
// direction-field extraction, a mask conversion, the streamline walk, and
// the two optional post-processing stages.
func compileVoxelDirection(ctx context.Context, p *tracking.VoxelDirectionParams) (*stagegraph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	w := &wiring{g: stagegraph.New("voxel_direction")}

	diffusionType := "dti"
	if p.ImagingModel != tracking.DTI {
		diffusionType = "dsi"
	}

	w.add(&stagegraph.Stage{
		Name: stagegraph.InputStage,
		Kind: stagegraph.Boundary,
		Outputs: []stagegraph.Port{
			{Name: "diffusion", Type: stagegraph.VolumeType},
			{Name: "wm_mask", Type: stagegraph.VolumeType},
		},
	})

	dirParams := map[string]cty.Value{
		"diffusion_type": str(diffusionType),
		"invert_x":       flag(p.FlipX),
		"invert_y":       flag(p.FlipY),
		"invert_z":       flag(p.FlipZ),
	}
	if diffusionType == "dsi" {
		// Non-tensor models sample directions from a fixed orientation list.
		dirParams["dirlist"] = str("181_vecs.dat")
	}
	w.add(&stagegraph.Stage{
		Name:   "dtb_dtk2dir",
		Kind:   stagegraph.Tool,
		Op:     "dtb_dtk2dir",
		Inputs: []stagegraph.Port{{Name: "diffusion", Type: stagegraph.VolumeType}},
		Outputs: []stagegraph.Port{
			{Name: "direction_field", Type: stagegraph.VolumeType},
		},
		Params: dirParams,
	})
	w.add(&stagegraph.Stage{
		Name:    "fs_mriconvert",
		Kind:    stagegraph.Tool,
		Op:      "mri_convert",
		Inputs:  []stagegraph.Port{{Name: "in_volume", Type: stagegraph.VolumeType}},
		Outputs: []stagegraph.Port{{Name: "out_volume", Type: stagegraph.VolumeType}},
		Params:  map[string]cty.Value{"out_datatype": str("uchar")},
	})
	w.add(&stagegraph.Stage{
		Name: "dtb_streamline",
		Kind: stagegraph.Tool,
		Op:   "dtb_streamline",
		Inputs: []stagegraph.Port{
			{Name: "direction_field", Type: stagegraph.VolumeType},
			{Name: "wm_mask", Type: stagegraph.VolumeType},
		},
		Outputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
		Params: map[string]cty.Value{
			"angle":     num(p.AngleThreshold),
			"step_size": num(p.StepSize),
			"seeds":     count(p.SeedCount),
		},
	})

	w.connect(stagegraph.InputStage, "diffusion", "dtb_dtk2dir", "diffusion")
	w.connect(stagegraph.InputStage, "wm_mask", "fs_mriconvert", "in_volume")
	w.connect("dtb_dtk2dir", "direction_field", "dtb_streamline", "direction_field")
	w.connect("fs_mriconvert", "out_volume", "dtb_streamline", "wm_mask")

	// Post-processing is a chain: whichever optional stages are enabled
	// splice in between tracking and the output boundary.
	tail, tailPort := "dtb_streamline", "track_file"
	if p.SplineFilter {
		w.add(&stagegraph.Stage{
			Name:    "spline_filter",
			Kind:    stagegraph.Builtin,
			Op:      "spline_smooth",
			Inputs:  []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
			Outputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
			Params:  map[string]cty.Value{"step_length": num(p.SplineStepLength)},
		})
		w.connect(tail, tailPort, "spline_filter", "track_file")
		tail, tailPort = "spline_filter", "track_file"
	}
	if p.LengthFilter {
		w.add(&stagegraph.Stage{
			Name:    "fiber_filter",
			Kind:    stagegraph.Builtin,
			Op:      "length_filter",
			Inputs:  []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
			Outputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
			Params: map[string]cty.Value{
				"min_length": num(p.MinLength),
				"max_length": num(p.MaxLength),
			},
		})
		w.connect(tail, tailPort, "fiber_filter", "track_file")
		tail, tailPort = "fiber_filter", "track_file"
	}

	w.add(&stagegraph.Stage{
		Name:   stagegraph.OutputStage,
		Kind:   stagegraph.Boundary,
		Inputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
	})
	w.connect(tail, tailPort, stagegraph.OutputStage, "track_file")

	if w.err != nil {
		return nil, w.err
	}
	logger.Debug("voxel direction pipeline wired",
		"diffusion_type", diffusionType,
		"spline_filter", p.SplineFilter, "length_filter", p.LengthFilter)
	return w.g, nil
}
