package compiler

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// compileTensorODF builds the ODF-based pipeline. Plain tensor tracking on
// non-DSI data uses the fast EuDX walker straight off the peaks; everything
// else reconstructs a direction getter (constrained spherical deconvolution,
// or SHORE for DSI) and seeds it from the per-region seed volumes.
func compileTensorODF(ctx context.Context, p *tracking.TensorODFParams) (*stagegraph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	w := &wiring{g: stagegraph.New("tensor_odf")}

	simpleTensor := !p.SphericalDeconvolution && p.ImagingModel != tracking.DSI

	// The peaks walker seeds from the mask itself; only the reconstruction
	// path consumes per-region seed volumes.
	inputPorts := []stagegraph.Port{
		{Name: "diffusion", Type: stagegraph.VolumeType},
		{Name: "grad", Type: cty.String},
		{Name: "wm_mask", Type: stagegraph.VolumeType},
	}
	if !simpleTensor {
		inputPorts = append(inputPorts, stagegraph.Port{
			Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType),
		})
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

	if simpleTensor {
		w.add(&stagegraph.Stage{
			Name: "tensor_eudx",
			Kind: stagegraph.Tool,
			Op:   "eudx_tracking",
			Inputs: []stagegraph.Port{
				{Name: "diffusion", Type: stagegraph.VolumeType},
				{Name: "grad", Type: cty.String},
				{Name: "wm_mask", Type: stagegraph.VolumeType},
			},
			Outputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
			Params: map[string]cty.Value{
				"fa_threshold": num(p.FAThreshold),
				"angle":        num(p.AngleThreshold),
				"step_size":    num(p.StepSize),
				"seeds":        count(p.SeedCount),
			},
		})
		w.connect(stagegraph.InputStage, "diffusion", "tensor_eudx", "diffusion")
		w.connect(stagegraph.InputStage, "grad", "tensor_eudx", "grad")
		w.connect(stagegraph.InputStage, "wm_mask", "tensor_eudx", "wm_mask")
		w.connect("tensor_eudx", "track_file", stagegraph.OutputStage, "track_file")

		if w.err != nil {
			return nil, w.err
		}
		logger.Debug("tensor pipeline wired", "direction_getter", "peaks")
		return w.g, nil
	}

	reconModel := "CSD"
	if p.ImagingModel == tracking.DSI {
		reconModel = "SHORE"
	}
	algorithm := "deterministic"
	if p.TrackingMode == tracking.Probabilistic {
		algorithm = "probabilistic"
	}

	w.add(&stagegraph.Stage{
		Name: "dipy_seeds",
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
	w.add(&stagegraph.Stage{
		Name: "direction_getter",
		Kind: stagegraph.Tool,
		Op:   "odf_tracking",
		Inputs: []stagegraph.Port{
			{Name: "diffusion", Type: stagegraph.VolumeType},
			{Name: "grad", Type: cty.String},
			{Name: "wm_mask", Type: stagegraph.VolumeType},
			{Name: "seed_files", Type: cty.List(stagegraph.VolumeType)},
		},
		Outputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
		Params: map[string]cty.Value{
			"recon_model":            str(reconModel),
			"recon_order":            count(p.FiberOrderSH),
			"algorithm":              str(algorithm),
			"fa_threshold":           num(p.FAThreshold),
			"curvature":              num(p.Curvature),
			"angle":                  num(p.AngleThreshold),
			"step_size":              num(p.StepSize),
			"seeds":                  count(p.SeedCount),
			"use_act":                flag(p.UseACT),
			"fast_number_of_classes": count(p.TissueClassCount),
		},
	})

	w.connect(stagegraph.InputStage, "roi_volumes", "dipy_seeds", "roi_volumes")
	w.connect(stagegraph.InputStage, "wm_mask", "dipy_seeds", "tissue_mask")
	w.connect(stagegraph.InputStage, "diffusion", "direction_getter", "diffusion")
	w.connect(stagegraph.InputStage, "grad", "direction_getter", "grad")
	w.connect(stagegraph.InputStage, "wm_mask", "direction_getter", "wm_mask")
	w.connect("dipy_seeds", "seed_files", "direction_getter", "seed_files")
	w.connect("direction_getter", "track_file", stagegraph.OutputStage, "track_file")

	if w.err != nil {
		return nil, w.err
	}
	logger.Debug("ODF pipeline wired",
		"recon_model", reconModel, "algorithm", algorithm)
	return w.g, nil
}
