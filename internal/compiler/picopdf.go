package compiler

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// compilePicoPDF builds the PDF-tracking pipeline. The probabilistic form
// generates a diffusivity lookup table (two tables merged when the
// inversion index selects a multi-fiber model), turns the tensor fit into
// per-voxel orientation PDFs, and fans a tracking invocation out over the
// per-region seed volumes. The deterministic form is a plain tensor walk
// with no tables.
func compilePicoPDF(ctx context.Context, p *tracking.PicoPDFParams) (*stagegraph.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	w := &wiring{g: stagegraph.New("pico_pdf")}

	if p.TrackingMode == tracking.Deterministic {
		return compileCaminoDeterministic(ctx, w, p)
	}

	w.add(&stagegraph.Stage{
		Name: stagegraph.InputStage,
		Kind: stagegraph.Boundary,
		Outputs: []stagegraph.Port{
			{Name: "tensor_fitted", Type: cty.String},
			{Name: "scheme_file", Type: cty.String},
			{Name: "wm_mask", Type: stagegraph.VolumeType},
			{Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType)},
		},
	})

	// Trace reaches the table generator exactly as stored; the units toggle
	// on the parameter set already keeps the value and convention together.
	lutParams := map[string]cty.Value{
		"inversion": count(p.InversionIndex),
		"snr":       num(p.SNR),
		"trace":     num(p.Trace),
		"pdf":       str(string(p.PDFModel)),
	}
	if p.MultiFiber() {
		// The crossing angle shapes the multi-fiber table; the single-fiber
		// fallback table has no crossing to model.
		lutParams["cross"] = num(p.CrossAngle)
	}
	w.add(&stagegraph.Stage{
		Name:    "dtlutgen",
		Kind:    stagegraph.Tool,
		Op:      "dtlutgen",
		Inputs:  []stagegraph.Port{{Name: "scheme_file", Type: cty.String}},
		Outputs: []stagegraph.Port{{Name: "lut", Type: cty.String}},
		Params:  lutParams,
	})
	w.connect(stagegraph.InputStage, "scheme_file", "dtlutgen", "scheme_file")

	lutStage, lutPort := "dtlutgen", "lut"
	if p.MultiFiber() {
		// Multi-fiber inversions need a second table for the single-fiber
		// fallback model, merged ahead of the primary one.
		w.add(&stagegraph.Stage{
			Name:    "dtlutgen_fallback",
			Kind:    stagegraph.Tool,
			Op:      "dtlutgen",
			Inputs:  []stagegraph.Port{{Name: "scheme_file", Type: cty.String}},
			Outputs: []stagegraph.Port{{Name: "lut", Type: cty.String}},
			Params: map[string]cty.Value{
				"inversion": count(p.FallbackIndex),
				"snr":       num(p.SNR),
				"trace":     num(p.Trace),
				"pdf":       str(string(p.PDFModel)),
			},
		})
		w.add(&stagegraph.Stage{
			Name: "merge_luts",
			Kind: stagegraph.Builtin,
			Op:   "merge",
			Inputs: []stagegraph.Port{
				{Name: "fallback", Type: cty.String},
				{Name: "primary", Type: cty.String},
			},
			Outputs: []stagegraph.Port{{Name: "merged", Type: cty.List(cty.String)}},
		})
		w.connect(stagegraph.InputStage, "scheme_file", "dtlutgen_fallback", "scheme_file")
		w.connect("dtlutgen_fallback", "lut", "merge_luts", "fallback")
		w.connect("dtlutgen", "lut", "merge_luts", "primary")
		lutStage, lutPort = "merge_luts", "merged"
	}

	inputModel := "dt"
	if p.InversionIndex >= 10 {
		inputModel = "multitensor"
	}
	pdfInputs := []stagegraph.Port{
		{Name: "tensor_fitted", Type: cty.String},
		{Name: "luts", Type: cty.List(cty.String)},
	}
	pdfParams := map[string]cty.Value{
		"input_model": str(inputModel),
		"pdf":         str(string(p.PDFModel)),
		"iterations":  count(p.IterationCount),
	}
	if p.InversionIndex > 100 {
		pdfParams["max_components"] = count(3)
	}
	w.add(&stagegraph.Stage{
		Name:    "picopdf",
		Kind:    stagegraph.Tool,
		Op:      "picopdfs",
		Inputs:  pdfInputs,
		Outputs: []stagegraph.Port{{Name: "pdf_fitted", Type: cty.String}},
		Params:  pdfParams,
	})
	w.connect(stagegraph.InputStage, "tensor_fitted", "picopdf", "tensor_fitted")
	w.connect(lutStage, lutPort, "picopdf", "luts")

	w.add(&stagegraph.Stage{
		Name: "camino_seeds",
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
	w.connect(stagegraph.InputStage, "roi_volumes", "camino_seeds", "roi_volumes")
	w.connect(stagegraph.InputStage, "wm_mask", "camino_seeds", "tissue_mask")

	numPDs := 3
	if p.InversionIndex >= 10 && p.InversionIndex < 100 {
		numPDs = 2
	}
	w.add(&stagegraph.Stage{
		Name: "track_pico",
		Kind: stagegraph.Tool,
		Op:   "track_pico",
		Inputs: []stagegraph.Port{
			{Name: "pdf_fitted", Type: cty.String},
			{Name: "seed_file", Type: stagegraph.VolumeType},
		},
		Outputs: []stagegraph.Port{{Name: "tracks", Type: stagegraph.StreamlineSetType}},
		Params: map[string]cty.Value{
			"num_pds":    count(numPDs),
			"iterations": count(p.IterationCount),
			"pdf":        str(string(p.PDFModel)),
			"angle":      num(p.AngleThreshold),
			"step_size":  num(p.StepSize),
		},
		Over: "seed_file",
	})
	w.connect("picopdf", "pdf_fitted", "track_pico", "pdf_fitted")
	w.connect("camino_seeds", "seed_files", "track_pico", "seed_file")

	w.add(&stagegraph.Stage{
		Name:    "converter",
		Kind:    stagegraph.Tool,
		Op:      "camino2trackvis",
		Inputs:  []stagegraph.Port{{Name: "tracks", Type: stagegraph.StreamlineSetType}},
		Outputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
		Over:    "tracks",
	})
	w.connect("track_pico", "tracks", "converter", "tracks")

	w.add(&stagegraph.Stage{
		Name: stagegraph.OutputStage,
		Kind: stagegraph.Boundary,
		Inputs: []stagegraph.Port{
			{Name: "track_files", Type: cty.List(stagegraph.StreamlineSetType)},
		},
	})
	w.connect("converter", "track_file", stagegraph.OutputStage, "track_files")

	if w.err != nil {
		return nil, w.err
	}
	logger.Debug("PDF pipeline wired",
		"inversion", p.InversionIndex, "multi_fiber", p.MultiFiber(),
		"num_pds", numPDs)
	return w.g, nil
}

// compileCaminoDeterministic wires the non-probabilistic tensor walk. No
// lookup tables are generated, so the acquisition scheme never enters the
// graph.
func compileCaminoDeterministic(ctx context.Context, w *wiring, p *tracking.PicoPDFParams) (*stagegraph.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	w.add(&stagegraph.Stage{
		Name: stagegraph.InputStage,
		Kind: stagegraph.Boundary,
		Outputs: []stagegraph.Port{
			{Name: "tensor_fitted", Type: cty.String},
			{Name: "wm_mask", Type: stagegraph.VolumeType},
			{Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType)},
		},
	})

	inputModel := "dt"
	if p.InversionIndex >= 10 {
		inputModel = "multitensor"
	}
	w.add(&stagegraph.Stage{
		Name: "track",
		Kind: stagegraph.Tool,
		Op:   "camino_track",
		Inputs: []stagegraph.Port{
			{Name: "tensor_fitted", Type: cty.String},
			{Name: "seed_file", Type: stagegraph.VolumeType},
		},
		Outputs: []stagegraph.Port{{Name: "tracks", Type: stagegraph.StreamlineSetType}},
		Params: map[string]cty.Value{
			"input_model": str(inputModel),
			"angle":       num(p.AngleThreshold),
			"step_size":   num(p.StepSize),
		},
	})
	w.add(&stagegraph.Stage{
		Name: "merged_seeds",
		Kind: stagegraph.Builtin,
		Op:   "seed_mask_merged",
		Inputs: []stagegraph.Port{
			{Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType)},
			{Name: "tissue_mask", Type: stagegraph.VolumeType},
		},
		Outputs: []stagegraph.Port{{Name: "seed_file", Type: stagegraph.VolumeType}},
	})
	w.add(&stagegraph.Stage{
		Name:    "converter",
		Kind:    stagegraph.Tool,
		Op:      "camino2trackvis",
		Inputs:  []stagegraph.Port{{Name: "tracks", Type: stagegraph.StreamlineSetType}},
		Outputs: []stagegraph.Port{{Name: "track_file", Type: stagegraph.StreamlineSetType}},
	})
	w.add(&stagegraph.Stage{
		Name: stagegraph.OutputStage,
		Kind: stagegraph.Boundary,
		Inputs: []stagegraph.Port{
			{Name: "track_files", Type: cty.List(stagegraph.StreamlineSetType)},
		},
	})

	w.connect(stagegraph.InputStage, "roi_volumes", "merged_seeds", "roi_volumes")
	w.connect(stagegraph.InputStage, "wm_mask", "merged_seeds", "tissue_mask")
	w.connect(stagegraph.InputStage, "tensor_fitted", "track", "tensor_fitted")
	w.connect("merged_seeds", "seed_file", "track", "seed_file")
	w.connect("track", "tracks", "converter", "tracks")
	w.connect("converter", "track_file", stagegraph.OutputStage, "track_files")

	if w.err != nil {
		return nil, w.err
	}
	logger.Debug("deterministic tensor-walk pipeline wired", "input_model", inputModel)
	return w.g, nil
}
