package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"gonum.org/v1/gonum/stat"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/seeds"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
	"github.com/joanrue/connectomemapper3/internal/tract"
	"github.com/joanrue/connectomemapper3/internal/volume"
)

// Runner executes a builtin stage in-process.
type Runner func(ctx context.Context, s *stagegraph.Stage, inputs map[string]cty.Value) (map[string]cty.Value, error)

func defaultRunners() map[string]Runner {
	return map[string]Runner{
		"seed_mask":        runSeedMask,
		"seed_mask_merged": runSeedMaskMerged,
		"length_filter":    runLengthFilter,
		"spline_smooth":    runSplineSmooth,
		"orient_match":     runOrientMatch,
		"merge":            runMerge,
	}
}

func paramFloat(s *stagegraph.Stage, name string) (float64, error) {
	v, ok := s.Params[name]
	if !ok {
		return 0, fmt.Errorf("stage %q: missing param %q", s.Name, name)
	}
	f, _ := v.AsBigFloat().Float64()
	return f, nil
}

func volumesIn(inputs map[string]cty.Value, port string) []*volume.Volume {
	vals := inputs[port].AsValueSlice()
	out := make([]*volume.Volume, len(vals))
	for i, v := range vals {
		out[i] = stagegraph.VolumeFromVal(v)
	}
	return out
}

// runSeedMask intersects the region volumes with the tissue mask and emits
// one binary seed volume per region label.
func runSeedMask(ctx context.Context, s *stagegraph.Stage, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	regions := volumesIn(inputs, "roi_volumes")
	mask := stagegraph.VolumeFromVal(inputs["tissue_mask"])

	seedVols, err := seeds.PerRegion(ctx, regions, mask)
	if err != nil {
		return nil, err
	}
	vals := make([]cty.Value, len(seedVols))
	for i, sv := range seedVols {
		sv.Volume.ID = sv.Name()
		vals[i] = stagegraph.VolumeVal(sv.Volume)
	}
	out := cty.ListValEmpty(stagegraph.VolumeType)
	if len(vals) > 0 {
		out = cty.ListVal(vals)
	}
	return map[string]cty.Value{"seed_files": out}, nil
}

// runSeedMaskMerged builds the single label-valued seed volume.
func runSeedMaskMerged(ctx context.Context, s *stagegraph.Stage, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	regions := volumesIn(inputs, "roi_volumes")
	mask := stagegraph.VolumeFromVal(inputs["tissue_mask"])

	sv, err := seeds.Merged(ctx, regions, mask)
	if err != nil {
		return nil, err
	}
	sv.Volume.ID = sv.Name()
	return map[string]cty.Value{"seed_file": stagegraph.VolumeVal(sv.Volume)}, nil
}

// runLengthFilter drops streamlines outside the configured length band and
// logs a summary of the input length distribution.
func runLengthFilter(ctx context.Context, s *stagegraph.Stage, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	set := stagegraph.SetFromVal(inputs["track_file"])
	minLen, err := paramFloat(s, "min_length")
	if err != nil {
		return nil, err
	}
	maxLen, err := paramFloat(s, "max_length")
	if err != nil {
		return nil, err
	}

	filtered, lengths, err := tract.Filter(*set, minLen, maxLen)
	if err != nil {
		return nil, err
	}

	sorted := append([]float64(nil), lengths...)
	sort.Float64s(sorted)
	ctxlog.FromContext(ctx).Info("length filter applied",
		"in", len(set.Streamlines), "out", len(filtered.Streamlines),
		"mean_length", stat.Mean(sorted, nil),
		"median_length", stat.Quantile(0.5, stat.Empirical, sorted, nil))

	return map[string]cty.Value{"track_file": stagegraph.SetVal(&filtered)}, nil
}

// runSplineSmooth resamples every streamline along a cubic-spline fit.
func runSplineSmooth(ctx context.Context, s *stagegraph.Stage, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	set := stagegraph.SetFromVal(inputs["track_file"])
	step, err := paramFloat(s, "step_length")
	if err != nil {
		return nil, err
	}
	smoothed, err := tract.Smooth(*set, step)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("spline smoothing applied",
		"streamlines", len(smoothed.Streamlines), "step_length", step)
	return map[string]cty.Value{"track_file": stagegraph.SetVal(&smoothed)}, nil
}

// runOrientMatch rewrites streamline coordinates from the set's own axis
// convention into the reference volume's grid.
func runOrientMatch(ctx context.Context, s *stagegraph.Stage, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	set := stagegraph.SetFromVal(inputs["tracks"])
	ref := stagegraph.VolumeFromVal(inputs["ref_volume"])

	corrected, err := tract.Correct(*set, ref.Grid, set.Space)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("orientation corrected",
		"from", set.Space, "to", ref.Grid.AxisCodes)
	return map[string]cty.Value{"track_file": stagegraph.SetVal(&corrected)}, nil
}

// runMerge collects its scalar inputs, in declared port order, into the
// single list-typed output port.
func runMerge(ctx context.Context, s *stagegraph.Stage, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	if len(s.Outputs) != 1 {
		return nil, fmt.Errorf("stage %q: merge needs exactly one output port", s.Name)
	}
	out := s.Outputs[0]
	if !out.Type.IsListType() {
		return nil, fmt.Errorf("stage %q: merge output %q must be a list", s.Name, out.Name)
	}
	vals := make([]cty.Value, 0, len(s.Inputs))
	for _, p := range s.Inputs {
		v, ok := inputs[p.Name]
		if !ok {
			return nil, fmt.Errorf("stage %q: merge input %q not wired", s.Name, p.Name)
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return map[string]cty.Value{out.Name: cty.ListValEmpty(out.Type.ElementType())}, nil
	}
	return map[string]cty.Value{out.Name: cty.ListVal(vals)}, nil
}
