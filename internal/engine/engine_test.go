package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/joanrue/connectomemapper3/internal/compiler"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
	"github.com/joanrue/connectomemapper3/internal/tracking"
	"github.com/joanrue/connectomemapper3/internal/tract"
	"github.com/joanrue/connectomemapper3/internal/volume"
)

func testGrid() volume.Grid {
	return volume.Grid{
		Dims:      [3]int{4, 4, 1},
		VoxelSize: [3]float64{1, 1, 1},
		AxisCodes: "RAS",
	}
}

// line returns a straight streamline of the given length along x.
func line(length float64, points int) tract.Streamline {
	step := length / float64(points-1)
	sl := tract.Streamline{Points: make([]r3.Vec, points)}
	for i := range sl.Points {
		sl.Points[i] = r3.Vec{X: float64(i) * step}
	}
	return sl
}

// fakeInvoker satisfies ToolInvoker with canned per-op handlers and records
// every invocation.
type fakeInvoker struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(inputs map[string]cty.Value) (map[string]cty.Value, error)
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		calls:    make(map[string]int),
		handlers: make(map[string]func(map[string]cty.Value) (map[string]cty.Value, error)),
	}
}

func (f *fakeInvoker) Invoke(_ context.Context, op string, _ map[string]cty.Value, inputs map[string]cty.Value) (map[string]cty.Value, error) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
	handler, ok := f.handlers[op]
	if !ok {
		return nil, fmt.Errorf("no handler for op %q", op)
	}
	return handler(inputs)
}

func TestExecuteVoxelDirectionPipeline(t *testing.T) {
	g, err := compiler.Compile(context.Background(), tracking.DefaultVoxelDirection())
	require.NoError(t, err)

	invoker := newFakeInvoker()
	invoker.handlers["dtb_dtk2dir"] = func(in map[string]cty.Value) (map[string]cty.Value, error) {
		return map[string]cty.Value{
			"direction_field": stagegraph.VolumeVal(volume.New("dir", testGrid())),
		}, nil
	}
	invoker.handlers["mri_convert"] = func(in map[string]cty.Value) (map[string]cty.Value, error) {
		return map[string]cty.Value{"out_volume": in["in_volume"]}, nil
	}
	invoker.handlers["dtb_streamline"] = func(in map[string]cty.Value) (map[string]cty.Value, error) {
		set := &tract.Set{
			Space: "RAS",
			Grid:  testGrid(),
			Streamlines: []tract.Streamline{
				line(5, 6),   // below the 20mm default floor
				line(100, 6), // inside the band
			},
		}
		return map[string]cty.Value{"track_file": stagegraph.SetVal(set)}, nil
	}

	eng := New(4, invoker)
	res, err := eng.Execute(context.Background(), g, map[string]cty.Value{
		"diffusion": stagegraph.VolumeVal(volume.New("dwi", testGrid())),
		"wm_mask":   stagegraph.VolumeVal(volume.New("wm", testGrid())),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	require.Contains(t, res.Outputs, "track_file")
	out := stagegraph.SetFromVal(res.Outputs["track_file"])
	// Only the 100mm streamline survives the length filter.
	require.Len(t, out.Streamlines, 1)
	assert.InDelta(t, 100, out.Streamlines[0].Length(), 1e-6)

	assert.Equal(t, 1, invoker.calls["dtb_dtk2dir"])
	assert.Equal(t, 1, invoker.calls["mri_convert"])
	assert.Equal(t, 1, invoker.calls["dtb_streamline"])
}

func TestExecuteFanOut(t *testing.T) {
	// A per-region seed stage followed by a fan-out tool stage: one tool
	// invocation per seed volume, outputs collected in order.
	build := func(t *testing.T) *stagegraph.Graph {
		t.Helper()
		g := stagegraph.New("fanout")
		require.NoError(t, g.Add(&stagegraph.Stage{
			Name: stagegraph.InputStage,
			Kind: stagegraph.Boundary,
			Outputs: []stagegraph.Port{
				{Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType)},
				{Name: "wm_mask", Type: stagegraph.VolumeType},
			},
		}))
		require.NoError(t, g.Add(&stagegraph.Stage{
			Name: "seeds",
			Kind: stagegraph.Builtin,
			Op:   "seed_mask",
			Inputs: []stagegraph.Port{
				{Name: "roi_volumes", Type: cty.List(stagegraph.VolumeType)},
				{Name: "tissue_mask", Type: stagegraph.VolumeType},
			},
			Outputs: []stagegraph.Port{
				{Name: "seed_files", Type: cty.List(stagegraph.VolumeType)},
			},
		}))
		require.NoError(t, g.Add(&stagegraph.Stage{
			Name:    "track",
			Kind:    stagegraph.Tool,
			Op:      "track_one",
			Inputs:  []stagegraph.Port{{Name: "seed", Type: stagegraph.VolumeType}},
			Outputs: []stagegraph.Port{{Name: "name", Type: cty.String}},
			Over:    "seed",
		}))
		require.NoError(t, g.Add(&stagegraph.Stage{
			Name:   stagegraph.OutputStage,
			Kind:   stagegraph.Boundary,
			Inputs: []stagegraph.Port{{Name: "names", Type: cty.List(cty.String)}},
		}))
		require.NoError(t, g.Connect(stagegraph.InputStage, "roi_volumes", "seeds", "roi_volumes"))
		require.NoError(t, g.Connect(stagegraph.InputStage, "wm_mask", "seeds", "tissue_mask"))
		require.NoError(t, g.Connect("seeds", "seed_files", "track", "seed"))
		require.NoError(t, g.Connect("track", "name", stagegraph.OutputStage, "names"))
		return g
	}

	mask := volume.New("wm", testGrid())
	for i := range mask.Data {
		mask.Data[i] = 1
	}
	roi := volume.New("scale1", testGrid())
	roi.Set(0, 0, 0, 2)
	roi.Set(1, 0, 0, 5)
	roi.Set(2, 0, 0, 9)

	t.Run("one invocation per seed volume", func(t *testing.T) {
		invoker := newFakeInvoker()
		invoker.handlers["track_one"] = func(in map[string]cty.Value) (map[string]cty.Value, error) {
			seed := stagegraph.VolumeFromVal(in["seed"])
			return map[string]cty.Value{"name": cty.StringVal(seed.ID)}, nil
		}

		eng := New(2, invoker)
		res, err := eng.Execute(context.Background(), build(t), map[string]cty.Value{
			"roi_volumes": cty.ListVal([]cty.Value{stagegraph.VolumeVal(roi)}),
			"wm_mask":     stagegraph.VolumeVal(mask),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, invoker.calls["track_one"])

		names := res.Outputs["names"].AsValueSlice()
		require.Len(t, names, 3)
		// Labels ascend, so shard order is deterministic.
		assert.Equal(t, "scale1_seed_2", names[0].AsString())
		assert.Equal(t, "scale1_seed_5", names[1].AsString())
		assert.Equal(t, "scale1_seed_9", names[2].AsString())
	})

	t.Run("no regions fans out to an empty list", func(t *testing.T) {
		invoker := newFakeInvoker()
		eng := New(2, invoker)
		res, err := eng.Execute(context.Background(), build(t), map[string]cty.Value{
			"roi_volumes": cty.ListValEmpty(stagegraph.VolumeType),
			"wm_mask":     stagegraph.VolumeVal(mask),
		})
		require.NoError(t, err)
		assert.Zero(t, invoker.calls["track_one"])
		assert.Equal(t, 0, res.Outputs["names"].LengthInt())
	})
}

func TestExecuteFailurePropagation(t *testing.T) {
	g, err := compiler.Compile(context.Background(), tracking.DefaultVoxelDirection())
	require.NoError(t, err)

	invoker := newFakeInvoker()
	invoker.handlers["dtb_dtk2dir"] = func(in map[string]cty.Value) (map[string]cty.Value, error) {
		return nil, fmt.Errorf("direction extraction blew up")
	}
	invoker.handlers["mri_convert"] = func(in map[string]cty.Value) (map[string]cty.Value, error) {
		return map[string]cty.Value{"out_volume": in["in_volume"]}, nil
	}

	eng := New(2, invoker)
	_, err = eng.Execute(context.Background(), g, map[string]cty.Value{
		"diffusion": stagegraph.VolumeVal(volume.New("dwi", testGrid())),
		"wm_mask":   stagegraph.VolumeVal(volume.New("wm", testGrid())),
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "dtb_dtk2dir")
	assert.ErrorContains(t, err, "direction extraction blew up")

	// Downstream of the failure never ran.
	assert.Zero(t, invoker.calls["dtb_streamline"])
}

func TestExecuteInputChecking(t *testing.T) {
	g, err := compiler.Compile(context.Background(), tracking.DefaultVoxelDirection())
	require.NoError(t, err)
	eng := New(1, newFakeInvoker())

	t.Run("missing input", func(t *testing.T) {
		_, err := eng.Execute(context.Background(), g, map[string]cty.Value{
			"diffusion": stagegraph.VolumeVal(volume.New("dwi", testGrid())),
		})
		assert.ErrorContains(t, err, "missing pipeline input")
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := eng.Execute(context.Background(), g, map[string]cty.Value{
			"diffusion": cty.StringVal("not a volume"),
			"wm_mask":   stagegraph.VolumeVal(volume.New("wm", testGrid())),
		})
		assert.ErrorContains(t, err, "pipeline input")
	})

	t.Run("unknown input", func(t *testing.T) {
		_, err := eng.Execute(context.Background(), g, map[string]cty.Value{
			"diffusion": stagegraph.VolumeVal(volume.New("dwi", testGrid())),
			"wm_mask":   stagegraph.VolumeVal(volume.New("wm", testGrid())),
			"extra":     cty.True,
		})
		assert.ErrorContains(t, err, "unknown pipeline input")
	})
}
