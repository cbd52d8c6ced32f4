package stagegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func boundaryStages() (*Stage, *Stage) {
	in := &Stage{
		Name: InputStage,
		Kind: Boundary,
		Outputs: []Port{
			{Name: "volume", Type: VolumeType},
		},
	}
	out := &Stage{
		Name:   OutputStage,
		Kind:   Boundary,
		Inputs: []Port{{Name: "tracks", Type: StreamlineSetType}},
	}
	return in, out
}

func trackStage() *Stage {
	return &Stage{
		Name:    "tracking",
		Kind:    Tool,
		Op:      "tckgen",
		Inputs:  []Port{{Name: "volume", Type: VolumeType}},
		Outputs: []Port{{Name: "tracks", Type: StreamlineSetType}},
	}
}

func validGraph(t *testing.T) *Graph {
	t.Helper()
	g := New("test")
	in, out := boundaryStages()
	require.NoError(t, g.Add(in))
	require.NoError(t, g.Add(trackStage()))
	require.NoError(t, g.Add(out))
	require.NoError(t, g.Connect(InputStage, "volume", "tracking", "volume"))
	require.NoError(t, g.Connect("tracking", "tracks", OutputStage, "tracks"))
	return g
}

func TestAdd(t *testing.T) {
	g := New("test")

	require.NoError(t, g.Add(trackStage()))
	assert.NotNil(t, g.Stage("tracking"))

	t.Run("duplicate names are rejected", func(t *testing.T) {
		err := g.Add(trackStage())
		assert.ErrorContains(t, err, "duplicate stage")
	})

	t.Run("unnamed stages are rejected", func(t *testing.T) {
		err := g.Add(&Stage{})
		assert.Error(t, err)
	})

	t.Run("fan-out over an unknown port is rejected", func(t *testing.T) {
		err := g.Add(&Stage{Name: "bad", Over: "missing"})
		assert.ErrorContains(t, err, "unknown input port")
	})
}

func TestConnect(t *testing.T) {
	t.Run("unknown stages and ports are rejected", func(t *testing.T) {
		g := New("test")
		require.NoError(t, g.Add(trackStage()))

		assert.Error(t, g.Connect("nope", "x", "tracking", "volume"))
		assert.Error(t, g.Connect("tracking", "tracks", "nope", "x"))
		assert.Error(t, g.Connect("tracking", "nope", "tracking", "volume"))
		assert.Error(t, g.Connect("tracking", "tracks", "tracking", "nope"))
	})

	t.Run("an input port accepts a single wire", func(t *testing.T) {
		g := validGraph(t)
		err := g.Connect(InputStage, "volume", "tracking", "volume")
		assert.ErrorContains(t, err, "already wired")
	})

	t.Run("type mismatches are rejected", func(t *testing.T) {
		g := New("test")
		in, _ := boundaryStages()
		require.NoError(t, g.Add(in))
		require.NoError(t, g.Add(&Stage{
			Name:   "filter",
			Kind:   Builtin,
			Inputs: []Port{{Name: "tracks", Type: StreamlineSetType}},
		}))

		err := g.Connect(InputStage, "volume", "filter", "tracks")
		var mismatch *TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
	})

	t.Run("a scalar source may feed a list sink of its element type", func(t *testing.T) {
		g := New("test")
		in, _ := boundaryStages()
		require.NoError(t, g.Add(in))
		require.NoError(t, g.Add(&Stage{
			Name:   "collect",
			Kind:   Builtin,
			Inputs: []Port{{Name: "volumes", Type: cty.List(VolumeType)}},
		}))

		require.NoError(t, g.Connect(InputStage, "volume", "collect", "volumes"))
		edges := g.Edges()
		require.Len(t, edges, 1)
		assert.True(t, edges[0].Wrap)
	})

	t.Run("fan-out ports consume lists of their element type", func(t *testing.T) {
		g := New("test")
		require.NoError(t, g.Add(&Stage{
			Name:    "seeds",
			Kind:    Builtin,
			Outputs: []Port{{Name: "seed_files", Type: cty.List(VolumeType)}},
		}))
		require.NoError(t, g.Add(&Stage{
			Name:    "track",
			Kind:    Tool,
			Inputs:  []Port{{Name: "seed", Type: VolumeType}},
			Outputs: []Port{{Name: "tracks", Type: StreamlineSetType}},
			Over:    "seed",
		}))

		require.NoError(t, g.Connect("seeds", "seed_files", "track", "seed"))
		assert.False(t, g.Edges()[0].Wrap)
	})

	t.Run("fan-out stage outputs are lists downstream", func(t *testing.T) {
		g := New("test")
		require.NoError(t, g.Add(&Stage{
			Name:    "seeds",
			Kind:    Builtin,
			Outputs: []Port{{Name: "seed_files", Type: cty.List(VolumeType)}},
		}))
		require.NoError(t, g.Add(&Stage{
			Name:    "track",
			Kind:    Tool,
			Inputs:  []Port{{Name: "seed", Type: VolumeType}},
			Outputs: []Port{{Name: "tracks", Type: StreamlineSetType}},
			Over:    "seed",
		}))
		require.NoError(t, g.Add(&Stage{
			Name:   "sink",
			Kind:   Builtin,
			Inputs: []Port{{Name: "all_tracks", Type: cty.List(StreamlineSetType)}},
		}))
		require.NoError(t, g.Add(&Stage{
			Name:   "scalar_sink",
			Kind:   Builtin,
			Inputs: []Port{{Name: "one", Type: StreamlineSetType}},
		}))

		require.NoError(t, g.Connect("seeds", "seed_files", "track", "seed"))
		require.NoError(t, g.Connect("track", "tracks", "sink", "all_tracks"))

		// The fan-out stage's collected output is a list, not a scalar.
		err := g.Connect("track", "tracks", "scalar_sink", "one")
		var mismatch *TypeMismatchError
		require.ErrorAs(t, err, &mismatch)
	})
}

func TestValidate(t *testing.T) {
	t.Run("a fully wired graph validates", func(t *testing.T) {
		assert.NoError(t, validGraph(t).Validate())
	})

	t.Run("missing boundary stages are rejected", func(t *testing.T) {
		g := New("test")
		in, _ := boundaryStages()
		require.NoError(t, g.Add(in))
		assert.ErrorContains(t, g.Validate(), "missing boundary stage")
	})

	t.Run("mislabelled boundary stages are rejected", func(t *testing.T) {
		g := New("test")
		in, out := boundaryStages()
		in.Kind = Tool
		require.NoError(t, g.Add(in))
		require.NoError(t, g.Add(out))
		assert.ErrorContains(t, g.Validate(), "must be a boundary stage")
	})

	t.Run("unwired required inputs are reported per stage", func(t *testing.T) {
		g := New("test")
		in, out := boundaryStages()
		require.NoError(t, g.Add(in))
		require.NoError(t, g.Add(trackStage()))
		require.NoError(t, g.Add(out))

		err := g.Validate()
		var incomplete *IncompleteWiringError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, "tracking", incomplete.Stage)
		assert.Equal(t, []string{"volume"}, incomplete.Ports)
	})

	t.Run("pipeline inputs nothing consumes are rejected", func(t *testing.T) {
		g := validGraph(t)
		in := g.Stage(InputStage)
		in.Outputs = append(in.Outputs, Port{Name: "stray", Type: VolumeType})

		err := g.Validate()
		var incomplete *IncompleteWiringError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, InputStage, incomplete.Stage)
		assert.Equal(t, []string{"stray"}, incomplete.Ports)
	})

	t.Run("optional inputs may stay unwired", func(t *testing.T) {
		g := validGraph(t)
		g.Stage("tracking").Inputs = append(g.Stage("tracking").Inputs,
			Port{Name: "act_file", Type: VolumeType, Optional: true})
		assert.NoError(t, g.Validate())
	})

	t.Run("cycles are detected", func(t *testing.T) {
		g := validGraph(t)
		require.NoError(t, g.Add(&Stage{
			Name:    "a",
			Kind:    Builtin,
			Inputs:  []Port{{Name: "in", Type: VolumeType, Optional: true}},
			Outputs: []Port{{Name: "out", Type: VolumeType}},
		}))
		require.NoError(t, g.Add(&Stage{
			Name:    "b",
			Kind:    Builtin,
			Inputs:  []Port{{Name: "in", Type: VolumeType, Optional: true}},
			Outputs: []Port{{Name: "out", Type: VolumeType}},
		}))
		require.NoError(t, g.Connect("a", "out", "b", "in"))
		require.NoError(t, g.Connect("b", "out", "a", "in"))

		err := g.Validate()
		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
	})
}

func TestTopoOrder(t *testing.T) {
	g := validGraph(t)
	order, err := g.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{InputStage, "tracking", OutputStage}, order)

	t.Run("insertion order breaks ties deterministically", func(t *testing.T) {
		g := New("test")
		for _, name := range []string{"c", "a", "b"} {
			require.NoError(t, g.Add(&Stage{Name: name, Kind: Builtin}))
		}
		order, err := g.TopoOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, order)
	})
}
