package tract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSmooth(t *testing.T) {
	t.Run("endpoints are preserved", func(t *testing.T) {
		set := Set{Streamlines: []Streamline{line(10, 11)}}
		out, err := Smooth(set, 2.5)
		require.NoError(t, err)

		in := set.Streamlines[0].Points
		got := out.Streamlines[0].Points
		assert.Equal(t, in[0], got[0])
		assert.Equal(t, in[len(in)-1], got[len(got)-1])
	})

	t.Run("resampling follows the step length", func(t *testing.T) {
		set := Set{Streamlines: []Streamline{line(10, 11)}}
		out, err := Smooth(set, 2.5)
		require.NoError(t, err)
		// Samples at 0, 2.5, 5, 7.5 plus the preserved endpoint.
		assert.Len(t, out.Streamlines[0].Points, 5)
	})

	t.Run("a straight line stays straight", func(t *testing.T) {
		set := Set{Streamlines: []Streamline{line(10, 6)}}
		out, err := Smooth(set, 1)
		require.NoError(t, err)
		for _, p := range out.Streamlines[0].Points {
			assert.InDelta(t, 0, p.Y, 1e-9)
			assert.InDelta(t, 0, p.Z, 1e-9)
		}
	})

	t.Run("short streamlines pass through unchanged", func(t *testing.T) {
		sl := Streamline{Points: []r3.Vec{{}, {X: 1}}}
		out, err := Smooth(Set{Streamlines: []Streamline{sl}}, 0.5)
		require.NoError(t, err)
		assert.Equal(t, sl.Points, out.Streamlines[0].Points)
	})

	t.Run("duplicate points are dropped before fitting", func(t *testing.T) {
		sl := Streamline{Points: []r3.Vec{{}, {}, {X: 1}, {X: 1}, {X: 2}, {X: 3}}}
		out, err := Smooth(Set{Streamlines: []Streamline{sl}}, 1)
		require.NoError(t, err)
		got := out.Streamlines[0].Points
		assert.Equal(t, r3.Vec{}, got[0])
		assert.Equal(t, r3.Vec{X: 3}, got[len(got)-1])
	})

	t.Run("empty input is an error", func(t *testing.T) {
		_, err := Smooth(Set{}, 1)
		var emptyErr *EmptyInputError
		require.ErrorAs(t, err, &emptyErr)
		assert.Equal(t, "smooth", emptyErr.Op)
	})

	t.Run("non-positive step is rejected", func(t *testing.T) {
		set := Set{Streamlines: []Streamline{line(10, 5)}}
		_, err := Smooth(set, 0)
		assert.Error(t, err)
		_, err = Smooth(set, -1)
		assert.Error(t, err)
	})

	t.Run("space and grid carry over", func(t *testing.T) {
		set := Set{Space: "LPS", Streamlines: []Streamline{line(10, 5)}}
		out, err := Smooth(set, 1)
		require.NoError(t, err)
		assert.Equal(t, "LPS", out.Space)
	})
}
