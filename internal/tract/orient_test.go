package tract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/joanrue/connectomemapper3/internal/volume"
)

func refGrid() volume.Grid {
	return volume.Grid{
		Dims:      [3]int{10, 10, 10},
		VoxelSize: [3]float64{2, 2, 2},
		AxisCodes: "RAS",
	}
}

func TestCorrect(t *testing.T) {
	t.Run("matching orders only recenter by half a voxel", func(t *testing.T) {
		set := Set{
			Space:       "RAS",
			Streamlines: []Streamline{{Points: []r3.Vec{{X: 1, Y: 2, Z: 3}}}},
		}
		out, err := Correct(set, refGrid(), "RAS")
		require.NoError(t, err)
		p := out.Streamlines[0].Points[0]
		assert.Equal(t, r3.Vec{X: 2, Y: 3, Z: 4}, p)
	})

	t.Run("differing codes flip the sign per axis", func(t *testing.T) {
		set := Set{
			Streamlines: []Streamline{{Points: []r3.Vec{{X: 5, Y: 5, Z: 5}}}},
		}
		// L vs R and P vs A flip, S matches.
		out, err := Correct(set, refGrid(), "LPS")
		require.NoError(t, err)
		p := out.Streamlines[0].Points[0]
		assert.Equal(t, r3.Vec{X: -4, Y: -4, Z: 6}, p)
	})

	t.Run("source origin is subtracted before the flip", func(t *testing.T) {
		set := Set{
			Grid:        volume.Grid{Origin: [3]float64{10, 0, 0}},
			Streamlines: []Streamline{{Points: []r3.Vec{{X: 12}}}},
		}
		out, err := Correct(set, refGrid(), "LAS")
		require.NoError(t, err)
		assert.InDelta(t, -1, out.Streamlines[0].Points[0].X, 1e-12)
	})

	t.Run("output carries reference grid with zeroed origin", func(t *testing.T) {
		ref := refGrid()
		ref.Origin = [3]float64{-90, -126, -72}
		set := Set{Streamlines: []Streamline{{Points: []r3.Vec{{}}}}}

		out, err := Correct(set, ref, "ras")
		require.NoError(t, err)
		assert.Equal(t, "RAS", out.Space)
		assert.Equal(t, [3]float64{}, out.Grid.Origin)
		assert.Equal(t, ref.Dims, out.Grid.Dims)
		assert.Equal(t, ref.VoxelSize, out.Grid.VoxelSize)
	})

	t.Run("axis orders are case insensitive", func(t *testing.T) {
		set := Set{Streamlines: []Streamline{{Points: []r3.Vec{{}}}}}
		_, err := Correct(set, refGrid(), "lps")
		assert.NoError(t, err)
	})

	t.Run("invalid axis orders are rejected", func(t *testing.T) {
		set := Set{Streamlines: []Streamline{{Points: []r3.Vec{{}}}}}
		var codeErr *AxisCodeError

		_, err := Correct(set, refGrid(), "RA")
		require.ErrorAs(t, err, &codeErr)

		_, err = Correct(set, refGrid(), "RAX")
		require.ErrorAs(t, err, &codeErr)

		// Two letters from the same axis family.
		_, err = Correct(set, refGrid(), "RLS")
		require.ErrorAs(t, err, &codeErr)

		ref := refGrid()
		ref.AxisCodes = "QQQ"
		_, err = Correct(set, ref, "RAS")
		require.ErrorAs(t, err, &codeErr)
	})
}
