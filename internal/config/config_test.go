package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joanrue/connectomemapper3/internal/tracking"
)

func strPtr(s string) *string    { return &s }
func intPtr(i int) *int          { return &i }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool       { return &b }

func TestBuildDefaults(t *testing.T) {
	backends := []tracking.Backend{
		tracking.VoxelDirection,
		tracking.TensorODF,
		tracking.StreamlineACT,
		tracking.PicoPDF,
		tracking.ResidualBootstrap,
		tracking.BayesianGlobal,
	}
	for _, backend := range backends {
		t.Run(string(backend), func(t *testing.T) {
			params, err := Build(backend)
			require.NoError(t, err)
			assert.Equal(t, backend, params.Backend())
		})
	}

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Build("magic")
		assert.ErrorContains(t, err, "unknown backend")
	})
}

func TestBuildLayering(t *testing.T) {
	t.Run("later layers win", func(t *testing.T) {
		preset := &Overrides{StepSize: floatPtr(0.8)}
		override := &Overrides{StepSize: floatPtr(0.3)}

		params, err := Build(tracking.TensorODF, preset, override)
		require.NoError(t, err)
		assert.Equal(t, 0.3, params.Base().StepSize)
	})

	t.Run("nil layers are skipped", func(t *testing.T) {
		params, err := Build(tracking.TensorODF, nil, &Overrides{Angle: floatPtr(30)})
		require.NoError(t, err)
		assert.Equal(t, 30.0, params.Base().AngleThreshold)
	})
}

func TestBuildTensorODF(t *testing.T) {
	t.Run("mode and deconvolution recompute the curvature", func(t *testing.T) {
		params, err := Build(tracking.TensorODF, &Overrides{
			SphericalDeconvolution: boolPtr(true),
		})
		require.NoError(t, err)
		p := params.(*tracking.TensorODFParams)
		assert.Zero(t, p.Curvature)
	})

	t.Run("an explicit curvature wins over the derived value", func(t *testing.T) {
		params, err := Build(tracking.TensorODF, &Overrides{
			Mode:      strPtr("Probabilistic"),
			Curvature: floatPtr(3),
		})
		require.NoError(t, err)
		assert.Equal(t, 3.0, params.(*tracking.TensorODFParams).Curvature)
	})

	t.Run("near-zero explicit curvature snaps to zero", func(t *testing.T) {
		params, err := Build(tracking.TensorODF, &Overrides{Curvature: floatPtr(1e-8)})
		require.NoError(t, err)
		assert.Zero(t, params.(*tracking.TensorODFParams).Curvature)
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		_, err := Build(tracking.TensorODF, &Overrides{Mode: strPtr("psychic")})
		assert.ErrorContains(t, err, "unknown tracking mode")
	})
}

func TestBuildStreamlineACT(t *testing.T) {
	t.Run("disabling the constraint clears the dependent flags", func(t *testing.T) {
		params, err := Build(tracking.StreamlineACT, &Overrides{
			ACT: &ACTBlock{UseACT: boolPtr(false)},
		})
		require.NoError(t, err)
		p := params.(*tracking.StreamlineACTParams)
		assert.False(t, p.CropAtInterface)
		assert.False(t, p.Backtrack)
	})

	t.Run("an explicit dependent flag without the constraint fails validation", func(t *testing.T) {
		_, err := Build(tracking.StreamlineACT, &Overrides{
			ACT: &ACTBlock{UseACT: boolPtr(false), Backtrack: boolPtr(true)},
		})
		var combo *tracking.UnsupportedBackendCombinationError
		require.ErrorAs(t, err, &combo)
	})
}

func TestBuildPicoPDF(t *testing.T) {
	t.Run("trace is read in the configured units", func(t *testing.T) {
		params, err := Build(tracking.PicoPDF, &Overrides{
			Pico: &PicoBlock{Units: strPtr("s/mm^2"), Trace: floatPtr(0.0021)},
		})
		require.NoError(t, err)
		p := params.(*tracking.PicoPDFParams)
		assert.Equal(t, tracking.UnitsSPerMM2, p.Units)
		assert.Equal(t, 0.0021, p.Trace)
	})

	t.Run("unknown units are rejected", func(t *testing.T) {
		_, err := Build(tracking.PicoPDF, &Overrides{
			Pico: &PicoBlock{Units: strPtr("furlongs")},
		})
		assert.ErrorContains(t, err, "unknown units")
	})
}

func TestBuildModeRestrictions(t *testing.T) {
	t.Run("voxel direction refuses probabilistic mode", func(t *testing.T) {
		_, err := Build(tracking.VoxelDirection, &Overrides{Mode: strPtr("Probabilistic")})
		var combo *tracking.UnsupportedBackendCombinationError
		require.ErrorAs(t, err, &combo)
	})

	t.Run("bootstrap refuses deterministic mode", func(t *testing.T) {
		_, err := Build(tracking.ResidualBootstrap, &Overrides{Mode: strPtr("Deterministic")})
		var combo *tracking.UnsupportedBackendCombinationError
		require.ErrorAs(t, err, &combo)
	})
}

func TestBuildValidatesResult(t *testing.T) {
	_, err := Build(tracking.TensorODF, &Overrides{StepSize: floatPtr(-1)})
	assert.ErrorContains(t, err, "step size")
}
