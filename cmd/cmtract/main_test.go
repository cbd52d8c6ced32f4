package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_CompilesAndPrintsPlan(t *testing.T) {
	t.Parallel()

	pipeline := `
pipeline {
  backend = "voxel_direction"
}
`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(pipeline), 0600))

	out := &bytes.Buffer{}
	err := run(out, []string{"-log-level", "error", filePath})

	require.NoError(t, err)
	require.Contains(t, out.String(), "pipeline voxel_direction")
	require.Contains(t, out.String(), "dtb_streamline")
	require.Contains(t, out.String(), "outputnode")
}

func TestRun_InvalidPipeline(t *testing.T) {
	t.Parallel()

	invalidHCL := `
pipeline {
  backend = "voxel_direction"
// missing closing brace
`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "pipeline.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(invalidHCL), 0600))

	out := &bytes.Buffer{}
	err := run(out, []string{"-log-level", "error", filePath})

	require.Error(t, err)
	require.Contains(t, err.Error(), "loading pipeline configuration")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	args := []string{"-h"}
	out := &bytes.Buffer{}

	err := run(out, args)

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	err := run(out, args)

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}
