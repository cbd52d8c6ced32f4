package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/fsutil"
	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// pipelineFile is the top-level HCL schema: any number of files, exactly one
// pipeline block among them.
type pipelineFile struct {
	Pipelines []pipelineBlock `hcl:"pipeline,block"`
}

// pipelineBlock splits the backend selector off and leaves the rest of the
// body for the override schema.
type pipelineBlock struct {
	Backend string   `hcl:"backend"`
	Remain  hcl.Body `hcl:",remain"`
}

// LoadPipeline reads one or more .hcl files from a file or directory path
// and returns the selected backend with its overrides. Exactly one pipeline
// block must exist across the resolved files.
func LoadPipeline(ctx context.Context, path string) (tracking.Backend, *Overrides, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := resolvePath(path)
	if err != nil {
		return "", nil, err
	}
	if len(files) == 0 {
		return "", nil, fmt.Errorf("no .hcl files found at %q", path)
	}
	logger.Debug("resolved pipeline files", "path", path, "count", len(files))

	parser := hclparse.NewParser()
	var blocks []pipelineBlock
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return "", nil, fmt.Errorf("parsing %s: %w", file, diags)
		}
		var decoded pipelineFile
		if diags := gohcl.DecodeBody(f.Body, nil, &decoded); diags.HasErrors() {
			return "", nil, fmt.Errorf("decoding %s: %w", file, diags)
		}
		blocks = append(blocks, decoded.Pipelines...)
	}

	switch len(blocks) {
	case 0:
		return "", nil, fmt.Errorf("no pipeline block found in %q", path)
	case 1:
	default:
		return "", nil, fmt.Errorf("found %d pipeline blocks in %q, want exactly one", len(blocks), path)
	}
	block := blocks[0]

	backend := tracking.Backend(block.Backend)
	switch backend {
	case tracking.VoxelDirection, tracking.TensorODF, tracking.StreamlineACT,
		tracking.PicoPDF, tracking.ResidualBootstrap, tracking.BayesianGlobal:
	default:
		return "", nil, fmt.Errorf("unknown backend %q", block.Backend)
	}

	var overrides Overrides
	if diags := gohcl.DecodeBody(block.Remain, nil, &overrides); diags.HasErrors() {
		return "", nil, fmt.Errorf("decoding pipeline block: %w", diags)
	}
	logger.Debug("pipeline configuration decoded", "backend", string(backend))
	return backend, &overrides, nil
}

// resolvePath accepts either a single .hcl file or a directory to scan.
func resolvePath(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("resolving pipeline path %q: %w", path, err)
	}
	if !info.IsDir() {
		if !strings.HasSuffix(path, ".hcl") {
			return nil, fmt.Errorf("pipeline file %q is not an .hcl file", path)
		}
		return []string{path}, nil
	}
	return fsutil.FindFilesByExtension(path, ".hcl")
}

// Load composes the full configuration chain: backend defaults, then the
// matching preset (if a presets file is given), then the pipeline file's
// own overrides.
func Load(ctx context.Context, pipelinePath, presetsPath string) (tracking.Params, error) {
	backend, overrides, err := LoadPipeline(ctx, pipelinePath)
	if err != nil {
		return nil, err
	}

	var preset *Overrides
	if presetsPath != "" {
		presets, err := LoadPresets(ctx, presetsPath)
		if err != nil {
			return nil, err
		}
		preset = presets.For(backend)
	}

	return Build(backend, preset, overrides)
}
