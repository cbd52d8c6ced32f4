package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// Presets carries per-backend override sets loaded from a YAML file. A site
// keeps its scanner-specific defaults here so individual pipeline files stay
// small.
type Presets struct {
	Backends map[string]*Overrides `yaml:"backends"`
}

// For returns the preset for a backend, or nil when none is defined.
func (p *Presets) For(backend tracking.Backend) *Overrides {
	if p == nil {
		return nil
	}
	return p.Backends[string(backend)]
}

// LoadPresets reads a YAML presets file.
func LoadPresets(ctx context.Context, path string) (*Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading presets %q: %w", path, err)
	}
	var presets Presets
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("parsing presets %q: %w", path, err)
	}
	for name := range presets.Backends {
		switch tracking.Backend(name) {
		case tracking.VoxelDirection, tracking.TensorODF, tracking.StreamlineACT,
			tracking.PicoPDF, tracking.ResidualBootstrap, tracking.BayesianGlobal:
		default:
			return nil, fmt.Errorf("presets %q: unknown backend %q", path, name)
		}
	}
	ctxlog.FromContext(ctx).Debug("presets loaded", "path", path, "backends", len(presets.Backends))
	return &presets, nil
}
