// Package compiler lowers a validated tracking configuration into an
// executable stage graph. One compile function per backend builds the
// stage topology, wires the ports, and validates the result; the engine
// never sees configuration, only graphs.
package compiler

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
	"github.com/joanrue/connectomemapper3/internal/tracking"
)

// Compile validates the parameters and builds the stage graph for their
// backend.
func Compile(ctx context.Context, params tracking.Params) (*stagegraph.Graph, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("compiling tracking pipeline",
		"backend", string(params.Backend()),
		"mode", string(params.Base().TrackingMode),
		"model", string(params.Base().ImagingModel))

	var (
		g   *stagegraph.Graph
		err error
	)
	switch p := params.(type) {
	case *tracking.VoxelDirectionParams:
		g, err = compileVoxelDirection(ctx, p)
	case *tracking.TensorODFParams:
		g, err = compileTensorODF(ctx, p)
	case *tracking.StreamlineACTParams:
		g, err = compileStreamlineACT(ctx, p)
	case *tracking.PicoPDFParams:
		g, err = compilePicoPDF(ctx, p)
	case *tracking.ResidualBootstrapParams:
		g, err = compileResidualBootstrap(ctx, p)
	case *tracking.BayesianGlobalParams:
		g, err = compileBayesianGlobal(ctx, p)
	default:
		return nil, fmt.Errorf("no compiler for backend %q", params.Backend())
	}
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("compiled graph failed validation: %w", err)
	}
	logger.Debug("pipeline compiled",
		"graph", g.Name(), "stages", len(g.Stages()), "edges", len(g.Edges()))
	return g, nil
}

// wiring accumulates the first Add/Connect error so the per-backend
// builders read as flat wiring lists.
type wiring struct {
	g   *stagegraph.Graph
	err error
}

func (w *wiring) add(s *stagegraph.Stage) {
	if w.err != nil {
		return
	}
	w.err = w.g.Add(s)
}

func (w *wiring) connect(from, fromPort, to, toPort string) {
	if w.err != nil {
		return
	}
	w.err = w.g.Connect(from, fromPort, to, toPort)
}

func num(v float64) cty.Value { return cty.NumberFloatVal(v) }
func count(v int) cty.Value   { return cty.NumberIntVal(int64(v)) }
func str(v string) cty.Value  { return cty.StringVal(v) }
func flag(v bool) cty.Value   { return cty.BoolVal(v) }
