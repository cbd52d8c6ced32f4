// Package app wires the configuration loader, the pipeline compiler, and
// the execution engine behind a single entry point the CLI can call.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joanrue/connectomemapper3/internal/compiler"
	"github.com/joanrue/connectomemapper3/internal/config"
	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
}

// New returns an initialized App with its own isolated logger.
func New(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")
	return &App{outW: outW, logger: logger, config: cfg}
}

// Run loads the pipeline configuration, compiles it into a stage graph, and
// prints the resulting execution plan.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	params, err := config.Load(ctx, a.config.PipelinePath, a.config.PresetsPath)
	if err != nil {
		return fmt.Errorf("loading pipeline configuration: %w", err)
	}
	a.logger.Info("pipeline configuration loaded",
		"backend", string(params.Backend()),
		"mode", string(params.Base().TrackingMode))

	graph, err := compiler.Compile(ctx, params)
	if err != nil {
		return fmt.Errorf("compiling pipeline: %w", err)
	}

	order, err := graph.TopoOrder()
	if err != nil {
		return err
	}

	fmt.Fprintf(a.outW, "pipeline %s (%d stages, %d edges)\n",
		graph.Name(), len(graph.Stages()), len(graph.Edges()))
	for i, name := range order {
		s := graph.Stage(name)
		fmt.Fprintf(a.outW, "%3d. %-20s kind=%-8s op=%s", i+1, s.Name, s.Kind.String(), s.Op)
		if s.Over != "" {
			fmt.Fprintf(a.outW, " fan-out=%s", s.Over)
		}
		fmt.Fprintln(a.outW)
	}

	a.logger.Info("pipeline plan ready",
		"graph", graph.Name(), "stages", len(order), "workers", a.config.WorkerCount)
	return nil
}

// Graph compiles the configured pipeline without printing the plan. This is
// the hook embedders use to execute the graph with their own tool invoker.
func (a *App) Graph(ctx context.Context) (*stagegraph.Graph, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	params, err := config.Load(ctx, a.config.PipelinePath, a.config.PresetsPath)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(ctx, params)
}
