// Package engine executes a validated stage graph. Stages run on a fixed
// worker pool as their dependencies complete; builtin stages run in-process
// through the runner registry and tool stages are delegated to a
// ToolInvoker. A stage failure cancels the run and skips everything
// downstream of it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"

	"github.com/joanrue/connectomemapper3/internal/ctxlog"
	"github.com/joanrue/connectomemapper3/internal/stagegraph"
)

// ToolInvoker runs an external-tool stage. Implementations receive the
// stage's static params and its resolved input port values and return one
// value per declared output port.
type ToolInvoker interface {
	Invoke(ctx context.Context, op string, params map[string]cty.Value, inputs map[string]cty.Value) (map[string]cty.Value, error)
}

// Result is what a completed run hands back: the values wired into the
// output boundary stage plus that stage's static params (provenance such as
// parameter records).
type Result struct {
	RunID   string
	Outputs map[string]cty.Value
	Params  map[string]cty.Value
}

type stageState int32

const (
	statePending stageState = iota
	stateRunning
	stateDone
	stateFailed
)

type stageNode struct {
	stage      *stagegraph.Stage
	depCount   atomic.Int32
	dependents []*stageNode
	state      atomic.Int32
	err        error
	skipOnce   sync.Once
	outputs    map[string]cty.Value
}

// Engine executes stage graphs.
type Engine struct {
	workers  int
	invoker  ToolInvoker
	builtins map[string]Runner
}

// New returns an engine with the default builtin runners registered.
func New(workers int, invoker ToolInvoker) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		workers:  workers,
		invoker:  invoker,
		builtins: defaultRunners(),
	}
}

// Execute runs the graph with the given boundary inputs, one value per
// output port of the input stage.
func (e *Engine) Execute(ctx context.Context, g *stagegraph.Graph, inputs map[string]cty.Value) (*Result, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger := ctxlog.FromContext(ctx).With("run_id", runID, "graph", g.Name())
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("starting pipeline run", "stages", len(g.Stages()))

	if err := checkBoundaryInputs(g, inputs); err != nil {
		return nil, err
	}

	nodes := make(map[string]*stageNode)
	for _, s := range g.Stages() {
		nodes[s.Name] = &stageNode{stage: s}
	}
	for _, edge := range g.Edges() {
		from, to := nodes[edge.From], nodes[edge.To]
		from.dependents = append(from.dependents, to)
		to.depCount.Add(1)
	}
	nodes[stagegraph.InputStage].outputs = inputs

	run := &runState{engine: e, graph: g, nodes: nodes}

	readyChan := make(chan *stageNode, len(nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, s := range g.Stages() {
		node := nodes[s.Name]
		if node.depCount.Load() == 0 {
			readyChan <- node
		}
	}

	run.wg.Add(len(nodes))
	for i := 0; i < e.workers; i++ {
		go run.worker(runCtx, readyChan, cancel, i)
	}
	run.wg.Wait()
	close(readyChan)

	var failed []string
	var rootCause error
	for _, s := range g.Stages() {
		node := nodes[s.Name]
		if stageState(node.state.Load()) != stateFailed {
			continue
		}
		if node.err != nil && !strings.HasPrefix(node.err.Error(), "skipped") && !errors.Is(node.err, context.Canceled) {
			failed = append(failed, s.Name)
			if rootCause == nil {
				rootCause = node.err
			}
		}
	}
	if rootCause != nil {
		return nil, fmt.Errorf("run %s failed at %s: %w", runID, strings.Join(failed, ", "), rootCause)
	}

	out := nodes[stagegraph.OutputStage]
	logger.Info("pipeline run complete", "outputs", len(out.outputs))
	return &Result{
		RunID:   runID,
		Outputs: out.outputs,
		Params:  out.stage.Params,
	}, nil
}

// checkBoundaryInputs verifies one value of the right type was supplied for
// every input-boundary port and nothing extra.
func checkBoundaryInputs(g *stagegraph.Graph, inputs map[string]cty.Value) error {
	in := g.Stage(stagegraph.InputStage)
	declared := make(map[string]cty.Type, len(in.Outputs))
	for _, p := range in.Outputs {
		declared[p.Name] = p.Type
		v, ok := inputs[p.Name]
		if !ok {
			return fmt.Errorf("missing pipeline input %q", p.Name)
		}
		if !v.Type().Equals(p.Type) {
			return fmt.Errorf("pipeline input %q: have %s, want %s",
				p.Name, v.Type().FriendlyName(), p.Type.FriendlyName())
		}
	}
	for name := range inputs {
		if _, ok := declared[name]; !ok {
			return fmt.Errorf("unknown pipeline input %q", name)
		}
	}
	return nil
}

type runState struct {
	engine *Engine
	graph  *stagegraph.Graph
	nodes  map[string]*stageNode
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// worker is the processing loop for one pool worker.
func (r *runState) worker(ctx context.Context, readyChan chan *stageNode, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)

	for node := range readyChan {
		stageLogger := logger.With("worker", workerID, "stage", node.stage.Name)

		if ctx.Err() != nil {
			node.skipOnce.Do(func() {
				node.state.Store(int32(stateFailed))
				node.err = ctx.Err()
				r.wg.Done()
			})
			continue
		}

		node.state.Store(int32(stateRunning))
		stageLogger.Debug("stage started", "op", node.stage.Op, "kind", node.stage.Kind.String())

		outputs, err := r.runStage(ctx, node)
		if err != nil {
			stageLogger.Error("stage failed", "error", err)
			node.state.Store(int32(stateFailed))
			node.err = err
			cancel()
			r.skipDependents(ctx, node)
			r.wg.Done()
			continue
		}

		r.mu.Lock()
		node.outputs = outputs
		r.mu.Unlock()
		node.state.Store(int32(stateDone))
		stageLogger.Debug("stage complete")

		for _, dep := range node.dependents {
			if dep.depCount.Add(-1) == 0 {
				readyChan <- dep
			}
		}
		r.wg.Done()
	}
}

// skipDependents marks everything downstream of a failed stage as failed.
func (r *runState) skipDependents(ctx context.Context, node *stageNode) {
	logger := ctxlog.FromContext(ctx)
	for _, dep := range node.dependents {
		dep.skipOnce.Do(func() {
			logger.Warn("skipping stage after upstream failure",
				"stage", dep.stage.Name, "upstream", node.stage.Name)
			dep.state.Store(int32(stateFailed))
			dep.err = fmt.Errorf("skipped after upstream failure of %q", node.stage.Name)
			r.wg.Done()
			r.skipDependents(ctx, dep)
		})
	}
}

// runStage resolves a stage's inputs from its upstream edges and dispatches
// on kind.
func (r *runState) runStage(ctx context.Context, node *stageNode) (map[string]cty.Value, error) {
	s := node.stage
	inputs := make(map[string]cty.Value)
	for _, edge := range r.graph.Incoming(s.Name) {
		src := r.nodes[edge.From]
		r.mu.Lock()
		v, ok := src.outputs[edge.FromPort]
		r.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("stage %q produced no output %q", edge.From, edge.FromPort)
		}
		if edge.Wrap {
			v = cty.ListVal([]cty.Value{v})
		}
		inputs[edge.ToPort] = v
	}

	switch s.Kind {
	case stagegraph.Boundary:
		// The input boundary re-emits the pre-seeded pipeline inputs; the
		// output boundary just captures what flows into it.
		if s.Name == stagegraph.InputStage {
			r.mu.Lock()
			seeded := node.outputs
			r.mu.Unlock()
			return seeded, nil
		}
		return inputs, nil
	case stagegraph.Builtin:
		runner, ok := r.engine.builtins[s.Op]
		if !ok {
			return nil, fmt.Errorf("no builtin runner for op %q", s.Op)
		}
		if s.Over != "" {
			return r.fanOut(ctx, s, inputs, func(ctx context.Context, in map[string]cty.Value) (map[string]cty.Value, error) {
				return runner(ctx, s, in)
			})
		}
		return runner(ctx, s, inputs)
	case stagegraph.Tool:
		if r.engine.invoker == nil {
			return nil, fmt.Errorf("stage %q needs an external tool but no invoker is configured", s.Name)
		}
		if s.Over != "" {
			return r.fanOut(ctx, s, inputs, func(ctx context.Context, in map[string]cty.Value) (map[string]cty.Value, error) {
				return r.engine.invoker.Invoke(ctx, s.Op, s.Params, in)
			})
		}
		return r.engine.invoker.Invoke(ctx, s.Op, s.Params, inputs)
	default:
		return nil, fmt.Errorf("stage %q has unknown kind", s.Name)
	}
}

// fanOut expands a fan-out stage into one invocation per element of its
// fan-out port's list and collects the per-invocation outputs positionally
// into lists. An empty fan-out list short-circuits to empty output lists.
func (r *runState) fanOut(ctx context.Context, s *stagegraph.Stage, inputs map[string]cty.Value,
	invoke func(context.Context, map[string]cty.Value) (map[string]cty.Value, error)) (map[string]cty.Value, error) {

	overVal, ok := inputs[s.Over]
	if !ok {
		return nil, fmt.Errorf("stage %q: fan-out port %q not wired", s.Name, s.Over)
	}
	elems := overVal.AsValueSlice()

	outputs := make(map[string]cty.Value, len(s.Outputs))
	if len(elems) == 0 {
		for _, p := range s.Outputs {
			outputs[p.Name] = cty.ListValEmpty(p.Type)
		}
		return outputs, nil
	}

	ctxlog.FromContext(ctx).Debug("fanning out stage",
		"stage", s.Name, "port", s.Over, "shards", len(elems))

	results := make([]map[string]cty.Value, len(elems))
	errs := make([]error, len(elems))
	var wg sync.WaitGroup
	for i, elem := range elems {
		wg.Add(1)
		go func(i int, elem cty.Value) {
			defer wg.Done()
			shard := make(map[string]cty.Value, len(inputs))
			for k, v := range inputs {
				shard[k] = v
			}
			shard[s.Over] = elem
			results[i], errs[i] = invoke(ctx, shard)
		}(i, elem)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("stage %q shard %d: %w", s.Name, i, err)
		}
	}

	for _, p := range s.Outputs {
		vals := make([]cty.Value, len(results))
		for i, res := range results {
			v, ok := res[p.Name]
			if !ok {
				return nil, fmt.Errorf("stage %q shard %d produced no output %q", s.Name, i, p.Name)
			}
			vals[i] = v
		}
		outputs[p.Name] = cty.ListVal(vals)
	}
	return outputs, nil
}
