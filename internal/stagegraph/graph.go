package stagegraph

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Boundary stage names. Every valid graph carries exactly these two
// pseudo-stages: the first holds the pipeline's external inputs as output
// ports, the second collects the results as input ports.
const (
	InputStage  = "inputnode"
	OutputStage = "outputnode"
)

// Edge is a wire from one stage's output port to another stage's input
// port. Wrap marks a scalar output feeding a list-typed sink; the engine
// lifts the value into a single-element list when it flows.
type Edge struct {
	From, FromPort string
	To, ToPort     string
	Wrap           bool
}

// Graph is a pipeline under construction. Stages keep insertion order so
// compiled plans and their logs are deterministic.
type Graph struct {
	name   string
	stages map[string]*Stage
	order  []string
	edges  []Edge
	// into indexes edges by sink stage and port to enforce a single writer
	// per input port.
	into map[string]map[string]Edge
}

// New returns an empty graph with the given name.
func New(name string) *Graph {
	return &Graph{
		name:   name,
		stages: make(map[string]*Stage),
		into:   make(map[string]map[string]Edge),
	}
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Add inserts a stage. Stage names are unique within a graph.
func (g *Graph) Add(s *Stage) error {
	if s.Name == "" {
		return fmt.Errorf("graph %q: stage must have a name", g.name)
	}
	if _, ok := g.stages[s.Name]; ok {
		return fmt.Errorf("graph %q: duplicate stage %q", g.name, s.Name)
	}
	if s.Over != "" {
		if _, ok := s.input(s.Over); !ok {
			return fmt.Errorf("graph %q: stage %q fans out over unknown input port %q", g.name, s.Name, s.Over)
		}
	}
	g.stages[s.Name] = s
	g.order = append(g.order, s.Name)
	return nil
}

// Stage returns the named stage, or nil.
func (g *Graph) Stage(name string) *Stage { return g.stages[name] }

// Stages returns all stages in insertion order.
func (g *Graph) Stages() []*Stage {
	out := make([]*Stage, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.stages[name])
	}
	return out
}

// Edges returns all wires in the order they were connected.
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// Incoming returns the edges feeding a stage, sorted by sink port name.
func (g *Graph) Incoming(stage string) []Edge {
	ports := g.into[stage]
	out := make([]Edge, 0, len(ports))
	for _, e := range ports {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToPort < out[j].ToPort })
	return out
}

// Connect wires an output port to an input port. Both stages and ports must
// exist, an input port accepts at most one wire, and the types must agree.
// A scalar source may feed a list-typed sink of the same element type; the
// edge is then marked Wrap. A fan-out port declares its element type and
// must be fed a list of that element type.
func (g *Graph) Connect(from, fromPort, to, toPort string) error {
	src, ok := g.stages[from]
	if !ok {
		return fmt.Errorf("graph %q: unknown source stage %q", g.name, from)
	}
	dst, ok := g.stages[to]
	if !ok {
		return fmt.Errorf("graph %q: unknown sink stage %q", g.name, to)
	}
	out, ok := src.output(fromPort)
	if !ok {
		return fmt.Errorf("graph %q: stage %q has no output port %q", g.name, from, fromPort)
	}
	in, ok := dst.input(toPort)
	if !ok {
		return fmt.Errorf("graph %q: stage %q has no input port %q", g.name, to, toPort)
	}
	if ports, ok := g.into[to]; ok {
		if prev, ok := ports[toPort]; ok {
			return fmt.Errorf("graph %q: input port %s.%s already wired from %s.%s",
				g.name, to, toPort, prev.From, prev.FromPort)
		}
	}

	// Fan-out stages declare per-invocation port types: their fan-out input
	// consumes one element per invocation and every output is collected
	// into a list, so both sides are lifted for type checking.
	have := out.Type
	if src.Over != "" {
		have = cty.List(out.Type)
	}
	want := in.Type
	if dst.Over == toPort {
		want = cty.List(in.Type)
	}
	edge := Edge{From: from, FromPort: fromPort, To: to, ToPort: toPort}
	switch {
	case have.Equals(want):
	case want.IsListType() && have.Equals(want.ElementType()):
		edge.Wrap = true
	default:
		return &TypeMismatchError{
			From: from, FromPort: fromPort,
			To: to, ToPort: toPort,
			Have: have.FriendlyName(), Want: want.FriendlyName(),
		}
	}

	g.edges = append(g.edges, edge)
	if g.into[to] == nil {
		g.into[to] = make(map[string]Edge)
	}
	g.into[to][toPort] = edge
	return nil
}

// Validate proves the graph is executable: both boundary stages present and
// correctly marked, every required input port of every non-input stage
// wired, every pipeline input consumed by some stage, and no dependency
// cycles.
func (g *Graph) Validate() error {
	for _, name := range [...]string{InputStage, OutputStage} {
		s, ok := g.stages[name]
		if !ok {
			return fmt.Errorf("graph %q: missing boundary stage %q", g.name, name)
		}
		if s.Kind != Boundary {
			return fmt.Errorf("graph %q: stage %q must be a boundary stage", g.name, name)
		}
	}

	for _, name := range g.order {
		s := g.stages[name]
		if s.Kind == Boundary && name != InputStage && name != OutputStage {
			return fmt.Errorf("graph %q: unexpected boundary stage %q", g.name, name)
		}
		if name == InputStage {
			continue
		}
		var missing []string
		for _, p := range s.Inputs {
			if p.Optional {
				continue
			}
			if _, ok := g.into[name][p.Name]; !ok {
				missing = append(missing, p.Name)
			}
		}
		if len(missing) > 0 {
			return &IncompleteWiringError{Graph: g.name, Stage: name, Ports: missing}
		}
	}

	// A pipeline input nothing reads is a wiring bug in the compiler, not a
	// choice: callers would be forced to supply a value that goes nowhere.
	consumed := make(map[string]bool)
	for _, e := range g.edges {
		if e.From == InputStage {
			consumed[e.FromPort] = true
		}
	}
	var dangling []string
	for _, p := range g.stages[InputStage].Outputs {
		if !consumed[p.Name] {
			dangling = append(dangling, p.Name)
		}
	}
	if len(dangling) > 0 {
		return &IncompleteWiringError{Graph: g.name, Stage: InputStage, Ports: dangling}
	}

	return g.detectCycles()
}

// detectCycles runs a depth-first search over stage dependencies. Visiting a
// stage that is already on the current path means a cycle.
func (g *Graph) detectCycles() error {
	deps := make(map[string][]string, len(g.stages))
	for _, e := range g.edges {
		deps[e.To] = append(deps[e.To], e.From)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.stages))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return &CycleError{Graph: g.name, Stage: name}
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range g.order {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// TopoOrder returns the stage names in a dependency-respecting order. Among
// stages whose dependencies are all satisfied, insertion order breaks ties,
// so the result is stable for a given compilation.
func (g *Graph) TopoOrder() ([]string, error) {
	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	pending := make(map[string]int, len(g.stages))
	dependents := make(map[string][]string, len(g.stages))
	for _, name := range g.order {
		pending[name] = 0
	}
	for _, e := range g.edges {
		pending[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	out := make([]string, 0, len(g.order))
	scheduled := make(map[string]bool, len(g.order))
	for len(out) < len(g.order) {
		progressed := false
		for _, name := range g.order {
			if scheduled[name] || pending[name] > 0 {
				continue
			}
			scheduled[name] = true
			out = append(out, name)
			for _, dep := range dependents[name] {
				pending[dep]--
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("graph %q: no runnable stage among %d remaining", g.name, len(g.order)-len(out))
		}
	}
	return out, nil
}
