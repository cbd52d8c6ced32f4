// Package stagegraph models a tracking pipeline as a directed acyclic graph
// of processing stages with typed input and output ports. Compilers build
// graphs stage by stage, Connect wires ports together under type checking,
// and Validate proves the result is a well-formed executable plan before it
// reaches the engine.
package stagegraph

import "github.com/zclconf/go-cty/cty"

// Kind classifies how a stage is realised at run time.
type Kind int

const (
	// Boundary marks the two pseudo-stages that carry pipeline inputs in
	// and results out. They have no operation of their own.
	Boundary Kind = iota
	// Builtin marks a stage executed in-process by the engine.
	Builtin
	// Tool marks a stage delegated to an external command.
	Tool
)

func (k Kind) String() string {
	switch k {
	case Boundary:
		return "boundary"
	case Builtin:
		return "builtin"
	case Tool:
		return "tool"
	default:
		return "unknown"
	}
}

// Port is a named, typed attachment point on a stage. Optional input ports
// may be left unwired; everything else must be connected for the graph to
// validate.
type Port struct {
	Name     string
	Type     cty.Type
	Optional bool
}

// Stage is one node of the pipeline graph.
type Stage struct {
	Name    string
	Kind    Kind
	Op      string
	Inputs  []Port
	Outputs []Port
	// Params are static operation arguments fixed at compile time, as
	// opposed to port values that flow in at run time.
	Params map[string]cty.Value
	// Over names an input port whose incoming list fans the stage out into
	// one invocation per element. Empty for ordinary stages.
	Over string
}

func (s *Stage) input(name string) (Port, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

func (s *Stage) output(name string) (Port, bool) {
	for _, p := range s.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}
