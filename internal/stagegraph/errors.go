package stagegraph

import (
	"fmt"
	"strings"
)

// IncompleteWiringError reports ports left out of the wiring: required input
// ports no edge feeds, or pipeline input ports no stage consumes.
type IncompleteWiringError struct {
	Graph string
	Stage string
	Ports []string
}

func (e *IncompleteWiringError) Error() string {
	return fmt.Sprintf("graph %q: stage %q has unwired ports: %s",
		e.Graph, e.Stage, strings.Join(e.Ports, ", "))
}

// TypeMismatchError reports an edge whose source and sink port types do not
// agree.
type TypeMismatchError struct {
	From, FromPort string
	To, ToPort     string
	Have, Want     string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot connect %s.%s (%s) to %s.%s (%s)",
		e.From, e.FromPort, e.Have, e.To, e.ToPort, e.Want)
}

// CycleError reports a dependency cycle found during validation.
type CycleError struct {
	Graph string
	Stage string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph %q: dependency cycle through stage %q", e.Graph, e.Stage)
}
