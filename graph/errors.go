package graph

import "fmt"

// ShapeMismatchError reports two provably inconsistent derivations of the
// same edge's fact. The model is rejected; there is no retry.
type ShapeMismatchError struct {
	Node   NodeID
	Op     string
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("shape mismatch: %s", e.Detail)
	}
	return fmt.Sprintf("shape mismatch at node %d (%s): %s", e.Node, e.Op, e.Detail)
}

// UnresolvedFactError reports an edge whose fact is still partial after the
// inference fixpoint, where a later stage needs it complete.
type UnresolvedFactError struct {
	Node NodeID
	Op   string
	Slot int
	Fact Fact
}

func (e *UnresolvedFactError) Error() string {
	return fmt.Sprintf("unresolved fact at node %d (%s) slot %d: %s", e.Node, e.Op, e.Slot, e.Fact.String())
}

// NonTerminationError reports a fixpoint loop hitting its iteration bound.
// The rule sets are designed to terminate, so this is an internal-invariant
// violation, never silently truncated.
type NonTerminationError struct {
	Stage      string
	Iterations int
}

func (e *NonTerminationError) Error() string {
	return fmt.Sprintf("%s did not reach a fixpoint after %d iterations", e.Stage, e.Iterations)
}
