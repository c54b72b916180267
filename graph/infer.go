package graph

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MaxInferSweeps bounds the inference fixpoint. Fact merging is monotone on
// a finite lattice, so a well-behaved op set converges long before this.
const MaxInferSweeps = 128

// Infer propagates facts across the graph until no fact changes. Each sweep
// asks every node to refine its output facts from its input facts and,
// where the op supports it, its input facts from its output facts. Facts are
// mutated in place; topology is never touched.
//
// Fails with ShapeMismatchError when two derivations of the same edge
// conflict, and with NonTerminationError if the sweep bound trips.
func Infer(g *Graph) error {
	for sweep := 0; sweep < MaxInferSweeps; sweep++ {
		changed := false
		for _, n := range g.Nodes() {
			inputs := make([]*Fact, len(n.Inputs))
			for i, in := range n.Inputs {
				inputs[i] = g.Fact(in)
			}
			outputs := make([]*Fact, len(n.Facts))
			for i := range n.Facts {
				outputs[i] = &n.Facts[i]
			}
			ch, err := n.Op.Infer(inputs, outputs)
			if err != nil {
				if sm, ok := err.(*ShapeMismatchError); ok && sm.Op == "" {
					sm.Node = n.ID
					sm.Op = n.Op.Name()
					return sm
				}
				return errors.Wrapf(err, "inferring facts for node %s", n)
			}
			changed = changed || ch
		}
		if !changed {
			klog.V(1).Infof("fact inference reached fixpoint after %d sweeps", sweep+1)
			return nil
		}
	}
	return &NonTerminationError{Stage: "fact inference", Iterations: MaxInferSweeps}
}

// CheckComplete verifies that every live edge carries a complete fact, as
// the declutter and codegen stages require. Returns the first offender as an
// UnresolvedFactError.
func CheckComplete(g *Graph) error {
	for _, n := range g.Nodes() {
		for slot := range n.Facts {
			if !n.Facts[slot].Complete() {
				return &UnresolvedFactError{Node: n.ID, Op: n.Op.Name(), Slot: slot, Fact: n.Facts[slot]}
			}
		}
	}
	return nil
}
