// Package declutter canonicalizes an inferred graph with semantics-preserving
// rewrites: constant folding, identity and neutral-element elimination,
// canonical operator forms, and dead-node pruning. The result is the
// reference ("unoptimized") behavior later stages are tested against.
package declutter

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/ops"
	"github.com/weft-ml/weft/tensor"
)

// DefaultMaxPasses bounds the rewrite fixpoint. The rule set shrinks or
// canonicalizes the graph on every change, so hitting the bound means a rule
// pair is fighting; that is an internal invariant violation, not a model
// property.
const DefaultMaxPasses = 100

// Options tunes the pipeline. The zero value is the default configuration.
type Options struct {
	MaxPasses int
}

// Run canonicalizes g in place with default options.
func Run(g *graph.Graph) error {
	return RunWithOptions(g, Options{})
}

// RunWithOptions canonicalizes g in place. The graph must enter with
// complete facts (Run performs inference first) and leaves canonical, with
// complete facts, or the first error aborts the pipeline.
func RunWithOptions(g *graph.Graph, opts Options) error {
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	if err := graph.Infer(g); err != nil {
		return err
	}
	if err := graph.CheckComplete(g); err != nil {
		return err
	}
	for pass := 0; pass < maxPasses; pass++ {
		folded, err := foldConstants(g)
		if err != nil {
			return err
		}
		simplified, err := declutterOps(g)
		if err != nil {
			return err
		}
		pruned, err := pruneDead(g)
		if err != nil {
			return err
		}
		if !folded && !simplified && !pruned {
			klog.V(1).Infof("declutter reached fixpoint after %d passes, %d nodes", pass+1, len(g.Nodes()))
			return nil
		}
		// Rewrites introduce nodes with locally derived facts; re-run
		// inference so downstream facts stay consistent before the next pass.
		if err := graph.Infer(g); err != nil {
			return err
		}
	}
	return &graph.NonTerminationError{Stage: "declutter", Iterations: maxPasses}
}

// foldConstants replaces nodes whose inputs are all known constants with
// literal nodes holding the precomputed result.
func foldConstants(g *graph.Graph) (bool, error) {
	changed := false
	for _, n := range g.Nodes() {
		if g.Node(n.ID) == nil {
			continue // removed by an earlier fold this sweep
		}
		if len(n.Inputs) == 0 || n.Op.Outputs() != 1 {
			continue
		}
		args := make([]*tensor.Tensor, len(n.Inputs))
		allConst := true
		for i, in := range n.Inputs {
			f := g.Fact(in)
			if f == nil || f.Value == nil {
				allConst = false
				break
			}
			args[i] = f.Value
		}
		if !allConst {
			continue
		}
		outs, err := n.Op.Eval(args)
		if err != nil {
			return changed, errors.Wrapf(err, "folding node %s", n)
		}
		c, err := g.Add(n.Name, &ops.Const{Value: outs[0]})
		if err != nil {
			return changed, errors.Wrapf(err, "folding node %s", n)
		}
		c.Facts[0] = graph.ConstFact(outs[0])
		if err := g.RerouteOutlet(n.Outlet(0), c.Outlet(0)); err != nil {
			return changed, errors.Wrapf(err, "folding node %s", n)
		}
		if err := g.Tombstone(n.ID); err != nil {
			return changed, errors.Wrapf(err, "folding node %s", n)
		}
		klog.V(2).Infof("declutter folded %s into a constant", n)
		changed = true
	}
	return changed, nil
}

// declutterOps runs each op's own simplification rule.
func declutterOps(g *graph.Graph) (bool, error) {
	changed := false
	for _, n := range g.Nodes() {
		if g.Node(n.ID) == nil {
			continue
		}
		d, ok := n.Op.(graph.Decluttering)
		if !ok {
			continue
		}
		ch, err := d.Declutter(g, n)
		if err != nil {
			return changed, errors.Wrapf(err, "decluttering node %s", n)
		}
		if ch {
			klog.V(2).Infof("declutter simplified %s", n)
			changed = true
		}
	}
	return changed, nil
}

// pruneDead removes nodes with no path to a designated output. Designated
// inputs survive even when unused, since the executor binds them by name.
func pruneDead(g *graph.Graph) (bool, error) {
	reachable := make(map[graph.NodeID]bool)
	var visit func(id graph.NodeID)
	visit = func(id graph.NodeID) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		for _, in := range g.Node(id).Inputs {
			visit(in.Node)
		}
	}
	for _, o := range g.Outputs() {
		visit(o.Node)
	}
	keep := make(map[graph.NodeID]bool)
	for _, id := range g.Inputs() {
		keep[id] = true
	}
	order, err := g.Topo()
	if err != nil {
		return false, err
	}
	changed := false
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if reachable[id] || keep[id] {
			continue
		}
		if err := g.Tombstone(id); err != nil {
			return changed, errors.Wrap(err, "pruning dead node")
		}
		changed = true
	}
	return changed, nil
}
