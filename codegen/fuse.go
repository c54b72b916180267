package codegen

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/ops"
	"github.com/weft-ml/weft/tensor"
)

// soleConsumer returns the single node reading the outlet, if the outlet is
// not a designated output and has exactly one consumer. Only such outlets can
// be absorbed into a fused node.
func soleConsumer(g *graph.Graph, o graph.Outlet) (*graph.Node, bool) {
	if g.IsOutput(o) {
		return nil, false
	}
	cons := g.Consumers(o)
	if len(cons) != 1 {
		return nil, false
	}
	return g.Node(cons[0]), true
}

func fusableActivation(k ops.UnaryKind) bool {
	switch k {
	case ops.Relu, ops.Sigmoid, ops.Tanh:
		return true
	}
	return false
}

// biasOf recognizes a row-broadcast bias add hanging off a matmul outlet: a
// two-input Add where the other operand is rank 1 and matches the matmul's
// column count.
func biasOf(g *graph.Graph, add *graph.Node, from graph.Outlet, cols int) (graph.Outlet, bool) {
	if len(add.Inputs) != 2 {
		return graph.Outlet{}, false
	}
	var other graph.Outlet
	switch {
	case add.Inputs[0] == from && add.Inputs[1] != from:
		other = add.Inputs[1]
	case add.Inputs[1] == from && add.Inputs[0] != from:
		other = add.Inputs[0]
	default:
		return graph.Outlet{}, false
	}
	f := g.Fact(other)
	if f == nil || !f.ShapeKnown() || len(f.Dims) != 1 || f.Dims[0] != cols {
		return graph.Outlet{}, false
	}
	return other, true
}

// fuseMatMuls rewrites matmul / bias-add / activation chains into single
// FusedMatMul nodes. Only float32 chains fuse, and only along edges with a
// single consumer, so every absorbed intermediate is truly dead afterwards.
func fuseMatMuls(g *graph.Graph) (bool, error) {
	changed := false
	for _, n := range g.Nodes() {
		if g.Node(n.ID) == nil {
			continue
		}
		if _, ok := n.Op.(*ops.MatMul); !ok {
			continue
		}
		out := g.Fact(n.Outlet(0))
		if out == nil || out.DType != tensor.Float32 || !out.ShapeKnown() {
			continue
		}
		cols := out.Dims[len(out.Dims)-1]

		fused := &ops.FusedMatMul{Activation: ops.NoActivation}
		inputs := append([]graph.Outlet(nil), n.Inputs...)
		chain := []*graph.Node{n}
		tail := n

		if next, ok := soleConsumer(g, tail.Outlet(0)); ok {
			if b, isBin := next.Op.(*ops.Binary); isBin && b.Kind == ops.Add {
				if bias, isBias := biasOf(g, next, tail.Outlet(0), cols); isBias {
					fused.HasBias = true
					inputs = append(inputs, bias)
					chain = append(chain, next)
					tail = next
				}
			}
		}
		if next, ok := soleConsumer(g, tail.Outlet(0)); ok {
			if u, isUnary := next.Op.(*ops.Unary); isUnary && fusableActivation(u.Kind) {
				fused.Activation = u.Kind
				chain = append(chain, next)
				tail = next
			}
		}
		if len(chain) == 1 {
			continue
		}

		node, err := g.Add(tail.Name, fused, inputs...)
		if err != nil {
			return changed, errors.Wrapf(err, "fusing %s", n)
		}
		node.Facts[0] = *g.Fact(tail.Outlet(0))
		if err := g.RerouteOutlet(tail.Outlet(0), node.Outlet(0)); err != nil {
			return changed, errors.Wrapf(err, "fusing %s", n)
		}
		for i := len(chain) - 1; i >= 0; i-- {
			if err := g.Tombstone(chain[i].ID); err != nil {
				return changed, errors.Wrapf(err, "fusing %s", n)
			}
		}
		klog.V(1).Infof("fused %d nodes into %s", len(chain), node)
		changed = true
	}
	return changed, nil
}

// materializeStreaming swaps every context window for its stateful streaming
// form. Facts and outlets are untouched; batch semantics stay identical while
// chunked execution gains a delay buffer.
func materializeStreaming(g *graph.Graph) bool {
	changed := false
	for _, n := range g.Nodes() {
		cw, ok := n.Op.(*ops.ContextWindow)
		if !ok {
			continue
		}
		n.Op = &ops.StreamingContext{ContextWindow: *cw}
		changed = true
	}
	return changed
}
