// Package ops implements the operator variants a weft graph is built from.
//
// Every op satisfies graph.Op with deterministic, monotone fact inference
// and a pure Eval. Ops that can simplify themselves implement
// graph.Decluttering; heavy numeric ops implement KernelBound so the codegen
// pipeline can bind an architecture-specific kernel; streaming ops implement
// graph.Stateful.
package ops

import (
	"fmt"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/kernels"
	"github.com/weft-ml/weft/tensor"
)

// KernelBound is implemented by ops whose evaluation routes through the
// kernel dispatch layer. Signature describes the operation instance for the
// given operand kind, so a compiler can select kernels from facts alone;
// EvalWith runs the op on a previously selected kernel. Eval (from graph.Op)
// always uses the portable reference kernel.
type KernelBound interface {
	Signature(dt tensor.DataType) kernels.Signature
	EvalWith(k kernels.Kernel, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

func checkArity(op string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s expects %d inputs, got %d", op, want, got)
	}
	return nil
}

// typeShape strips a fact down to its type/shape knowledge, dropping any
// constant value. Used when propagating facts backward: knowing an output is
// constant says nothing about the inputs being constant.
func typeShape(f *graph.Fact) graph.Fact {
	return graph.Fact{DType: f.DType, Dims: f.Dims}
}

// inferSame ties an input and output edge to the same type and shape, both
// directions.
func inferSame(in, out *graph.Fact) (bool, error) {
	ch1, err := out.Merge(typeShape(in))
	if err != nil {
		return ch1, err
	}
	ch2, err := in.Merge(typeShape(out))
	return ch1 || ch2, err
}

// inferSameDType ties the datum kinds of two edges, both directions.
func inferSameDType(a, b *graph.Fact) (bool, error) {
	ch1, err := b.Merge(graph.Fact{DType: a.DType})
	if err != nil {
		return ch1, err
	}
	ch2, err := a.Merge(graph.Fact{DType: b.DType})
	return ch1 || ch2, err
}

// replaceWithConst rewires every consumer of n's output to a fresh constant
// and deletes n. Used by constant folding.
func replaceWithConst(g *graph.Graph, n *graph.Node, value *tensor.Tensor) error {
	c, err := g.Add(n.Name, &Const{Value: value})
	if err != nil {
		return err
	}
	c.Facts[0] = graph.ConstFact(value)
	if err := g.RerouteOutlet(n.Outlet(0), c.Outlet(0)); err != nil {
		return err
	}
	return g.Tombstone(n.ID)
}

// bypass reroutes n's single output to one of its inputs, eliminating n.
func bypass(g *graph.Graph, n *graph.Node, input int) error {
	if err := g.RerouteOutlet(n.Outlet(0), n.Inputs[input]); err != nil {
		return err
	}
	return g.Tombstone(n.ID)
}
