package graph

import (
	"fmt"

	"github.com/weft-ml/weft/tensor"
)

// NodeID is a stable arena index. Ids survive rewrites: deleting a node
// tombstones its slot instead of renumbering, so outlets never dangle.
type NodeID int

// Outlet addresses one output edge as (producer node, output slot).
type Outlet struct {
	Node NodeID
	Slot int
}

func (o Outlet) String() string { return fmt.Sprintf("%d/%d", o.Node, o.Slot) }

// Op is the computation carried by a node. Implementations live in the ops
// package; Source below is the one exception.
//
// Infer must be deterministic and monotone on the fact lattice: it may only
// add knowledge to the input and output facts, both forward (outputs from
// inputs) and backward (inputs from outputs).
type Op interface {
	Name() string
	Outputs() int
	Infer(inputs, outputs []*Fact) (bool, error)
	Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// Decluttering is implemented by ops that can simplify themselves in place.
// Declutter reports whether it changed the graph.
type Decluttering interface {
	Declutter(g *Graph, n *Node) (bool, error)
}

// OpState is per-invocation streaming state. Step consumes one input chunk;
// last marks the terminal chunk and triggers end-of-stream flushing. Chunks
// are strictly ordered; feeding them out of order corrupts the state.
type OpState interface {
	Step(inputs []*tensor.Tensor, last bool) ([]*tensor.Tensor, error)
}

// Stateful is implemented by ops that carry delay-buffer state across
// streaming chunks. Each NewState call returns independent state, so
// concurrent streams never share buffers.
type Stateful interface {
	NewState() OpState
}

// Node is one vertex of the graph: an op, its ordered input edges, and one
// fact per output slot.
type Node struct {
	ID     NodeID
	Name   string
	Op     Op
	Inputs []Outlet
	Facts  []Fact
}

// Outlet returns the node's output edge for the given slot.
func (n *Node) Outlet(slot int) Outlet { return Outlet{Node: n.ID, Slot: slot} }

func (n *Node) String() string {
	return fmt.Sprintf("#%d %s (%s)", n.ID, n.Name, n.Op.Name())
}

// Source is the placeholder op for designated graph inputs. The executor
// feeds its value; evaluating it directly is a planning error.
type Source struct {
	Fact Fact
}

func (s *Source) Name() string { return "Source" }

func (s *Source) Outputs() int { return 1 }

func (s *Source) Infer(inputs, outputs []*Fact) (bool, error) {
	return outputs[0].Merge(s.Fact)
}

func (s *Source) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return nil, fmt.Errorf("source node evaluated without a bound input value")
}
