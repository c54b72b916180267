package graph

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Graph is a directed acyclic multigraph of nodes. Nodes live in an
// append-only arena indexed by NodeID; edges are (id, slot) outlets, never
// pointers, so rewrites can delete or replace nodes without dangling
// references. Insertion order is the default topological tie-break.
type Graph struct {
	nodes    []*Node // nil entries are tombstones
	inputs   []NodeID
	outputs  []Outlet
	outNames []string // aligned with outputs
	names    map[string]Outlet
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{names: make(map[string]Outlet)}
}

// Add appends a node computing op over the given input outlets. Every input
// must name an existing node and a slot its producer emits.
func (g *Graph) Add(name string, op Op, inputs ...Outlet) (*Node, error) {
	for _, in := range inputs {
		if err := g.checkOutlet(in); err != nil {
			return nil, errors.Wrapf(err, "adding node %q (%s)", name, op.Name())
		}
	}
	n := &Node{
		ID:     NodeID(len(g.nodes)),
		Name:   name,
		Op:     op,
		Inputs: append([]Outlet(nil), inputs...),
		Facts:  make([]Fact, op.Outputs()),
	}
	g.nodes = append(g.nodes, n)
	return n, nil
}

// AddInput appends a designated input node with the given fact.
func (g *Graph) AddInput(name string, fact Fact) (*Node, error) {
	n, err := g.Add(name, &Source{Fact: fact})
	if err != nil {
		return nil, err
	}
	g.inputs = append(g.inputs, n.ID)
	g.names[name] = n.Outlet(0)
	return n, nil
}

func (g *Graph) checkOutlet(o Outlet) error {
	n := g.Node(o.Node)
	if n == nil {
		return fmt.Errorf("outlet %s names a missing node", o)
	}
	if o.Slot < 0 || o.Slot >= n.Op.Outputs() {
		return fmt.Errorf("outlet %s names slot %d of %s, which emits %d", o, o.Slot, n, n.Op.Outputs())
	}
	return nil
}

// Node returns the node with the given id, or nil if it was deleted or never
// existed.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Nodes returns the live nodes in id (insertion) order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Inputs returns the designated input node ids.
func (g *Graph) Inputs() []NodeID { return g.inputs }

// Outputs returns the designated output outlets.
func (g *Graph) Outputs() []Outlet { return g.outputs }

// SetOutputs designates the graph's outputs and names them for external
// addressing.
func (g *Graph) SetOutputs(named map[string]Outlet) error {
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	outs := make([]Outlet, 0, len(named))
	for _, name := range names {
		o := named[name]
		if err := g.checkOutlet(o); err != nil {
			return errors.Wrapf(err, "designating output %q", name)
		}
		outs = append(outs, o)
		g.names[name] = o
	}
	g.outputs = outs
	g.outNames = names
	return nil
}

// OutputNames returns the output names, aligned with Outputs(). Names stick
// to their position even when rewrites reroute the underlying outlet.
func (g *Graph) OutputNames() []string { return g.outNames }

// Outlet resolves an externally visible name.
func (g *Graph) Outlet(name string) (Outlet, bool) {
	o, ok := g.names[name]
	return o, ok
}

// NameOf returns the external name of an outlet, if any.
func (g *Graph) NameOf(o Outlet) (string, bool) {
	for name, cand := range g.names {
		if cand == o {
			return name, true
		}
	}
	return "", false
}

// Fact returns the fact attached to an outlet, or nil for a bad outlet.
func (g *Graph) Fact(o Outlet) *Fact {
	n := g.Node(o.Node)
	if n == nil || o.Slot < 0 || o.Slot >= len(n.Facts) {
		return nil
	}
	return &n.Facts[o.Slot]
}

// Consumers returns the ids of live nodes reading the outlet, in id order.
// Graph outputs do not count as consumers.
func (g *Graph) Consumers(o Outlet) []NodeID {
	var ids []NodeID
	for _, n := range g.Nodes() {
		for _, in := range n.Inputs {
			if in == o {
				ids = append(ids, n.ID)
				break
			}
		}
	}
	return ids
}

// IsOutput reports whether the outlet is a designated graph output.
func (g *Graph) IsOutput(o Outlet) bool {
	for _, out := range g.outputs {
		if out == o {
			return true
		}
	}
	return false
}

// RerouteOutlet retargets every consumer of from (including designated
// outputs and names) to read to instead. The producers themselves are left
// alone; callers tombstone from's node once it is unreferenced.
func (g *Graph) RerouteOutlet(from, to Outlet) error {
	if err := g.checkOutlet(to); err != nil {
		return errors.Wrap(err, "reroute target")
	}
	for _, n := range g.Nodes() {
		for i, in := range n.Inputs {
			if in == from {
				n.Inputs[i] = to
			}
		}
	}
	for i, o := range g.outputs {
		if o == from {
			g.outputs[i] = to
		}
	}
	for name, o := range g.names {
		if o == from {
			g.names[name] = to
		}
	}
	return nil
}

// Tombstone deletes a node, leaving its id unreusable. The caller must have
// rerouted or dropped every consumer first.
func (g *Graph) Tombstone(id NodeID) error {
	n := g.Node(id)
	if n == nil {
		return nil
	}
	for slot := 0; slot < n.Op.Outputs(); slot++ {
		if consumers := g.Consumers(n.Outlet(slot)); len(consumers) > 0 {
			return fmt.Errorf("cannot delete %s: outlet %s still has consumers %v", n, n.Outlet(slot), consumers)
		}
		if g.IsOutput(n.Outlet(slot)) {
			return fmt.Errorf("cannot delete %s: outlet %s is a designated output", n, n.Outlet(slot))
		}
	}
	for i, in := range g.inputs {
		if in == id {
			g.inputs = append(g.inputs[:i], g.inputs[i+1:]...)
			break
		}
	}
	for name, o := range g.names {
		if o.Node == id {
			delete(g.names, name)
		}
	}
	g.nodes[id] = nil
	return nil
}

// Topo returns a topological order of the live node ids, breaking ties by
// insertion order (Kahn's algorithm with an id-ordered ready set). Fails if
// the dependency relation has a cycle.
func (g *Graph) Topo() ([]NodeID, error) {
	live := g.Nodes()
	indeg := make(map[NodeID]int, len(live))
	for _, n := range live {
		seen := make(map[NodeID]bool)
		for _, in := range n.Inputs {
			if !seen[in.Node] {
				seen[in.Node] = true
				indeg[n.ID]++
			}
		}
	}
	var ready []NodeID
	for _, n := range live {
		if indeg[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	order := make([]NodeID, 0, len(live))
	for len(ready) > 0 {
		// Smallest id first keeps the order deterministic.
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, n := range live {
			seen := false
			for _, in := range n.Inputs {
				if in.Node == id {
					seen = true
					break
				}
			}
			if !seen {
				continue
			}
			indeg[n.ID]--
			if indeg[n.ID] == 0 {
				ready = append(ready, n.ID)
			}
		}
	}
	if len(order) != len(live) {
		return nil, fmt.Errorf("graph has a dependency cycle (%d of %d nodes ordered)", len(order), len(live))
	}
	return order, nil
}

// Validate checks the structural invariants: every input reference resolves,
// designated inputs/outputs exist, and the graph is acyclic.
func (g *Graph) Validate() error {
	for _, n := range g.Nodes() {
		for _, in := range n.Inputs {
			if err := g.checkOutlet(in); err != nil {
				return errors.Wrapf(err, "node %s", n)
			}
		}
		if len(n.Facts) != n.Op.Outputs() {
			return fmt.Errorf("node %s has %d facts for %d outputs", n, len(n.Facts), n.Op.Outputs())
		}
	}
	for _, id := range g.inputs {
		if g.Node(id) == nil {
			return fmt.Errorf("designated input %d is missing", id)
		}
	}
	for _, o := range g.outputs {
		if err := g.checkOutlet(o); err != nil {
			return errors.Wrap(err, "designated output")
		}
	}
	_, err := g.Topo()
	return err
}
