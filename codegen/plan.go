// Package codegen lowers a decluttered graph into an executable Plan:
// matmul chains fuse, context windows become stateful streaming ops, every
// heavy node gets a concrete kernel for the target architecture, and
// intermediate buffers get a release schedule.
package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/kernels"
	"github.com/weft-ml/weft/ops"
)

// Options tunes compilation. The zero value enables every optimization.
type Options struct {
	DisableFusion    bool
	DisableStreaming bool
}

// Plan is a compiled, executable form of a graph: a fixed evaluation order,
// the kernel bound to each heavy node, and the step after which each
// intermediate buffer dies. The plan owns its graph; callers must not mutate
// it afterwards.
type Plan struct {
	Graph    *graph.Graph
	Arch     Arch
	Order    []graph.NodeID
	Kernels  map[graph.NodeID]kernels.Kernel
	Release  [][]graph.Outlet
	Stateful []graph.NodeID
}

// Compile optimizes g in place for the target architecture and plans its
// execution. The graph must have complete facts; compilation fails rather
// than fall back on any node no kernel can serve.
func Compile(g *graph.Graph, arch Arch, opts Options) (*Plan, error) {
	if err := graph.Infer(g); err != nil {
		return nil, err
	}
	if err := graph.CheckComplete(g); err != nil {
		return nil, err
	}
	if !opts.DisableFusion {
		if _, err := fuseMatMuls(g); err != nil {
			return nil, err
		}
	}
	if !opts.DisableStreaming {
		materializeStreaming(g)
	}
	if err := graph.Infer(g); err != nil {
		return nil, err
	}
	return plan(g, arch, true)
}

// Reference plans g without optimization or kernel binding: original node
// granularity, reference evaluation everywhere. It is the semantic baseline
// optimized plans are checked against.
func Reference(g *graph.Graph) (*Plan, error) {
	if err := graph.Infer(g); err != nil {
		return nil, err
	}
	if err := graph.CheckComplete(g); err != nil {
		return nil, err
	}
	return plan(g, Portable, false)
}

func plan(g *graph.Graph, arch Arch, bind bool) (*Plan, error) {
	order, err := g.Topo()
	if err != nil {
		return nil, err
	}
	p := &Plan{
		Graph:   g,
		Arch:    arch,
		Order:   order,
		Kernels: make(map[graph.NodeID]kernels.Kernel),
		Release: planReleases(g, order),
	}
	for _, id := range order {
		n := g.Node(id)
		if _, ok := n.Op.(graph.Stateful); ok {
			p.Stateful = append(p.Stateful, id)
		}
		if !bind {
			continue
		}
		kb, ok := n.Op.(ops.KernelBound)
		if !ok {
			continue
		}
		sig := kb.Signature(g.Fact(n.Inputs[0]).DType)
		k, found := kernels.Select(sig, arch.Features)
		if !found {
			return nil, &UnsupportedOperationError{Node: n.String(), Sig: sig}
		}
		p.Kernels[id] = k
	}
	return p, nil
}

// planReleases computes, per step, the outlets whose last reader just ran.
// Designated outputs are never released; they belong to the caller.
func planReleases(g *graph.Graph, order []graph.NodeID) [][]graph.Outlet {
	step := make(map[graph.NodeID]int, len(order))
	for i, id := range order {
		step[id] = i
	}
	last := make(map[graph.Outlet]int)
	for _, id := range order {
		n := g.Node(id)
		for _, in := range n.Inputs {
			if step[id] > last[in] {
				last[in] = step[id]
			}
		}
		// Unread outlets die where they are produced.
		for slot := 0; slot < n.Op.Outputs(); slot++ {
			o := n.Outlet(slot)
			if _, seen := last[o]; !seen {
				last[o] = step[id]
			}
		}
	}
	rel := make([][]graph.Outlet, len(order))
	for o, i := range last {
		if g.IsOutput(o) {
			continue
		}
		rel[i] = append(rel[i], o)
	}
	for _, outs := range rel {
		sort.Slice(outs, func(i, j int) bool {
			if outs[i].Node != outs[j].Node {
				return outs[i].Node < outs[j].Node
			}
			return outs[i].Slot < outs[j].Slot
		})
	}
	return rel
}

// String renders the schedule with per-step buffer accounting, for debugging
// and plan dumps.
func (p *Plan) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "plan for %s, %d steps\n", p.Arch, len(p.Order))
	var live, peak uint64
	bytesOf := func(o graph.Outlet) uint64 {
		f := p.Graph.Fact(o)
		if f == nil || !f.Complete() {
			return 0
		}
		n := 1
		for _, d := range f.Dims {
			n *= d
		}
		return uint64(n * f.DType.Size())
	}
	for i, id := range p.Order {
		n := p.Graph.Node(id)
		for slot := 0; slot < n.Op.Outputs(); slot++ {
			live += bytesOf(n.Outlet(slot))
		}
		if live > peak {
			peak = live
		}
		fmt.Fprintf(&sb, "%4d %s", i, n)
		if k, ok := p.Kernels[id]; ok {
			fmt.Fprintf(&sb, " kernel=%s", k.Name())
		}
		fmt.Fprintf(&sb, " out=%s", p.Graph.Fact(n.Outlet(0)))
		if len(p.Release[i]) > 0 {
			fmt.Fprintf(&sb, " free=%v", p.Release[i])
			for _, o := range p.Release[i] {
				live -= bytesOf(o)
			}
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "peak intermediate footprint %s\n", humanize.IBytes(peak))
	return sb.String()
}
