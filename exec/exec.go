// Package exec runs compiled plans. Executor.Run evaluates a whole batch in
// one call; NewStream evaluates the same plan incrementally over ordered
// chunks, with per-stream delay-buffer state.
package exec

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/weft-ml/weft/codegen"
	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/ops"
	"github.com/weft-ml/weft/tensor"
)

// Executor evaluates one plan. It is stateless and safe for concurrent use;
// streaming state lives in Stream values.
type Executor struct {
	plan *codegen.Plan
}

// New wraps a compiled plan.
func New(p *codegen.Plan) *Executor {
	return &Executor{plan: p}
}

// Plan returns the underlying plan.
func (e *Executor) Plan() *codegen.Plan { return e.plan }

// Run evaluates the plan on a full batch. Every designated input must be
// present in the bundle and match its declared fact exactly; the result holds
// one tensor per designated output.
func (e *Executor) Run(inputs tensor.Bundle) (tensor.Bundle, error) {
	env, err := e.bind(inputs, true)
	if err != nil {
		return nil, err
	}
	for i, id := range e.plan.Order {
		n := e.plan.Graph.Node(id)
		if _, ok := n.Op.(*graph.Source); !ok {
			if err := e.evalNode(env, n, nil, false); err != nil {
				return nil, err
			}
		}
		for _, o := range e.plan.Release[i] {
			delete(env, o)
		}
	}
	return e.collect(env)
}

// bind seeds the environment with the designated input values. Strict
// binding requires the exact declared shape; chunked binding checks the
// datum kind and trailing dims only, since the frame count varies per chunk.
func (e *Executor) bind(inputs tensor.Bundle, strict bool) (map[graph.Outlet]*tensor.Tensor, error) {
	g := e.plan.Graph
	env := make(map[graph.Outlet]*tensor.Tensor, len(e.plan.Order))
	inputNames := make(map[string]bool, len(g.Inputs()))
	for _, id := range g.Inputs() {
		n := g.Node(id)
		inputNames[n.Name] = true
		v, ok := inputs[n.Name]
		if !ok {
			return nil, errors.Errorf("missing input %q", n.Name)
		}
		f := &n.Facts[0]
		if f.HasDType() && v.DType() != f.DType {
			return nil, errors.Errorf("input %q is %s, want %s", n.Name, v.DType(), f.DType)
		}
		if s, ok := f.Shape(); ok {
			if strict && !v.Shape().Equal(s) {
				return nil, errors.Errorf("input %q has shape %v, want %v", n.Name, v.Shape(), s)
			}
			if !strict && !chunkCompatible(v.Shape(), s) {
				return nil, errors.Errorf("chunk %q has shape %v, want [*%v]", n.Name, v.Shape(), s[1:])
			}
		}
		env[n.Outlet(0)] = v
	}
	// The graph's name map also covers designated outputs, so check against
	// the input names alone.
	for name := range inputs {
		if !inputNames[name] {
			return nil, errors.Errorf("input %q does not name a graph input", name)
		}
	}
	return env, nil
}

// chunkCompatible accepts any leading (frame) dim but pins rank and the
// remaining dims.
func chunkCompatible(got, want tensor.Shape) bool {
	if len(got) != len(want) || len(got) == 0 {
		return false
	}
	for i := 1; i < len(got); i++ {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// evalNode runs one node into env, through its bound kernel when the plan
// carries one, or through streaming state when states holds one.
func (e *Executor) evalNode(env map[graph.Outlet]*tensor.Tensor, n *graph.Node, states map[graph.NodeID]graph.OpState, last bool) error {
	args := make([]*tensor.Tensor, len(n.Inputs))
	for j, in := range n.Inputs {
		v, ok := env[in]
		if !ok {
			return errors.Errorf("node %s reads outlet %s, which is unavailable", n, in)
		}
		args[j] = v
	}
	var outs []*tensor.Tensor
	var err error
	switch {
	case states != nil && states[n.ID] != nil:
		outs, err = states[n.ID].Step(args, last)
	default:
		if k, ok := e.plan.Kernels[n.ID]; ok {
			outs, err = n.Op.(ops.KernelBound).EvalWith(k, args)
		} else {
			outs, err = n.Op.Eval(args)
		}
	}
	if err != nil {
		return errors.Wrapf(err, "evaluating %s", n)
	}
	if len(outs) != n.Op.Outputs() {
		return errors.Errorf("node %s produced %d outputs, want %d", n, len(outs), n.Op.Outputs())
	}
	for slot, o := range outs {
		env[n.Outlet(slot)] = o
	}
	return nil
}

func (e *Executor) collect(env map[graph.Outlet]*tensor.Tensor) (tensor.Bundle, error) {
	g := e.plan.Graph
	out := make(tensor.Bundle, len(g.Outputs()))
	names := g.OutputNames()
	for i, o := range g.Outputs() {
		v, ok := env[o]
		if !ok {
			return nil, errors.Errorf("output %q (outlet %s) was never produced", names[i], o)
		}
		out[names[i]] = v
	}
	klog.V(2).Infof("plan run produced %d outputs", len(out))
	return out, nil
}
