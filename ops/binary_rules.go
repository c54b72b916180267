package ops

import (
	"math"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/tensor"
)

// constValue returns the known constant feeding input i of n, if any.
func constValue(g *graph.Graph, n *graph.Node, i int) *tensor.Tensor {
	f := g.Fact(n.Inputs[i])
	if f == nil {
		return nil
	}
	return f.Value
}

func isAll(t *tensor.Tensor, want float64) bool {
	if t == nil || !(t.DType().IsFloat() || t.DType().IsInt()) {
		return false
	}
	for i := 0; i < t.NumElements(); i++ {
		if t.FloatAt(i) != want {
			return false
		}
	}
	return t.NumElements() > 0
}

// Declutter implements the Binary-specific canonicalizations:
// neutral-element elimination, Sub-to-Add normalization, and merging of
// consecutive affine constants. Each rewrite preserves values exactly.
func (b *Binary) Declutter(g *graph.Graph, n *graph.Node) (bool, error) {
	c0 := constValue(g, n, 0)
	c1 := constValue(g, n, 1)

	// Neutral elements. Only when the constant side does not broadcast the
	// other side up to a larger shape.
	outShape, outKnown := n.Facts[0].Shape()
	passthrough := func(input int) bool {
		if !outKnown {
			return false
		}
		inFact := g.Fact(n.Inputs[input])
		s, ok := inFact.Shape()
		return ok && s.Equal(outShape)
	}
	switch b.Kind {
	case Add:
		if isAll(c1, 0) && passthrough(0) {
			return true, bypass(g, n, 0)
		}
		if isAll(c0, 0) && passthrough(1) {
			return true, bypass(g, n, 1)
		}
	case Sub:
		if isAll(c1, 0) && passthrough(0) {
			return true, bypass(g, n, 0)
		}
	case Mul:
		if isAll(c1, 1) && passthrough(0) {
			return true, bypass(g, n, 0)
		}
		if isAll(c0, 1) && passthrough(1) {
			return true, bypass(g, n, 1)
		}
	case Div:
		if isAll(c1, 1) && passthrough(0) {
			return true, bypass(g, n, 0)
		}
	}

	// Canonical form: x - c becomes x + (-c). Negation is exact for signed
	// kinds, so this cannot move the result.
	if b.Kind == Sub && c1 != nil && negExact(c1.DType()) {
		neg, err := (&Unary{Kind: Neg}).Eval([]*tensor.Tensor{c1})
		if err != nil {
			return false, err
		}
		nc, err := g.Add("", &Const{Value: neg[0]})
		if err != nil {
			return false, err
		}
		nc.Facts[0] = graph.ConstFact(neg[0])
		n.Op = &Binary{Kind: Add}
		n.Inputs[1] = nc.Outlet(0)
		return true, nil
	}

	// x / c becomes x * (1/c) when every element of c is a power of two,
	// where the reciprocal is exact.
	if b.Kind == Div && c1 != nil {
		if recip := powerOfTwoReciprocal(c1); recip != nil {
			rc, err := g.Add("", &Const{Value: recip})
			if err != nil {
				return false, err
			}
			rc.Facts[0] = graph.ConstFact(recip)
			n.Op = &Binary{Kind: Mul}
			n.Inputs[1] = rc.Outlet(0)
			return true, nil
		}
	}

	// Merge consecutive affine constants: (x + c1) + c2 => x + (c1+c2),
	// (x * c1) * c2 => x * (c1*c2). Requires the inner node to have no other
	// consumers.
	if (b.Kind == Add || b.Kind == Mul) && (c0 == nil) != (c1 == nil) {
		varIdx := 0
		if c0 != nil {
			varIdx = 1
		}
		inner := g.Node(n.Inputs[varIdx].Node)
		innerOp, ok := inner.Op.(*Binary)
		if !ok || innerOp.Kind != b.Kind {
			return false, nil
		}
		if len(g.Consumers(inner.Outlet(0))) != 1 || g.IsOutput(inner.Outlet(0)) {
			return false, nil
		}
		ic0 := constValue(g, inner, 0)
		ic1 := constValue(g, inner, 1)
		if (ic0 == nil) == (ic1 == nil) {
			return false, nil
		}
		innerVar := 0
		innerConst := ic1
		if ic0 != nil {
			innerVar = 1
			innerConst = ic0
		}
		outerConst := c1
		if c0 != nil {
			outerConst = c0
		}
		merged, err := b.Eval([]*tensor.Tensor{innerConst, outerConst})
		if err != nil {
			return false, err
		}
		mc, err := g.Add("", &Const{Value: merged[0]})
		if err != nil {
			return false, err
		}
		mc.Facts[0] = graph.ConstFact(merged[0])
		n.Inputs[0] = inner.Inputs[innerVar]
		n.Inputs[1] = mc.Outlet(0)
		return true, nil
	}
	return false, nil
}

// powerOfTwoReciprocal returns the elementwise reciprocal of c when every
// element is a finite nonzero power of two, so the reciprocal is exact.
// Returns nil otherwise, or for non-f32/f64 kinds.
func powerOfTwoReciprocal(c *tensor.Tensor) *tensor.Tensor {
	recipAt := func(v float64) (float64, bool) {
		if v == 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false
		}
		frac, _ := math.Frexp(v)
		if frac != 0.5 && frac != -0.5 {
			return 0, false
		}
		r := 1 / v
		if r == 0 || math.IsInf(r, 0) {
			return 0, false
		}
		return r, true
	}
	switch c.DType() {
	case tensor.Float32:
		src := c.Float32s()
		out := make([]float32, len(src))
		for i, v := range src {
			r, ok := recipAt(float64(v))
			if !ok || float64(float32(r)) != r {
				return nil
			}
			out[i] = float32(r)
		}
		return tensor.FromFloat32(c.Shape().Clone(), out)
	case tensor.Float64:
		src := c.Float64s()
		out := make([]float64, len(src))
		for i, v := range src {
			r, ok := recipAt(v)
			if !ok {
				return nil
			}
			out[i] = r
		}
		return tensor.FromFloat64(c.Shape().Clone(), out)
	}
	return nil
}

func negExact(dt tensor.DataType) bool {
	switch dt {
	case tensor.Float16, tensor.BFloat16, tensor.Float32, tensor.Float64,
		tensor.Int8, tensor.Int16, tensor.Int32, tensor.Int64:
		return true
	}
	return false
}
