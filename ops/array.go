package ops

import (
	"fmt"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/tensor"
)

// Reshape changes the shape without touching data. One target dim may be -1
// and is inferred from the element count.
type Reshape struct {
	Shape tensor.Shape
}

func (r *Reshape) Name() string { return "Reshape" }

func (r *Reshape) Outputs() int { return 1 }

func (r *Reshape) resolve(count int) (tensor.Shape, error) {
	out := r.Shape.Clone()
	wildcard := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if wildcard >= 0 {
				return nil, fmt.Errorf("reshape target %v has two wildcards", r.Shape)
			}
			wildcard = i
		} else {
			known *= d
		}
	}
	if wildcard >= 0 {
		if known == 0 || count%known != 0 {
			return nil, fmt.Errorf("reshape target %v does not divide %d elements", r.Shape, count)
		}
		out[wildcard] = count / known
	} else if known != count {
		return nil, fmt.Errorf("reshape target %v wants %d elements, input has %d", r.Shape, known, count)
	}
	return out, nil
}

func (r *Reshape) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(r.Name(), len(inputs), 1)
	}
	changed, err := inferSameDType(inputs[0], outputs[0])
	if err != nil {
		return changed, err
	}
	if s, ok := inputs[0].Shape(); ok {
		target, err := r.resolve(s.NumElements())
		if err != nil {
			return changed, &graph.ShapeMismatchError{Detail: err.Error()}
		}
		ch, err := outputs[0].Merge(graph.Fact{Dims: target})
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	return changed, nil
}

func (r *Reshape) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(r.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	target, err := r.resolve(inputs[0].NumElements())
	if err != nil {
		return nil, err
	}
	out, err := inputs[0].Reshaped(target)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

// Declutter eliminates reshapes whose target equals the input shape.
func (r *Reshape) Declutter(g *graph.Graph, n *graph.Node) (bool, error) {
	in, ok := g.Fact(n.Inputs[0]).Shape()
	if !ok {
		return false, nil
	}
	target, err := r.resolve(in.NumElements())
	if err != nil {
		return false, nil
	}
	if !in.Equal(target) {
		return false, nil
	}
	return true, bypass(g, n, 0)
}

// Transpose permutes dimensions. An empty Perm reverses them.
type Transpose struct {
	Perm []int
}

func (t *Transpose) Name() string { return "Transpose" }

func (t *Transpose) Outputs() int { return 1 }

func (t *Transpose) perm(rank int) ([]int, error) {
	if len(t.Perm) == 0 {
		p := make([]int, rank)
		for i := range p {
			p[i] = rank - 1 - i
		}
		return p, nil
	}
	if len(t.Perm) != rank {
		return nil, fmt.Errorf("transpose perm %v on rank %d", t.Perm, rank)
	}
	seen := make([]bool, rank)
	for _, a := range t.Perm {
		if a < 0 || a >= rank || seen[a] {
			return nil, fmt.Errorf("transpose perm %v is not a permutation", t.Perm)
		}
		seen[a] = true
	}
	return t.Perm, nil
}

func (t *Transpose) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(t.Name(), len(inputs), 1)
	}
	changed, err := inferSameDType(inputs[0], outputs[0])
	if err != nil {
		return changed, err
	}
	if s, ok := inputs[0].Shape(); ok {
		p, err := t.perm(len(s))
		if err != nil {
			return changed, &graph.ShapeMismatchError{Detail: err.Error()}
		}
		dims := make([]int, len(s))
		for i, a := range p {
			dims[i] = s[a]
		}
		ch, err := outputs[0].Merge(graph.Fact{Dims: dims})
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	return changed, nil
}

func (t *Transpose) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(t.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	p, err := t.perm(in.Rank())
	if err != nil {
		return nil, err
	}
	inShape := in.Shape()
	outShape := make(tensor.Shape, len(inShape))
	for i, a := range p {
		outShape[i] = inShape[a]
	}
	out := tensor.New(in.DType(), outShape)
	inStrides := inShape.Strides()
	outStrides := outShape.Strides()
	n := in.NumElements()
	es := in.DType().Size()
	src, dst := in.Bytes(), out.Bytes()
	for flat := 0; flat < n; flat++ {
		srcIdx := 0
		for d := range outShape {
			coord := (flat / outStrides[d]) % outShape[d]
			srcIdx += coord * inStrides[p[d]]
		}
		copy(dst[flat*es:(flat+1)*es], src[srcIdx*es:(srcIdx+1)*es])
	}
	return []*tensor.Tensor{out}, nil
}

// Declutter eliminates identity permutations.
func (t *Transpose) Declutter(g *graph.Graph, n *graph.Node) (bool, error) {
	s, ok := g.Fact(n.Inputs[0]).Shape()
	if !ok {
		return false, nil
	}
	p, err := t.perm(len(s))
	if err != nil {
		return false, nil
	}
	for i, a := range p {
		if i != a {
			return false, nil
		}
	}
	return true, bypass(g, n, 0)
}

// Slice keeps [Start, End) along Axis. End == -1 runs to the axis end.
type Slice struct {
	Axis  int
	Start int
	End   int
}

func (s *Slice) Name() string { return "Slice" }

func (s *Slice) Outputs() int { return 1 }

func (s *Slice) bounds(dim int) (int, int, error) {
	end := s.End
	if end == -1 {
		end = dim
	}
	if s.Start < 0 || end > dim || s.Start > end {
		return 0, 0, fmt.Errorf("slice [%d:%d) out of range for dim %d", s.Start, end, dim)
	}
	return s.Start, end, nil
}

func (s *Slice) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(s.Name(), len(inputs), 1)
	}
	changed, err := inferSameDType(inputs[0], outputs[0])
	if err != nil {
		return changed, err
	}
	if sh, ok := inputs[0].Shape(); ok {
		if s.Axis < 0 || s.Axis >= len(sh) {
			return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("slice axis %d out of range for rank %d", s.Axis, len(sh))}
		}
		start, end, err := s.bounds(sh[s.Axis])
		if err != nil {
			return changed, &graph.ShapeMismatchError{Detail: err.Error()}
		}
		dims := sh.Clone()
		dims[s.Axis] = end - start
		ch, err := outputs[0].Merge(graph.Fact{Dims: dims})
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	return changed, nil
}

func (s *Slice) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(s.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	sh := in.Shape()
	if s.Axis < 0 || s.Axis >= len(sh) {
		return nil, fmt.Errorf("slice axis %d out of range for rank %d", s.Axis, len(sh))
	}
	start, end, err := s.bounds(sh[s.Axis])
	if err != nil {
		return nil, err
	}
	outShape := sh.Clone()
	outShape[s.Axis] = end - start
	out := tensor.New(in.DType(), outShape)
	outer := 1
	for i := 0; i < s.Axis; i++ {
		outer *= sh[i]
	}
	inner := 1
	for i := s.Axis + 1; i < len(sh); i++ {
		inner *= sh[i]
	}
	es := in.DType().Size()
	rowIn := sh[s.Axis] * inner * es
	rowOut := (end - start) * inner * es
	for o := 0; o < outer; o++ {
		src := in.Bytes()[o*rowIn+start*inner*es : o*rowIn+end*inner*es]
		copy(out.Bytes()[o*rowOut:(o+1)*rowOut], src)
	}
	return []*tensor.Tensor{out}, nil
}

// Declutter eliminates full-range slices.
func (s *Slice) Declutter(g *graph.Graph, n *graph.Node) (bool, error) {
	sh, ok := g.Fact(n.Inputs[0]).Shape()
	if !ok || s.Axis < 0 || s.Axis >= len(sh) {
		return false, nil
	}
	start, end, err := s.bounds(sh[s.Axis])
	if err != nil {
		return false, nil
	}
	if start != 0 || end != sh[s.Axis] {
		return false, nil
	}
	return true, bypass(g, n, 0)
}

// Concat joins tensors along Axis; all other dims must agree.
type Concat struct {
	Axis int
}

func (c *Concat) Name() string { return "Concat" }

func (c *Concat) Outputs() int { return 1 }

func (c *Concat) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) == 0 {
		return false, fmt.Errorf("Concat needs at least one input")
	}
	changed := false
	for _, in := range inputs {
		ch, err := inferSameDType(in, outputs[0])
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	total := 0
	var dims []int
	for _, in := range inputs {
		sh, ok := in.Shape()
		if !ok {
			return changed, nil
		}
		if c.Axis < 0 || c.Axis >= len(sh) {
			return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("concat axis %d out of range for rank %d", c.Axis, len(sh))}
		}
		if dims == nil {
			dims = sh.Clone()
		} else {
			for i := range sh {
				if i != c.Axis && sh[i] != dims[i] {
					return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("concat inputs %v and %v", tensor.Shape(dims), sh)}
				}
			}
		}
		total += sh[c.Axis]
	}
	dims[c.Axis] = total
	ch, err := outputs[0].Merge(graph.Fact{Dims: dims})
	if err != nil {
		return changed, err
	}
	return changed || ch, nil
}

func (c *Concat) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("Concat needs at least one input")
	}
	first := inputs[0]
	sh := first.Shape()
	total := 0
	for _, in := range inputs {
		total += in.Shape()[c.Axis]
	}
	outShape := sh.Clone()
	outShape[c.Axis] = total
	out := tensor.New(first.DType(), outShape)
	outer := 1
	for i := 0; i < c.Axis; i++ {
		outer *= sh[i]
	}
	inner := 1
	for i := c.Axis + 1; i < len(sh); i++ {
		inner *= sh[i]
	}
	es := first.DType().Size()
	rowOut := total * inner * es
	offset := 0
	for _, in := range inputs {
		axisLen := in.Shape()[c.Axis]
		rowIn := axisLen * inner * es
		for o := 0; o < outer; o++ {
			copy(out.Bytes()[o*rowOut+offset:o*rowOut+offset+rowIn], in.Bytes()[o*rowIn:(o+1)*rowIn])
		}
		offset += rowIn
	}
	return []*tensor.Tensor{out}, nil
}

// Pad adds zero frames before and after along Axis.
type Pad struct {
	Axis   int
	Before int
	After  int
}

func (p *Pad) Name() string { return "Pad" }

func (p *Pad) Outputs() int { return 1 }

func (p *Pad) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(p.Name(), len(inputs), 1)
	}
	if p.Before < 0 || p.After < 0 {
		return false, fmt.Errorf("%s: negative padding (%d, %d)", p.Name(), p.Before, p.After)
	}
	changed, err := inferSameDType(inputs[0], outputs[0])
	if err != nil {
		return changed, err
	}
	if sh, ok := inputs[0].Shape(); ok {
		if p.Axis < 0 || p.Axis >= len(sh) {
			return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("pad axis %d out of range for rank %d", p.Axis, len(sh))}
		}
		dims := sh.Clone()
		dims[p.Axis] += p.Before + p.After
		ch, err := outputs[0].Merge(graph.Fact{Dims: dims})
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	return changed, nil
}

func (p *Pad) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(p.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	sh := in.Shape()
	if p.Before < 0 || p.After < 0 {
		return nil, fmt.Errorf("%s: negative padding (%d, %d)", p.Name(), p.Before, p.After)
	}
	if p.Axis < 0 || p.Axis >= len(sh) {
		return nil, fmt.Errorf("pad axis %d out of range for rank %d", p.Axis, len(sh))
	}
	outShape := sh.Clone()
	outShape[p.Axis] += p.Before + p.After
	out := tensor.New(in.DType(), outShape)
	outer := 1
	for i := 0; i < p.Axis; i++ {
		outer *= sh[i]
	}
	inner := 1
	for i := p.Axis + 1; i < len(sh); i++ {
		inner *= sh[i]
	}
	es := in.DType().Size()
	rowIn := sh[p.Axis] * inner * es
	rowOut := outShape[p.Axis] * inner * es
	for o := 0; o < outer; o++ {
		copy(out.Bytes()[o*rowOut+p.Before*inner*es:], in.Bytes()[o*rowIn:(o+1)*rowIn])
	}
	return []*tensor.Tensor{out}, nil
}

// Declutter eliminates zero-width pads.
func (p *Pad) Declutter(g *graph.Graph, n *graph.Node) (bool, error) {
	if p.Before != 0 || p.After != 0 {
		return false, nil
	}
	return true, bypass(g, n, 0)
}
