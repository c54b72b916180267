package ops

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/tensor"
)

// BinaryKind selects the function applied by a Binary op.
type BinaryKind int

// Supported elementwise binary functions.
const (
	Add BinaryKind = iota
	Sub
	Mul
	Div
	Max
	Min
)

func (k BinaryKind) String() string {
	switch k {
	case Add:
		return "Add"
	case Sub:
		return "Sub"
	case Mul:
		return "Mul"
	case Div:
		return "Div"
	case Max:
		return "Max"
	case Min:
		return "Min"
	default:
		return "Binary?"
	}
}

func (k BinaryKind) apply64(a, b float64) float64 {
	switch k {
	case Add:
		return a + b
	case Sub:
		return a - b
	case Mul:
		return a * b
	case Div:
		return a / b
	case Max:
		return math.Max(a, b)
	case Min:
		return math.Min(a, b)
	default:
		panic("unknown binary kind")
	}
}

func (k BinaryKind) applyInt(a, b int64) (int64, error) {
	switch k {
	case Add:
		return a + b, nil
	case Sub:
		return a - b, nil
	case Mul:
		return a * b, nil
	case Div:
		if b == 0 {
			return 0, fmt.Errorf("integer division by zero")
		}
		return a / b, nil
	case Max:
		return max(a, b), nil
	case Min:
		return min(a, b), nil
	default:
		panic("unknown binary kind")
	}
}

// Binary applies an elementwise function with NumPy-style broadcasting.
type Binary struct {
	Kind BinaryKind
}

func (b *Binary) Name() string { return b.Kind.String() }

func (b *Binary) Outputs() int { return 1 }

func (b *Binary) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 2 {
		return false, checkArity(b.Name(), len(inputs), 2)
	}
	changed := false
	// One datum kind across both inputs and the output.
	for _, pair := range [][2]*graph.Fact{{inputs[0], inputs[1]}, {inputs[0], outputs[0]}, {inputs[1], outputs[0]}} {
		ch, err := inferSameDType(pair[0], pair[1])
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	sa, oka := inputs[0].Shape()
	sb, okb := inputs[1].Shape()
	if oka && okb {
		shape, err := tensor.Broadcast(sa, sb)
		if err != nil {
			return changed, &graph.ShapeMismatchError{Detail: err.Error()}
		}
		ch, err := outputs[0].Merge(graph.Fact{Dims: shape})
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	return changed, nil
}

func (b *Binary) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(b.Name(), len(inputs), 2); err != nil {
		return nil, err
	}
	x, y := inputs[0], inputs[1]
	if x.DType() != y.DType() {
		return nil, fmt.Errorf("%s: mixed kinds %s and %s", b.Name(), x.DType(), y.DType())
	}
	shape, err := tensor.Broadcast(x.Shape(), y.Shape())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	dt := x.DType()
	out := tensor.New(dt, shape)
	n := out.NumElements()

	// Fast path: same shapes, float32, no index arithmetic.
	if dt == tensor.Float32 && x.Shape().Equal(y.Shape()) {
		xs, ys, os := x.Float32s(), y.Float32s(), out.Float32s()
		switch b.Kind {
		case Add:
			for i := range os {
				os[i] = xs[i] + ys[i]
			}
		case Sub:
			for i := range os {
				os[i] = xs[i] - ys[i]
			}
		case Mul:
			for i := range os {
				os[i] = xs[i] * ys[i]
			}
		case Div:
			for i := range os {
				os[i] = xs[i] / ys[i]
			}
		case Max:
			for i := range os {
				os[i] = max(xs[i], ys[i])
			}
		case Min:
			for i := range os {
				os[i] = min(xs[i], ys[i])
			}
		}
		return []*tensor.Tensor{out}, nil
	}

	xi := newBroadcastIndexer(x.Shape(), shape)
	yi := newBroadcastIndexer(y.Shape(), shape)
	switch {
	case dt.IsFloat():
		for i := 0; i < n; i++ {
			out.SetFloatAt(i, b.Kind.apply64(x.FloatAt(xi.at(i)), y.FloatAt(yi.at(i))))
		}
	case dt.IsInt():
		for i := 0; i < n; i++ {
			v, err := b.Kind.applyInt(x.IntAt(xi.at(i)), y.IntAt(yi.at(i)))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
			out.SetIntAt(i, v)
		}
	default:
		return nil, fmt.Errorf("%s is not defined on %s tensors", b.Name(), dt)
	}
	return []*tensor.Tensor{out}, nil
}

// broadcastIndexer maps a flat index in the broadcast output shape back to a
// flat index in a (possibly lower-rank, size-1-stretched) input shape.
type broadcastIndexer struct {
	outShape   tensor.Shape
	outStrides []int
	inStrides  []int // 0 stride on stretched dims
}

func newBroadcastIndexer(in tensor.Shape, out tensor.Shape) *broadcastIndexer {
	inStrides := make([]int, len(out))
	real := in.Strides()
	for i := range out {
		j := i - (len(out) - len(in))
		if j >= 0 && in[j] == out[i] {
			inStrides[i] = real[j]
		}
		// Missing or size-1 dims keep stride 0.
	}
	return &broadcastIndexer{outShape: out, outStrides: out.Strides(), inStrides: inStrides}
}

func (bi *broadcastIndexer) at(flat int) int {
	idx := 0
	for d := range bi.outShape {
		coord := (flat / bi.outStrides[d]) % bi.outShape[d]
		idx += coord * bi.inStrides[d]
	}
	return idx
}
