package ops

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/kernels"
	"github.com/weft-ml/weft/tensor"
)

// UnaryKind selects the function applied by a Unary op.
type UnaryKind int

// Supported elementwise functions.
const (
	Relu UnaryKind = iota
	Sigmoid
	Tanh
	Exp
	Sqrt
	Abs
	Neg
)

func (k UnaryKind) String() string {
	switch k {
	case Relu:
		return "Relu"
	case Sigmoid:
		return "Sigmoid"
	case Tanh:
		return "Tanh"
	case Exp:
		return "Exp"
	case Sqrt:
		return "Sqrt"
	case Abs:
		return "Abs"
	case Neg:
		return "Neg"
	default:
		return "Unary?"
	}
}

// applyF32 runs the function in place on a float32 slice.
func (k UnaryKind) applyF32(data []float32) {
	switch k {
	case Relu:
		kernels.ReluF32(data)
	case Sigmoid:
		kernels.SigmoidF32(data)
	case Tanh:
		kernels.TanhF32(data)
	case Exp:
		kernels.ExpF32(data)
	case Sqrt:
		kernels.SqrtF32(data)
	case Abs:
		kernels.AbsF32(data)
	case Neg:
		for i, v := range data {
			data[i] = -v
		}
	}
}

func (k UnaryKind) apply64(v float64) float64 {
	switch k {
	case Relu:
		return math.Max(v, 0)
	case Sigmoid:
		return 1 / (1 + math.Exp(-v))
	case Tanh:
		return math.Tanh(v)
	case Exp:
		return math.Exp(v)
	case Sqrt:
		return math.Sqrt(v)
	case Abs:
		return math.Abs(v)
	case Neg:
		return -v
	default:
		panic("unknown unary kind")
	}
}

// intSafe reports whether the function is defined on integer kinds.
func (k UnaryKind) intSafe() bool {
	return k == Relu || k == Abs || k == Neg
}

func (k UnaryKind) applyInt(v int64) int64 {
	switch k {
	case Relu:
		return max(v, 0)
	case Abs:
		if v < 0 {
			return -v
		}
		return v
	case Neg:
		return -v
	default:
		panic("unary kind not defined on integers")
	}
}

// Unary applies an elementwise function, preserving type and shape.
type Unary struct {
	Kind UnaryKind
}

func (u *Unary) Name() string { return u.Kind.String() }

func (u *Unary) Outputs() int { return 1 }

func (u *Unary) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(u.Name(), len(inputs), 1)
	}
	return inferSame(inputs[0], outputs[0])
}

func (u *Unary) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(u.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	dt := in.DType()
	switch {
	case dt == tensor.Float32:
		out := in.Clone()
		u.Kind.applyF32(out.Float32s())
		return []*tensor.Tensor{out}, nil
	case dt.IsFloat():
		out := in.Clone()
		for i := 0; i < out.NumElements(); i++ {
			out.SetFloatAt(i, u.Kind.apply64(out.FloatAt(i)))
		}
		return []*tensor.Tensor{out}, nil
	case dt.IsInt() && u.Kind.intSafe():
		out := in.Clone()
		for i := 0; i < out.NumElements(); i++ {
			out.SetIntAt(i, u.Kind.applyInt(out.IntAt(i)))
		}
		return []*tensor.Tensor{out}, nil
	default:
		return nil, fmt.Errorf("%s is not defined on %s tensors", u.Name(), dt)
	}
}
