package ops

import (
	"fmt"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/kernels"
	"github.com/weft-ml/weft/tensor"
)

// NoActivation marks a FusedMatMul without an activation tail.
const NoActivation UnaryKind = -1

// FusedMatMul is the codegen-produced composite of a matmul, an optional
// row-broadcast bias add, and an optional activation. It avoids
// materializing the intermediate tensors the separate nodes would produce.
// Inputs: a, b, then the bias when HasBias.
type FusedMatMul struct {
	HasBias    bool
	Activation UnaryKind
}

func (f *FusedMatMul) Name() string {
	name := "FusedMatMul"
	if f.HasBias {
		name += "+Bias"
	}
	if f.Activation != NoActivation {
		name += "+" + f.Activation.String()
	}
	return name
}

func (f *FusedMatMul) Outputs() int { return 1 }

func (f *FusedMatMul) arity() int {
	if f.HasBias {
		return 3
	}
	return 2
}

func (f *FusedMatMul) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != f.arity() {
		return false, checkArity(f.Name(), len(inputs), f.arity())
	}
	mm := &MatMul{}
	changed, err := mm.Infer(inputs[:2], outputs)
	if err != nil {
		return changed, err
	}
	if f.HasBias {
		ch, err := inferSameDType(inputs[2], outputs[0])
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	return changed, nil
}

func (f *FusedMatMul) Signature(dt tensor.DataType) kernels.Signature {
	return kernels.Signature{Flavor: kernels.FlavorGemm, DType: dt}
}

func (f *FusedMatMul) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(f.Name(), len(inputs), f.arity()); err != nil {
		return nil, err
	}
	k, ok := kernels.Select(f.Signature(inputs[0].DType()), 0)
	if !ok {
		return nil, fmt.Errorf("no reference gemm kernel registered")
	}
	return f.EvalWith(k, inputs)
}

func (f *FusedMatMul) EvalWith(k kernels.Kernel, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(f.Name(), len(inputs), f.arity()); err != nil {
		return nil, err
	}
	if inputs[0].DType() != tensor.Float32 {
		return nil, fmt.Errorf("%s is only fused for float32, got %s", f.Name(), inputs[0].DType())
	}
	outs, err := (&MatMul{}).EvalWith(k, inputs[:2])
	if err != nil {
		return nil, err
	}
	out := outs[0]
	os := out.Float32s()
	if f.HasBias {
		bias := inputs[2].Float32s()
		n := len(bias)
		if len(os)%n != 0 {
			return nil, fmt.Errorf("%s: bias length %d does not divide output %v", f.Name(), n, out.Shape())
		}
		for row := 0; row < len(os); row += n {
			dst := os[row : row+n]
			for i := range dst {
				dst[i] += bias[i]
			}
		}
	}
	if f.Activation != NoActivation {
		f.Activation.applyF32(os)
	}
	return []*tensor.Tensor{out}, nil
}
