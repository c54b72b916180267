package ops

import (
	"fmt"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/kernels"
	"github.com/weft-ml/weft/tensor"
)

// Conv1D is a valid-mode (no padding) convolution over frames. Input
// [t, cin], weights [kw, cin, cout], output [t-kw+1, cout].
type Conv1D struct{}

func (c *Conv1D) Name() string { return "Conv1D" }

func (c *Conv1D) Outputs() int { return 1 }

func (c *Conv1D) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 2 {
		return false, checkArity(c.Name(), len(inputs), 2)
	}
	changed := false
	for _, pair := range [][2]*graph.Fact{{inputs[0], inputs[1]}, {inputs[0], outputs[0]}} {
		ch, err := inferSameDType(pair[0], pair[1])
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	x, w := inputs[0], inputs[1]
	if x.RankKnown() && len(x.Dims) != 2 {
		return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("conv1d input rank %d, want 2", len(x.Dims))}
	}
	if w.RankKnown() && len(w.Dims) != 3 {
		return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("conv1d weight rank %d, want 3", len(w.Dims))}
	}
	if x.ShapeKnown() && w.ShapeKnown() {
		t, cin := x.Dims[0], x.Dims[1]
		kw, wcin, cout := w.Dims[0], w.Dims[1], w.Dims[2]
		if cin != wcin {
			return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("conv1d channels %d and %d", cin, wcin)}
		}
		if t-kw+1 < 0 {
			return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("conv1d window %d over %d frames", kw, t)}
		}
		ch, err := outputs[0].Merge(graph.Fact{Dims: []int{t - kw + 1, cout}})
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	return changed, nil
}

func (c *Conv1D) Signature(dt tensor.DataType) kernels.Signature {
	return kernels.Signature{Flavor: kernels.FlavorConv1D, DType: dt}
}

func (c *Conv1D) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(c.Name(), len(inputs), 2); err != nil {
		return nil, err
	}
	k, ok := kernels.Select(c.Signature(inputs[0].DType()), 0)
	if !ok {
		return nil, fmt.Errorf("%s is not defined on %s tensors", c.Name(), inputs[0].DType())
	}
	return c.EvalWith(k, inputs)
}

func (c *Conv1D) EvalWith(k kernels.Kernel, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	ck, ok := k.(kernels.Conv1DKernel)
	if !ok {
		return nil, fmt.Errorf("kernel %s cannot run %s", k.Name(), c.Name())
	}
	x, w := inputs[0], inputs[1]
	if x.Rank() != 2 || w.Rank() != 3 || x.Shape()[1] != w.Shape()[1] {
		return nil, fmt.Errorf("conv1d shapes %v and %v", x.Shape(), w.Shape())
	}
	t, cin := x.Shape()[0], x.Shape()[1]
	kw, cout := w.Shape()[0], w.Shape()[2]
	if t-kw+1 < 0 {
		return nil, fmt.Errorf("conv1d window %d over %d frames", kw, t)
	}
	out := tensor.New(tensor.Float32, tensor.Shape{t - kw + 1, cout})
	ck.Conv1D(t, cin, cout, kw, x.Float32s(), w.Float32s(), out.Float32s())
	return []*tensor.Tensor{out}, nil
}
