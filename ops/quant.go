package ops

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/tensor"
)

// Quantize maps float32 values to uint8 with the affine scheme
// q = clamp(round(x/scale) + zeroPoint, 0, 255).
type Quantize struct {
	Scale     float32
	ZeroPoint uint8
}

func (q *Quantize) Name() string { return "Quantize" }

func (q *Quantize) Outputs() int { return 1 }

func (q *Quantize) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(q.Name(), len(inputs), 1)
	}
	changed, err := inputs[0].Merge(graph.Fact{DType: tensor.Float32})
	if err != nil {
		return changed, err
	}
	ch, err := outputs[0].Merge(graph.Fact{DType: tensor.Uint8, Dims: inputs[0].Dims})
	if err != nil {
		return changed, err
	}
	changed = changed || ch
	ch, err = inputs[0].Merge(graph.Fact{Dims: outputs[0].Dims})
	return changed || ch, err
}

func (q *Quantize) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(q.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%s expects float32, got %s", q.Name(), in.DType())
	}
	if q.Scale <= 0 {
		return nil, fmt.Errorf("%s: scale must be positive, got %g", q.Name(), q.Scale)
	}
	out := tensor.New(tensor.Uint8, in.Shape())
	xs, os := in.Float32s(), out.Uint8s()
	for i, v := range xs {
		r := math.RoundToEven(float64(v)/float64(q.Scale)) + float64(q.ZeroPoint)
		os[i] = uint8(math.Min(255, math.Max(0, r)))
	}
	return []*tensor.Tensor{out}, nil
}

// Dequantize is the inverse affine map x = (q - zeroPoint) * scale.
type Dequantize struct {
	Scale     float32
	ZeroPoint uint8
}

func (d *Dequantize) Name() string { return "Dequantize" }

func (d *Dequantize) Outputs() int { return 1 }

func (d *Dequantize) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(d.Name(), len(inputs), 1)
	}
	changed, err := inputs[0].Merge(graph.Fact{DType: tensor.Uint8})
	if err != nil {
		return changed, err
	}
	ch, err := outputs[0].Merge(graph.Fact{DType: tensor.Float32, Dims: inputs[0].Dims})
	if err != nil {
		return changed, err
	}
	changed = changed || ch
	ch, err = inputs[0].Merge(graph.Fact{Dims: outputs[0].Dims})
	return changed || ch, err
}

func (d *Dequantize) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(d.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.DType() != tensor.Uint8 {
		return nil, fmt.Errorf("%s expects uint8, got %s", d.Name(), in.DType())
	}
	out := tensor.New(tensor.Float32, in.Shape())
	qs, os := in.Uint8s(), out.Float32s()
	for i, v := range qs {
		os[i] = (float32(v) - float32(d.ZeroPoint)) * d.Scale
	}
	return []*tensor.Tensor{out}, nil
}
