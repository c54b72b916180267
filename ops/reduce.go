package ops

import (
	"fmt"
	"math"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/kernels"
	"github.com/weft-ml/weft/tensor"
)

// Reduce collapses one axis with the given reduction. With KeepDim the axis
// stays as size 1, otherwise it disappears.
type Reduce struct {
	Kind    kernels.ReduceKind
	Axis    int
	KeepDim bool
}

func (r *Reduce) Name() string { return "Reduce" + r.Kind.String() }

func (r *Reduce) Outputs() int { return 1 }

func (r *Reduce) outDims(in []int) ([]int, error) {
	if r.Axis < 0 || r.Axis >= len(in) {
		return nil, &graph.ShapeMismatchError{Detail: fmt.Sprintf("reduce axis %d out of range for rank %d", r.Axis, len(in))}
	}
	out := make([]int, 0, len(in))
	for i, d := range in {
		switch {
		case i != r.Axis:
			out = append(out, d)
		case r.KeepDim:
			out = append(out, 1)
		}
	}
	return out, nil
}

func (r *Reduce) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(r.Name(), len(inputs), 1)
	}
	changed, err := inferSameDType(inputs[0], outputs[0])
	if err != nil {
		return changed, err
	}
	if s, ok := inputs[0].Shape(); ok {
		dims, err := r.outDims(s)
		if err != nil {
			return changed, err
		}
		ch, err := outputs[0].Merge(graph.Fact{Dims: dims})
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	return changed, nil
}

func (r *Reduce) Signature(dt tensor.DataType) kernels.Signature {
	return kernels.Signature{Flavor: kernels.FlavorReduce, DType: dt}
}

func (r *Reduce) split(shape tensor.Shape) (outer, axis, inner int) {
	outer, axis, inner = 1, shape[r.Axis], 1
	for i := 0; i < r.Axis; i++ {
		outer *= shape[i]
	}
	for i := r.Axis + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, axis, inner
}

func (r *Reduce) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(r.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	if inputs[0].DType() == tensor.Float32 {
		k, ok := kernels.Select(r.Signature(tensor.Float32), 0)
		if !ok {
			return nil, fmt.Errorf("no reference reduce kernel registered")
		}
		return r.EvalWith(k, inputs)
	}
	return r.evalGeneric(inputs[0])
}

func (r *Reduce) EvalWith(k kernels.Kernel, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	rk, ok := k.(kernels.ReduceKernel)
	if !ok {
		return nil, fmt.Errorf("kernel %s cannot run %s", k.Name(), r.Name())
	}
	in := inputs[0]
	dims, err := r.outDims(in.Shape())
	if err != nil {
		return nil, err
	}
	outer, axis, inner := r.split(in.Shape())
	out := tensor.New(tensor.Float32, tensor.Shape(dims))
	rk.Reduce(r.Kind, outer, axis, inner, in.Float32s(), out.Float32s())
	return []*tensor.Tensor{out}, nil
}

func (r *Reduce) evalGeneric(in *tensor.Tensor) ([]*tensor.Tensor, error) {
	dt := in.DType()
	dims, err := r.outDims(in.Shape())
	if err != nil {
		return nil, err
	}
	if dt.IsInt() && r.Kind == kernels.ReduceMean {
		return nil, fmt.Errorf("mean is not defined on %s tensors", dt)
	}
	if !dt.IsFloat() && !dt.IsInt() {
		return nil, fmt.Errorf("%s is not defined on %s tensors", r.Name(), dt)
	}
	outer, axis, inner := r.split(in.Shape())
	out := tensor.New(dt, tensor.Shape(dims))
	if dt.IsInt() {
		// Integer accumulation stays in int64 end to end; a float64 pass
		// would round values above 2^53.
		for o := 0; o < outer; o++ {
			for i := 0; i < inner; i++ {
				var acc int64
				switch r.Kind {
				case kernels.ReduceSum:
					for a := 0; a < axis; a++ {
						acc += in.IntAt((o*axis+a)*inner + i)
					}
				case kernels.ReduceMax:
					acc = math.MinInt64
					for a := 0; a < axis; a++ {
						acc = max(acc, in.IntAt((o*axis+a)*inner+i))
					}
				case kernels.ReduceMin:
					acc = math.MaxInt64
					for a := 0; a < axis; a++ {
						acc = min(acc, in.IntAt((o*axis+a)*inner+i))
					}
				}
				out.SetIntAt(o*inner+i, acc)
			}
		}
		return []*tensor.Tensor{out}, nil
	}
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var acc float64
			switch r.Kind {
			case kernels.ReduceSum, kernels.ReduceMean:
				for a := 0; a < axis; a++ {
					acc += in.FloatAt((o*axis+a)*inner + i)
				}
				if r.Kind == kernels.ReduceMean && axis > 0 {
					acc /= float64(axis)
				}
			case kernels.ReduceMax:
				acc = math.Inf(-1)
				for a := 0; a < axis; a++ {
					acc = math.Max(acc, in.FloatAt((o*axis+a)*inner+i))
				}
			case kernels.ReduceMin:
				acc = math.Inf(1)
				for a := 0; a < axis; a++ {
					acc = math.Min(acc, in.FloatAt((o*axis+a)*inner+i))
				}
			}
			out.SetFloatAt(o*inner+i, acc)
		}
	}
	return []*tensor.Tensor{out}, nil
}
