package ops

import (
	"fmt"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/kernels"
	"github.com/weft-ml/weft/tensor"
)

// MatMul multiplies [.., m, k] by [.., k, n] into [.., m, n]. Rank 2 is the
// plain case; rank 3 batches over the leading dim, which must agree.
type MatMul struct{}

func (m *MatMul) Name() string { return "MatMul" }

func (m *MatMul) Outputs() int { return 1 }

func (m *MatMul) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 2 {
		return false, checkArity(m.Name(), len(inputs), 2)
	}
	changed := false
	for _, pair := range [][2]*graph.Fact{{inputs[0], inputs[1]}, {inputs[0], outputs[0]}} {
		ch, err := inferSameDType(pair[0], pair[1])
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	a, b := inputs[0], inputs[1]
	if !a.RankKnown() || !b.RankKnown() {
		return changed, nil
	}
	r := len(a.Dims)
	if r != len(b.Dims) || (r != 2 && r != 3) {
		return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("matmul ranks %d and %d", len(a.Dims), len(b.Dims))}
	}
	ka, kb := a.Dims[r-1], b.Dims[r-2]
	if ka != graph.DimUnknown && kb != graph.DimUnknown && ka != kb {
		return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("inner dims %d and %d", ka, kb)}
	}
	outDims := make([]int, r)
	for i := range outDims {
		outDims[i] = graph.DimUnknown
	}
	if r == 3 {
		outDims[0] = a.Dims[0]
		if outDims[0] == graph.DimUnknown {
			outDims[0] = b.Dims[0]
		}
	}
	outDims[r-2] = a.Dims[r-2]
	outDims[r-1] = b.Dims[r-1]
	ch, err := outputs[0].Merge(graph.Fact{Dims: outDims})
	if err != nil {
		return changed, err
	}
	return changed || ch, nil
}

func (m *MatMul) Signature(dt tensor.DataType) kernels.Signature {
	return kernels.Signature{Flavor: kernels.FlavorGemm, DType: dt}
}

func (m *MatMul) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(m.Name(), len(inputs), 2); err != nil {
		return nil, err
	}
	if inputs[0].DType() == tensor.Float32 {
		// Reference semantics: the generic kernel, never a host-specialized
		// one. Optimized plans bind kernels explicitly instead.
		k, ok := kernels.Select(m.Signature(inputs[0].DType()), 0)
		if !ok {
			return nil, fmt.Errorf("no reference gemm kernel registered")
		}
		return m.EvalWith(k, inputs)
	}
	return m.evalGeneric(inputs)
}

func (m *MatMul) EvalWith(k kernels.Kernel, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	gk, ok := k.(kernels.GemmKernel)
	if !ok {
		return nil, fmt.Errorf("kernel %s cannot run %s", k.Name(), m.Name())
	}
	a, b := inputs[0], inputs[1]
	batch, mm, kk, nn, err := matmulDims(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}
	outShape := tensor.Shape{mm, nn}
	if a.Rank() == 3 {
		outShape = tensor.Shape{batch, mm, nn}
	}
	out := tensor.New(tensor.Float32, outShape)
	as, bs, os := a.Float32s(), b.Float32s(), out.Float32s()
	for i := 0; i < batch; i++ {
		gk.Gemm(mm, nn, kk, as[i*mm*kk:(i+1)*mm*kk], bs[i*kk*nn:(i+1)*kk*nn], os[i*mm*nn:(i+1)*mm*nn])
	}
	return []*tensor.Tensor{out}, nil
}

func (m *MatMul) evalGeneric(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	a, b := inputs[0], inputs[1]
	dt := a.DType()
	batch, mm, kk, nn, err := matmulDims(a.Shape(), b.Shape())
	if err != nil {
		return nil, err
	}
	outShape := tensor.Shape{mm, nn}
	if a.Rank() == 3 {
		outShape = tensor.Shape{batch, mm, nn}
	}
	out := tensor.New(dt, outShape)
	switch {
	case dt.IsFloat():
		for i := 0; i < batch; i++ {
			ao, bo, oo := i*mm*kk, i*kk*nn, i*mm*nn
			for r := 0; r < mm; r++ {
				for c := 0; c < nn; c++ {
					var acc float64
					for p := 0; p < kk; p++ {
						acc += a.FloatAt(ao+r*kk+p) * b.FloatAt(bo+p*nn+c)
					}
					out.SetFloatAt(oo+r*nn+c, acc)
				}
			}
		}
	case dt.IsInt():
		for i := 0; i < batch; i++ {
			ao, bo, oo := i*mm*kk, i*kk*nn, i*mm*nn
			for r := 0; r < mm; r++ {
				for c := 0; c < nn; c++ {
					var acc int64
					for p := 0; p < kk; p++ {
						acc += a.IntAt(ao+r*kk+p) * b.IntAt(bo+p*nn+c)
					}
					out.SetIntAt(oo+r*nn+c, acc)
				}
			}
		}
	default:
		return nil, fmt.Errorf("%s is not defined on %s tensors", m.Name(), dt)
	}
	return []*tensor.Tensor{out}, nil
}

func matmulDims(a, b tensor.Shape) (batch, m, k, n int, err error) {
	if len(a) != len(b) || (len(a) != 2 && len(a) != 3) {
		return 0, 0, 0, 0, fmt.Errorf("matmul shapes %v and %v", a, b)
	}
	batch = 1
	if len(a) == 3 {
		if a[0] != b[0] {
			return 0, 0, 0, 0, fmt.Errorf("matmul batch dims %d and %d", a[0], b[0])
		}
		batch = a[0]
	}
	m, k, n = a[len(a)-2], a[len(a)-1], b[len(b)-1]
	if k != b[len(b)-2] {
		return 0, 0, 0, 0, fmt.Errorf("matmul inner dims %d and %d", k, b[len(b)-2])
	}
	return batch, m, k, n, nil
}
