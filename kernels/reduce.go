package kernels

import (
	"math"

	"github.com/weft-ml/weft/tensor"
)

// reduceReference collapses one axis of a tensor viewed as
// [outer, axis, inner]. Accumulation runs in float64 so the result does not
// depend on how a specialized kernel might re-associate the sum.
type reduceReference struct{}

func (*reduceReference) Name() string      { return "reduce_f32_reference" }
func (*reduceReference) Requires() Feature { return 0 }
func (*reduceReference) Priority() int     { return 0 }

func (*reduceReference) Supports(sig Signature) bool {
	return sig.Flavor == FlavorReduce && sig.DType == tensor.Float32
}

func (r *reduceReference) Reduce(kind ReduceKind, outer, axis, inner int, in, out []float32) {
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			switch kind {
			case ReduceSum, ReduceMean:
				var acc float64
				for a := 0; a < axis; a++ {
					acc += float64(in[(o*axis+a)*inner+i])
				}
				if kind == ReduceMean && axis > 0 {
					acc /= float64(axis)
				}
				out[o*inner+i] = float32(acc)
			case ReduceMax:
				acc := float32(math.Inf(-1))
				for a := 0; a < axis; a++ {
					if v := in[(o*axis+a)*inner+i]; v > acc {
						acc = v
					}
				}
				out[o*inner+i] = acc
			case ReduceMin:
				acc := float32(math.Inf(1))
				for a := 0; a < axis; a++ {
					if v := in[(o*axis+a)*inner+i]; v < acc {
						acc = v
					}
				}
				out[o*inner+i] = acc
			}
		}
	}
}
