package kernels

import (
	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/tensor"
)

// conv1DReference is the portable valid-mode 1D convolution over frames.
// Work is split across disjoint (frame, output-channel) cells, so the
// parallel fan-out cannot affect results.
type conv1DReference struct{}

func (*conv1DReference) Name() string      { return "conv1d_f32_reference" }
func (*conv1DReference) Requires() Feature { return 0 }
func (*conv1DReference) Priority() int     { return 0 }

func (*conv1DReference) Supports(sig Signature) bool {
	return sig.Flavor == FlavorConv1D && sig.DType == tensor.Float32
}

func (c *conv1DReference) Conv1D(t, cin, cout, kw int, in, w, out []float32) {
	outT := t - kw + 1
	if outT <= 0 {
		return
	}
	cfg := parallel.DefaultConfig()
	parallel.For2(outT, cout, func(ot, oc int) {
		var acc float32
		for k := 0; k < kw; k++ {
			inRow := in[(ot+k)*cin : (ot+k+1)*cin]
			wRow := w[(k*cin)*cout+oc:]
			for ci := 0; ci < cin; ci++ {
				acc += inRow[ci] * wRow[ci*cout]
			}
		}
		out[ot*cout+oc] = acc
	}, cfg)
}
