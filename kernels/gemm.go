package kernels

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/weft-ml/weft/internal/parallel"
	"github.com/weft-ml/weft/tensor"
)

// blockedGemm is the shared tiled implementation behind the specialized
// kernels. Panels of kc rows of B stay cache-hot while row blocks of A are
// swept in parallel; the nr-wide inner loops are written so the compiler can
// vectorize them to the register width the tile was tuned for.
func blockedGemm(m, n, k int, a, b, c []float32, mc, kc, nr int) {
	cfg := parallel.DefaultConfig()
	nBlocks := (m + mc - 1) / mc
	parallel.For(nBlocks, func(blk int) {
		i0 := blk * mc
		i1 := min(i0+mc, m)
		clear(c[i0*n : i1*n])
		for p0 := 0; p0 < k; p0 += kc {
			p1 := min(p0+kc, k)
			for j0 := 0; j0 < n; j0 += nr {
				j1 := min(j0+nr, n)
				for i := i0; i < i1; i++ {
					ci := c[i*n+j0 : i*n+j1]
					for p := p0; p < p1; p++ {
						aip := a[i*k+p]
						bp := b[p*n+j0 : p*n+j1]
						for j := range ci {
							ci[j] += aip * bp[j]
						}
					}
				}
			}
		}
	}, cfg)
}

type gemmAVX2 struct{}

func (*gemmAVX2) Name() string      { return "gemm_f32_avx2" }
func (*gemmAVX2) Requires() Feature { return FeatureAVX2 }
func (*gemmAVX2) Priority() int     { return 20 }

func (*gemmAVX2) Supports(sig Signature) bool {
	return sig.Flavor == FlavorGemm && sig.DType == tensor.Float32
}

func (g *gemmAVX2) Gemm(m, n, k int, a, b, c []float32) {
	// 8-lane tiles matching 256-bit registers.
	blockedGemm(m, n, k, a, b, c, 64, 256, 64)
}

type gemmNEON struct{}

func (*gemmNEON) Name() string      { return "gemm_f32_neon" }
func (*gemmNEON) Requires() Feature { return FeatureNEON }
func (*gemmNEON) Priority() int     { return 10 }

func (*gemmNEON) Supports(sig Signature) bool {
	return sig.Flavor == FlavorGemm && sig.DType == tensor.Float32
}

func (g *gemmNEON) Gemm(m, n, k int, a, b, c []float32) {
	// 4-lane tiles matching 128-bit registers.
	blockedGemm(m, n, k, a, b, c, 32, 128, 32)
}

// gemmReference is the portable fallback, backed by gonum's pure-Go BLAS.
// It defines the numeric reference the specialized kernels are compared
// against.
type gemmReference struct{}

func (*gemmReference) Name() string      { return "gemm_f32_reference" }
func (*gemmReference) Requires() Feature { return 0 }
func (*gemmReference) Priority() int     { return 0 }

func (*gemmReference) Supports(sig Signature) bool {
	return sig.Flavor == FlavorGemm && sig.DType == tensor.Float32
}

func (g *gemmReference) Gemm(m, n, k int, a, b, c []float32) {
	if m == 0 || n == 0 {
		return
	}
	if k == 0 {
		for i := range c {
			c[i] = 0
		}
		return
	}
	am := blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	bm := blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	cm := blas32.General{Rows: m, Cols: n, Stride: n, Data: c}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, am, bm, 0, cm)
}
