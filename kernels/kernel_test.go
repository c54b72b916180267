package kernels

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/tensor"
)

func randSlice(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rng.Float32()*2 - 1
	}
	return out
}

func TestSelectPrefersSpecializedKernel(t *testing.T) {
	sig := Signature{Flavor: FlavorGemm, DType: tensor.Float32}

	k, ok := Select(sig, 0)
	require.True(t, ok)
	require.Equal(t, "gemm_f32_reference", k.Name())

	k, ok = Select(sig, FeatureAVX2)
	require.True(t, ok)
	require.Equal(t, "gemm_f32_avx2", k.Name())

	k, ok = Select(sig, FeatureNEON)
	require.True(t, ok)
	require.Equal(t, "gemm_f32_neon", k.Name())

	// More features never select a worse kernel.
	k, ok = Select(sig, FeatureAVX2|FeatureAVX512|FeatureNEON)
	require.True(t, ok)
	require.Equal(t, "gemm_f32_avx2", k.Name())
}

func TestSelectIsDeterministic(t *testing.T) {
	sig := Signature{Flavor: FlavorGemm, DType: tensor.Float32}
	first, ok := Select(sig, FeatureAVX2)
	require.True(t, ok)
	for i := 0; i < 100; i++ {
		k, ok := Select(sig, FeatureAVX2)
		require.True(t, ok)
		require.Equal(t, first.Name(), k.Name())
	}
}

func TestSelectUnsupportedSignature(t *testing.T) {
	_, ok := Select(Signature{Flavor: FlavorGemm, DType: tensor.Int64}, FeatureAVX2)
	require.False(t, ok)
	_, ok = Select(Signature{Flavor: "bogus", DType: tensor.Float32}, 0)
	require.False(t, ok)
}

func TestEveryFlavorHasReferenceKernel(t *testing.T) {
	for _, flavor := range []Flavor{FlavorGemm, FlavorConv1D, FlavorReduce} {
		k, ok := Select(Signature{Flavor: flavor, DType: tensor.Float32}, 0)
		require.True(t, ok, "flavor %s lacks a portable kernel", flavor)
		require.Equal(t, Feature(0), k.Requires())
	}
}

// Substitution transparency: every registered gemm kernel must agree with
// the reference within float32 tolerance, over a spread of shapes including
// ones that do not divide the block sizes.
func TestGemmKernelsMatchReference(t *testing.T) {
	ref, ok := Select(Signature{Flavor: FlavorGemm, DType: tensor.Float32}, 0)
	require.True(t, ok)
	refGemm := ref.(GemmKernel)

	shapes := [][3]int{{1, 1, 1}, {4, 4, 4}, {3, 5, 7}, {64, 64, 64}, {65, 33, 129}, {2, 200, 9}}
	tol := tensor.DefaultTolerance(tensor.Float32)

	for _, k := range Registry() {
		gk, isGemm := k.(GemmKernel)
		if !isGemm || k.Name() == ref.Name() {
			continue
		}
		for _, s := range shapes {
			m, n, kk := s[0], s[1], s[2]
			rng := rand.New(rand.NewSource(int64(m*1000 + n*10 + kk)))
			a := randSlice(rng, m*kk)
			b := randSlice(rng, kk*n)
			want := make([]float32, m*n)
			got := make([]float32, m*n)
			refGemm.Gemm(m, n, kk, a, b, want)
			gk.Gemm(m, n, kk, a, b, got)
			for i := range want {
				diff := math.Abs(float64(got[i] - want[i]))
				limit := tol.Abs + tol.Rel*math.Max(math.Abs(float64(got[i])), math.Abs(float64(want[i])))
				require.LessOrEqualf(t, diff, limit,
					"%s diverges from reference at %d for %dx%dx%d", k.Name(), i, m, n, kk)
			}
		}
	}
}

func TestGemmOverwritesStaleOutput(t *testing.T) {
	// C may arrive dirty; gemm semantics are overwrite, not accumulate.
	for _, k := range Registry() {
		gk, isGemm := k.(GemmKernel)
		if !isGemm {
			continue
		}
		a := []float32{1, 2, 3, 4}
		b := []float32{1, 0, 0, 1}
		c := []float32{99, 99, 99, 99}
		gk.Gemm(2, 2, 2, a, b, c)
		require.Equal(t, []float32{1, 2, 3, 4}, c, "kernel %s", k.Name())
	}
}

func TestConv1DReference(t *testing.T) {
	k, ok := Select(Signature{Flavor: FlavorConv1D, DType: tensor.Float32}, 0)
	require.True(t, ok)
	ck := k.(Conv1DKernel)

	// 4 frames, 1 channel in, 1 out, width 2: moving sums.
	in := []float32{1, 2, 3, 4}
	w := []float32{1, 1} // [kw=2, cin=1, cout=1]
	out := make([]float32, 3)
	ck.Conv1D(4, 1, 1, 2, in, w, out)
	require.Equal(t, []float32{3, 5, 7}, out)

	// Two output channels pick distinct taps: first copies the current
	// frame, second the next one.
	w2 := []float32{1, 0, 0, 1} // [kw=2, cin=1, cout=2]
	out2 := make([]float32, 6)
	ck.Conv1D(4, 1, 2, 2, in, w2, out2)
	require.Equal(t, []float32{1, 2, 2, 3, 3, 4}, out2)
}

func TestReduceReference(t *testing.T) {
	k, ok := Select(Signature{Flavor: FlavorReduce, DType: tensor.Float32}, 0)
	require.True(t, ok)
	rk := k.(ReduceKernel)

	// [2, 3, 2] collapsed over the middle axis.
	in := []float32{
		1, 2, 3, 4, 5, 6,
		-1, -2, -3, -4, -5, -6,
	}
	out := make([]float32, 4)

	rk.Reduce(ReduceSum, 2, 3, 2, in, out)
	require.Equal(t, []float32{9, 12, -9, -12}, out)

	rk.Reduce(ReduceMean, 2, 3, 2, in, out)
	require.Equal(t, []float32{3, 4, -3, -4}, out)

	rk.Reduce(ReduceMax, 2, 3, 2, in, out)
	require.Equal(t, []float32{5, 6, -1, -2}, out)

	rk.Reduce(ReduceMin, 2, 3, 2, in, out)
	require.Equal(t, []float32{1, 2, -5, -6}, out)
}

func TestFeatureString(t *testing.T) {
	require.Equal(t, "generic", Feature(0).String())
	require.Equal(t, "avx2|neon", (FeatureAVX2 | FeatureNEON).String())
	require.True(t, (FeatureAVX2 | FeatureAVX512).Has(FeatureAVX2))
	require.False(t, FeatureAVX2.Has(FeatureNEON))
}
