package exec

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/codegen"
	"github.com/weft-ml/weft/declutter"
	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/ops"
	"github.com/weft-ml/weft/tensor"
)

func randFloats(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rng.Float32()*2 - 1
	}
	return out
}

// denseModel builds x[4,4] @ w + b -> relu, with a redundant +0 thrown in so
// declutter has work to do.
func denseModel(t *testing.T, rng *rand.Rand) *graph.Graph {
	t.Helper()
	g := graph.New()
	x, err := g.AddInput("x", graph.ShapedFact(tensor.Float32, tensor.Shape{4, 4}))
	require.NoError(t, err)
	w, err := g.Add("w", &ops.Const{Value: tensor.FromFloat32(tensor.Shape{4, 4}, randFloats(rng, 16))})
	require.NoError(t, err)
	b, err := g.Add("b", &ops.Const{Value: tensor.FromFloat32(tensor.Shape{4}, randFloats(rng, 4))})
	require.NoError(t, err)
	zero, err := g.Add("zero", &ops.Const{Value: tensor.FromFloat32(tensor.Shape{4, 4}, make([]float32, 16))})
	require.NoError(t, err)
	noop, err := g.Add("noop", &ops.Binary{Kind: ops.Add}, x.Outlet(0), zero.Outlet(0))
	require.NoError(t, err)
	mm, err := g.Add("mm", &ops.MatMul{}, noop.Outlet(0), w.Outlet(0))
	require.NoError(t, err)
	sum, err := g.Add("sum", &ops.Binary{Kind: ops.Add}, mm.Outlet(0), b.Outlet(0))
	require.NoError(t, err)
	act, err := g.Add("act", &ops.Unary{Kind: ops.Relu}, sum.Outlet(0))
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(map[string]graph.Outlet{"y": act.Outlet(0)}))
	return g
}

func TestOptimizedMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	input := tensor.Bundle{"x": tensor.FromFloat32(tensor.Shape{4, 4}, randFloats(rng, 16))}

	ref := denseModel(t, rand.New(rand.NewSource(1)))
	require.NoError(t, declutter.Run(ref))
	refPlan, err := codegen.Reference(ref)
	require.NoError(t, err)
	want, err := New(refPlan).Run(input)
	require.NoError(t, err)

	opt := denseModel(t, rand.New(rand.NewSource(1)))
	require.NoError(t, declutter.Run(opt))
	optPlan, err := codegen.Compile(opt, codegen.HostArch(), codegen.Options{})
	require.NoError(t, err)
	got, err := New(optPlan).Run(input)
	require.NoError(t, err)

	require.NoError(t, got.Close(want))
}

func TestRunIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := denseModel(t, rand.New(rand.NewSource(1)))
	require.NoError(t, declutter.Run(g))
	p, err := codegen.Compile(g, codegen.HostArch(), codegen.Options{})
	require.NoError(t, err)
	e := New(p)

	input := tensor.Bundle{"x": tensor.FromFloat32(tensor.Shape{4, 4}, randFloats(rng, 16))}
	first, err := e.Run(input)
	require.NoError(t, err)
	second, err := e.Run(input)
	require.NoError(t, err)
	require.True(t, first["y"].Equal(second["y"]), "two runs must agree bit for bit")
}

func TestRunValidatesInputs(t *testing.T) {
	g := denseModel(t, rand.New(rand.NewSource(1)))
	require.NoError(t, declutter.Run(g))
	p, err := codegen.Reference(g)
	require.NoError(t, err)
	e := New(p)

	_, err = e.Run(tensor.Bundle{})
	require.ErrorContains(t, err, `missing input "x"`)

	_, err = e.Run(tensor.Bundle{"x": tensor.FromFloat64(tensor.Shape{4, 4}, make([]float64, 16))})
	require.ErrorContains(t, err, "float64")

	_, err = e.Run(tensor.Bundle{"x": tensor.FromFloat32(tensor.Shape{2, 4}, make([]float32, 8))})
	require.ErrorContains(t, err, "shape")

	_, err = e.Run(tensor.Bundle{
		"x":     tensor.FromFloat32(tensor.Shape{4, 4}, make([]float32, 16)),
		"bogus": tensor.FromFloat32(tensor.Shape{1}, []float32{0}),
	})
	require.ErrorContains(t, err, `"bogus"`)

	// An entry named after an output is just as stray as any other.
	_, err = e.Run(tensor.Bundle{
		"x": tensor.FromFloat32(tensor.Shape{4, 4}, make([]float32, 16)),
		"y": tensor.FromFloat32(tensor.Shape{4, 4}, make([]float32, 16)),
	})
	require.ErrorContains(t, err, `"y" does not name a graph input`)
}

func TestEvalErrorNamesNode(t *testing.T) {
	g := graph.New()
	x, err := g.AddInput("x", graph.ShapedFact(tensor.Int32, tensor.Shape{2}))
	require.NoError(t, err)
	den, err := g.AddInput("den", graph.ShapedFact(tensor.Int32, tensor.Shape{2}))
	require.NoError(t, err)
	div, err := g.Add("ratio", &ops.Binary{Kind: ops.Div}, x.Outlet(0), den.Outlet(0))
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(map[string]graph.Outlet{"q": div.Outlet(0)}))
	p, err := codegen.Reference(g)
	require.NoError(t, err)

	_, err = New(p).Run(tensor.Bundle{
		"x":   tensor.FromInt32(tensor.Shape{2}, []int32{1, 2}),
		"den": tensor.FromInt32(tensor.Shape{2}, []int32{1, 0}),
	})
	require.ErrorContains(t, err, "division by zero")
	require.ErrorContains(t, err, "ratio")
}
