package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/tensor"
)

func TestInferPropagatesForward(t *testing.T) {
	g := New()
	a, err := g.AddInput("a", ShapedFact(tensor.Float32, tensor.Shape{2, 3}))
	require.NoError(t, err)
	p, err := g.Add("p", passOp{}, a.Outlet(0))
	require.NoError(t, err)
	q, err := g.Add("q", passOp{}, p.Outlet(0))
	require.NoError(t, err)

	require.NoError(t, Infer(g))
	require.NoError(t, CheckComplete(g))
	require.Equal(t, "float32[2,3]", q.Facts[0].String())
}

func TestInferPropagatesBackward(t *testing.T) {
	// The sink constrains the chain: knowledge flows from q's output fact
	// back through both pass nodes to the unconstrained source.
	g := New()
	a, err := g.AddInput("a", Fact{})
	require.NoError(t, err)
	p, err := g.Add("p", passOp{}, a.Outlet(0))
	require.NoError(t, err)
	q, err := g.Add("q", passOp{}, p.Outlet(0))
	require.NoError(t, err)
	q.Facts[0] = ShapedFact(tensor.Int64, tensor.Shape{7})

	require.NoError(t, Infer(g))
	require.Equal(t, "int64[7]", a.Facts[0].String())
	require.Equal(t, "int64[7]", p.Facts[0].String())
}

func TestInferUnifiesSiblings(t *testing.T) {
	// One input knows the kind, the other knows the shape; joining them
	// completes all three edges.
	g := New()
	a, err := g.AddInput("a", Fact{DType: tensor.Float32})
	require.NoError(t, err)
	b, err := g.AddInput("b", Fact{Dims: []int{4, 4}})
	require.NoError(t, err)
	j, err := g.Add("j", joinOp{}, a.Outlet(0), b.Outlet(0))
	require.NoError(t, err)

	require.NoError(t, Infer(g))
	require.NoError(t, CheckComplete(g))
	require.Equal(t, "float32[4,4]", a.Facts[0].String())
	require.Equal(t, "float32[4,4]", b.Facts[0].String())
	require.Equal(t, "float32[4,4]", j.Facts[0].String())
}

func TestInferReportsConflictWithNodeContext(t *testing.T) {
	g := New()
	a, err := g.AddInput("a", ShapedFact(tensor.Float32, tensor.Shape{2, 3}))
	require.NoError(t, err)
	b, err := g.AddInput("b", ShapedFact(tensor.Float32, tensor.Shape{2, 4}))
	require.NoError(t, err)
	j, err := g.Add("j", joinOp{}, a.Outlet(0), b.Outlet(0))
	require.NoError(t, err)

	err = Infer(g)
	var sm *ShapeMismatchError
	require.ErrorAs(t, err, &sm)
	require.Equal(t, j.ID, sm.Node)
	require.Equal(t, "join", sm.Op)
	require.Contains(t, sm.Error(), "join")
}

func TestInferIsDeterministic(t *testing.T) {
	build := func() (*Graph, *Node) {
		g := New()
		a, err := g.AddInput("a", Fact{DType: tensor.Float32})
		require.NoError(t, err)
		b, err := g.AddInput("b", Fact{Dims: []int{8}})
		require.NoError(t, err)
		j, err := g.Add("j", joinOp{}, a.Outlet(0), b.Outlet(0))
		require.NoError(t, err)
		return g, j
	}
	g1, j1 := build()
	g2, j2 := build()
	require.NoError(t, Infer(g1))
	require.NoError(t, Infer(g2))
	require.Equal(t, j1.Facts[0].String(), j2.Facts[0].String())
}

func TestCheckCompleteReportsPartialFact(t *testing.T) {
	g := New()
	a, err := g.AddInput("a", Fact{DType: tensor.Float32})
	require.NoError(t, err)
	p, err := g.Add("p", passOp{}, a.Outlet(0))
	require.NoError(t, err)

	require.NoError(t, Infer(g))
	err = CheckComplete(g)
	var uf *UnresolvedFactError
	require.ErrorAs(t, err, &uf)
	require.Equal(t, a.ID, uf.Node)
	require.Equal(t, 0, uf.Slot)
	_ = p
}
