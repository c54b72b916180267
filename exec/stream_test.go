package exec

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/codegen"
	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/ops"
	"github.com/weft-ml/weft/tensor"
)

func contextModel(t *testing.T, left, right, finalOffset int, frames, feat int) *graph.Graph {
	t.Helper()
	g := graph.New()
	x, err := g.AddInput("x", graph.ShapedFact(tensor.Float32, tensor.Shape{frames, feat}))
	require.NoError(t, err)
	cw, err := g.Add("cw", &ops.ContextWindow{Left: left, Right: right, FinalOffset: finalOffset}, x.Outlet(0))
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(map[string]graph.Outlet{"y": cw.Outlet(0)}))
	return g
}

// concatRows stacks per-chunk outputs back into one [n, w] tensor.
func concatRows(t *testing.T, chunks []*tensor.Tensor) *tensor.Tensor {
	t.Helper()
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	w := chunks[0].Shape()[1]
	var vals []float32
	rows := 0
	for _, c := range chunks {
		require.Equal(t, w, c.Shape()[1])
		vals = append(vals, c.Float32s()...)
		rows += c.Shape()[0]
	}
	return tensor.FromFloat32(tensor.Shape{rows, w}, vals)
}

func runChunked(t *testing.T, e *Executor, input *tensor.Tensor, sizes []int) *tensor.Tensor {
	t.Helper()
	feat := input.Shape()[1]
	fs := feat * input.DType().Size()
	s := e.NewStream()
	var outs []*tensor.Tensor
	off := 0
	for i, n := range sizes {
		chunk := tensor.New(input.DType(), tensor.Shape{n, feat})
		copy(chunk.Bytes(), input.Bytes()[off*fs:(off+n)*fs])
		off += n
		var (
			out tensor.Bundle
			err error
		)
		if i == len(sizes)-1 {
			out, err = s.Finish(tensor.Bundle{"x": chunk})
		} else {
			out, err = s.Feed(tensor.Bundle{"x": chunk})
		}
		require.NoError(t, err)
		outs = append(outs, out["y"])
	}
	return concatRows(t, outs)
}

func TestStreamingMatchesBatch(t *testing.T) {
	const frames, feat = 20, 3
	rng := rand.New(rand.NewSource(11))
	input := tensor.FromFloat32(tensor.Shape{frames, feat}, randFloats(rng, frames*feat))

	for _, tc := range []struct {
		name        string
		left, right int
		finalOffset int
		sizes       []int
	}{
		{"acoustic splice", 5, 2, 0, []int{7, 7, 6}},
		{"single frame chunks", 5, 2, 0, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
		{"one big chunk", 5, 2, 0, []int{20}},
		{"left only", 3, 0, 0, []int{4, 4, 4, 4, 4}},
		{"negative final offset", 5, 2, -3, []int{7, 7, 6}},
		{"positive final offset", 5, 2, 2, []int{7, 7, 6}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			batch := contextModel(t, tc.left, tc.right, tc.finalOffset, frames, feat)
			refPlan, err := codegen.Reference(batch)
			require.NoError(t, err)
			want, err := New(refPlan).Run(tensor.Bundle{"x": input})
			require.NoError(t, err)

			streaming := contextModel(t, tc.left, tc.right, tc.finalOffset, frames, feat)
			plan, err := codegen.Compile(streaming, codegen.HostArch(), codegen.Options{})
			require.NoError(t, err)
			got := runChunked(t, New(plan), input, tc.sizes)

			require.NoError(t, tensor.Close(got, want["y"], tensor.Tolerance{}))
		})
	}
}

func TestStreamRejectsChunksAfterFinish(t *testing.T) {
	g := contextModel(t, 2, 1, 0, 10, 3)
	p, err := codegen.Compile(g, codegen.HostArch(), codegen.Options{})
	require.NoError(t, err)
	s := New(p).NewStream()

	chunk := tensor.Bundle{"x": tensor.FromFloat32(tensor.Shape{5, 3}, make([]float32, 15))}
	_, err = s.Feed(chunk)
	require.NoError(t, err)
	_, err = s.Finish(chunk)
	require.NoError(t, err)
	_, err = s.Feed(chunk)
	require.ErrorContains(t, err, "finished")
}

func TestStreamsAreIndependent(t *testing.T) {
	g := contextModel(t, 2, 0, 0, 6, 2)
	p, err := codegen.Compile(g, codegen.HostArch(), codegen.Options{})
	require.NoError(t, err)
	e := New(p)

	rng := rand.New(rand.NewSource(5))
	a := tensor.FromFloat32(tensor.Shape{6, 2}, randFloats(rng, 12))
	b := tensor.FromFloat32(tensor.Shape{6, 2}, randFloats(rng, 12))

	// Interleave two streams; each must behave as if it ran alone.
	wantA := runChunked(t, e, a, []int{6})
	wantB := runChunked(t, e, b, []int{6})

	sa, sb := e.NewStream(), e.NewStream()
	outA1, err := sa.Feed(tensor.Bundle{"x": slice(t, a, 0, 3)})
	require.NoError(t, err)
	outB1, err := sb.Feed(tensor.Bundle{"x": slice(t, b, 0, 3)})
	require.NoError(t, err)
	outA2, err := sa.Finish(tensor.Bundle{"x": slice(t, a, 3, 6)})
	require.NoError(t, err)
	outB2, err := sb.Finish(tensor.Bundle{"x": slice(t, b, 3, 6)})
	require.NoError(t, err)

	gotA := concatRows(t, []*tensor.Tensor{outA1["y"], outA2["y"]})
	gotB := concatRows(t, []*tensor.Tensor{outB1["y"], outB2["y"]})
	require.NoError(t, tensor.Close(gotA, wantA, tensor.Tolerance{}))
	require.NoError(t, tensor.Close(gotB, wantB, tensor.Tolerance{}))
}

func slice(t *testing.T, in *tensor.Tensor, from, to int) *tensor.Tensor {
	t.Helper()
	feat := in.Shape()[1]
	fs := feat * in.DType().Size()
	out := tensor.New(in.DType(), tensor.Shape{to - from, feat})
	copy(out.Bytes(), in.Bytes()[from*fs:to*fs])
	return out
}

func TestStreamingThroughDenseTail(t *testing.T) {
	const frames, feat = 12, 3
	const width = (2 + 1 + 1) * feat // left 2, right 1

	g := graph.New()
	x, err := g.AddInput("x", graph.ShapedFact(tensor.Float32, tensor.Shape{frames, feat}))
	require.NoError(t, err)
	cw, err := g.Add("cw", &ops.ContextWindow{Left: 2, Right: 1}, x.Outlet(0))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(9))
	w, err := g.Add("w", &ops.Const{Value: tensor.FromFloat32(tensor.Shape{width, 4}, randFloats(rng, width*4))})
	require.NoError(t, err)
	mm, err := g.Add("mm", &ops.MatMul{}, cw.Outlet(0), w.Outlet(0))
	require.NoError(t, err)
	act, err := g.Add("act", &ops.Unary{Kind: ops.Tanh}, mm.Outlet(0))
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(map[string]graph.Outlet{"y": act.Outlet(0)}))

	input := tensor.FromFloat32(tensor.Shape{frames, feat}, randFloats(rng, frames*feat))

	batch := codegenReference(t, g)
	want, err := New(batch).Run(tensor.Bundle{"x": input})
	require.NoError(t, err)

	g2 := graph.New()
	x2, err := g2.AddInput("x", graph.ShapedFact(tensor.Float32, tensor.Shape{frames, feat}))
	require.NoError(t, err)
	cw2, err := g2.Add("cw", &ops.ContextWindow{Left: 2, Right: 1}, x2.Outlet(0))
	require.NoError(t, err)
	w2, err := g2.Add("w", &ops.Const{Value: tensor.FromFloat32(tensor.Shape{width, 4}, w.Op.(*ops.Const).Value.Float32s())})
	require.NoError(t, err)
	mm2, err := g2.Add("mm", &ops.MatMul{}, cw2.Outlet(0), w2.Outlet(0))
	require.NoError(t, err)
	act2, err := g2.Add("act", &ops.Unary{Kind: ops.Tanh}, mm2.Outlet(0))
	require.NoError(t, err)
	require.NoError(t, g2.SetOutputs(map[string]graph.Outlet{"y": act2.Outlet(0)}))

	plan, err := codegen.Compile(g2, codegen.HostArch(), codegen.Options{})
	require.NoError(t, err)
	got := runChunked(t, New(plan), input, []int{5, 4, 3})

	require.NoError(t, tensor.Close(got, want["y"], tensor.DefaultTolerance(tensor.Float32)))
}

func codegenReference(t *testing.T, g *graph.Graph) *codegen.Plan {
	t.Helper()
	p, err := codegen.Reference(g)
	require.NoError(t, err)
	return p
}
