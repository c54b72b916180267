package ops

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/tensor"
)

func frames(n, feat int) *tensor.Tensor {
	vals := make([]float32, n*feat)
	for i := range vals {
		vals[i] = float32(i)
	}
	return tensor.FromFloat32(tensor.Shape{n, feat}, vals)
}

func TestContextWindowBatch(t *testing.T) {
	// 4 frames of 1 feature, one frame of context each side.
	in := frames(4, 1) // 0 1 2 3
	got := evalOne(t, &ContextWindow{Left: 1, Right: 1}, in)
	require.Equal(t, tensor.Shape{3, 3}, got.Shape())
	require.Equal(t, []float32{
		0, 0, 1, // frame 0 reads a zero left pad
		0, 1, 2,
		1, 2, 3,
	}, got.Float32s())
}

func TestContextWindowFinalOffset(t *testing.T) {
	in := frames(4, 1)

	// Negative offset drops trailing frames.
	got := evalOne(t, &ContextWindow{Left: 1, Right: 1, FinalOffset: -1}, in)
	require.Equal(t, tensor.Shape{2, 3}, got.Shape())
	require.Equal(t, []float32{0, 0, 1, 0, 1, 2}, got.Float32s())

	// Positive offset emits extra windows over zero padding.
	got = evalOne(t, &ContextWindow{Left: 1, Right: 1, FinalOffset: 1}, in)
	require.Equal(t, tensor.Shape{4, 3}, got.Shape())
	require.Equal(t, []float32{
		0, 0, 1,
		0, 1, 2,
		1, 2, 3,
		2, 3, 0, // right context past the end is zero
	}, got.Float32s())
}

func TestContextWindowInfer(t *testing.T) {
	op := &ContextWindow{Left: 5, Right: 2}
	in := graph.ShapedFact(tensor.Float32, tensor.Shape{20, 3})
	var out graph.Fact
	_, err := op.Infer([]*graph.Fact{&in}, []*graph.Fact{&out})
	require.NoError(t, err)
	require.Equal(t, "float32[18,24]", out.String())

	var out2 graph.Fact
	bad := graph.ShapedFact(tensor.Float32, tensor.Shape{20})
	_, err = (&ContextWindow{Left: 1}).Infer([]*graph.Fact{&bad}, []*graph.Fact{&out2})
	var sm *graph.ShapeMismatchError
	require.ErrorAs(t, err, &sm)
}

func TestStreamingContextMatchesBatchWindows(t *testing.T) {
	op := &StreamingContext{ContextWindow{Left: 2, Right: 1}}
	in := frames(6, 2)
	want := evalOne(t, &op.ContextWindow, in)

	st := op.NewState()
	var got []float32
	rows := 0
	chunks := [][2]int{{0, 2}, {2, 3}, {3, 6}}
	for i, span := range chunks {
		chunk, err := in.View(span[0]*2, tensor.Shape{span[1] - span[0], 2})
		require.NoError(t, err)
		outs, err := st.Step([]*tensor.Tensor{chunk.Clone()}, i == len(chunks)-1)
		require.NoError(t, err)
		got = append(got, outs[0].Float32s()...)
		rows += outs[0].Shape()[0]
	}
	require.Equal(t, want.Shape()[0], rows)
	require.Equal(t, want.Float32s(), got)
}

func TestStreamingContextRejectsLateChunks(t *testing.T) {
	op := &StreamingContext{ContextWindow{Left: 1, Right: 0}}
	st := op.NewState()
	chunk := frames(2, 1)
	_, err := st.Step([]*tensor.Tensor{chunk}, true)
	require.NoError(t, err)
	_, err = st.Step([]*tensor.Tensor{chunk}, false)
	require.ErrorContains(t, err, "terminal")
}

func TestStreamingContextRejectsShapeDrift(t *testing.T) {
	op := &StreamingContext{ContextWindow{Left: 1, Right: 0}}
	st := op.NewState()
	_, err := st.Step([]*tensor.Tensor{frames(2, 3)}, false)
	require.NoError(t, err)
	_, err = st.Step([]*tensor.Tensor{frames(2, 4)}, false)
	require.ErrorContains(t, err, "does not match stream")
}

func TestStreamingContextFinalOffsetPastTerminalChunk(t *testing.T) {
	op := &StreamingContext{ContextWindow{Left: 0, Right: 0, FinalOffset: -5}}
	st := op.NewState()
	_, err := st.Step([]*tensor.Tensor{frames(2, 1)}, true)
	require.ErrorContains(t, err, "reaches back")
}
