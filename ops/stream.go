package ops

import (
	"fmt"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/tensor"
)

// ContextWindow is the temporal splice of streaming acoustic models. For an
// input of N frames by C features, output frame t is the concatenation of
// input frames t-Left..t+Right, so the output is
// [N-Right+FinalOffset, (Left+1+Right)*C]. Frames read before the start (or
// past the end, for a positive FinalOffset) are zeros.
//
// FinalOffset adjusts the output length at the end of the sequence: negative
// drops trailing frames, positive emits extra windows over zero padding. In
// batch evaluation the whole input is the end of the sequence; in streaming
// execution the adjustment applies to the terminal chunk only.
type ContextWindow struct {
	Left        int
	Right       int
	FinalOffset int
}

func (c *ContextWindow) Name() string { return "ContextWindow" }

func (c *ContextWindow) Outputs() int { return 1 }

func (c *ContextWindow) width() int { return c.Left + 1 + c.Right }

func (c *ContextWindow) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(c.Name(), len(inputs), 1)
	}
	if c.Left < 0 || c.Right < 0 {
		return false, fmt.Errorf("%s: negative context (%d, %d)", c.Name(), c.Left, c.Right)
	}
	changed, err := inferSameDType(inputs[0], outputs[0])
	if err != nil {
		return changed, err
	}
	if sh, ok := inputs[0].Shape(); ok {
		if len(sh) != 2 {
			return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("context input rank %d, want 2 (frames, features)", len(sh))}
		}
		frames := sh[0] - c.Right + c.FinalOffset
		if frames < 0 {
			return changed, &graph.ShapeMismatchError{Detail: fmt.Sprintf("context of %d frames yields %d output frames", sh[0], frames)}
		}
		ch, err := outputs[0].Merge(graph.Fact{Dims: []int{frames, c.width() * sh[1]}})
		if err != nil {
			return changed, err
		}
		changed = changed || ch
	}
	return changed, nil
}

func (c *ContextWindow) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(c.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	if in.Rank() != 2 {
		return nil, fmt.Errorf("%s: input rank %d, want 2", c.Name(), in.Rank())
	}
	n, feat := in.Shape()[0], in.Shape()[1]
	outFrames := n - c.Right + c.FinalOffset
	if outFrames < 0 {
		return nil, fmt.Errorf("%s: %d frames yield %d output frames", c.Name(), n, outFrames)
	}
	es := in.DType().Size()
	fs := feat * es
	out := tensor.New(in.DType(), tensor.Shape{outFrames, c.width() * feat})
	src, dst := in.Bytes(), out.Bytes()
	row := c.width() * fs
	for t := 0; t < outFrames; t++ {
		for j := 0; j <= c.Left+c.Right; j++ {
			idx := t - c.Left + j
			if idx < 0 || idx >= n {
				continue // stays zero
			}
			copy(dst[t*row+j*fs:t*row+(j+1)*fs], src[idx*fs:(idx+1)*fs])
		}
	}
	return []*tensor.Tensor{out}, nil
}

// StreamingContext is the codegen-materialized form of ContextWindow: the
// same batch semantics plus explicit delay-buffer state for chunked
// execution. The buffer holds the last Left+Right frames seen, so arbitrary
// contiguous chunkings reproduce the batch output frame for frame.
type StreamingContext struct {
	ContextWindow
}

func (s *StreamingContext) Name() string { return "StreamingContext" }

// NewState returns independent delay-buffer state for one stream.
func (s *StreamingContext) NewState() graph.OpState {
	return &contextState{op: s}
}

type contextState struct {
	op      *StreamingContext
	hist    []byte // pending frames: left padding plus frames lacking right context
	feat    int
	es      int
	dtype   tensor.DataType
	started bool
	done    bool
}

func (st *contextState) Step(inputs []*tensor.Tensor, last bool) ([]*tensor.Tensor, error) {
	if st.done {
		return nil, fmt.Errorf("StreamingContext: chunk fed after the terminal chunk")
	}
	if len(inputs) != 1 {
		return nil, checkArity("StreamingContext", len(inputs), 1)
	}
	chunk := inputs[0]
	if chunk.Rank() != 2 {
		return nil, fmt.Errorf("StreamingContext: chunk rank %d, want 2", chunk.Rank())
	}
	op := &st.op.ContextWindow
	if !st.started {
		st.started = true
		st.feat = chunk.Shape()[1]
		st.es = chunk.DType().Size()
		st.dtype = chunk.DType()
		// Zero left context: the first window reads Left zero frames.
		st.hist = make([]byte, op.Left*st.feat*st.es, (op.Left+op.Right+16)*st.feat*st.es)
	}
	if chunk.Shape()[1] != st.feat || chunk.DType() != st.dtype {
		return nil, fmt.Errorf("StreamingContext: chunk %s does not match stream %s[., %d]", chunk, st.dtype, st.feat)
	}
	fs := st.feat * st.es
	st.hist = append(st.hist, chunk.Bytes()...)
	if last {
		st.done = true
		if op.FinalOffset > 0 {
			st.hist = append(st.hist, make([]byte, op.FinalOffset*fs)...)
		}
	}
	emit := len(st.hist)/fs - (op.Left + op.Right)
	if last && op.FinalOffset < 0 {
		emit += op.FinalOffset
		if emit < 0 {
			return nil, fmt.Errorf("StreamingContext: final offset %d reaches back beyond the terminal chunk", op.FinalOffset)
		}
	}
	if emit < 0 {
		emit = 0
	}
	width := op.width()
	out := tensor.New(st.dtype, tensor.Shape{emit, width * st.feat})
	dst := out.Bytes()
	row := width * fs
	for t := 0; t < emit; t++ {
		copy(dst[t*row:(t+1)*row], st.hist[t*fs:t*fs+row])
	}
	st.hist = st.hist[emit*fs:]
	return []*tensor.Tensor{out}, nil
}
