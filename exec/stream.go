package exec

import (
	"github.com/pkg/errors"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/tensor"
)

// Stream evaluates a plan incrementally over ordered input chunks. Each
// stateful node keeps its own delay buffer, so concatenating the per-chunk
// outputs reproduces the batch result frame for frame, for any contiguous
// chunking. Streams are single-goroutine; run concurrent streams off one
// Executor instead of sharing a Stream.
type Stream struct {
	e      *Executor
	states map[graph.NodeID]graph.OpState
	done   bool
}

// NewStream starts an independent stream over the executor's plan.
func (e *Executor) NewStream() *Stream {
	states := make(map[graph.NodeID]graph.OpState, len(e.plan.Stateful))
	for _, id := range e.plan.Stateful {
		states[id] = e.plan.Graph.Node(id).Op.(graph.Stateful).NewState()
	}
	return &Stream{e: e, states: states}
}

// Feed pushes one chunk through the plan and returns the frames that gained
// their full context. Early chunks may return zero frames while delay
// buffers fill.
func (s *Stream) Feed(chunk tensor.Bundle) (tensor.Bundle, error) {
	return s.step(chunk, false)
}

// Finish pushes the terminal chunk and flushes end-of-sequence frames.
// The stream accepts no further chunks afterwards.
func (s *Stream) Finish(chunk tensor.Bundle) (tensor.Bundle, error) {
	return s.step(chunk, true)
}

func (s *Stream) step(chunk tensor.Bundle, last bool) (tensor.Bundle, error) {
	if s.done {
		return nil, errors.New("stream already finished")
	}
	env, err := s.e.bind(chunk, false)
	if err != nil {
		return nil, err
	}
	for i, id := range s.e.plan.Order {
		n := s.e.plan.Graph.Node(id)
		if _, ok := n.Op.(*graph.Source); !ok {
			if err := s.e.evalNode(env, n, s.states, last); err != nil {
				return nil, err
			}
		}
		for _, o := range s.e.plan.Release[i] {
			delete(env, o)
		}
	}
	if last {
		s.done = true
	}
	return s.e.collect(env)
}
