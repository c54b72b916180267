package ops

import (
	"fmt"

	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/tensor"
)

// Const holds a literal tensor. Folding rewrites terminate on Const nodes.
type Const struct {
	Value *tensor.Tensor
}

func (c *Const) Name() string { return "Const" }

func (c *Const) Outputs() int { return 1 }

func (c *Const) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 0 {
		return false, fmt.Errorf("Const takes no inputs")
	}
	return outputs[0].Merge(graph.ConstFact(c.Value))
}

func (c *Const) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return []*tensor.Tensor{c.Value}, nil
}
