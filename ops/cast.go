package ops

import (
	"github.com/weft-ml/weft/graph"
	"github.com/weft-ml/weft/tensor"
)

// Cast converts its input to a fixed datum kind. Importers insert casts
// where a model mixes widths, picking the target with tensor.CommonType;
// casts of constants fold away during declutter.
type Cast struct {
	To tensor.DataType
}

func (c *Cast) Name() string { return "Cast" }

func (c *Cast) Outputs() int { return 1 }

func (c *Cast) Infer(inputs, outputs []*graph.Fact) (bool, error) {
	if len(inputs) != 1 {
		return false, checkArity(c.Name(), len(inputs), 1)
	}
	changed, err := outputs[0].Merge(graph.Fact{DType: c.To, Dims: inputs[0].Dims})
	if err != nil {
		return changed, err
	}
	ch, err := inputs[0].Merge(graph.Fact{Dims: outputs[0].Dims})
	return changed || ch, err
}

func (c *Cast) Eval(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := checkArity(c.Name(), len(inputs), 1); err != nil {
		return nil, err
	}
	out, err := inputs[0].Cast(c.To)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

// Declutter removes casts to the kind the input already has.
func (c *Cast) Declutter(g *graph.Graph, n *graph.Node) (bool, error) {
	f := g.Fact(n.Inputs[0])
	if f != nil && f.HasDType() && f.DType == c.To {
		return true, bypass(g, n, 0)
	}
	return false, nil
}
