package graph

import (
	"fmt"
	"strings"

	"github.com/weft-ml/weft/tensor"
)

// DimUnknown marks a dimension whose size is not yet inferred.
const DimUnknown = -1

// Fact is the type/shape/value knowledge attached to one graph edge. It
// ranges from unconstrained (zero value) through partial (kind and/or rank
// known, some dims unknown) to complete (kind and concrete shape known,
// optionally with a constant value).
//
// Facts form a lattice: refinement only ever adds knowledge. Merge is the
// join; it fails when two facts carry conflicting concrete knowledge.
type Fact struct {
	DType tensor.DataType // tensor.Invalid when unknown
	Dims  []int           // nil when rank unknown; DimUnknown per entry
	Value *tensor.Tensor  // non-nil when the edge is a known constant
}

// FactOf builds the complete fact describing an existing tensor, without
// recording it as a constant.
func FactOf(t *tensor.Tensor) Fact {
	return Fact{DType: t.DType(), Dims: append([]int(nil), t.Shape()...)}
}

// ConstFact builds the complete fact for a known constant value.
func ConstFact(t *tensor.Tensor) Fact {
	f := FactOf(t)
	f.Value = t
	return f
}

// ShapedFact builds a fact with a known kind and concrete shape.
func ShapedFact(dt tensor.DataType, shape tensor.Shape) Fact {
	return Fact{DType: dt, Dims: append([]int(nil), shape...)}
}

// HasDType reports whether the datum kind is known.
func (f *Fact) HasDType() bool { return f.DType != tensor.Invalid }

// RankKnown reports whether the number of dimensions is known.
func (f *Fact) RankKnown() bool { return f.Dims != nil }

// ShapeKnown reports whether every dimension is concrete.
func (f *Fact) ShapeKnown() bool {
	if f.Dims == nil {
		return false
	}
	for _, d := range f.Dims {
		if d == DimUnknown {
			return false
		}
	}
	return true
}

// Complete reports whether kind and concrete shape are both known.
func (f *Fact) Complete() bool { return f.HasDType() && f.ShapeKnown() }

// Shape returns the concrete shape; ok is false unless ShapeKnown.
func (f *Fact) Shape() (tensor.Shape, bool) {
	if !f.ShapeKnown() {
		return nil, false
	}
	return tensor.Shape(f.Dims), true
}

// Merge joins knowledge from other into f. It reports whether f gained
// information and fails with a ShapeMismatchError (without node context; the
// caller attaches it) when the two facts are provably inconsistent.
func (f *Fact) Merge(other Fact) (bool, error) {
	changed := false
	if other.HasDType() {
		if f.HasDType() && f.DType != other.DType {
			return changed, &ShapeMismatchError{Detail: fmt.Sprintf("conflicting datum kinds %s and %s", f.DType, other.DType)}
		}
		if !f.HasDType() {
			f.DType = other.DType
			changed = true
		}
	}
	if other.RankKnown() {
		if f.RankKnown() && len(f.Dims) != len(other.Dims) {
			return changed, &ShapeMismatchError{Detail: fmt.Sprintf("conflicting ranks %d and %d", len(f.Dims), len(other.Dims))}
		}
		if !f.RankKnown() {
			f.Dims = make([]int, len(other.Dims))
			for i := range f.Dims {
				f.Dims[i] = DimUnknown
			}
			changed = true
		}
		for i, d := range other.Dims {
			if d == DimUnknown {
				continue
			}
			switch f.Dims[i] {
			case DimUnknown:
				f.Dims[i] = d
				changed = true
			case d:
			default:
				return changed, &ShapeMismatchError{Detail: fmt.Sprintf("conflicting sizes %d and %d for dimension %d", f.Dims[i], d, i)}
			}
		}
	}
	if other.Value != nil {
		if f.Value != nil {
			if !f.Value.Equal(other.Value) {
				return changed, &ShapeMismatchError{Detail: "conflicting constant values"}
			}
		} else {
			f.Value = other.Value
			changed = true
		}
	}
	return changed, nil
}

// MergeDim refines a single dimension, growing rank knowledge on demand.
func (f *Fact) MergeDim(axis, size int) (bool, error) {
	if !f.RankKnown() {
		return false, nil
	}
	if axis < 0 || axis >= len(f.Dims) {
		return false, &ShapeMismatchError{Detail: fmt.Sprintf("axis %d out of range for rank %d", axis, len(f.Dims))}
	}
	other := Fact{Dims: make([]int, len(f.Dims))}
	for i := range other.Dims {
		other.Dims[i] = DimUnknown
	}
	other.Dims[axis] = size
	return f.Merge(other)
}

// String renders the fact's refinement state.
func (f *Fact) String() string {
	var sb strings.Builder
	if f.HasDType() {
		sb.WriteString(f.DType.String())
	} else {
		sb.WriteString("?")
	}
	if f.RankKnown() {
		sb.WriteString("[")
		for i, d := range f.Dims {
			if i > 0 {
				sb.WriteString(",")
			}
			if d == DimUnknown {
				sb.WriteString("?")
			} else {
				fmt.Fprintf(&sb, "%d", d)
			}
		}
		sb.WriteString("]")
	} else {
		sb.WriteString("[...]")
	}
	if f.Value != nil {
		sb.WriteString("=const")
	}
	return sb.String()
}
