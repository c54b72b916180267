package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"
)

// Tolerance bounds the acceptable divergence between two float tensors.
// Elements a and b match when |a-b| <= Abs or |a-b| <= Rel*max(|a|,|b|).
type Tolerance struct {
	Rel float64
	Abs float64
}

// DefaultTolerance returns the documented per-kind comparison bound.
// Integer and bool kinds must be bitwise identical (zero tolerance); float
// bounds widen with shrinking mantissas, since specialized kernels may fuse
// or reassociate operations.
func DefaultTolerance(dt DataType) Tolerance {
	switch dt {
	case Float64:
		return Tolerance{Rel: 1e-9, Abs: 1e-12}
	case Float32:
		return Tolerance{Rel: 1e-5, Abs: 1e-6}
	case Float16, BFloat16:
		return Tolerance{Rel: 1e-2, Abs: 1e-3}
	default:
		return Tolerance{}
	}
}

// ToleranceError reports the first element pair diverging beyond tolerance.
type ToleranceError struct {
	Index    int
	Got      float64
	Want     float64
	Bound    Tolerance
	DataType DataType
}

func (e *ToleranceError) Error() string {
	return fmt.Sprintf("tensor: %s values diverge at element %d: %g vs %g (rel %g, abs %g)",
		e.DataType, e.Index, e.Got, e.Want, e.Bound.Rel, e.Bound.Abs)
}

// Close compares two tensors within the given tolerance. Shapes and kinds
// must match exactly; non-float kinds must be bit-identical regardless of
// tolerance. A zero tolerance demands exact equality for floats too.
func Close(got, want *Tensor, tol Tolerance) error {
	if got.DType() != want.DType() {
		return fmt.Errorf("tensor: kind mismatch: %s vs %s", got.DType(), want.DType())
	}
	if !got.Shape().Equal(want.Shape()) {
		return fmt.Errorf("tensor: shape mismatch: %v vs %v", got.Shape(), want.Shape())
	}
	if !got.DType().IsFloat() {
		if !got.Equal(want) {
			return fmt.Errorf("tensor: %s values differ", got.DType())
		}
		return nil
	}
	n := got.NumElements()
	for i := 0; i < n; i++ {
		a, b := got.FloatAt(i), want.FloatAt(i)
		if scalar.EqualWithinAbsOrRel(a, b, tol.Abs, tol.Rel) {
			continue
		}
		return &ToleranceError{Index: i, Got: a, Want: b, Bound: tol, DataType: got.DType()}
	}
	return nil
}
