package tensor

import "fmt"

// Cast converts the tensor to another numeric kind. Integer-to-integer casts
// preserve values exactly (modulo Go's wrapping conversion on overflow);
// float narrowing rounds to nearest. String and Bool tensors do not cast.
func (t *Tensor) Cast(to DataType) (*Tensor, error) {
	if to == t.dtype {
		return t.Clone(), nil
	}
	if t.dtype == String || to == String || t.dtype == Bool || to == Bool {
		return nil, fmt.Errorf("tensor: cannot cast %s to %s", t.dtype, to)
	}
	out := New(to, t.shape)
	n := t.NumElements()
	if t.dtype.IsInt() && to.IsInt() {
		for i := 0; i < n; i++ {
			out.SetIntAt(i, t.IntAt(i))
		}
		return out, nil
	}
	for i := 0; i < n; i++ {
		out.SetFloatAt(i, t.FloatAt(i))
	}
	return out, nil
}

// SetIntAt stores an integer element without a float round trip, so int64
// values above 2^53 survive exactly. Narrower kinds take Go's wrapping
// conversion. Panics on non-integer tensors.
func (t *Tensor) SetIntAt(i int, v int64) {
	switch t.dtype {
	case Uint8:
		t.Uint8s()[i] = uint8(v)
	case Int8:
		t.Int8s()[i] = int8(v)
	case Int16:
		t.Int16s()[i] = int16(v)
	case Int32:
		t.Int32s()[i] = int32(v)
	case Int64:
		t.Int64s()[i] = v
	default:
		panic(fmt.Sprintf("tensor: SetIntAt on %s tensor", t.dtype))
	}
}
