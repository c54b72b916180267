package tensor

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unsafe"

	"github.com/x448/float16"
)

// Tensor is a typed, shaped, contiguous buffer. The buffer is exclusively
// owned unless the tensor is a view, in which case it shares the parent's
// storage and must be treated as read-only.
//
// Invariant: len(data) == shape.NumElements() * dtype.Size() for all numeric
// kinds; String tensors keep their elements in strs instead.
type Tensor struct {
	dtype DataType
	shape Shape
	data  []byte
	strs  []string
	view  bool
}

// New creates a zero-initialized tensor of the given kind and shape.
func New(dtype DataType, shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor: %v", err))
	}
	t := &Tensor{dtype: dtype, shape: shape.Clone()}
	if dtype == String {
		t.strs = make([]string, shape.NumElements())
	} else {
		t.data = make([]byte, shape.NumElements()*dtype.Size())
	}
	return t
}

func fromSlice[T any](dtype DataType, shape Shape, values []T) *Tensor {
	if shape.NumElements() != len(values) {
		panic(fmt.Sprintf("tensor: shape %v needs %d values, got %d", shape, shape.NumElements(), len(values)))
	}
	t := New(dtype, shape)
	if len(values) > 0 {
		src := unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(values)*dtype.Size())
		copy(t.data, src)
	}
	return t
}

// FromBool creates a Bool tensor from a slice in row-major order.
func FromBool(shape Shape, values []bool) *Tensor { return fromSlice(Bool, shape, values) }

// FromUint8 creates a Uint8 tensor from a slice in row-major order.
func FromUint8(shape Shape, values []uint8) *Tensor { return fromSlice(Uint8, shape, values) }

// FromInt8 creates an Int8 tensor from a slice in row-major order.
func FromInt8(shape Shape, values []int8) *Tensor { return fromSlice(Int8, shape, values) }

// FromInt16 creates an Int16 tensor from a slice in row-major order.
func FromInt16(shape Shape, values []int16) *Tensor { return fromSlice(Int16, shape, values) }

// FromInt32 creates an Int32 tensor from a slice in row-major order.
func FromInt32(shape Shape, values []int32) *Tensor { return fromSlice(Int32, shape, values) }

// FromInt64 creates an Int64 tensor from a slice in row-major order.
func FromInt64(shape Shape, values []int64) *Tensor { return fromSlice(Int64, shape, values) }

// FromFloat32 creates a Float32 tensor from a slice in row-major order.
func FromFloat32(shape Shape, values []float32) *Tensor { return fromSlice(Float32, shape, values) }

// FromFloat64 creates a Float64 tensor from a slice in row-major order.
func FromFloat64(shape Shape, values []float64) *Tensor { return fromSlice(Float64, shape, values) }

// FromStrings creates a String tensor from a slice in row-major order.
func FromStrings(shape Shape, values []string) *Tensor {
	if shape.NumElements() != len(values) {
		panic(fmt.Sprintf("tensor: shape %v needs %d values, got %d", shape, shape.NumElements(), len(values)))
	}
	t := New(String, shape)
	copy(t.strs, values)
	return t
}

// ScalarFloat32 creates a rank-0 Float32 tensor.
func ScalarFloat32(v float32) *Tensor { return FromFloat32(Shape{}, []float32{v}) }

// ScalarFloat64 creates a rank-0 Float64 tensor.
func ScalarFloat64(v float64) *Tensor { return FromFloat64(Shape{}, []float64{v}) }

// ScalarInt64 creates a rank-0 Int64 tensor.
func ScalarInt64(v int64) *Tensor { return FromInt64(Shape{}, []int64{v}) }

// DType returns the tensor's datum kind.
func (t *Tensor) DType() DataType { return t.dtype }

// Shape returns the tensor's shape. Callers must not mutate it.
func (t *Tensor) Shape() Shape { return t.shape }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// NumElements returns the element count.
func (t *Tensor) NumElements() int { return t.shape.NumElements() }

// IsView reports whether the tensor shares storage with a parent.
func (t *Tensor) IsView() bool { return t.view }

// Bytes returns the raw backing buffer. Nil for String tensors.
func (t *Tensor) Bytes() []byte { return t.data }

func sliceOf[T any](t *Tensor, want DataType) []T {
	if t.dtype != want {
		panic(fmt.Sprintf("tensor: %s access on %s tensor", want, t.dtype))
	}
	n := t.NumElements()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&t.data[0])), n)
}

// Bools returns the elements of a Bool tensor.
func (t *Tensor) Bools() []bool { return sliceOf[bool](t, Bool) }

// Uint8s returns the elements of a Uint8 tensor.
func (t *Tensor) Uint8s() []uint8 { return sliceOf[uint8](t, Uint8) }

// Int8s returns the elements of an Int8 tensor.
func (t *Tensor) Int8s() []int8 { return sliceOf[int8](t, Int8) }

// Int16s returns the elements of an Int16 tensor.
func (t *Tensor) Int16s() []int16 { return sliceOf[int16](t, Int16) }

// Int32s returns the elements of an Int32 tensor.
func (t *Tensor) Int32s() []int32 { return sliceOf[int32](t, Int32) }

// Int64s returns the elements of an Int64 tensor.
func (t *Tensor) Int64s() []int64 { return sliceOf[int64](t, Int64) }

// Float32s returns the elements of a Float32 tensor.
func (t *Tensor) Float32s() []float32 { return sliceOf[float32](t, Float32) }

// Float64s returns the elements of a Float64 tensor.
func (t *Tensor) Float64s() []float64 { return sliceOf[float64](t, Float64) }

// Float16s returns the elements of a Float16 tensor as IEEE half values.
func (t *Tensor) Float16s() []float16.Float16 { return sliceOf[float16.Float16](t, Float16) }

// Strings returns the elements of a String tensor.
func (t *Tensor) Strings() []string {
	if t.dtype != String {
		panic(fmt.Sprintf("tensor: string access on %s tensor", t.dtype))
	}
	return t.strs
}

// FloatAt reads element i of any numeric tensor as float64.
func (t *Tensor) FloatAt(i int) float64 {
	switch t.dtype {
	case Uint8:
		return float64(t.Uint8s()[i])
	case Int8:
		return float64(t.Int8s()[i])
	case Int16:
		return float64(t.Int16s()[i])
	case Int32:
		return float64(t.Int32s()[i])
	case Int64:
		return float64(t.Int64s()[i])
	case Float16:
		return float64(t.Float16s()[i].Float32())
	case BFloat16:
		return float64(bf16ToFloat32(binary.LittleEndian.Uint16(t.data[i*2 : i*2+2])))
	case Float32:
		return float64(t.Float32s()[i])
	case Float64:
		return t.Float64s()[i]
	default:
		panic(fmt.Sprintf("tensor: FloatAt on %s tensor", t.dtype))
	}
}

// SetFloatAt writes element i of any numeric tensor from a float64,
// truncating toward zero for integer kinds.
func (t *Tensor) SetFloatAt(i int, v float64) {
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
		t.Int64s()[i] = int64(v)
	case Float16:
		t.Float16s()[i] = float16.Fromfloat32(float32(v))
	case BFloat16:
		binary.LittleEndian.PutUint16(t.data[i*2:i*2+2], bf16FromFloat32(float32(v)))
	case Float32:
		t.Float32s()[i] = float32(v)
	case Float64:
		t.Float64s()[i] = v
	default:
		panic(fmt.Sprintf("tensor: SetFloatAt on %s tensor", t.dtype))
	}
}

// IntAt reads element i of an integer or bool tensor as int64.
func (t *Tensor) IntAt(i int) int64 {
	switch t.dtype {
	case Bool:
		if t.Bools()[i] {
			return 1
		}
		return 0
	case Uint8:
		return int64(t.Uint8s()[i])
	case Int8:
		return int64(t.Int8s()[i])
	case Int16:
		return int64(t.Int16s()[i])
	case Int32:
		return int64(t.Int32s()[i])
	case Int64:
		return t.Int64s()[i]
	default:
		panic(fmt.Sprintf("tensor: IntAt on %s tensor", t.dtype))
	}
}

// Clone returns a deep copy with exclusively owned storage.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{dtype: t.dtype, shape: t.shape.Clone()}
	if t.dtype == String {
		c.strs = append([]string(nil), t.strs...)
	} else {
		c.data = append([]byte(nil), t.data...)
	}
	return c
}

// Reshaped returns a tensor sharing this tensor's storage with a new shape
// of the same element count.
func (t *Tensor) Reshaped(shape Shape) (*Tensor, error) {
	if shape.NumElements() != t.NumElements() {
		return nil, fmt.Errorf("tensor: cannot reshape %v to %v", t.shape, shape)
	}
	return &Tensor{dtype: t.dtype, shape: shape.Clone(), data: t.data, strs: t.strs, view: true}, nil
}

// View returns a read-only window of length shape.NumElements() elements
// starting at element offset, sharing this tensor's storage. The view stays
// valid as long as any holder keeps it alive.
func (t *Tensor) View(offset int, shape Shape) (*Tensor, error) {
	n := shape.NumElements()
	if offset < 0 || offset+n > t.NumElements() {
		return nil, fmt.Errorf("tensor: view [%d:%d) out of range for %d elements", offset, offset+n, t.NumElements())
	}
	if t.dtype == String {
		return &Tensor{dtype: t.dtype, shape: shape.Clone(), strs: t.strs[offset : offset+n], view: true}, nil
	}
	es := t.dtype.Size()
	return &Tensor{dtype: t.dtype, shape: shape.Clone(), data: t.data[offset*es : (offset+n)*es], view: true}, nil
}

// Equal reports exact equality: same kind, same shape, bit-identical data.
func (t *Tensor) Equal(other *Tensor) bool {
	if t.dtype != other.dtype || !t.shape.Equal(other.shape) {
		return false
	}
	if t.dtype == String {
		for i := range t.strs {
			if t.strs[i] != other.strs[i] {
				return false
			}
		}
		return true
	}
	return string(t.data) == string(other.data)
}

// String renders a short description with a few leading values.
func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%v", t.dtype, []int(t.shape))
	n := t.NumElements()
	if t.dtype == String || n == 0 {
		return sb.String()
	}
	sb.WriteString(" [")
	for i := 0; i < n && i < 8; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%g", t.FloatAt(i))
	}
	if n > 8 {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}
