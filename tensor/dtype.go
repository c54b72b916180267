// Package tensor provides the typed, shaped numeric buffers exchanged by the
// weft inference engine.
//
// A Tensor owns a contiguous data buffer described by a DataType and a Shape.
// Read-only views can share a parent's storage. Bundle is the engine's only
// exchange format: a mapping from name to Tensor.
package tensor

// DataType identifies the element type of a tensor buffer.
//
// The set is closed: pipeline stages switch over it exhaustively, and adding
// a kind means teaching the fold/eval paths about it.
type DataType int

// Supported datum kinds.
const (
	Invalid DataType = iota
	Bool
	Uint8
	Int8
	Int16
	Int32
	Int64
	Float16
	BFloat16
	Float32
	Float64
	String
)

// Size returns the byte size of one element. String elements are not stored
// in the byte buffer and report 0.
func (dt DataType) Size() int {
	switch dt {
	case Bool, Uint8, Int8:
		return 1
	case Int16, Float16, BFloat16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	case String:
		return 0
	default:
		panic("tensor: unknown data type")
	}
}

// IsFloat reports whether the kind is an IEEE (or bfloat) floating type.
func (dt DataType) IsFloat() bool {
	switch dt {
	case Float16, BFloat16, Float32, Float64:
		return true
	}
	return false
}

// IsInt reports whether the kind is a fixed-width integer type.
func (dt DataType) IsInt() bool {
	switch dt {
	case Uint8, Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Bool:
		return "bool"
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case String:
		return "string"
	default:
		return "invalid"
	}
}

// widening ranks constant-folding promotions: folding two constants of
// different kinds computes in the wider kind. Bool and String never widen.
var widening = map[DataType]int{
	Uint8:    1,
	Int8:     1,
	Int16:    2,
	Int32:    3,
	Int64:    4,
	Float16:  5,
	BFloat16: 5,
	Float32:  6,
	Float64:  7,
}

// CommonType returns the narrowest kind both a and b widen to, or Invalid if
// no such kind exists. Importers use it to pick the ops.Cast target when a
// model mixes widths on one edge.
func CommonType(a, b DataType) DataType {
	if a == b {
		return a
	}
	ra, oka := widening[a]
	rb, okb := widening[b]
	if !oka || !okb {
		return Invalid
	}
	switch {
	case ra > rb:
		return a
	case rb > ra:
		return b
	case ra == 1:
		// uint8 vs int8: neither holds the other, int16 holds both.
		return Int16
	default:
		// float16 vs bfloat16: disjoint mantissa/exponent splits.
		return Float32
	}
}
