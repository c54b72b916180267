package tensor

import "fmt"

// Shape represents the dimensions of a tensor. Dimensions are non-negative;
// a zero dimension makes the tensor empty, an empty shape is a scalar.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// Validate checks that all dimensions are non-negative.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Strides calculates row-major strides (in elements) for the shape.
func (s Shape) Strides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}
	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Broadcast applies NumPy-style broadcasting rules to two shapes, comparing
// dimensions right to left; missing dimensions count as 1, and a 1 stretches
// to match the other side. Returns the broadcast shape or an error when a
// dimension pair is incompatible.
func Broadcast(a, b Shape) (Shape, error) {
	n := max(len(a), len(b))
	result := make(Shape, n)
	for i := 0; i < n; i++ {
		ad, bd := 1, 1
		if idx := len(a) - 1 - i; idx >= 0 {
			ad = a[idx]
		}
		if idx := len(b) - 1 - i; idx >= 0 {
			bd = b[idx]
		}
		switch {
		case ad == bd:
			result[n-1-i] = ad
		case ad == 1:
			result[n-1-i] = bd
		case bd == 1:
			result[n-1-i] = ad
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable (dims %d vs %d)", a, b, ad, bd)
		}
	}
	return result, nil
}
