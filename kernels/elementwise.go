package kernels

import "github.com/chewxy/math32"

// Float32 elementwise primitives used by the cheap (non-dispatched) ops and
// by the fused kernels' activation tails. Kept here so every stage applies
// bit-identical scalar math.

// ExpF32 applies e^x in place.
func ExpF32(data []float32) {
	for i, v := range data {
		data[i] = math32.Exp(v)
	}
}

// TanhF32 applies tanh in place.
func TanhF32(data []float32) {
	for i, v := range data {
		data[i] = math32.Tanh(v)
	}
}

// SigmoidF32 applies the logistic function in place.
func SigmoidF32(data []float32) {
	for i, v := range data {
		data[i] = 1 / (1 + math32.Exp(-v))
	}
}

// SqrtF32 applies the square root in place.
func SqrtF32(data []float32) {
	for i, v := range data {
		data[i] = math32.Sqrt(v)
	}
}

// ReluF32 clamps negatives to zero in place.
func ReluF32(data []float32) {
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
}

// AbsF32 applies |x| in place.
func AbsF32(data []float32) {
	for i, v := range data {
		data[i] = math32.Abs(v)
	}
}
