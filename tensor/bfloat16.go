package tensor

import "math"

// bf16 is the bfloat16 format: the top 16 bits of an IEEE float32. Narrowing
// rounds to nearest even, matching hardware truncation-with-rounding.

func bf16FromFloat32(f float32) uint16 {
	bits := math.Float32bits(f)
	if bits&0x7fffffff > 0x7f800000 {
		// NaN: keep it a NaN after truncation.
		return uint16(bits>>16) | 0x40
	}
	round := uint32(0x7fff + (bits>>16)&1)
	return uint16((bits + round) >> 16)
}

func bf16ToFloat32(b uint16) float32 {
	return math.Float32frombits(uint32(b) << 16)
}
