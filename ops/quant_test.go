package ops

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weft-ml/weft/tensor"
)

func TestQuantizeDequantizeRoundTrip(t *testing.T) {
	in := tensor.FromFloat32(tensor.Shape{4}, []float32{-1, 0, 0.5, 1})
	q := &Quantize{Scale: 1.0 / 127, ZeroPoint: 128}
	d := &Dequantize{Scale: 1.0 / 127, ZeroPoint: 128}

	quantized := evalOne(t, q, in)
	require.Equal(t, tensor.Uint8, quantized.DType())
	restored := evalOne(t, d, quantized)
	require.Equal(t, tensor.Float32, restored.DType())

	for i := range in.Float32s() {
		require.InDelta(t, in.Float32s()[i], restored.Float32s()[i], 1.0/127)
	}
}

func TestQuantizeClamps(t *testing.T) {
	in := tensor.FromFloat32(tensor.Shape{2}, []float32{-1000, 1000})
	got := evalOne(t, &Quantize{Scale: 1, ZeroPoint: 128}, in)
	require.Equal(t, []uint8{0, 255}, got.Uint8s())
}

func TestQuantizeRoundsToEven(t *testing.T) {
	in := tensor.FromFloat32(tensor.Shape{2}, []float32{0.5, 1.5})
	got := evalOne(t, &Quantize{Scale: 1, ZeroPoint: 0}, in)
	// Ties go to the even neighbor.
	require.Equal(t, []uint8{0, 2}, got.Uint8s())
}

func TestQuantizeValidation(t *testing.T) {
	_, err := (&Quantize{Scale: 0}).Eval([]*tensor.Tensor{tensor.FromFloat32(tensor.Shape{1}, []float32{1})})
	require.ErrorContains(t, err, "scale")

	_, err = (&Quantize{Scale: 1}).Eval([]*tensor.Tensor{tensor.FromInt32(tensor.Shape{1}, []int32{1})})
	require.ErrorContains(t, err, "float32")

	_, err = (&Dequantize{Scale: 1}).Eval([]*tensor.Tensor{tensor.FromFloat32(tensor.Shape{1}, []float32{1})})
	require.ErrorContains(t, err, "uint8")
}
