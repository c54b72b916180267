package kernels

import (
	"fmt"

	"github.com/weft-ml/weft/tensor"
	"k8s.io/klog/v2"
)

// Flavor identifies the class of numeric operation a kernel implements.
type Flavor string

// Heavy-op flavors routed through dispatch.
const (
	FlavorGemm   Flavor = "gemm"
	FlavorConv1D Flavor = "conv1d"
	FlavorReduce Flavor = "reduce"
)

// Signature describes an operation instance for kernel selection.
type Signature struct {
	Flavor Flavor
	DType  tensor.DataType
}

func (s Signature) String() string {
	return fmt.Sprintf("%s/%s", s.Flavor, s.DType)
}

// Kernel is a concrete, architecture-specific implementation of a numeric
// operation. Implementations additionally satisfy one of the flavor
// interfaces below; blocking and packing parameters are internal and must
// not change results beyond the documented tolerance.
type Kernel interface {
	Name() string
	Requires() Feature
	// Priority orders equally-matching kernels; most specialized first.
	// The portable reference kernels sit at priority 0.
	Priority() int
	Supports(sig Signature) bool
}

// GemmKernel computes C = A*B for row-major float32 matrices,
// A being m-by-k, B k-by-n and C m-by-n.
type GemmKernel interface {
	Kernel
	Gemm(m, n, k int, a, b, c []float32)
}

// Conv1DKernel computes a valid (no padding) 1D convolution over frames:
// input [t, cin], weights [kw, cin, cout], output [t-kw+1, cout].
type Conv1DKernel interface {
	Kernel
	Conv1D(t, cin, cout, kw int, in, w, out []float32)
}

// ReduceKernel collapses the innermost of three logical dims: input viewed
// as [outer, axis, inner], output [outer, inner].
type ReduceKernel interface {
	Kernel
	Reduce(kind ReduceKind, outer, axis, inner int, in, out []float32)
}

// ReduceKind selects the reduction performed by a ReduceKernel.
type ReduceKind int

// Supported reductions.
const (
	ReduceSum ReduceKind = iota
	ReduceMean
	ReduceMax
	ReduceMin
)

func (k ReduceKind) String() string {
	switch k {
	case ReduceSum:
		return "sum"
	case ReduceMean:
		return "mean"
	case ReduceMax:
		return "max"
	case ReduceMin:
		return "min"
	default:
		return "unknown"
	}
}

// registry lists every kernel in a fixed order; together with the priority
// field this makes selection fully deterministic. Reference kernels must
// appear for every flavor the engine emits.
var registry = []Kernel{
	&gemmAVX2{},
	&gemmNEON{},
	&gemmReference{},
	&conv1DReference{},
	&reduceReference{},
}

// Select returns the best kernel for the signature under the given feature
// set: the highest-priority kernel whose requirements are satisfied, ties
// broken by registry order. ok is false when no kernel (not even a
// reference) matches; callers treat that as an unsupported operation, never
// as license to substitute different semantics.
func Select(sig Signature, feats Feature) (Kernel, bool) {
	var best Kernel
	for _, k := range registry {
		if !k.Supports(sig) || !feats.Has(k.Requires()) {
			continue
		}
		if best == nil || k.Priority() > best.Priority() {
			best = k
		}
	}
	if best == nil {
		return nil, false
	}
	klog.V(2).Infof("kernel %s selected for %s (features %s)", best.Name(), sig, feats)
	return best, true
}

// Registry exposes the kernel table for substitution testing.
func Registry() []Kernel {
	return append([]Kernel(nil), registry...)
}
