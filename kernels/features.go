// Package kernels holds the architecture-specialized numeric implementations
// the optimized plan dispatches onto, and the dispatch logic itself.
//
// Dispatch is a pure function from (operation signature, CPU features) to a
// kernel handle, computed at plan-construction time and cached. Every
// signature the engine emits is covered by a portable reference kernel, so
// selection can always fall back without changing semantics beyond the
// documented per-kind tolerance.
package kernels

import (
	"strings"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Feature is a bitmask of instruction-set capabilities a kernel may require.
type Feature uint32

const (
	// FeatureAVX2 covers AVX2 together with FMA3; the blocked kernels tuned
	// for it assume both.
	FeatureAVX2 Feature = 1 << iota
	// FeatureAVX512 covers the AVX-512 foundation subset.
	FeatureAVX512
	// FeatureNEON covers aarch64 advanced SIMD.
	FeatureNEON
)

// Has reports whether every bit of want is present.
func (f Feature) Has(want Feature) bool { return f&want == want }

// String renders the set, e.g. "avx2|avx512".
func (f Feature) String() string {
	if f == 0 {
		return "generic"
	}
	var parts []string
	if f.Has(FeatureAVX2) {
		parts = append(parts, "avx2")
	}
	if f.Has(FeatureAVX512) {
		parts = append(parts, "avx512")
	}
	if f.Has(FeatureNEON) {
		parts = append(parts, "neon")
	}
	return strings.Join(parts, "|")
}

var (
	detectOnce sync.Once
	hostFeats  Feature
)

// Detect returns the host CPU's feature set. The probe runs once per
// process; the result is cached.
func Detect() Feature {
	detectOnce.Do(func() {
		if cpuid.CPU.Supports(cpuid.AVX2) && cpuid.CPU.Supports(cpuid.FMA3) {
			hostFeats |= FeatureAVX2
		}
		if cpuid.CPU.Supports(cpuid.AVX512F) {
			hostFeats |= FeatureAVX512
		}
		if cpuid.CPU.Supports(cpuid.ASIMD) {
			hostFeats |= FeatureNEON
		}
	})
	return hostFeats
}
