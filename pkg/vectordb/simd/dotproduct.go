// Package simd provides int8 dot-product kernels for vectordb's top-K
// search, selecting a CPU-feature-gated batched implementation over a
// scalar reference at process start.
package simd

import "golang.org/x/sys/cpu"

// Kernel computes int8 dot products. The zero value is invalid; use
// DetectKernel.
type Kernel struct {
	batched bool
}

// DetectKernel picks a dot-product implementation based on the running
// CPU's feature set. The choice is made once and is stable for the
// process, matching vectordb's "construction-time CPU detection" design.
func DetectKernel() Kernel {
	return Kernel{batched: cpu.X86.HasAVX2}
}

// Dot computes the dot product of a and b, which must have equal length.
// It dispatches to the batched widening-multiply path when the detected
// CPU supports it, and to the scalar reference otherwise; both paths
// produce identical results, differing only in throughput.
func (k Kernel) Dot(a, b []int8) int32 {
	if len(a) != len(b) {
		panic("simd: vectors must have equal length")
	}
	if k.batched {
		return dotBatched(a, b)
	}
	return dotScalar(a, b)
}

// dotScalar is the reference int8 dot product: no assumptions about
// vectorization, used when no faster path is available and as the
// correctness oracle the batched path is tested against.
func dotScalar(a, b []int8) int32 {
	var sum int32
	for i := range a {
		sum += int32(a[i]) * int32(b[i])
	}
	return sum
}

// dotBatched computes the same result as dotScalar but processes 16
// elements per iteration using 16-bit widening multiplies accumulated into
// 32-bit lanes before a final horizontal reduction, mirroring the
// instruction shape of an AVX2 vpmaddwd sequence. Real SIMD intrinsics are
// not expressible in portable Go; this is the widest manually-unrolled
// approximation of that instruction shape, and collapses to the same
// answer as the scalar path for any input.
func dotBatched(a, b []int8) int32 {
	const lanes = 16
	var acc [lanes]int32
	n := len(a)
	i := 0
	for ; i+lanes <= n; i += lanes {
		for l := 0; l < lanes; l++ {
			acc[l] += int32(a[i+l]) * int32(b[i+l])
		}
	}
	var sum int32
	for _, v := range acc {
		sum += v
	}
	for ; i < n; i++ {
		sum += int32(a[i]) * int32(b[i])
	}
	return sum
}
