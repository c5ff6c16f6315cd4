//go:build amd64 && !goexperiment.simd

// Runtime-dispatched SIMD operations for NNUE evaluation on AMD64.
// Unlike ARM64 (compile-time NEON dispatch) and the GOEXPERIMENT=simd build
// (compile-time archsimd dispatch), AMD64 without the experiment flag selects
// its kernel once at process start by probing CPU features, since AVX2 is
// common but not universal on this architecture.
package sfnnue

import "golang.org/x/sys/cpu"

var hasAVX2 = cpu.X86.HasAVX2

// SIMDAddInt16 adds src into dst. dst[i] += src[i].
func SIMDAddInt16(dst, src []int16) {
	if hasAVX2 {
		addInt16Wide(dst, src)
		return
	}
	for i := range dst {
		dst[i] += src[i]
	}
}

// SIMDSubInt16 subtracts src from dst. dst[i] -= src[i].
func SIMDSubInt16(dst, src []int16) {
	if hasAVX2 {
		subInt16Wide(dst, src)
		return
	}
	for i := range dst {
		dst[i] -= src[i]
	}
}

// SIMDAddInt32 adds src into dst.
func SIMDAddInt32(dst, src []int32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// SIMDSubInt32 subtracts src from dst.
func SIMDSubInt32(dst, src []int32) {
	for i := range dst {
		dst[i] -= src[i]
	}
}

// SIMDCopyInt16 copies src into dst.
func SIMDCopyInt16(dst, src []int16) {
	copy(dst, src)
}

// SIMDCopyInt32 copies src into dst.
func SIMDCopyInt32(dst, src []int32) {
	copy(dst, src)
}

// SIMDAddInt16Offset adds src[offset:offset+count] into dst[0:count].
func SIMDAddInt16Offset(dst, src []int16, offset, count int) {
	for i := 0; i < count; i++ {
		dst[i] += src[offset+i]
	}
}

// SIMDSubInt16Offset subtracts src[offset:offset+count] from dst[0:count].
func SIMDSubInt16Offset(dst, src []int16, offset, count int) {
	for i := 0; i < count; i++ {
		dst[i] -= src[offset+i]
	}
}

// SIMDDotProductInt8Uint8 computes sum(weights[i]*inputs[i]) for i in [0,count).
func SIMDDotProductInt8Uint8(weights []int8, inputs []uint8, count int) int32 {
	if hasAVX2 {
		return dotProductWide(weights, inputs, count)
	}
	var sum int32
	for i := 0; i < count; i++ {
		sum += int32(weights[i]) * int32(inputs[i])
	}
	return sum
}

// SIMDClippedReLU applies clamp(x>>shift, 0, 127).
func SIMDClippedReLU(input []int32, output []uint8, shift int) {
	for i := range input {
		val := input[i] >> shift
		if val < 0 {
			val = 0
		} else if val > 127 {
			val = 127
		}
		output[i] = uint8(val)
	}
}

// addInt16Wide and subInt16Wide process 8 elements per iteration, the width
// the Go compiler's own auto-vectorizer can pack into AVX2 registers on a
// HasAVX2 machine. This is the portable substitute for the hand-written
// archsimd kernel in simd.go (GOEXPERIMENT=simd only) and the NEON assembly
// in simd_neon.go (arm64 only).
func addInt16Wide(dst, src []int16) {
	n := len(dst) &^ 7
	for i := 0; i < n; i += 8 {
		dst[i+0] += src[i+0]
		dst[i+1] += src[i+1]
		dst[i+2] += src[i+2]
		dst[i+3] += src[i+3]
		dst[i+4] += src[i+4]
		dst[i+5] += src[i+5]
		dst[i+6] += src[i+6]
		dst[i+7] += src[i+7]
	}
	for i := n; i < len(dst); i++ {
		dst[i] += src[i]
	}
}

func subInt16Wide(dst, src []int16) {
	n := len(dst) &^ 7
	for i := 0; i < n; i += 8 {
		dst[i+0] -= src[i+0]
		dst[i+1] -= src[i+1]
		dst[i+2] -= src[i+2]
		dst[i+3] -= src[i+3]
		dst[i+4] -= src[i+4]
		dst[i+5] -= src[i+5]
		dst[i+6] -= src[i+6]
		dst[i+7] -= src[i+7]
	}
	for i := n; i < len(dst); i++ {
		dst[i] -= src[i]
	}
}

func dotProductWide(weights []int8, inputs []uint8, count int) int32 {
	var sum int32
	i := 0
	for ; i+8 <= count; i += 8 {
		sum += int32(weights[i+0]) * int32(inputs[i+0])
		sum += int32(weights[i+1]) * int32(inputs[i+1])
		sum += int32(weights[i+2]) * int32(inputs[i+2])
		sum += int32(weights[i+3]) * int32(inputs[i+3])
		sum += int32(weights[i+4]) * int32(inputs[i+4])
		sum += int32(weights[i+5]) * int32(inputs[i+5])
		sum += int32(weights[i+6]) * int32(inputs[i+6])
		sum += int32(weights[i+7]) * int32(inputs[i+7])
	}
	for ; i < count; i++ {
		sum += int32(weights[i]) * int32(inputs[i])
	}
	return sum
}
