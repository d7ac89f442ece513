package entropy

import (
	"math"

	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// Precision returns the number of integer bits used for a block with nDims
// active axes. Each transform pass may grow magnitudes by one bit.
func Precision(nDims int) int {
	return 63 - nDims
}

// Quantize converts f to fixed point integers with bits of precision
// relative to the largest exponent in the block, and returns that exponent.
func Quantize(bits int, f []float64, ints []int64, t volume.DataType) int {
	var maxAbs float64
	for _, v := range f {
		maxAbs = max(maxAbs, math.Abs(v))
	}
	emax := t.Exponent(maxAbs)
	// Ldexp keeps tiny blocks finite where 2^(bits-1-emax) would overflow.
	shift := bits - 1 - emax
	for i, v := range f {
		ints[i] = int64(math.Ldexp(v, shift))
	}
	return emax
}

// Dequantize undoes Quantize.
func Dequantize(emax, bits int, ints []int64, f []float64) {
	shift := emax - (bits - 1)
	for i, v := range ints {
		f[i] = math.Ldexp(float64(v), shift)
	}
}
