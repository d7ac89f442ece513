// Package entropy implements the embedded block coder used for IDX2 subband
// coefficients.
//
// This includes:
// - Block quantization to a common exponent
// - A non-orthogonal integer decorrelating transform over 4^d blocks
// - Negabinary reordering by sequency
// - Bit plane coding with group testing
//
// A block holds up to 4x4x4 values. Blocks with fewer active axes (a 2D
// or 1D brick, or a thin partial block) use 16 or 4 values.
package entropy

// BlockSize is the number of samples along each axis of a block.
const BlockSize = 4

// MaxVals is the number of values in a full 3D block.
const MaxVals = BlockSize * BlockSize * BlockSize

// Block is the integer working storage of one block.
type Block [MaxVals]int64

// UBlock is a block of negabinary coded coefficients.
type UBlock [MaxVals]uint64

// NumVals returns the number of values in a block with nDims active axes.
func NumVals(nDims int) int {
	return 1 << (2 * nDims)
}

// fwdLift applies the forward 4-point lifting transform to p[0], p[s],
// p[2s] and p[3s]. The transform is
//
//	       ( 4  4  4  4) (x)
//	1/16 * ( 5  1 -1 -5) (y)
//	       (-4  4  4 -4) (z)
//	       (-2  6 -6  2) (w)
func fwdLift(p []int64, s int) {
	x, y, z, w := p[0], p[s], p[2*s], p[3*s]
	x += w
	x >>= 1
	w -= x
	z += y
	z >>= 1
	y -= z
	x += z
	x >>= 1
	z -= x
	w += y
	w >>= 1
	y -= w
	w += y >> 1
	y -= w >> 1
	p[0], p[s], p[2*s], p[3*s] = x, y, z, w
}

// invLift undoes fwdLift up to rounding in the low bit.
func invLift(p []int64, s int) {
	x, y, z, w := p[0], p[s], p[2*s], p[3*s]
	y += w >> 1
	w -= y >> 1
	y += w
	w <<= 1
	w -= y
	z += x
	x <<= 1
	x -= z
	y += z
	z <<= 1
	z -= y
	w += x
	x <<= 1
	x -= w
	p[0], p[s], p[2*s], p[3*s] = x, y, z, w
}

// ForwardXform decorrelates b along each of its nDims axes, X first.
func ForwardXform(b *Block, nDims int) {
	switch nDims {
	case 3:
		for z := 0; z < 4; z++ {
			for y := 0; y < 4; y++ {
				fwdLift(b[4*y+16*z:], 1)
			}
		}
		for x := 0; x < 4; x++ {
			for z := 0; z < 4; z++ {
				fwdLift(b[16*z+x:], 4)
			}
		}
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				fwdLift(b[x+4*y:], 16)
			}
		}
	case 2:
		for y := 0; y < 4; y++ {
			fwdLift(b[4*y:], 1)
		}
		for x := 0; x < 4; x++ {
			fwdLift(b[x:], 4)
		}
	case 1:
		fwdLift(b[:], 1)
	}
}

// InverseXform undoes ForwardXform, Z first.
func InverseXform(b *Block, nDims int) {
	switch nDims {
	case 3:
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				invLift(b[x+4*y:], 16)
			}
		}
		for x := 0; x < 4; x++ {
			for z := 0; z < 4; z++ {
				invLift(b[16*z+x:], 4)
			}
		}
		for z := 0; z < 4; z++ {
			for y := 0; y < 4; y++ {
				invLift(b[4*y+16*z:], 1)
			}
		}
	case 2:
		for x := 0; x < 4; x++ {
			invLift(b[x:], 4)
		}
		for y := 0; y < 4; y++ {
			invLift(b[4*y:], 1)
		}
	case 1:
		invLift(b[:], 1)
	}
}

func idx3(i, j, k int) uint8 { return uint8(i + 4*j + 16*k) }
func idx2(i, j int) uint8    { return uint8(i + 4*j) }

// Coefficient orders by increasing sequency.
var (
	perm3 = [64]uint8{
		idx3(0, 0, 0), idx3(1, 0, 0), idx3(0, 1, 0), idx3(0, 0, 1),
		idx3(0, 1, 1), idx3(1, 0, 1), idx3(1, 1, 0), idx3(2, 0, 0),
		idx3(0, 2, 0), idx3(0, 0, 2), idx3(1, 1, 1), idx3(2, 1, 0),
		idx3(2, 0, 1), idx3(0, 2, 1), idx3(1, 2, 0), idx3(1, 0, 2),
		idx3(0, 1, 2), idx3(3, 0, 0), idx3(0, 3, 0), idx3(0, 0, 3),
		idx3(2, 1, 1), idx3(1, 2, 1), idx3(1, 1, 2), idx3(0, 2, 2),
		idx3(2, 0, 2), idx3(2, 2, 0), idx3(3, 1, 0), idx3(3, 0, 1),
		idx3(0, 3, 1), idx3(1, 3, 0), idx3(1, 0, 3), idx3(0, 1, 3),
		idx3(1, 2, 2), idx3(2, 1, 2), idx3(2, 2, 1), idx3(3, 1, 1),
		idx3(1, 3, 1), idx3(1, 1, 3), idx3(3, 2, 0), idx3(3, 0, 2),
		idx3(0, 3, 2), idx3(2, 3, 0), idx3(2, 0, 3), idx3(0, 2, 3),
		idx3(2, 2, 2), idx3(3, 2, 1), idx3(3, 1, 2), idx3(1, 3, 2),
		idx3(2, 3, 1), idx3(2, 1, 3), idx3(1, 2, 3), idx3(0, 3, 3),
		idx3(3, 0, 3), idx3(3, 3, 0), idx3(3, 2, 2), idx3(2, 3, 2),
		idx3(2, 2, 3), idx3(1, 3, 3), idx3(3, 1, 3), idx3(3, 3, 1),
		idx3(2, 3, 3), idx3(3, 2, 3), idx3(3, 3, 2), idx3(3, 3, 3),
	}
	perm2 = [16]uint8{
		idx2(0, 0), idx2(1, 0), idx2(0, 1), idx2(1, 1),
		idx2(2, 0), idx2(0, 2), idx2(2, 1), idx2(1, 2),
		idx2(3, 0), idx2(0, 3), idx2(2, 2), idx2(3, 1),
		idx2(1, 3), idx2(3, 2), idx2(2, 3), idx2(3, 3),
	}
	perm1 = [4]uint8{0, 1, 2, 3}
	perm0 = [1]uint8{0}
)

func permFor(nDims int) []uint8 {
	switch nDims {
	case 3:
		return perm3[:]
	case 2:
		return perm2[:]
	case 1:
		return perm1[:]
	default:
		return perm0[:]
	}
}

const negabinaryMask = 0xaaaaaaaaaaaaaaaa

// ForwardShuffle reorders in by sequency and converts it to negabinary.
func ForwardShuffle(in *Block, out *UBlock, nDims int) {
	for i, p := range permFor(nDims) {
		out[i] = (uint64(in[p]) + negabinaryMask) ^ negabinaryMask
	}
}

// InverseShuffle undoes ForwardShuffle.
func InverseShuffle(in *UBlock, out *Block, nDims int) {
	for i, p := range permFor(nDims) {
		out[p] = int64((in[i] ^ negabinaryMask) - negabinaryMask)
	}
}
