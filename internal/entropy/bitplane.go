package entropy

import "github.com/mrjoshuak/go-idx2/internal/bio"

// EncodeBitPlane writes bit plane b of the first nVals coefficients of
// block. n is the number of coefficients known to be significant from
// previous planes; their bits are written verbatim. The remaining bits are
// group tested: a 1 announces that another coefficient becomes significant
// and is followed by a unary run to it. n is advanced past every coefficient
// found significant.
func EncodeBitPlane(block *UBlock, nVals, b int, n *int, w *bio.Writer) {
	var x uint64
	for i := 0; i < nVals; i++ {
		x += ((block[i] >> uint(b)) & 1) << uint(i)
	}
	if p := *n; p > 0 {
		w.WriteLong(x, p)
		x >>= uint(p)
	}
	for *n < nVals {
		if !w.WriteBit(x != 0) {
			break
		}
		for *n+1 < nVals {
			if w.WriteBit(x&1 != 0) {
				break
			}
			x >>= 1
			*n++
		}
		x >>= 1
		*n++
	}
}

// DecodeBitPlane reads a plane written by EncodeBitPlane and adds its bits
// into block. With bypass set the stream is consumed but block is left
// untouched.
func DecodeBitPlane(block *UBlock, nVals, b int, n *int, r *bio.Reader, bypass bool) {
	var x uint64
	if p := *n; p > 0 {
		x = r.ReadLong(p)
	}
	for *n < nVals && r.Err() == nil {
		if !r.ReadBit() {
			break
		}
		for *n+1 < nVals {
			if r.ReadBit() || r.Err() != nil {
				break
			}
			*n++
		}
		x += 1 << uint(*n)
		*n++
	}
	if bypass {
		return
	}
	for i := 0; x != 0; i, x = i+1, x>>1 {
		block[i] += (x & 1) << uint(b)
	}
}
