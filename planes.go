package idx2

import (
	"github.com/mrjoshuak/go-idx2/internal/codestream"
	"github.com/mrjoshuak/go-idx2/internal/entropy"
	"github.com/mrjoshuak/go-idx2/internal/layout"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

const (
	nBitPlanes  = 64
	guardPlanes = 6
)

// planeRange decides, for a block with a given exponent, which bit planes
// are coded and which chunk key each lands in.
type planeRange struct {
	tolExp   int
	perChunk int
	lowest   int // lowest bit plane of the integer coefficients coded
}

func newPlaneRange(f *layout.File, tolerance float64) planeRange {
	return planeRange{
		tolExp:   volume.Float64.Exponent(tolerance),
		perChunk: f.BitPlanesPerChunk,
		lowest:   nBitPlanes - min(8*f.Type.Size(), nBitPlanes),
	}
}

// key returns the chunk key of the real bit plane realBp.
func (p planeRange) key(realBp int) int {
	return (realBp + codestream.BitPlaneKeyBias) / p.perChunk
}

// tooFine reports whether realBp lies below what the tolerance needs.
func (p planeRange) tooFine(realBp int) bool {
	return nBitPlanes-guardPlanes > realBp-p.tolExp+1
}

// stop reports whether coding ends before realBp. Coding only stops at the
// first plane of a chunk key, so every key holds whole groups of planes.
func (p planeRange) stop(realBp int) bool {
	return p.tooFine(realBp) && (realBp+codestream.BitPlaneKeyBias+1)%p.perChunk == 0
}

// block is one block of a subband: its position and dims in samples.
type block struct {
	from, dims volume.V3
}

// codedInNextLevel reports whether a block of subband sb on level l is
// carried by the parent brick instead.
func codedInNextLevel(f *layout.File, l, sb int, bd volume.V3) bool {
	return sb == 0 && l+1 < f.NLevels && bd == volume.Splat(entropy.BlockSize)
}

// blocks calls fn for every block of a subband of the given dims in Morton
// order, stopping at the first error.
func blocks(sbDims volume.V3, fn func(b block) error) error {
	bs := volume.Splat(entropy.BlockSize)
	n := sbDims.CeilDiv(bs)
	if n.MinElem() < 1 {
		return nil
	}
	last := volume.EncodeMorton3(n.AddN(-1))
	for z := uint32(0); z <= last; z++ {
		b3 := volume.DecodeMorton3(z)
		if !b3.Less(n) {
			continue
		}
		from := b3.Mul(bs)
		if err := fn(block{from: from, dims: volume.Min3(bs, sbDims.Sub(from))}); err != nil {
			return err
		}
	}
	return nil
}

// blockCount returns the number of coded blocks of subband sb on level l.
func blockCount(f *layout.File, l, sb int, sbDims volume.V3) int {
	bs := volume.Splat(entropy.BlockSize)
	n := sbDims.CeilDiv(bs).Prod()
	if sb == 0 && l+1 < f.NLevels {
		n -= sbDims.Div(bs).Prod()
	}
	return n
}

// expBits is the width of a stored block exponent.
func expBits(t volume.DataType) int {
	if t == volume.Float64 {
		return 16
	}
	return 8
}
