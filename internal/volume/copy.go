package volume

import "math"

// forEach3 calls fn for every position of dims in X-fastest order.
func forEach3(dims V3, fn func(p V3)) {
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				fn(V3{x, y, z})
			}
		}
	}
}

// ForEach calls fn for every position of dims in X-fastest order.
func ForEach(dims V3, fn func(p V3)) { forEach3(dims, fn) }

// CopyGridExtent copies the samples of src selected by srcGrid into the
// extent dstExt of dst. Both must have the same dims.
func CopyGridExtent(srcGrid Grid, src *Buffer, dstExt Extent, dst *Buffer) {
	forEach3(srcGrid.Dims, func(p V3) {
		dst.Set(dstExt.From.Add(p), src.At(srcGrid.From.Add(p.Mul(srcGrid.Stride))))
	})
}

// CopyExtentGrid copies the extent srcExt of src onto the samples of dst
// selected by dstGrid.
func CopyExtentGrid(srcExt Extent, src *Buffer, dstGrid Grid, dst *Buffer) {
	forEach3(srcExt.Dims, func(p V3) {
		dst.Set(dstGrid.From.Add(p.Mul(dstGrid.Stride)), src.At(srcExt.From.Add(p)))
	})
}

// CopyGridGrid copies between two buffers along two grids of equal dims.
func CopyGridGrid(srcGrid Grid, src *Buffer, dstGrid Grid, dst *Buffer) {
	forEach3(srcGrid.Dims, func(p V3) {
		dst.Set(dstGrid.From.Add(p.Mul(dstGrid.Stride)), src.At(srcGrid.From.Add(p.Mul(srcGrid.Stride))))
	})
}

// CopyGridToVolume copies brick samples into a typed output volume.
func CopyGridToVolume(srcGrid Grid, src *Buffer, dstGrid Grid, dst *Volume) {
	forEach3(srcGrid.Dims, func(p V3) {
		i := dst.Index(dstGrid.From.Add(p.Mul(dstGrid.Stride)))
		dst.Set(i, src.At(srcGrid.From.Add(p.Mul(srcGrid.Stride))))
	})
}

// CopyExtentFromVolume copies the extent srcExt of a typed volume into the
// extent dstExt of a brick buffer and returns the range of copied values.
func CopyExtentFromVolume(srcExt Extent, src *Volume, dstExt Extent, dst *Buffer) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	forEach3(srcExt.Dims, func(p V3) {
		v := src.At(src.Index(srcExt.From.Add(p)))
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		dst.Set(dstExt.From.Add(p), v)
	})
	return lo, hi
}
