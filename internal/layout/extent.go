package layout

import "github.com/mrjoshuak/go-idx2/internal/volume"

// Extents are the bricks, chunks and files of one level touched by a
// request, and those of the whole volume, in units of each.
type Extents struct {
	Bricks, Chunks, Files          volume.Extent
	VolBricks, VolChunks, VolFiles volume.Extent
}

func unitExtent(e volume.Extent, unit volume.V3) volume.Extent {
	first := e.From.Div(unit)
	last := e.Last().Div(unit)
	return volume.Extent{From: first, Dims: last.Sub(first).AddN(1)}
}

// TraversalExtents computes the extents of level l covered by ext, given in
// samples. ext must not be empty.
func (f *File) TraversalExtents(ext volume.Extent, l int) Extents {
	b3 := f.BrickDimsAt(l)
	c3 := b3.Mul(f.BricksPerChunk3[l])
	f3 := c3.Mul(f.ChunksPerFile3[l])
	vol := volume.NewExtent(f.Dims)
	return Extents{
		Bricks:    unitExtent(ext, b3),
		Chunks:    unitExtent(ext, c3),
		Files:     unitExtent(ext, f3),
		VolBricks: unitExtent(vol, b3),
		VolChunks: unitExtent(vol, c3),
		VolFiles:  unitExtent(vol, f3),
	}
}

// OutputGrid returns the grid of samples a decode of ext produces: ext is
// cropped to the volume and both ends are moved down to multiples of the
// downsampling stride. The grid is empty when ext misses the volume.
func (f *File) OutputGrid(ext volume.Extent) volume.Grid {
	c := volume.CropExtent(ext, volume.NewExtent(f.Dims))
	var stride volume.V3
	for d := range stride {
		stride[d] = 1 << uint(f.Downsampling[d])
	}
	if c.Dims.Prod() <= 0 {
		return volume.Grid{From: c.From, Stride: stride}
	}
	first := c.From.Div(stride).Mul(stride)
	last := c.Last().Div(stride).Mul(stride)
	return volume.Grid{From: first, Dims: last.Sub(first).Div(stride).AddN(1), Stride: stride}
}
