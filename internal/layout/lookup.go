package layout

import (
	"fmt"
	"path/filepath"

	"github.com/mrjoshuak/go-idx2/internal/codestream"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// interleave maps a grid position to its index along the order string: the
// last character of order consumes the lowest bit of its axis and yields
// the lowest bit of the index.
func interleave(order string, p volume.V3) uint64 {
	var v uint64
	n := len(order)
	for i := n - 1; i >= 0; i-- {
		d := order[i] - 'X'
		v |= uint64(p[d]&1) << uint(n-i-1)
		p[d] >>= 1
	}
	return v
}

func deinterleave(order string, v uint64) volume.V3 {
	var p volume.V3
	n := len(order)
	for i := 0; i < n; i++ {
		d := order[i] - 'X'
		p[d] = p[d]<<1 | int(v>>uint(n-i-1)&1)
	}
	return p
}

// LinearBrick returns the index of brick b3 of level l.
func (f *File) LinearBrick(l int, b3 volume.V3) uint64 {
	return interleave(f.BricksOrderStr[l], b3)
}

// SpatialBrick undoes LinearBrick.
func (f *File) SpatialBrick(l int, brick uint64) volume.V3 {
	return deinterleave(f.BricksOrderStr[l], brick)
}

// LinearChunk returns the index of chunk c3 of level l.
func (f *File) LinearChunk(l int, c3 volume.V3) uint64 {
	return interleave(f.ChunksOrderStr[l], c3)
}

// LinearFile returns the index of file f3 of level l.
func (f *File) LinearFile(l int, f3 volume.V3) uint64 {
	return interleave(f.FilesOrderStr[l], f3)
}

// ChunkShift is the number of low brick bits dropped in chunk addresses.
func (f *File) ChunkShift(l int) int { return volume.Log2Ceil(f.BricksPerChunk[l]) }

// FileShift is the number of low brick bits dropped in file addresses.
func (f *File) FileShift(l int) int { return volume.Log2Ceil(f.BricksPerFile[l]) }

// ChunkAddress returns the address of the chunk holding brick for the given
// subband and bit plane key.
func (f *File) ChunkAddress(brick uint64, l, subband, bpKey int) uint64 {
	return codestream.Address(brick, f.ChunkShift(l), l, subband, bpKey)
}

// FileAddress returns the address of the file holding brick. Every subband
// and bit plane of a brick range share one file.
func (f *File) FileAddress(brick uint64, l int) uint64 {
	return codestream.Address(brick, f.FileShift(l), l, 0, 0)
}

// ChunkExtent returns the samples covered by the chunk at addr, cropped to
// the volume.
func (f *File) ChunkExtent(addr uint64) volume.Extent {
	level := int(addr >> 60 & 0xF)
	p := codestream.UnpackAddress(addr, f.ChunkShift(level))
	bd := f.BrickDimsAt(level)
	from := f.SpatialBrick(level, p.Brick).Mul(bd)
	e := volume.Extent{From: from, Dims: bd.Mul(f.BricksPerChunk3[level])}
	return volume.CropExtent(e, volume.NewExtent(f.Dims))
}

// FileID names a data file.
type FileID struct {
	Path string
	ID   uint64 // file address
}

// FilePath returns the data file holding brick of level l:
//
//	<Dir>/<Name>/<Field>/L<level>/B<prefix>/.../B<prefix>.bin
//
// with one B component per directory depth, each naming the leading brick
// bits consumed so far in hexadecimal.
func (f *File) FilePath(brick uint64, l int) FileID {
	elems := []string{f.Dir, f.Name, f.Field, fmt.Sprintf("L%02x", l)}
	depths := f.FilesDirsDepth[l]
	total := len(f.BricksOrderStr[l])
	shift := 0
	for _, d := range depths[:len(depths)-1] {
		shift += d
		elems = append(elems, fmt.Sprintf("B%x", brick>>uint(total-shift)))
	}
	last := len(elems) - 1
	elems[last] += ".bin"
	return FileID{Path: filepath.Join(elems...), ID: f.FileAddress(brick, l)}
}

// FilePathFromAddress returns the data file of a file address.
func (f *File) FilePathFromAddress(addr uint64) FileID {
	level := int(addr >> 60 & 0xF)
	p := codestream.UnpackAddress(addr, f.FileShift(level))
	return f.FilePath(p.Brick, level)
}

// MetaPath returns the path of the metadata file of the dataset.
func (f *File) MetaPath() string {
	return filepath.Join(f.Dir, f.Name, f.Field+".idx2")
}
