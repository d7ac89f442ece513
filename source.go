package idx2

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// BrickSource provides the samples of a volume to Encode.
type BrickSource interface {
	// Dims returns the size of the volume.
	Dims() V3

	// ReadExtent copies the samples of ext into dst starting at dstFrom,
	// X fastest, and returns their smallest and largest value.
	ReadExtent(ext Extent, dst *Buffer, dstFrom V3) (lo, hi float64, err error)
}

// VolumeSource serves an in-memory volume.
type VolumeSource struct {
	vol *Volume
}

// NewVolumeSource returns a source reading from v.
func NewVolumeSource(v *Volume) *VolumeSource {
	return &VolumeSource{vol: v}
}

// Dims returns the dims of the volume.
func (s *VolumeSource) Dims() V3 { return s.vol.Dims }

// ReadExtent implements BrickSource.
func (s *VolumeSource) ReadExtent(ext Extent, dst *Buffer, dstFrom V3) (float64, float64, error) {
	lo, hi := volume.CopyExtentFromVolume(ext, s.vol, Extent{From: dstFrom, Dims: ext.Dims}, dst)
	return lo, hi, nil
}

// RawSource serves a raw file of little-endian samples, X fastest, such
// as the ones written by Decode in RegularGridFile mode.
type RawSource struct {
	r    io.ReaderAt
	dims V3
	typ  DataType
	c    io.Closer
	row  []byte
}

// NewRawSource returns a source reading samples of type t from r.
func NewRawSource(r io.ReaderAt, dims V3, t DataType) *RawSource {
	return &RawSource{r: r, dims: dims, typ: t}
}

// OpenRawFile opens a raw file holding a volume of the given dims and type.
// The file size must match exactly.
func OpenRawFile(path string, dims V3, t DataType) (*RawSource, error) {
	fp, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, idxerr.FileNotFound)
		}
		return nil, fmt.Errorf("opening raw file: %w", err)
	}
	st, err := fp.Stat()
	if err != nil {
		fp.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if want := int64(dims.Prod()) * int64(t.Size()); st.Size() != want {
		fp.Close()
		return nil, fmt.Errorf("%s holds %d bytes, dims %v of %s need %d: %w",
			path, st.Size(), dims, t, want, idxerr.SizeMismatched)
	}
	s := NewRawSource(fp, dims, t)
	s.c = fp
	return s, nil
}

// Dims returns the dims of the volume.
func (s *RawSource) Dims() V3 { return s.dims }

// Close closes the underlying file, if the source owns one.
func (s *RawSource) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

// ReadExtent implements BrickSource. Samples are read one X row at a time.
func (s *RawSource) ReadExtent(ext Extent, dst *Buffer, dstFrom V3) (float64, float64, error) {
	size := s.typ.Size()
	n := ext.Dims[0] * size
	if cap(s.row) < n {
		s.row = make([]byte, n)
	}
	row := s.row[:n]
	lo, hi := math.Inf(1), math.Inf(-1)
	for z := 0; z < ext.Dims[2]; z++ {
		for y := 0; y < ext.Dims[1]; y++ {
			p := ext.From.Add(V3{0, y, z})
			off := int64((p[2]*s.dims[1]+p[1])*s.dims[0]+p[0]) * int64(size)
			if _, err := s.r.ReadAt(row, off); err != nil {
				return 0, 0, fmt.Errorf("reading row %v: %w", p, err)
			}
			q := dstFrom.Add(V3{0, y, z})
			i := dst.Index(q)
			for x := 0; x < ext.Dims[0]; x++ {
				var v float64
				if s.typ == Float32 {
					v = float64(math.Float32frombits(binary.LittleEndian.Uint32(row[x*4:])))
				} else {
					v = math.Float64frombits(binary.LittleEndian.Uint64(row[x*8:]))
				}
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
				dst.Data[i+x] = v
			}
		}
	}
	return lo, hi, nil
}
