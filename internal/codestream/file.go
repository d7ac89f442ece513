package codestream

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mrjoshuak/go-idx2/internal/bio"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
)

// A data file holds, front to back:
//
//	M  bit plane chunks
//	L  varbyte sizes of the bit plane chunks
//	K  int32 size of L
//	J  zstd compressed bit plane chunk addresses
//	I  int32 size of J
//	H  int32 number of bit plane chunks
//	G  exponent chunks
//	F  varbyte sizes of the exponent chunks
//	E  int32 size of F
//	D  zstd compressed exponent chunk addresses
//	C  int32 size of D
//	B  int32 number of exponent chunks
//	A  int32 byte size of G through A
//
// Both trailers are parsed backwards from the end of the file.

// Index lists the chunks of one section of a data file.
type Index struct {
	Addrs []uint64
	sizes *bio.Writer
	n     int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{sizes: bio.NewWriter(128)}
}

// Add records a chunk of size bytes at addr.
func (ix *Index) Add(addr uint64, size int) {
	ix.Addrs = append(ix.Addrs, addr)
	ix.sizes.WriteVarByte(uint64(size))
	ix.n += size
}

// Len returns the number of chunks.
func (ix *Index) Len() int { return len(ix.Addrs) }

// DataSize returns the total byte size of the indexed chunks.
func (ix *Index) DataSize() int { return ix.n }

func appendInt32(dst []byte, v int) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(int32(v)))
}

// AppendBitPlaneTrailer appends sections L through H for ix.
func AppendBitPlaneTrailer(dst []byte, ix *Index) ([]byte, error) {
	sizes := ix.sizes.Bytes()
	dst = append(dst, sizes...)
	dst = appendInt32(dst, len(sizes))
	addrs, err := CompressAddresses(ix.Addrs)
	if err != nil {
		return nil, err
	}
	dst = append(dst, addrs...)
	dst = appendInt32(dst, len(addrs))
	dst = appendInt32(dst, len(ix.Addrs))
	return dst, nil
}

// AppendExponentSection appends sections G through A. data holds the
// exponent chunks indexed by ix, concatenated.
func AppendExponentSection(dst []byte, ix *Index, data []byte) ([]byte, error) {
	start := len(dst)
	dst = append(dst, data...)
	sizes := ix.sizes.Bytes()
	dst = append(dst, sizes...)
	dst = appendInt32(dst, len(sizes))
	addrs, err := CompressAddresses(ix.Addrs)
	if err != nil {
		return nil, err
	}
	dst = append(dst, addrs...)
	dst = appendInt32(dst, len(addrs))
	dst = appendInt32(dst, len(ix.Addrs))
	total := len(dst) - start + 4
	dst = appendInt32(dst, total)
	return dst, nil
}

// ChunkTable locates the chunks of one section of a parsed data file.
type ChunkTable struct {
	Base    int64          // file offset of the first chunk
	Ends    []int64        // end offset of every chunk relative to Base
	Lookup  map[uint64]int // chunk address to position
	Addrs   []uint64
	Trailer int64 // file offset where the section's chunks end
}

// Span returns the file offset and size of the chunk at addr.
func (t *ChunkTable) Span(addr uint64) (off, size int64, ok bool) {
	i, ok := t.Lookup[addr]
	if !ok {
		return 0, 0, false
	}
	var begin int64
	if i > 0 {
		begin = t.Ends[i-1]
	}
	return t.Base + begin, t.Ends[i] - begin, true
}

// backReader reads little-endian fields backwards from an offset.
type backReader struct {
	r   io.ReaderAt
	off int64
	err error
}

func (b *backReader) bytes(n int) []byte {
	if b.err != nil {
		return nil
	}
	if n < 0 || int64(n) > b.off {
		b.err = fmt.Errorf("field of %d bytes before offset %d: %w", n, b.off, idxerr.SizeMismatched)
		return nil
	}
	b.off -= int64(n)
	p := make([]byte, n)
	if n == 0 {
		return p
	}
	if _, err := b.r.ReadAt(p, b.off); err != nil {
		b.err = fmt.Errorf("reading trailer: %w", err)
		return nil
	}
	return p
}

func (b *backReader) int32() int {
	p := b.bytes(4)
	if p == nil {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(p)))
}

func parseTable(b *backReader) (*ChunkTable, error) {
	n := b.int32()
	addrsSize := b.int32()
	cAddrs := b.bytes(addrsSize)
	sizesSize := b.int32()
	sizes := b.bytes(sizesSize)
	if b.err != nil {
		return nil, b.err
	}
	if n < 0 {
		return nil, fmt.Errorf("negative chunk count %d: %w", n, idxerr.SizeMismatched)
	}
	addrs, err := DecompressAddresses(cAddrs, n)
	if err != nil {
		return nil, err
	}
	t := &ChunkTable{
		Ends:   make([]int64, 0, n),
		Lookup: make(map[uint64]int, n),
		Addrs:  addrs,
	}
	// Chunks lie before the trailer, so no end can pass its offset.
	limit := b.off
	r := bio.NewReader(sizes)
	var acc int64
	for r.Size() < len(sizes) {
		v := r.ReadVarByte()
		if v > uint64(limit-acc) {
			return nil, fmt.Errorf("chunk %d of %d bytes ends past offset %d: %w", len(t.Ends), v, limit, idxerr.SizeMismatched)
		}
		acc += int64(v)
		t.Ends = append(t.Ends, acc)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("chunk sizes: %w", err)
	}
	if len(t.Ends) != n {
		return nil, fmt.Errorf("%d chunk sizes for %d chunks: %w", len(t.Ends), n, idxerr.SizeMismatched)
	}
	for i, a := range addrs {
		t.Lookup[a] = i
	}
	return t, nil
}

// ReadBitPlaneTable parses the bit plane trailer of a data file of the
// given size.
func ReadBitPlaneTable(r io.ReaderAt, size int64) (*ChunkTable, error) {
	b := &backReader{r: r, off: size}
	expBytes := b.int32()
	if b.err != nil {
		return nil, b.err
	}
	if expBytes < 4 || int64(expBytes) > size {
		return nil, fmt.Errorf("exponent section of %d bytes in a %d byte file: %w", expBytes, size, idxerr.SizeMismatched)
	}
	b.off = size - int64(expBytes)
	t, err := parseTable(b)
	if err != nil {
		return nil, fmt.Errorf("bit plane trailer: %w", err)
	}
	t.Base = 0
	t.Trailer = b.off
	if n := len(t.Ends); n > 0 && t.Ends[n-1] > t.Trailer {
		return nil, fmt.Errorf("bit plane chunks overrun their trailer: %w", idxerr.SizeMismatched)
	}
	return t, nil
}

// ReadExponentTable parses the exponent section of a data file of the
// given size. nSubbands is the number of subbands per level; every brick
// range stores one exponent chunk per subband.
func ReadExponentTable(r io.ReaderAt, size int64, nSubbands int) (*ChunkTable, error) {
	b := &backReader{r: r, off: size}
	expBytes := b.int32()
	if b.err != nil {
		return nil, b.err
	}
	if expBytes < 4 || int64(expBytes) > size {
		return nil, fmt.Errorf("exponent section of %d bytes in a %d byte file: %w", expBytes, size, idxerr.SizeMismatched)
	}
	t, err := parseTable(b)
	if err != nil {
		return nil, fmt.Errorf("exponent trailer: %w", err)
	}
	if nSubbands > 0 && len(t.Addrs)%nSubbands != 0 {
		return nil, fmt.Errorf("%d exponent chunks for %d subbands: %w", len(t.Addrs), nSubbands, idxerr.SizeMismatched)
	}
	t.Base = size - int64(expBytes)
	t.Trailer = b.off
	if n := len(t.Ends); n > 0 && t.Base+t.Ends[n-1] > t.Trailer {
		return nil, fmt.Errorf("exponent chunks overrun their trailer: %w", idxerr.SizeMismatched)
	}
	return t, nil
}
