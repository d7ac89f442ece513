package codestream

import (
	"fmt"
	"sort"

	"github.com/mrjoshuak/go-idx2/internal/bio"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
)

// ChunkBuilder accumulates the bricks of one bit plane chunk.
//
// The chunk payload is:
//
//	varbyte  number of bricks
//	varbyte  first brick, then unary (brick - previous - 1) per later brick
//	varbyte  byte size of every brick payload (byte aligned)
//	bytes    brick payloads (each byte aligned)
type ChunkBuilder struct {
	deltas *bio.Writer
	sizes  *bio.Writer
	bricks *bio.Writer

	NBricks   int
	LastBrick uint64
}

// NewChunkBuilder creates an empty builder.
func NewChunkBuilder() *ChunkBuilder {
	return &ChunkBuilder{
		deltas: bio.NewWriter(64),
		sizes:  bio.NewWriter(64),
		bricks: bio.NewWriter(1024),
	}
}

// Add appends the payload of brick. Bricks must be added in increasing
// order.
func (c *ChunkBuilder) Add(brick uint64, payload *bio.Writer) {
	if c.NBricks == 0 {
		c.deltas.WriteVarByte(brick)
	} else {
		c.deltas.WriteUnary(uint32(brick - c.LastBrick - 1))
	}
	c.sizes.WriteVarByte(uint64(payload.Size()))
	c.bricks.WriteStream(payload)
	c.NBricks++
	c.LastBrick = brick
}

// Size returns an upper bound of the assembled chunk size in bytes.
func (c *ChunkBuilder) Size() int {
	return c.deltas.Size() + c.sizes.Size() + c.bricks.Size() + 10
}

// AppendTo writes the chunk payload to w and resets the builder for the
// next chunk. LastBrick is kept.
func (c *ChunkBuilder) AppendTo(w *bio.Writer) {
	w.WriteVarByte(uint64(c.NBricks))
	w.WriteStream(c.deltas)
	w.WriteStream(c.sizes)
	w.WriteStream(c.bricks)
	w.Align()
	c.Reset()
}

// Reset drops every brick added so far.
func (c *ChunkBuilder) Reset() {
	c.deltas.Rewind()
	c.sizes.Rewind()
	c.bricks.Rewind()
	c.NBricks = 0
}

// Chunk is a parsed bit plane chunk.
type Chunk struct {
	Bricks  []uint64 // increasing
	Offsets []int    // byte offset of every brick payload in Data
	Data    []byte
}

// ParseChunk parses a chunk payload.
func ParseChunk(data []byte) (*Chunk, error) {
	r := bio.NewReader(data)
	n := int(r.ReadVarByte())
	if n <= 0 || n > len(data) {
		return nil, fmt.Errorf("chunk with %d bricks: %w", n, idxerr.SizeMismatched)
	}
	c := &Chunk{Bricks: make([]uint64, n), Offsets: make([]int, n), Data: data}
	brick := r.ReadVarByte()
	c.Bricks[0] = brick
	for i := 1; i < n; i++ {
		brick += uint64(r.ReadUnary()) + 1
		c.Bricks[i] = brick
	}
	r.SeekToNextByte()
	size := func() (int, error) {
		v := r.ReadVarByte()
		if v > uint64(len(data)) {
			return 0, fmt.Errorf("brick payload of %d bytes in a %d byte chunk: %w", v, len(data), idxerr.SizeMismatched)
		}
		return int(v), nil
	}
	total := 0
	for i := 1; i < n; i++ {
		v, err := size()
		if err != nil {
			return nil, err
		}
		total += v
		c.Offsets[i] = total
	}
	last, err := size()
	if err != nil {
		return nil, err
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("parsing chunk header: %w", err)
	}
	base := r.Size()
	if base+total+last > len(data) {
		return nil, fmt.Errorf("chunk payload of %d bytes exceeds %d: %w", base+total+last, len(data), idxerr.SizeMismatched)
	}
	for i := range c.Offsets {
		c.Offsets[i] += base
	}
	return c, nil
}

// Find returns the payload offset of brick.
func (c *Chunk) Find(brick uint64) (int, bool) {
	i := sort.Search(len(c.Bricks), func(i int) bool { return c.Bricks[i] >= brick })
	if i == len(c.Bricks) || c.Bricks[i] != brick {
		return 0, false
	}
	return c.Offsets[i], true
}

// Reader returns a bit reader positioned at the payload of brick.
func (c *Chunk) Reader(brick uint64) (*bio.Reader, error) {
	off, ok := c.Find(brick)
	if !ok {
		return nil, fmt.Errorf("brick %d: %w", brick, idxerr.BrickNotFound)
	}
	r := bio.NewReader(c.Data)
	r.SeekToByte(off)
	return r, nil
}
