// Package bio provides bit-level I/O for IDX2 chunk and exponent streams.
//
// Bits are packed least significant first: bit i of the stream is bit i%8 of
// byte i/8. Both the Writer and the Reader keep a 64-bit word in flight, so a
// single Write or Read moves at most 57 bits; the Long variants split larger
// values in two.
package bio

import (
	"encoding/binary"
	"errors"
)

// ErrOverrun is reported when a Reader consumes bits past the end of its data.
var ErrOverrun = errors.New("bio: read past end of stream")

// MaxBits is the largest count accepted by Write, Read and Peek.
const MaxBits = 57

func mask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n)) - 1
}

// Writer accumulates bits in memory.
type Writer struct {
	data []byte // committed bytes
	word uint64 // pending bits
	pos  int    // number of pending bits in word (0-63)
}

// NewWriter creates a Writer with the given initial capacity in bytes.
func NewWriter(capacity int) *Writer {
	return &Writer{data: make([]byte, 0, capacity)}
}

// Write writes the low n bits of v (0 <= n <= 57).
func (w *Writer) Write(v uint64, n int) {
	if n+w.pos >= 64 {
		w.Flush()
	}
	w.word |= (v & mask(n)) << uint(w.pos)
	w.pos += n
}

// WriteBit writes a single bit and returns it.
func (w *Writer) WriteBit(bit bool) bool {
	if bit {
		w.Write(1, 1)
	} else {
		w.Write(0, 1)
	}
	return bit
}

// WriteLong writes the low n bits of v (0 <= n <= 64).
func (w *Writer) WriteLong(v uint64, n int) {
	if n <= 32 {
		w.Write(v, n)
		return
	}
	w.Write(v, 32)
	w.Write(v>>32, n-32)
}

// Flush commits all complete bytes of the pending word.
func (w *Writer) Flush() {
	nbytes := w.pos >> 3
	for i := 0; i < nbytes; i++ {
		w.data = append(w.data, byte(w.word))
		w.word >>= 8
	}
	w.pos &= 7
}

// Align commits every pending bit and pads the last byte with zeros, so the
// next write starts on a byte boundary.
func (w *Writer) Align() {
	w.Flush()
	if w.pos > 0 {
		w.data = append(w.data, byte(w.word))
	}
	w.word = 0
	w.pos = 0
}

// WriteStream aligns w and appends the bytes of src.
func (w *Writer) WriteStream(src *Writer) {
	w.Align()
	src.Flush()
	w.data = append(w.data, src.data...)
	if src.pos > 0 {
		w.data = append(w.data, byte(src.word))
	}
}

// WriteBytes aligns w and appends p.
func (w *Writer) WriteBytes(p []byte) {
	w.Align()
	w.data = append(w.data, p...)
}

// Size returns the number of bytes written, counting a partial last byte.
func (w *Writer) Size() int {
	return len(w.data) + (w.pos+7)>>3
}

// BitSize returns the number of bits written.
func (w *Writer) BitSize() int {
	return len(w.data)*8 + w.pos
}

// Bytes returns the written bytes, including a zero-padded partial byte.
// The returned slice must not be retained across further writes.
func (w *Writer) Bytes() []byte {
	w.Flush()
	if w.pos == 0 {
		return w.data
	}
	out := make([]byte, len(w.data)+1)
	copy(out, w.data)
	out[len(w.data)] = byte(w.word)
	return out
}

// Rewind discards everything written while keeping the allocated memory.
func (w *Writer) Rewind() {
	w.data = w.data[:0]
	w.word = 0
	w.pos = 0
}

// Reader reads bits from an in-memory byte slice.
//
// Reading past the end yields zero bits and sets a sticky ErrOverrun that
// is reported by Err.
type Reader struct {
	data []byte
	ptr  int    // byte offset of word
	word uint64 // bits starting at ptr
	pos  int    // bits of word already consumed (0-64)
	err  error
}

// NewReader creates a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	r := &Reader{data: data}
	r.load()
	return r
}

func (r *Reader) load() {
	if r.ptr >= 0 && r.ptr+8 <= len(r.data) {
		r.word = binary.LittleEndian.Uint64(r.data[r.ptr:])
		return
	}
	var tmp [8]byte
	if r.ptr >= 0 && r.ptr < len(r.data) {
		copy(tmp[:], r.data[r.ptr:])
	}
	r.word = binary.LittleEndian.Uint64(tmp[:])
}

func (r *Reader) refill() {
	r.ptr += r.pos >> 3
	r.pos &= 7
	r.load()
}

func (r *Reader) check() {
	if r.err == nil && r.BitSize() > len(r.data)*8 {
		r.err = ErrOverrun
	}
}

// Peek returns the next n bits (0 <= n <= 57) without consuming them.
func (r *Reader) Peek(n int) uint64 {
	if n+r.pos > 64 {
		r.refill()
	}
	return (r.word >> uint(r.pos)) & mask(n)
}

// Read consumes n bits (0 <= n <= 57).
func (r *Reader) Read(n int) uint64 {
	if n == 0 {
		return 0
	}
	v := r.Peek(n)
	r.pos += n
	r.check()
	return v
}

// ReadBit consumes a single bit.
func (r *Reader) ReadBit() bool {
	return r.Read(1) != 0
}

// ReadLong consumes n bits (0 <= n <= 64).
func (r *Reader) ReadLong(n int) uint64 {
	if n <= 32 {
		return r.Read(n)
	}
	lo := r.Read(32)
	hi := r.Read(n - 32)
	return lo | hi<<32
}

// SeekToByte positions the reader at the first bit of byte off.
// An offset outside the data sets ErrOverrun and leaves the reader at the
// end.
func (r *Reader) SeekToByte(off int) {
	r.pos = 0
	if off < 0 || off > len(r.data) {
		r.ptr = len(r.data)
		r.word = 0
		if r.err == nil {
			r.err = ErrOverrun
		}
		return
	}
	r.ptr = off
	r.load()
}

// SeekToNextByte skips the remaining bits of a partially read byte.
func (r *Reader) SeekToNextByte() {
	r.SeekToByte(r.ptr + (r.pos+7)>>3)
}

// Size returns the number of bytes consumed, counting a partial byte.
func (r *Reader) Size() int {
	return r.ptr + (r.pos+7)>>3
}

// BitSize returns the number of bits consumed.
func (r *Reader) BitSize() int {
	return r.ptr*8 + r.pos
}

// Len returns the length of the underlying data in bytes.
func (r *Reader) Len() int {
	return len(r.data)
}

// Data returns the underlying data.
func (r *Reader) Data() []byte {
	return r.data
}

// Err returns ErrOverrun if any read went past the end of the data.
func (r *Reader) Err() error {
	return r.err
}
