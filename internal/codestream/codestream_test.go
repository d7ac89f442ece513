package codestream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-idx2/internal/bio"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
)

func TestAddress_RoundTrip(t *testing.T) {
	tests := []struct {
		name                       string
		brick                      uint64
		shift, level, sb, bitPlane int
	}{
		{"zero", 0, 0, 0, 0, 0},
		{"positive bit plane", 1 << 20, 3, 2, 7, 1000},
		{"negative bit plane", 96, 5, 1, 63, -3},
		{"exponent", 4096, 12, 15, 0, ExponentBitPlane},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Address(tt.brick, tt.shift, tt.level, tt.sb, tt.bitPlane)
			p := UnpackAddress(a, tt.shift)
			want := tt.brick >> uint(tt.shift) << uint(tt.shift)
			assert.Equal(t, want, p.Brick)
			assert.Equal(t, tt.level, p.Level)
			assert.Equal(t, tt.sb, p.Subband)
			assert.Equal(t, tt.bitPlane, p.BitPlane)
		})
	}
}

func TestAddress_ShiftGroupsBricks(t *testing.T) {
	a := Address(0b101101, 3, 0, 0, 0)
	b := Address(0b101000, 3, 0, 0, 0)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Address(0b110000, 3, 0, 0, 0))
}

func TestBrickKey(t *testing.T) {
	k := BrickKey(3, 12345)
	assert.Equal(t, uint64(12345), BrickFromKey(k))
	assert.Equal(t, 3, LevelFromKey(k))
}

func TestChannelKey(t *testing.T) {
	k := ChannelKey(1030, 2, 13)
	bp, l, sb := SplitChannelKey(k)
	assert.Equal(t, 1030, bp)
	assert.Equal(t, 2, l)
	assert.Equal(t, 13, sb)

	// Higher bit plane keys sort after any level or subband of lower ones.
	assert.Less(t, ChannelKey(1000, 15, 63), ChannelKey(1001, 0, 0))
}

func TestZstd_RoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("idx2 bit plane "), 200)
	c, err := Compress(src)
	require.NoError(t, err)
	assert.Less(t, len(c), len(src))
	out, err := Decompress(c)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestZstd_Empty(t *testing.T) {
	c, err := Compress(nil)
	require.NoError(t, err)
	out, err := Decompress(c)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestZstd_Garbage(t *testing.T) {
	_, err := Decompress([]byte{1, 2, 3, 4, 5})
	assert.Error(t, err)
}

func TestAddresses_CountMismatch(t *testing.T) {
	c, err := CompressAddresses([]uint64{1, 2, 3})
	require.NoError(t, err)
	addrs, err := DecompressAddresses(c, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, addrs)

	_, err = DecompressAddresses(c, 4)
	assert.ErrorIs(t, err, idxerr.SizeMismatched)
}

func brickPayload(seed byte, nbits int) *bio.Writer {
	w := bio.NewWriter(16)
	for i := 0; i < nbits; i++ {
		w.Write(uint64(seed>>uint(i%8))&1, 1)
	}
	return w
}

func TestChunk_RoundTrip(t *testing.T) {
	bricks := []uint64{5, 6, 9, 40, 41}
	payloads := map[uint64][]byte{}
	cb := NewChunkBuilder()
	for i, b := range bricks {
		p := brickPayload(byte(0xA5+i), 3+7*i)
		payloads[b] = append([]byte(nil), p.Bytes()...)
		cb.Add(b, p)
	}
	assert.Equal(t, 5, cb.NBricks)
	w := bio.NewWriter(64)
	cb.AppendTo(w)
	assert.Equal(t, 0, cb.NBricks)
	assert.Equal(t, uint64(41), cb.LastBrick)

	c, err := ParseChunk(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, bricks, c.Bricks)
	for _, b := range bricks {
		r, err := c.Reader(b)
		require.NoError(t, err)
		want := payloads[b]
		for _, x := range want {
			assert.Equal(t, uint64(x), r.Read(8))
		}
		require.NoError(t, r.Err())
	}

	_, err = c.Reader(7)
	assert.ErrorIs(t, err, idxerr.BrickNotFound)
}

func TestChunk_SingleBrick(t *testing.T) {
	cb := NewChunkBuilder()
	cb.Add(1<<30, brickPayload(0xFF, 20))
	w := bio.NewWriter(16)
	cb.AppendTo(w)
	c, err := ParseChunk(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1 << 30}, c.Bricks)
	off, ok := c.Find(1 << 30)
	assert.True(t, ok)
	assert.Equal(t, len(w.Bytes())-3, off)
}

func TestParseChunk_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"zero bricks", []byte{0}},
		{"count larger than data", []byte{0x7F, 1}},
		{"truncated payload", []byte{1, 0, 50, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChunk(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestParseChunk_OversizedBrick(t *testing.T) {
	// Two bricks, the first declaring a payload of 2^64-255 bytes, which
	// wraps to a negative int.
	w := bio.NewWriter(32)
	w.WriteVarByte(2)
	w.WriteVarByte(0)
	w.WriteUnary(0)
	w.Align()
	w.WriteVarByte(^uint64(0) - 254)
	w.WriteVarByte(1)
	w.Write(0xAA, 8)
	w.Write(0xBB, 8)
	_, err := ParseChunk(w.Bytes())
	assert.ErrorIs(t, err, idxerr.SizeMismatched)
}

// buildFile assembles a data file holding the given bit plane and exponent
// chunks.
func buildFile(t *testing.T, bp, exp map[uint64][]byte, order []uint64, expOrder []uint64) []byte {
	t.Helper()
	var file []byte
	bix := NewIndex()
	for _, a := range order {
		file = append(file, bp[a]...)
		bix.Add(a, len(bp[a]))
	}
	file, err := AppendBitPlaneTrailer(file, bix)
	require.NoError(t, err)
	eix := NewIndex()
	var expData []byte
	for _, a := range expOrder {
		expData = append(expData, exp[a]...)
		eix.Add(a, len(exp[a]))
	}
	file, err = AppendExponentSection(file, eix, expData)
	require.NoError(t, err)
	return file
}

func TestTrailers_RoundTrip(t *testing.T) {
	bp := map[uint64][]byte{
		Address(0, 0, 0, 1, 1030): []byte("first chunk"),
		Address(0, 0, 0, 2, 1030): []byte("second"),
		Address(0, 0, 0, 1, 1029): bytes.Repeat([]byte{7}, 300),
	}
	order := []uint64{Address(0, 0, 0, 1, 1030), Address(0, 0, 0, 2, 1030), Address(0, 0, 0, 1, 1029)}
	exp := map[uint64][]byte{
		Address(0, 0, 0, 0, ExponentBitPlane): []byte("e0"),
		Address(0, 0, 0, 1, ExponentBitPlane): []byte("exp1"),
	}
	expOrder := []uint64{Address(0, 0, 0, 0, ExponentBitPlane), Address(0, 0, 0, 1, ExponentBitPlane)}
	file := buildFile(t, bp, exp, order, expOrder)
	r := bytes.NewReader(file)

	bt, err := ReadBitPlaneTable(r, int64(len(file)))
	require.NoError(t, err)
	assert.Equal(t, order, bt.Addrs)
	for a, want := range bp {
		off, size, ok := bt.Span(a)
		require.True(t, ok)
		assert.Equal(t, want, file[off:off+size])
	}
	_, _, ok := bt.Span(12345)
	assert.False(t, ok)

	et, err := ReadExponentTable(r, int64(len(file)), 2)
	require.NoError(t, err)
	assert.Equal(t, expOrder, et.Addrs)
	for a, want := range exp {
		off, size, ok := et.Span(a)
		require.True(t, ok)
		assert.Equal(t, want, file[off:off+size])
	}
}

func TestTrailers_ExponentsOnly(t *testing.T) {
	exp := map[uint64][]byte{1: []byte("only exponents")}
	file := buildFile(t, nil, exp, nil, []uint64{1})
	r := bytes.NewReader(file)

	bt, err := ReadBitPlaneTable(r, int64(len(file)))
	require.NoError(t, err)
	assert.Empty(t, bt.Addrs)

	et, err := ReadExponentTable(r, int64(len(file)), 1)
	require.NoError(t, err)
	off, size, ok := et.Span(1)
	require.True(t, ok)
	assert.Equal(t, "only exponents", string(file[off:off+size]))
}

func TestTrailers_SizeMismatched(t *testing.T) {
	// Four chunks declared but three addresses stored.
	ix := NewIndex()
	for i := 0; i < 3; i++ {
		ix.Add(uint64(i), 1)
	}
	file := []byte{1, 2, 3}
	file, err := AppendBitPlaneTrailer(file, ix)
	require.NoError(t, err)
	file[len(file)-4] = 4
	file, err = AppendExponentSection(file, NewIndex(), nil)
	require.NoError(t, err)

	_, err = ReadBitPlaneTable(bytes.NewReader(file), int64(len(file)))
	assert.ErrorIs(t, err, idxerr.SizeMismatched)
}

func TestTrailers_ExponentSubbandMismatch(t *testing.T) {
	exp := map[uint64][]byte{1: {1}, 2: {2}, 3: {3}}
	file := buildFile(t, nil, exp, nil, []uint64{1, 2, 3})
	_, err := ReadExponentTable(bytes.NewReader(file), int64(len(file)), 2)
	assert.ErrorIs(t, err, idxerr.SizeMismatched)
}

func TestTrailers_Truncated(t *testing.T) {
	file := buildFile(t, map[uint64][]byte{1: {9}}, map[uint64][]byte{2: {8}}, []uint64{1}, []uint64{2})
	for _, n := range []int{0, 3, 4, 10} {
		_, err := ReadBitPlaneTable(bytes.NewReader(file[:n]), int64(n))
		assert.Error(t, err, "size %d", n)
	}
}

var errDisk = errors.New("disk failure")

// errorReaderAt fails every read.
type errorReaderAt struct{}

func (errorReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 0, errDisk
}

func TestTrailers_ReadError(t *testing.T) {
	_, err := ReadBitPlaneTable(errorReaderAt{}, 100)
	assert.ErrorIs(t, err, errDisk)
	_, err = ReadExponentTable(errorReaderAt{}, 100, 1)
	assert.ErrorIs(t, err, errDisk)
}

func TestTrailers_WrappingChunkSize(t *testing.T) {
	// Sizes 10, 2^64-5, 10 sum to 15 but the middle one is not a size.
	ix := NewIndex()
	ix.Add(1, 10)
	ix.Add(2, -5)
	ix.Add(3, 10)
	file, err := AppendBitPlaneTrailer(make([]byte, 15), ix)
	require.NoError(t, err)
	file, err = AppendExponentSection(file, NewIndex(), nil)
	require.NoError(t, err)

	_, err = ReadBitPlaneTable(bytes.NewReader(file), int64(len(file)))
	assert.ErrorIs(t, err, idxerr.SizeMismatched)
}

func TestTrailers_ChunkPastTrailer(t *testing.T) {
	ix := NewIndex()
	ix.Add(1, 4)
	ix.Add(2, 1000)
	file, err := AppendBitPlaneTrailer(make([]byte, 8), ix)
	require.NoError(t, err)
	file, err = AppendExponentSection(file, NewIndex(), nil)
	require.NoError(t, err)

	_, err = ReadBitPlaneTable(bytes.NewReader(file), int64(len(file)))
	assert.ErrorIs(t, err, idxerr.SizeMismatched)
}
