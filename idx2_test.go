package idx2

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-idx2/internal/idxerr"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func smooth(p V3) float64 {
	x, y, z := float64(p[0]), float64(p[1]), float64(p[2])
	return math.Sin(x/5) + math.Cos(y/7)*2 + z/10
}

func ramp(p V3) float64 {
	return float64(p[0]) + 2*float64(p[1]) + 3*float64(p[2])
}

func makeVolume(dims V3, t DataType, fn func(V3) float64) *Volume {
	v := NewVolume(dims, t)
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				p := V3{x, y, z}
				v.Set(v.Index(p), fn(p))
			}
		}
	}
	return v
}

func testOptions(dir string, t DataType) *Options {
	opts := DefaultOptions()
	opts.Name = "test"
	opts.Field = "field"
	opts.OutDir = dir
	opts.Type = t
	opts.BrickDims = V3{32, 32, 32}
	opts.NLevels = 2
	opts.Logger = quiet
	return opts
}

func encodeDataset(t *testing.T, opts *Options, vol *Volume) *Dataset {
	t.Helper()
	_, err := Encode(context.Background(), opts, NewVolumeSource(vol))
	require.NoError(t, err)
	ds, err := Open(filepath.Join(opts.OutDir, opts.Name, opts.Field+".idx2"))
	require.NoError(t, err)
	return ds
}

func memOptions() *DecodeOptions {
	opts := DefaultDecodeOptions()
	opts.OutputMode = RegularGridMem
	opts.Logger = quiet
	return opts
}

func maxError(t *testing.T, got *Volume, origin, stride V3, fn func(V3) float64) float64 {
	t.Helper()
	var worst float64
	for z := 0; z < got.Dims[2]; z++ {
		for y := 0; y < got.Dims[1]; y++ {
			for x := 0; x < got.Dims[0]; x++ {
				q := V3{x, y, z}
				want := fn(origin.Add(q.Mul(stride)))
				worst = math.Max(worst, math.Abs(got.At(got.Index(q))-want))
			}
		}
	}
	return worst
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, V3{32, 32, 32}, opts.BrickDims)
	assert.Equal(t, Float32, opts.Type)
	assert.Equal(t, 4096, opts.BricksPerChunk)
	assert.Equal(t, 64, opts.ChunksPerFile)
	assert.Equal(t, [2]int{1, 0}, opts.Version)
	assert.Equal(t, RegularGridMem, DefaultDecodeOptions().OutputMode)
}

func TestOutputMode_String(t *testing.T) {
	tests := []struct {
		mode OutputMode
		want string
	}{
		{RegularGridFile, "RegularGridFile"},
		{RegularGridMem, "RegularGridMem"},
		{HashMap, "HashMap"},
		{NoOutput, "NoOutput"},
		{OutputMode(42), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.mode.String())
	}
}

func TestRoundtrip(t *testing.T) {
	tests := []struct {
		name  string
		typ   DataType
		dims  V3
		brick V3
		delta float64
	}{
		{"float32", Float32, V3{64, 64, 64}, V3{32, 32, 32}, 1e-3},
		{"float64", Float64, V3{64, 64, 64}, V3{32, 32, 32}, 1e-9},
		{"partial bricks", Float64, V3{40, 36, 20}, V3{16, 16, 16}, 1e-9},
		{"2D", Float32, V3{64, 64, 1}, V3{32, 32, 1}, 1e-3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t.TempDir(), tt.typ)
			opts.BrickDims = tt.brick
			vol := makeVolume(tt.dims, tt.typ, smooth)
			ds := encodeDataset(t, opts, vol)
			assert.Equal(t, tt.dims, ds.Dims())
			assert.Equal(t, 2, ds.NLevels())

			res, err := Decode(context.Background(), ds, memOptions())
			require.NoError(t, err)
			require.Equal(t, tt.dims, res.Volume.Dims)
			assert.Less(t, maxError(t, res.Volume, V3{}, V3{1, 1, 1}, smooth), tt.delta)
		})
	}
}

func TestEncode_ValueRange(t *testing.T) {
	dir := t.TempDir()
	vol := makeVolume(V3{64, 64, 64}, Float64, ramp)
	stats, err := Encode(context.Background(), testOptions(dir, Float64), NewVolumeSource(vol))
	require.NoError(t, err)
	assert.Equal(t, [2]float64{0, 63 * 6}, stats.ValueRange)
	assert.Equal(t, 8+1, stats.Bricks)
	assert.Positive(t, stats.Chunks)
	assert.Positive(t, stats.ExponentChunks)
	assert.Positive(t, stats.Files)
	assert.Greater(t, stats.FileBytes, stats.ChunkBytes)

	ds, err := Open(filepath.Join(dir, "test", "field.idx2"))
	require.NoError(t, err)
	assert.Equal(t, [2]float64{0, 63 * 6}, ds.ValueRange())
}

func TestEncode_Errors(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float32, ramp)
	tests := []struct {
		name   string
		mutate func(o *Options)
		want   error
	}{
		{"no name", func(o *Options) { o.Name = "" }, idxerr.InvalidArgument},
		{"quote in name", func(o *Options) { o.Name = `a") (field "b` }, idxerr.InvalidArgument},
		{"newline in field", func(o *Options) { o.Field = "a\n)" }, idxerr.InvalidArgument},
		{"brick not a power of two", func(o *Options) { o.BrickDims = V3{24, 32, 32} }, idxerr.BrickSizeNotPowerOfTwo},
		{"brick too big", func(o *Options) { o.BrickDims = V3{128, 32, 32} }, idxerr.BrickSizeTooBig},
		{"version", func(o *Options) { o.Version = [2]int{2, 0} }, idxerr.NotSupportedInVersion},
		{"dims mismatch", func(o *Options) { o.Dims = V3{32, 32, 32} }, idxerr.SizeMismatched},
		{"bricks per chunk", func(o *Options) { o.BricksPerChunk = 3 }, idxerr.BricksPerChunkNotPowerOf2},
		{"negative tolerance", func(o *Options) { o.Tolerance = -1 }, idxerr.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			opts := testOptions(dir, Float32)
			tt.mutate(opts)
			_, err := Encode(context.Background(), opts, NewVolumeSource(vol))
			require.ErrorIs(t, err, tt.want)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing is written on a configuration error")
		})
	}
}

func TestEncode_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	vol := makeVolume(V3{64, 64, 64}, Float32, ramp)
	_, err := Encode(ctx, testOptions(t.TempDir(), Float32), NewVolumeSource(vol))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecode_Downsampling(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float64, ramp)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float64), vol)

	opts := memOptions()
	opts.Downsampling = V3{1, 1, 1}
	res, err := Decode(context.Background(), ds, opts)
	require.NoError(t, err)
	assert.Equal(t, V3{32, 32, 32}, res.Grid.Dims)
	assert.Equal(t, V3{2, 2, 2}, res.Grid.Stride)
	require.Equal(t, V3{32, 32, 32}, res.Volume.Dims)
	assert.Less(t, maxError(t, res.Volume, V3{}, V3{2, 2, 2}, ramp), 1e-6)

	full, err := Decode(context.Background(), ds, memOptions())
	require.NoError(t, err)
	assert.Less(t, res.Stats.Bricks, full.Stats.Bricks)
	assert.Less(t, res.Stats.Bytes, full.Stats.Bytes)
}

func TestDecode_Extent(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float64, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float64), vol)

	ext := Extent{From: V3{10, 20, 5}, Dims: V3{30, 17, 40}}
	opts := memOptions()
	opts.Extent = &ext
	res, err := Decode(context.Background(), ds, opts)
	require.NoError(t, err)
	assert.Equal(t, ext.From, res.Grid.From)
	require.Equal(t, ext.Dims, res.Volume.Dims)
	assert.Less(t, maxError(t, res.Volume, ext.From, V3{1, 1, 1}, smooth), 1e-9)
}

func TestDecode_ExtentCroppedToVolume(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float32, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float32), vol)

	ext := Extent{From: V3{48, 48, 48}, Dims: V3{100, 100, 100}}
	opts := memOptions()
	opts.Extent = &ext
	res, err := Decode(context.Background(), ds, opts)
	require.NoError(t, err)
	assert.Equal(t, V3{16, 16, 16}, res.Volume.Dims)
}

func TestDecode_OutOfRangeExtent(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float32, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float32), vol)

	ext := Extent{From: V3{100, 100, 100}, Dims: V3{10, 10, 10}}
	opts := memOptions()
	opts.Extent = &ext
	opts.InDir = filepath.Join(t.TempDir(), "missing")
	res, err := Decode(context.Background(), ds, opts)
	require.NoError(t, err)
	assert.Zero(t, res.Grid.Size())
	assert.Zero(t, res.Volume.Len())
	assert.Zero(t, res.Stats.Chunks)
}

func TestDecode_MissingFiles(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float32, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float32), vol)

	opts := memOptions()
	opts.InDir = t.TempDir()
	_, err := Decode(context.Background(), ds, opts)
	require.ErrorIs(t, err, idxerr.FileNotFound)
}

func TestDecode_InvalidOptions(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float32, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float32), vol)

	opts := memOptions()
	opts.Downsampling = V3{-1, 0, 0}
	_, err := Decode(context.Background(), ds, opts)
	require.ErrorIs(t, err, idxerr.InvalidArgument)

	opts = memOptions()
	opts.OutputMode = OutputMode(9)
	_, err = Decode(context.Background(), ds, opts)
	require.ErrorIs(t, err, idxerr.InvalidArgument)
}

func TestDecode_Tolerance(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float64, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float64), vol)

	var prevChunks int64 = math.MaxInt64
	for _, tol := range []float64{0, 1e-6, 1e-2} {
		opts := memOptions()
		opts.Tolerance = tol
		res, err := Decode(context.Background(), ds, opts)
		require.NoError(t, err)
		e := maxError(t, res.Volume, V3{}, V3{1, 1, 1}, smooth)
		assert.LessOrEqual(t, res.Stats.Chunks, prevChunks, "tolerance %g", tol)
		assert.Less(t, e, 0.1, "tolerance %g", tol)
		prevChunks = res.Stats.Chunks
	}
}

func TestDecode_Canceled(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float32, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float32), vol)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Decode(ctx, ds, memOptions())
	require.ErrorIs(t, err, context.Canceled)
	_, err = ParallelDecode(ctx, ds, memOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestParallelDecode_MatchesDecode(t *testing.T) {
	opts := testOptions(t.TempDir(), Float64)
	opts.BrickDims = V3{16, 16, 16}
	opts.NLevels = 3
	vol := makeVolume(V3{64, 48, 40}, Float64, smooth)
	ds := encodeDataset(t, opts, vol)

	for _, ds3 := range []V3{{0, 0, 0}, {1, 1, 1}, {1, 0, 2}} {
		dopts := memOptions()
		dopts.Downsampling = ds3
		seq, err := Decode(context.Background(), ds, dopts)
		require.NoError(t, err)
		dopts.Workers = 3
		par, err := ParallelDecode(context.Background(), ds, dopts)
		require.NoError(t, err)
		assert.Equal(t, seq.Grid, par.Grid, "downsampling %v", ds3)
		assert.Equal(t, seq.Volume.F64, par.Volume.F64, "downsampling %v", ds3)
		assert.Equal(t, seq.Stats.Bricks, par.Stats.Bricks, "downsampling %v", ds3)
	}
}

func TestDecode_HashMap(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float64, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float64), vol)

	dump := filepath.Join(t.TempDir(), "bricks.bin")
	opts := memOptions()
	opts.OutputMode = HashMap
	opts.BrickDump = dump
	res, err := Decode(context.Background(), ds, opts)
	require.NoError(t, err)
	require.NotNil(t, res.Bricks)
	assert.Nil(t, res.Volume)

	stats := res.Bricks.Statistics()
	require.Len(t, stats, 2)
	assert.Equal(t, 8, stats[0].Significant)
	assert.Equal(t, 1, stats[1].Significant)
	assert.Equal(t, 9, res.Bricks.Len())

	buf, local, err := res.Bricks.Brick(V3{1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, V3{33, 33, 33}, local.Dims)
	assert.InDelta(t, smooth(V3{32 + 3, 4, 32 + 5}), buf.At(V3{3, 4, 5}), 1e-9)

	st, err := os.Stat(dump)
	require.NoError(t, err)
	assert.Equal(t, int64(36+8*(24+33*33*33*8)), st.Size())

	par, err := ParallelDecode(context.Background(), ds, opts)
	require.NoError(t, err)
	assert.Equal(t, res.Bricks.Len(), par.Bricks.Len())
}

func TestDecode_RegularGridFile(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float32, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float32), vol)

	opts := memOptions()
	opts.OutputMode = RegularGridFile
	opts.OutDir = t.TempDir()
	opts.Downsampling = V3{1, 1, 1}
	res, err := Decode(context.Background(), ds, opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.OutDir, "test-field-[32-32-32]-Float32-tolerance-0.000000.raw"), res.Path)

	src, err := OpenRawFile(res.Path, V3{32, 32, 32}, Float32)
	require.NoError(t, err)
	defer src.Close()
	buf := &Buffer{Dims: V3{32, 32, 32}, Data: make([]float64, 32*32*32)}
	lo, hi, err := src.ReadExtent(Extent{Dims: V3{32, 32, 32}}, buf, V3{})
	require.NoError(t, err)
	assert.LessOrEqual(t, lo, hi)
	for i, v := range res.Volume.F32 {
		require.Equal(t, float64(v), buf.Data[i])
	}
}

func TestOpenRawFile_SizeMismatched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vol.raw")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o644))
	_, err := OpenRawFile(path, V3{4, 4, 4}, Float32)
	require.ErrorIs(t, err, idxerr.SizeMismatched)

	_, err = OpenRawFile(filepath.Join(t.TempDir(), "none.raw"), V3{4, 4, 4}, Float32)
	require.ErrorIs(t, err, idxerr.FileNotFound)
}

func TestEncode_RawSource(t *testing.T) {
	dims := V3{64, 64, 32}
	vol := makeVolume(dims, Float64, smooth)
	path := filepath.Join(t.TempDir(), "vol.raw")
	fp, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteRaw(fp, vol))
	require.NoError(t, fp.Close())

	src, err := OpenRawFile(path, dims, Float64)
	require.NoError(t, err)
	defer src.Close()
	opts := testOptions(t.TempDir(), Float64)
	_, err = Encode(context.Background(), opts, src)
	require.NoError(t, err)

	ds, err := Open(filepath.Join(opts.OutDir, "test", "field.idx2"))
	require.NoError(t, err)
	res, err := Decode(context.Background(), ds, memOptions())
	require.NoError(t, err)
	assert.Less(t, maxError(t, res.Volume, V3{}, V3{1, 1, 1}, smooth), 1e-9)
}

// memStore keeps chunks in memory for the chunk hooks.
type memStore struct {
	mu     sync.Mutex
	chunks map[uint64][]byte
}

func (m *memStore) WriteChunk(_ context.Context, addr uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks[addr]; ok {
		return errors.New("chunk written twice")
	}
	m.chunks[addr] = data
	return nil
}

func (m *memStore) ReadChunk(_ context.Context, addr uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.chunks[addr]
	if !ok {
		return nil, idxerr.ChunkNotFound
	}
	return data, nil
}

func TestChunkHooks(t *testing.T) {
	vol := makeVolume(V3{64, 64, 64}, Float64, smooth)
	store := &memStore{chunks: make(map[uint64][]byte)}

	dir := t.TempDir()
	opts := testOptions(dir, Float64)
	opts.ChunkWriter = store
	stats, err := Encode(context.Background(), opts, NewVolumeSource(vol))
	require.NoError(t, err)
	assert.Len(t, store.chunks, stats.Chunks+stats.ExponentChunks)
	assert.Zero(t, stats.Files)
	_, err = os.Stat(filepath.Join(dir, "test", "field"))
	assert.True(t, os.IsNotExist(err), "no data files are written through a ChunkWriter")

	ds, err := Open(filepath.Join(dir, "test", "field.idx2"))
	require.NoError(t, err)
	dopts := memOptions()
	dopts.ChunkReader = store
	res, err := Decode(context.Background(), ds, dopts)
	require.NoError(t, err)
	assert.Less(t, maxError(t, res.Volume, V3{}, V3{1, 1, 1}, smooth), 1e-9)
	assert.Positive(t, res.Stats.Chunks)
}

func TestRawFileName(t *testing.T) {
	got := RawFileName("miranda", "density", V3{96, 96, 64}, Float64, 0.001)
	assert.Equal(t, "miranda-density-[96-96-64]-Float64-tolerance-0.001000.raw", got)
}

func TestDataset_Accessors(t *testing.T) {
	dir := t.TempDir()
	vol := makeVolume(V3{64, 64, 64}, Float32, smooth)
	opts := testOptions(dir, Float32)
	opts.Tolerance = 1e-4
	ds := encodeDataset(t, opts, vol)

	assert.Equal(t, filepath.Join(dir, "test", "field.idx2"), ds.Path())
	assert.Equal(t, "test", ds.Name())
	assert.Equal(t, "field", ds.Field())
	assert.Equal(t, Float32, ds.Type())
	assert.Equal(t, V3{32, 32, 32}, ds.BrickDims())
	assert.InDelta(t, 1e-4, ds.Tolerance(), 1e-12)
	assert.Equal(t, []V3{{2, 2, 2}, {1, 1, 1}}, ds.Bricks())

	_, err := Open(filepath.Join(dir, "test", "other.idx2"))
	require.ErrorIs(t, err, idxerr.FileNotFound)
}

func BenchmarkEncode64(b *testing.B) {
	vol := makeVolume(V3{64, 64, 64}, Float32, smooth)
	dir := b.TempDir()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		opts := testOptions(dir, Float32)
		if _, err := Encode(context.Background(), opts, NewVolumeSource(vol)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecode64(b *testing.B) {
	vol := makeVolume(V3{64, 64, 64}, Float32, smooth)
	opts := testOptions(b.TempDir(), Float32)
	if _, err := Encode(context.Background(), opts, NewVolumeSource(vol)); err != nil {
		b.Fatal(err)
	}
	ds, err := Open(filepath.Join(opts.OutDir, "test", "field.idx2"))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(context.Background(), ds, memOptions()); err != nil {
			b.Fatal(err)
		}
	}
}
