package idx2

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/go-idx2/internal/dwt"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

func quadratic(p V3) float64 {
	x, y, z := float64(p[0]), float64(p[1]), float64(p[2])
	return (x*x+2*y*y+3*z*z)/64 + x*z/32
}

// dataFiles returns the data files of a dataset, relative to its field
// directory.
func dataFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".bin") {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestRoundtrip_ChunkLayouts(t *testing.T) {
	dims := V3{64, 64, 32}
	tests := []struct {
		name           string
		bricksPerChunk int
		chunksPerFile  int
		filesPerDir    int
		bpPerChunk     int
		tolerance      float64 // encode
		decodeTol      float64
		delta          float64
		minDirDepth    int // directories below the level directory
	}{
		{"two bricks per chunk", 2, 64, 64, 1, 0, 0, 1e-9, 0},
		{"one brick per chunk", 1, 1, 4, 1, 0, 0, 1e-9, 2},
		{"nested directories", 2, 2, 2, 1, 0, 0, 1e-9, 2},
		{"one plane per chunk, looser decode", 2, 2, 2, 1, 1e-6, 1e-3, 1e-2, 2},
		{"two planes per chunk", 2, 2, 2, 2, 1e-6, 0, 1e-4, 2},
		{"two planes per chunk, looser decode", 2, 2, 2, 2, 1e-6, 1e-3, 1e-2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t.TempDir(), Float64)
			opts.BrickDims = V3{16, 16, 16}
			opts.BricksPerChunk = tt.bricksPerChunk
			opts.ChunksPerFile = tt.chunksPerFile
			opts.FilesPerDir = tt.filesPerDir
			opts.BitPlanesPerChunk = tt.bpPerChunk
			opts.Tolerance = tt.tolerance
			vol := makeVolume(dims, Float64, smooth)
			stats, err := Encode(context.Background(), opts, NewVolumeSource(vol))
			require.NoError(t, err)

			files := dataFiles(t, filepath.Join(opts.OutDir, "test", "field"))
			assert.Len(t, files, stats.Files)
			assert.Greater(t, stats.Files, 1)
			depth := 0
			for _, f := range files {
				depth = max(depth, strings.Count(f, string(filepath.Separator))-1)
			}
			assert.GreaterOrEqual(t, depth, tt.minDirDepth)

			ds, err := Open(filepath.Join(opts.OutDir, "test", "field.idx2"))
			require.NoError(t, err)
			dopts := memOptions()
			dopts.Tolerance = tt.decodeTol
			res, err := Decode(context.Background(), ds, dopts)
			require.NoError(t, err)
			assert.Less(t, maxError(t, res.Volume, V3{}, V3{1, 1, 1}, smooth), tt.delta)

			par, err := ParallelDecode(context.Background(), ds, dopts)
			require.NoError(t, err)
			assert.Equal(t, res.Volume.F64, par.Volume.F64)

			ext := Extent{From: V3{20, 5, 17}, Dims: V3{30, 40, 9}}
			dopts.Extent = &ext
			sub, err := Decode(context.Background(), ds, dopts)
			require.NoError(t, err)
			assert.Less(t, sub.Stats.Chunks, res.Stats.Chunks)
			assert.Less(t, maxError(t, sub.Volume, ext.From, V3{1, 1, 1}, smooth), tt.delta)
		})
	}
}

func TestDecode_DownsamplingMatchesTransform(t *testing.T) {
	dims := V3{64, 64, 64}
	opts := testOptions(t.TempDir(), Float64)
	ds := encodeDataset(t, opts, makeVolume(dims, Float64, quadratic))

	dopts := memOptions()
	dopts.Downsampling = V3{1, 1, 1}
	res, err := Decode(context.Background(), ds, dopts)
	require.NoError(t, err)
	require.Equal(t, V3{32, 32, 32}, res.Volume.Dims)

	// The half resolution samples are the low band of the finest bricks.
	f, err := opts.layout(dims)
	require.NoError(t, err)
	sb0 := f.Subbands[0].Grid
	low := sb0.Dims.NonExt()
	var worst, fromStride float64
	volume.ForEach(f.NBricks[0], func(b3 V3) {
		buf := volume.NewBuffer(f.BrickDimsExt)
		volume.ForEach(f.BrickDims, func(p V3) {
			buf.Set(p, quadratic(b3.Mul(f.BrickDims).Add(p)))
		})
		dwt.ExtrapolateCdf53(f.BrickDims, f.TransformOrder, buf)
		dwt.ForwardCdf53(f.BrickDimsExt, 0, f.Subbands, f.TransformDetails, buf, false)
		volume.ForEach(low, func(q V3) {
			out := b3.Mul(low).Add(q)
			got := res.Volume.At(res.Volume.Index(out))
			want := buf.At(sb0.From.Add(q.Mul(sb0.Stride)))
			worst = math.Max(worst, math.Abs(got-want))
			fromStride = math.Max(fromStride, math.Abs(got-quadratic(out.MulN(2))))
		})
	})
	assert.Less(t, worst, 1e-9)
	assert.Greater(t, fromStride, 1e-3, "the low band of a quadratic is not a plain subsampling")
}

func TestDecode_HashMapExtentDump(t *testing.T) {
	vol := makeVolume(V3{128, 64, 64}, Float64, smooth)
	ds := encodeDataset(t, testOptions(t.TempDir(), Float64), vol)

	dump := filepath.Join(t.TempDir(), "bricks.bin")
	opts := memOptions()
	opts.OutputMode = HashMap
	opts.BrickDump = dump
	opts.Extent = &Extent{From: V3{0, 0, 0}, Dims: V3{32, 32, 32}}
	res, err := Decode(context.Background(), ds, opts)
	require.NoError(t, err)

	_, _, err = res.Bricks.Brick(V3{3, 0, 0})
	assert.Error(t, err, "brick outside the extent")

	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	r := bytes.NewReader(data)
	var head [9]int32
	require.NoError(t, binary.Read(r, binary.LittleEndian, &head))
	assert.Equal(t, [9]int32{128, 64, 64, 32, 32, 32, 4, 2, 2}, head)
	var bricks []V3
	for r.Len() > 0 {
		var rec [6]int32
		require.NoError(t, binary.Read(r, binary.LittleEndian, &rec))
		n := int(rec[3] * rec[4] * rec[5])
		require.GreaterOrEqual(t, r.Len(), 8*n)
		_, err := r.Seek(int64(8*n), io.SeekCurrent)
		require.NoError(t, err)
		bricks = append(bricks, V3{int(rec[0]), int(rec[1]), int(rec[2])})
	}
	// Only the bricks under the decoded coarse brick are written.
	assert.Len(t, bricks, 8)
	for _, b3 := range bricks {
		assert.Less(t, b3[0], 2, "brick %v", b3)
	}
}
