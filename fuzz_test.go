package idx2

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrjoshuak/go-idx2/internal/codestream"
)

// FuzzOpen tests metadata parsing with arbitrary input.
// Run with: go test -fuzz=FuzzOpen -fuzztime=60s
func FuzzOpen(f *testing.F) {
	vol := makeVolume(V3{32, 32, 32}, Float32, smooth)
	opts := testOptions(f.TempDir(), Float32)
	opts.BrickDims = V3{16, 16, 16}
	if _, err := Encode(context.Background(), opts, NewVolumeSource(vol)); err != nil {
		f.Fatal(err)
	}
	valid, err := os.ReadFile(filepath.Join(opts.OutDir, "test", "field.idx2"))
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add([]byte("(common (type \"Simple\") (name \"a\") (field \"b\"))"))
	f.Add([]byte("((("))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		path := filepath.Join(t.TempDir(), "fuzz", "field.idx2")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		ds, err := Open(path)
		if err != nil {
			return
		}
		var buf bytes.Buffer
		_ = ds.WriteMetadata(&buf)
	})
}

// fuzzChunks serves the stored exponent chunks and the same bytes for
// every bit plane chunk.
type fuzzChunks struct {
	store *memStore
	data  []byte
}

func (c fuzzChunks) ReadChunk(ctx context.Context, addr uint64) ([]byte, error) {
	if int(addr&0xFFF) == codestream.ExponentBitPlane {
		return c.store.ReadChunk(ctx, addr)
	}
	return bytes.Clone(c.data), nil
}

// FuzzDecodeChunks feeds arbitrary bit plane chunks to the decoder of a
// valid dataset. The decoder should never panic, regardless of input.
func FuzzDecodeChunks(f *testing.F) {
	vol := makeVolume(V3{32, 32, 32}, Float64, smooth)
	opts := testOptions(f.TempDir(), Float64)
	opts.BrickDims = V3{16, 16, 16}
	store := &memStore{chunks: make(map[uint64][]byte)}
	opts.ChunkWriter = store
	if _, err := Encode(context.Background(), opts, NewVolumeSource(vol)); err != nil {
		f.Fatal(err)
	}
	ds, err := Open(filepath.Join(opts.OutDir, "test", "field.idx2"))
	if err != nil {
		f.Fatal(err)
	}
	for addr, c := range store.chunks {
		if int(addr&0xFFF) != codestream.ExponentBitPlane {
			f.Add(c)
		}
	}
	f.Add([]byte{})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		dopts := memOptions()
		dopts.ChunkReader = fuzzChunks{store: store, data: data}
		_, _ = Decode(context.Background(), ds, dopts)
	})
}
