package idx2

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/mrjoshuak/go-idx2/internal/cache"
	"github.com/mrjoshuak/go-idx2/internal/codestream"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/layout"
)

// fileTables is the parsed chunk index of one data file.
type fileTables struct {
	bitPlanes *codestream.ChunkTable
	exps      *codestream.ChunkTable
}

// chunkSource serves the chunks of a decode from the data files, or from
// a ChunkReader when one is set. Every file index, chunk and exponent
// chunk is read at most once.
type chunkSource struct {
	f      *layout.File
	hook   ChunkReader
	logger *slog.Logger

	files  *cache.Map[uint64, *fileTables]
	chunks *cache.Map[uint64, *codestream.Chunk]
	exps   *cache.Map[uint64, []byte]

	nChunks atomic.Int64
	nBytes  atomic.Int64
}

func newChunkSource(f *layout.File, hook ChunkReader, logger *slog.Logger) *chunkSource {
	return &chunkSource{
		f:      f,
		hook:   hook,
		logger: logger,
		files:  cache.New[uint64, *fileTables](64),
		chunks: cache.New[uint64, *codestream.Chunk](1024),
		exps:   cache.New[uint64, []byte](1024),
	}
}

func (s *chunkSource) tables(id layout.FileID) (*fileTables, error) {
	return s.files.LoadOrCompute(id.ID, func() (*fileTables, error) {
		fp, err := os.Open(id.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%s: %w", id.Path, idxerr.FileNotFound)
			}
			return nil, fmt.Errorf("opening data file: %w", err)
		}
		defer fp.Close()
		st, err := fp.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", id.Path, err)
		}
		bp, err := codestream.ReadBitPlaneTable(fp, st.Size())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id.Path, err)
		}
		ex, err := codestream.ReadExponentTable(fp, st.Size(), s.f.NumSubbands())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id.Path, err)
		}
		s.logger.Debug("data file opened",
			slog.String("file", id.Path),
			slog.Int("chunks", len(bp.Addrs)),
			slog.Int("exponent_chunks", len(ex.Addrs)))
		return &fileTables{bitPlanes: bp, exps: ex}, nil
	})
}

func (s *chunkSource) readSpan(path string, t *codestream.ChunkTable, addr uint64) ([]byte, error) {
	off, size, ok := t.Span(addr)
	if !ok {
		return nil, fmt.Errorf("chunk %#x in %s: %w", addr, path, idxerr.ChunkNotFound)
	}
	fp, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening data file: %w", err)
	}
	defer fp.Close()
	buf := make([]byte, size)
	if _, err := fp.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("reading chunk %#x from %s: %w", addr, path, err)
	}
	return buf, nil
}

// fetch returns the raw bytes of the chunk at addr, which holds brick of
// level l.
func (s *chunkSource) fetch(ctx context.Context, brick uint64, l int, addr uint64, exponents bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	if s.hook != nil {
		var err error
		if data, err = s.hook.ReadChunk(ctx, addr); err != nil {
			return nil, fmt.Errorf("chunk %#x: %w", addr, err)
		}
	} else {
		id := s.f.FilePath(brick, l)
		t, err := s.tables(id)
		if err != nil {
			return nil, err
		}
		table := t.bitPlanes
		if exponents {
			table = t.exps
		}
		if data, err = s.readSpan(id.Path, table, addr); err != nil {
			return nil, err
		}
	}
	s.nChunks.Add(1)
	s.nBytes.Add(int64(len(data)))
	return data, nil
}

// chunk returns the bit plane chunk of (brick, l, sb, key).
func (s *chunkSource) chunk(ctx context.Context, brick uint64, l, sb, key int) (*codestream.Chunk, error) {
	addr := s.f.ChunkAddress(brick, l, sb, key)
	return s.chunks.LoadOrCompute(addr, func() (*codestream.Chunk, error) {
		data, err := s.fetch(ctx, brick, l, addr, false)
		if err != nil {
			return nil, err
		}
		c, err := codestream.ParseChunk(data)
		if err != nil {
			return nil, fmt.Errorf("chunk %#x: %w", addr, err)
		}
		return c, nil
	})
}

// exponents returns the decompressed exponent chunk of (brick, l, sb).
func (s *chunkSource) exponents(ctx context.Context, brick uint64, l, sb int) ([]byte, error) {
	addr := s.f.ChunkAddress(brick, l, sb, codestream.ExponentBitPlane)
	return s.exps.LoadOrCompute(addr, func() ([]byte, error) {
		data, err := s.fetch(ctx, brick, l, addr, true)
		if err != nil {
			return nil, err
		}
		out, err := codestream.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("exponent chunk %#x: %w", addr, err)
		}
		return out, nil
	})
}
