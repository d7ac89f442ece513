package idx2

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/lo"

	"github.com/mrjoshuak/go-idx2/internal/codestream"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/layout"
)

// dataFile is a data file being written. Bit plane chunks are appended as
// they are produced; exponent chunks are kept until the file is closed.
type dataFile struct {
	path      string
	created   bool
	size      int64
	bitPlanes *codestream.Index
	exps      *codestream.Index
	expData   []byte
}

// append appends p to the file, truncating it on the first write.
func (d *dataFile) append(p []byte) error {
	flag := os.O_WRONLY | os.O_APPEND
	if !d.created {
		dir := filepath.Dir(d.path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%s: %w: %w", dir, idxerr.CannotCreateDirectory, err)
		}
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	fp, err := os.OpenFile(d.path, flag, 0o644)
	if err != nil {
		return fmt.Errorf("opening data file: %w", err)
	}
	d.created = true
	n, err := fp.Write(p)
	d.size += int64(n)
	if err != nil {
		fp.Close()
		return fmt.Errorf("writing %s: %w", d.path, err)
	}
	return fp.Close()
}

// chunkSink routes the chunks of an encode to data files, or to a
// ChunkWriter when one is set.
type chunkSink struct {
	ctx    context.Context
	f      *layout.File
	hook   ChunkWriter
	logger *slog.Logger
	files  map[uint64]*dataFile

	chunkBytes int64
}

func newChunkSink(ctx context.Context, f *layout.File, hook ChunkWriter, logger *slog.Logger) *chunkSink {
	return &chunkSink{
		ctx:    ctx,
		f:      f,
		hook:   hook,
		logger: logger,
		files:  make(map[uint64]*dataFile),
	}
}

func (s *chunkSink) file(brick uint64, l int) *dataFile {
	id := s.f.FilePath(brick, l)
	d, ok := s.files[id.ID]
	if !ok {
		d = &dataFile{path: id.Path, bitPlanes: codestream.NewIndex(), exps: codestream.NewIndex()}
		s.files[id.ID] = d
	}
	return d
}

// writeChunk writes the bit plane chunk at addr, which holds bricks up to
// brick of level l. data is not retained.
func (s *chunkSink) writeChunk(brick uint64, l int, addr uint64, data []byte) error {
	s.chunkBytes += int64(len(data))
	if s.hook != nil {
		if err := s.hook.WriteChunk(s.ctx, addr, slices.Clone(data)); err != nil {
			return fmt.Errorf("chunk %#x: %w", addr, err)
		}
		return nil
	}
	d := s.file(brick, l)
	if err := d.append(data); err != nil {
		return err
	}
	d.bitPlanes.Add(addr, len(data))
	s.logger.Debug("chunk written",
		slog.String("file", d.path),
		slog.Uint64("address", addr),
		slog.Int("bytes", len(data)))
	return nil
}

// writeExponents records the exponent chunk at addr. data is retained.
func (s *chunkSink) writeExponents(brick uint64, l int, addr uint64, data []byte) error {
	s.chunkBytes += int64(len(data))
	if s.hook != nil {
		if err := s.hook.WriteChunk(s.ctx, addr, data); err != nil {
			return fmt.Errorf("exponent chunk %#x: %w", addr, err)
		}
		return nil
	}
	d := s.file(brick, l)
	d.exps.Add(addr, len(data))
	d.expData = append(d.expData, data...)
	return nil
}

// close appends the bit plane trailer and the exponent section to every
// data file.
func (s *chunkSink) close() error {
	if s.hook != nil {
		return nil
	}
	ids := lo.Keys(s.files)
	slices.Sort(ids)
	for _, id := range ids {
		d := s.files[id]
		tail, err := codestream.AppendBitPlaneTrailer(nil, d.bitPlanes)
		if err != nil {
			return fmt.Errorf("%s: %w", d.path, err)
		}
		tail, err = codestream.AppendExponentSection(tail, d.exps, d.expData)
		if err != nil {
			return fmt.Errorf("%s: %w", d.path, err)
		}
		if err := d.append(tail); err != nil {
			return err
		}
		s.logger.Debug("data file closed",
			slog.String("file", d.path),
			slog.Int("chunks", d.bitPlanes.Len()),
			slog.Int("exponent_chunks", d.exps.Len()),
			slog.Int64("bytes", d.size))
	}
	return nil
}

func (s *chunkSink) nFiles() int { return len(s.files) }

func (s *chunkSink) fileBytes() int64 {
	return lo.SumBy(lo.Values(s.files), func(d *dataFile) int64 { return d.size })
}
