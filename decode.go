package idx2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mrjoshuak/go-idx2/internal/bio"
	"github.com/mrjoshuak/go-idx2/internal/brickpool"
	"github.com/mrjoshuak/go-idx2/internal/codestream"
	"github.com/mrjoshuak/go-idx2/internal/dwt"
	"github.com/mrjoshuak/go-idx2/internal/entropy"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/layout"
	"github.com/mrjoshuak/go-idx2/internal/traverse"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// Result is the output of a decode.
type Result struct {
	// Grid is the set of decoded samples, in samples of the finest level.
	// It is empty when the requested extent misses the volume.
	Grid Grid

	// Volume holds the samples of Grid in RegularGridMem and
	// RegularGridFile modes.
	Volume *Volume

	// Path is the raw file written in RegularGridFile mode.
	Path string

	// Bricks holds the kept bricks in HashMap mode.
	Bricks *BrickMap

	Stats DecodeStats
}

// DecodeStats summarizes a decode.
type DecodeStats struct {
	Bricks int64 // bricks decoded, over all levels
	Chunks int64 // chunks read
	Bytes  int64 // bytes of the chunks read
}

// Decode decodes the dataset ds level by level, coarsest first, on the
// calling goroutine.
func Decode(ctx context.Context, ds *Dataset, opts *DecodeOptions) (*Result, error) {
	d, err := newDecoder(ds, opts)
	if err != nil {
		return nil, err
	}
	if !d.empty() {
		if err := d.decode(ctx); err != nil {
			return nil, err
		}
	}
	return d.finish()
}

// brickRef locates a brick of a level.
type brickRef struct {
	b3      volume.V3
	brick   uint64
	inChunk int // rank of the brick among the bricks of its chunk
}

// decoder handles IDX2 decoding.
type decoder struct {
	f      *layout.File
	opts   *DecodeOptions
	logger *slog.Logger
	planes planeRange
	src    *chunkSource
	arena  *brickpool.Arena
	pool   *brickpool.Pool

	ext     volume.Extent // requested extent cropped to the volume
	outGrid volume.Grid
	out     *volume.Volume

	nBricks atomic.Int64
}

// newDecoder creates a new decoder.
func newDecoder(ds *Dataset, opts *DecodeOptions) (*decoder, error) {
	if opts == nil {
		opts = DefaultDecodeOptions()
	}
	if opts.OutputMode < RegularGridFile || opts.OutputMode > NoOutput {
		return nil, fmt.Errorf("output mode %d: %w", opts.OutputMode, idxerr.InvalidArgument)
	}
	if opts.Tolerance < 0 {
		return nil, fmt.Errorf("tolerance %g: %w", opts.Tolerance, idxerr.InvalidArgument)
	}
	f, err := ds.session(opts)
	if err != nil {
		return nil, fmt.Errorf("configuring layout: %w", err)
	}
	logger := opts.logger()
	arena := brickpool.NewArena(f.BrickDimsExt)
	d := &decoder{
		f:      f,
		opts:   opts,
		logger: logger,
		planes: newPlaneRange(f, max(f.Tolerance, opts.Tolerance)),
		src:    newChunkSource(f, opts.ChunkReader, logger),
		arena:  arena,
		pool:   brickpool.New(f, arena),
	}
	ext := volume.NewExtent(f.Dims)
	if opts.Extent != nil {
		ext = *opts.Extent
	}
	d.outGrid = f.OutputGrid(ext)
	d.ext = volume.CropExtent(ext, volume.NewExtent(f.Dims))
	if !d.empty() && (opts.OutputMode == RegularGridMem || opts.OutputMode == RegularGridFile) {
		d.out = volume.NewVolume(d.outGrid.Dims, f.Type)
	}
	return d, nil
}

func (d *decoder) empty() bool { return d.outGrid.Size() <= 0 }

// isOutputLevel reports whether level l is the finest level decoded.
func (d *decoder) isOutputLevel(l int) bool {
	return l == 0 || d.f.DecodeSubbandMasks[l-1] == 0
}

// keep reports whether a decoded brick stays in the pool after use.
func (d *decoder) keep(bv *brickpool.BrickVolume) bool {
	return d.opts.OutputMode == HashMap && bv.Significant
}

// decode decodes every level down to the output level. A level's bricks
// serve as parents of the next finer level and are released after it.
func (d *decoder) decode(ctx context.Context) error {
	f := d.f
	for l := f.NLevels - 1; l >= 0 && f.DecodeSubbandMasks[l] != 0; l-- {
		bricks := f.TraversalExtents(d.ext, l).Bricks
		err := d.walkBricks(ctx, l, bricks, func(ref brickRef) error {
			var parent *volume.Buffer
			if l+1 < f.NLevels {
				p3 := ref.b3.Div(f.GroupBrick)
				pv, ok := d.pool.Load(l+1, f.LinearBrick(l+1, p3))
				if !ok {
					return fmt.Errorf("parent %v of level %d: %w", p3, l+1, idxerr.BrickNotFound)
				}
				parent = pv.Buf
			}
			bv := d.pool.LoadOrCreate(l, ref.brick, 0)
			if err := d.decodeBrick(ctx, l, ref, parent, bv); err != nil {
				return err
			}
			if d.isOutputLevel(l) {
				d.emit(l, ref.b3, bv)
				if !d.keep(bv) {
					d.pool.Release(l, ref.brick)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if l+1 < f.NLevels {
			d.releaseLevel(l + 1)
		}
	}
	return nil
}

func (d *decoder) releaseLevel(l int) {
	for _, key := range d.pool.Keys() {
		if codestream.LevelFromKey(key) != l {
			continue
		}
		brick := codestream.BrickFromKey(key)
		if bv, ok := d.pool.Load(l, brick); ok && !d.keep(bv) {
			d.pool.Release(l, brick)
		}
	}
}

// unitsOf returns the cells of size unit that e touches.
func unitsOf(e volume.Extent, unit volume.V3) volume.Extent {
	first := e.From.Div(unit)
	return volume.Extent{From: first, Dims: e.Last().Div(unit).Sub(first).AddN(1)}
}

// walkBricks calls fn for every brick of level l inside bricks, visiting
// files, then the chunks of each file, then the bricks of each chunk.
func (d *decoder) walkBricks(ctx context.Context, l int, bricks volume.Extent, fn func(brickRef) error) error {
	if bricks.Size() <= 0 {
		return nil
	}
	f := d.f
	bpc3, cpf3 := f.BricksPerChunk3[l], f.ChunksPerFile3[l]
	chunks := unitsOf(bricks, bpc3)
	files := unitsOf(chunks, cpf3)
	volBricks := volume.NewExtent(f.NBricks[l])
	volChunks := volume.NewExtent(f.NChunks[l])
	volFiles := volume.NewExtent(f.NFiles[l])
	for fi := range traverse.Walk(f.FilesOrder[l], volume.V3{}, f.NFiles[l], files, volFiles) {
		for ci := range traverse.Walk(f.ChunksOrderInFile[l], fi.Pos.Mul(cpf3), cpf3, chunks, volChunks) {
			if err := ctx.Err(); err != nil {
				return err
			}
			for bi := range traverse.Walk(f.BricksOrderInChunk[l], ci.Pos.Mul(bpc3), bpc3, bricks, volBricks) {
				if err := ctx.Err(); err != nil {
					return err
				}
				ref := brickRef{b3: bi.Pos, brick: f.LinearBrick(l, bi.Pos), inChunk: bi.InGroup}
				if err := fn(ref); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// decodeBrick decodes the masked subbands of a brick into bv and inverse
// transforms it. parent is the decoded parent brick, nil on the coarsest
// level.
func (d *decoder) decodeBrick(ctx context.Context, l int, ref brickRef, parent *volume.Buffer, bv *brickpool.BrickVolume) error {
	f := d.f
	mask := f.DecodeSubbandMasks[l]
	for sb, s := range f.Subbands {
		if mask&(1<<uint(sb)) == 0 {
			continue
		}
		if sb == 0 && parent != nil {
			nonExt := s.Grid.Dims.NonExt()
			dst := s.Grid
			dst.Dims = nonExt
			src := volume.Extent{From: ref.b3.Mod(f.GroupBrick).Mul(nonExt), Dims: nonExt}
			volume.CopyExtentGrid(src, parent, dst, bv.Buf)
		}
		sig, err := d.decodeSubband(ctx, l, sb, ref, s.Grid, bv.Buf)
		if err != nil {
			return fmt.Errorf("level %d brick %d subband %d: %w", l, ref.brick, sb, err)
		}
		bv.Significant = bv.Significant || sig
	}
	dwt.InverseCdf53(f.BrickDimsExt, l, f.Subbands, f.TransformDetails, bv.Buf, l+1 == f.NLevels)
	d.nBricks.Add(1)
	return nil
}

// decodeSubband decodes the blocks of one subband of a brick into buf and
// reports whether any of them carried data.
func (d *decoder) decodeSubband(ctx context.Context, l, sb int, ref brickRef, grid volume.Grid, buf *volume.Buffer) (bool, error) {
	f := d.f
	exps, err := d.src.exponents(ctx, ref.brick, l, sb)
	if err != nil {
		return false, err
	}
	bits, bias := expBits(f.Type), f.Type.ExpBias()
	er := bio.NewReader(exps)
	er.SeekToByte(ref.inChunk * blockCount(f, l, sb, grid.Dims) * bits / 8)
	spacing := f.DecodeSpacings[l][sb]
	streams := make(map[int]*bio.Reader, 4)
	significant := false

	err = blocks(grid.Dims, func(b block) error {
		if codedInNextLevel(f, l, sb, b.dims) {
			return nil
		}
		bypass := !b.from.Mod(spacing).IsZero()
		nDims := b.dims.NumDims()
		nVals := entropy.NumVals(nDims)
		emax := int(er.Read(bits)) - bias
		if err := er.Err(); err != nil {
			return fmt.Errorf("reading block exponent: %w", err)
		}

		var u entropy.UBlock
		n, nbps := 0, 0
		for bp := nBitPlanes - 1; bp >= d.planes.lowest; bp-- {
			realBp := bp + emax
			if d.planes.stop(realBp) {
				break
			}
			key := d.planes.key(realBp)
			r, ok := streams[key]
			if !ok {
				c, err := d.src.chunk(ctx, ref.brick, l, sb, key)
				if errors.Is(err, idxerr.ChunkNotFound) {
					break
				}
				if err != nil {
					return err
				}
				if r, err = c.Reader(ref.brick); err != nil {
					return err
				}
				streams[key] = r
			}
			if !d.planes.tooFine(realBp) {
				nbps++
			}
			entropy.DecodeBitPlane(&u, nVals, bp, &n, r, bypass)
			if err := r.Err(); err != nil {
				return fmt.Errorf("bit plane %d: %w", realBp, err)
			}
		}
		if nbps == 0 || bypass {
			return nil
		}

		var ints entropy.Block
		entropy.InverseShuffle(&u, &ints, nDims)
		entropy.InverseXform(&ints, nDims)
		var floats [entropy.MaxVals]float64
		entropy.Dequantize(emax, entropy.Precision(nDims), ints[:nVals], floats[:nVals])
		j := 0
		volume.ForEach(b.dims, func(s volume.V3) {
			buf.Set(grid.From.Add(b.from.Add(s).Mul(grid.Stride)), floats[j])
			j++
		})
		significant = significant || sb > 0 || l+1 == f.NLevels
		return nil
	})
	return significant, err
}

// emit copies the part of a decoded brick of level l that falls on the
// output grid into the output volume.
func (d *decoder) emit(l int, b3 volume.V3, bv *brickpool.BrickVolume) {
	if d.out == nil {
		return
	}
	f := d.f
	bg := volume.Grid{From: b3.Mul(f.BrickDimsAt(l)), Dims: f.BrickDims, Stride: f.GroupBrick.Pow(l)}
	g := d.outGrid.Crop(bg)
	if g.Size() <= 0 {
		return
	}
	volume.CopyGridToVolume(g.Relative(bg), bv.Buf, g.Relative(d.outGrid), d.out)
}

func (d *decoder) stats() DecodeStats {
	return DecodeStats{
		Bricks: d.nBricks.Load(),
		Chunks: d.src.nChunks.Load(),
		Bytes:  d.src.nBytes.Load(),
	}
}

// finish produces the output of the selected mode.
func (d *decoder) finish() (*Result, error) {
	res := &Result{Grid: d.outGrid, Stats: d.stats()}
	switch d.opts.OutputMode {
	case RegularGridMem:
		res.Volume = d.out
		if res.Volume == nil {
			res.Volume = volume.NewVolume(volume.V3{}, d.f.Type)
		}
	case RegularGridFile:
		res.Volume = d.out
		if d.out != nil {
			res.Path = d.outputPath()
			if err := writeRawFile(res.Path, d.out); err != nil {
				return nil, fmt.Errorf("writing output: %w", err)
			}
		}
	case HashMap:
		d.pool.ComputeBrickResolution()
		d.pool.LogStatistics(d.logger)
		if d.opts.BrickDump != "" {
			if err := d.pool.WriteBricksFile(d.opts.BrickDump); err != nil {
				return nil, err
			}
		}
		res.Bricks = &BrickMap{pool: d.pool}
	}
	d.logger.Info("decoded",
		slog.String("name", d.f.Name),
		slog.String("field", d.f.Field),
		slog.Any("grid", d.outGrid.Dims),
		slog.Int64("bricks", res.Stats.Bricks),
		slog.Int64("chunks", res.Stats.Chunks),
		slog.Int64("bytes", res.Stats.Bytes))
	return res, nil
}
