package idx2

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/mrjoshuak/go-idx2/internal/bio"
	"github.com/mrjoshuak/go-idx2/internal/brickpool"
	"github.com/mrjoshuak/go-idx2/internal/codestream"
	"github.com/mrjoshuak/go-idx2/internal/dwt"
	"github.com/mrjoshuak/go-idx2/internal/entropy"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/layout"
	"github.com/mrjoshuak/go-idx2/internal/meta"
	"github.com/mrjoshuak/go-idx2/internal/traverse"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// EncodeStats summarizes an encode.
type EncodeStats struct {
	Bricks         int   // bricks coded, over all levels
	Chunks         int   // bit plane chunks
	ExponentChunks int   // exponent chunks
	Files          int   // data files written
	ChunkBytes     int64 // bytes of all chunks
	FileBytes      int64 // bytes of all data files, trailers included
	ValueRange     [2]float64
}

// Encode codes the volume served by src and writes the dataset described
// by opts: a metadata file and the data files, or the chunks handed to
// opts.ChunkWriter. Configuration errors are reported before any data is
// written.
func Encode(ctx context.Context, opts *Options, src BrickSource) (*EncodeStats, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	e, err := newEncoder(ctx, opts, src)
	if err != nil {
		return nil, err
	}
	if err := e.encode(); err != nil {
		return nil, err
	}
	return &e.stats, nil
}

// channel collects the bit planes of one (bit plane key, level, subband).
type channel struct {
	chunk     *codestream.ChunkBuilder
	block     *bio.Writer // planes of the current brick
	lastChunk uint64
}

type subbandKey struct {
	level, subband int
}

// subChannel collects the block exponents of one (level, subband).
type subChannel struct {
	blockExps *bio.Writer // exponents of the current brick
	brickExps *bio.Writer // exponents of the bricks of the open chunk
	lastChunk uint64
	lastBrick uint64
	nBricks   int
}

// encoder handles IDX2 encoding.
type encoder struct {
	ctx    context.Context
	opts   *Options
	f      *layout.File
	src    BrickSource
	logger *slog.Logger
	pool   *brickpool.Pool
	planes planeRange
	sink   *chunkSink

	channels    map[uint32]*channel
	subChannels map[subbandKey]*subChannel
	chunkBuf    *bio.Writer

	// Scratch state of the subband being coded.
	sigKeys []int // bit plane keys the brick wrote to
	exps    []int // exponents of the coded blocks

	stats EncodeStats
}

// newEncoder creates a new encoder.
func newEncoder(ctx context.Context, opts *Options, src BrickSource) (*encoder, error) {
	f, err := opts.layout(src.Dims())
	if err != nil {
		return nil, fmt.Errorf("configuring layout: %w", err)
	}
	logger := opts.logger()
	e := &encoder{
		ctx:         ctx,
		opts:        opts,
		f:           f,
		src:         src,
		logger:      logger,
		pool:        brickpool.New(f, brickpool.NewArena(f.BrickDimsExt)),
		planes:      newPlaneRange(f, f.Tolerance),
		sink:        newChunkSink(ctx, f, opts.ChunkWriter, logger),
		channels:    make(map[uint32]*channel),
		subChannels: make(map[subbandKey]*subChannel),
		chunkBuf:    bio.NewWriter(1 << 16),
	}
	e.stats.ValueRange = [2]float64{math.Inf(1), math.Inf(-1)}
	return e, nil
}

// encode encodes the volume.
func (e *encoder) encode() error {
	e.logger.Debug("encoding",
		slog.String("name", e.f.Name),
		slog.String("field", e.f.Field),
		slog.Any("dims", e.f.Dims),
		slog.Int("levels", e.f.NLevels),
		slog.Any("bricks", e.f.NBricks[0]))

	// Code the finest bricks; coarser bricks are coded as their last
	// child completes.
	if err := e.encodeBricks(); err != nil {
		return fmt.Errorf("encoding bricks: %w", err)
	}

	// Write the chunks still open
	if err := e.flushChunks(); err != nil {
		return fmt.Errorf("flushing chunks: %w", err)
	}
	if err := e.flushExponents(); err != nil {
		return fmt.Errorf("flushing exponent chunks: %w", err)
	}
	if err := e.sink.close(); err != nil {
		return fmt.Errorf("finishing data files: %w", err)
	}

	// Write metadata
	if e.stats.ValueRange[0] > e.stats.ValueRange[1] {
		e.stats.ValueRange = [2]float64{}
	}
	e.f.ValueRange = e.stats.ValueRange
	if err := meta.WriteFile(e.f); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	e.stats.Files = e.sink.nFiles()
	e.stats.ChunkBytes = e.sink.chunkBytes
	e.stats.FileBytes = e.sink.fileBytes()
	e.logger.Info("encoded",
		slog.String("metadata", e.f.MetaPath()),
		slog.Int("bricks", e.stats.Bricks),
		slog.Int("chunks", e.stats.Chunks),
		slog.Int("exponent_chunks", e.stats.ExponentChunks),
		slog.Int("files", e.stats.Files),
		slog.Int64("chunk_bytes", e.stats.ChunkBytes),
		slog.Int64("file_bytes", e.stats.FileBytes))
	return nil
}

// encodeBricks walks the finest level in brick order.
func (e *encoder) encodeBricks() error {
	f := e.f
	n := f.NBricks[0]
	all := volume.NewExtent(n)
	vol := volume.NewExtent(f.Dims)
	for item := range traverse.Walk(f.BricksOrder[0], volume.V3{}, n, all, all) {
		if err := e.ctx.Err(); err != nil {
			return err
		}
		b3 := item.Pos
		ext := volume.CropExtent(volume.Extent{From: b3.Mul(f.BrickDims), Dims: f.BrickDims}, vol)
		bv := e.pool.LoadOrCreate(0, f.LinearBrick(0, b3), 0)
		bv.ExtentLocal = volume.NewExtent(ext.Dims)
		lo, hi, err := e.src.ReadExtent(ext, bv.Buf, volume.V3{})
		if err != nil {
			return fmt.Errorf("reading brick %v: %w", b3, err)
		}
		e.stats.ValueRange[0] = math.Min(e.stats.ValueRange[0], lo)
		e.stats.ValueRange[1] = math.Max(e.stats.ValueRange[1], hi)
		if err := e.encodeBrick(0, b3); err != nil {
			return err
		}
	}
	return nil
}

// encodeBrick transforms and codes brick b3 of level l, then releases it.
func (e *encoder) encodeBrick(l int, b3 volume.V3) error {
	f := e.f
	brick := f.LinearBrick(l, b3)
	bv, ok := e.pool.Load(l, brick)
	if !ok {
		return fmt.Errorf("brick %v of level %d: %w", b3, l, idxerr.BrickNotFound)
	}
	dwt.ExtrapolateCdf53(bv.ExtentLocal.Dims, f.TransformOrder, bv.Buf)
	dwt.ForwardCdf53(f.BrickDimsExt, l, f.Subbands, f.TransformDetails, bv.Buf, l+1 == f.NLevels)
	for sb, s := range f.Subbands {
		if sb == 0 && l+1 < f.NLevels {
			if err := e.feedParent(l, b3, s.Grid, bv.Buf); err != nil {
				return err
			}
		}
		if err := e.encodeSubband(l, sb, brick, s.Grid, bv.Buf); err != nil {
			return fmt.Errorf("level %d brick %d subband %d: %w", l, brick, sb, err)
		}
	}
	e.pool.Release(l, brick)
	e.stats.Bricks++
	return nil
}

// feedParent copies subband 0 of brick b3 into its parent on level l+1 and
// codes the parent once all its children are in.
func (e *encoder) feedParent(l int, b3 volume.V3, sbGrid volume.Grid, buf *volume.Buffer) error {
	f := e.f
	p3 := b3.Div(f.GroupBrick)
	nonExt := sbGrid.Dims.NonExt()
	children := volume.CropExtent(volume.Extent{From: p3.Mul(f.GroupBrick), Dims: f.GroupBrick}, volume.NewExtent(f.NBricks[l]))
	parent := e.pool.LoadOrCreate(l+1, f.LinearBrick(l+1, p3), children.Dims.Prod())
	parent.ExtentLocal = volume.NewExtent(children.Dims.Mul(nonExt))

	src := sbGrid
	src.Dims = nonExt
	volume.CopyGridExtent(src, buf, volume.Extent{From: b3.Mod(f.GroupBrick).Mul(nonExt), Dims: nonExt}, parent.Buf)
	parent.NChildrenDecoded++
	if parent.NChildrenDecoded == parent.NChildrenMax {
		return e.encodeBrick(l+1, p3)
	}
	return nil
}

// encodeSubband codes every block of one subband of a brick.
func (e *encoder) encodeSubband(l, sb int, brick uint64, grid volume.Grid, buf *volume.Buffer) error {
	f := e.f
	e.sigKeys = e.sigKeys[:0]
	e.exps = e.exps[:0]
	err := blocks(grid.Dims, func(b block) error {
		if codedInNextLevel(f, l, sb, b.dims) {
			return nil
		}
		var floats [entropy.MaxVals]float64
		j := 0
		volume.ForEach(b.dims, func(s volume.V3) {
			floats[j] = buf.At(grid.From.Add(b.from.Add(s).Mul(grid.Stride)))
			j++
		})
		nDims := b.dims.NumDims()
		nVals := entropy.NumVals(nDims)
		var ints entropy.Block
		emax := entropy.Quantize(entropy.Precision(nDims), floats[:nVals], ints[:nVals], f.Type)
		e.exps = append(e.exps, emax)
		entropy.ForwardXform(&ints, nDims)
		var u entropy.UBlock
		entropy.ForwardShuffle(&ints, &u, nDims)

		n := 0
		for bp := nBitPlanes - 1; bp >= e.planes.lowest; bp-- {
			realBp := bp + emax
			if e.planes.stop(realBp) {
				break
			}
			c, err := e.channel(brick, l, sb, e.planes.key(realBp))
			if err != nil {
				return err
			}
			entropy.EncodeBitPlane(&u, nVals, bp, &n, c.block)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := e.encodeExponents(l, sb, brick); err != nil {
		return err
	}
	for _, key := range e.sigKeys {
		c := e.channels[codestream.ChannelKey(key, l, sb)]
		c.chunk.Add(brick, c.block)
		c.block.Rewind()
	}
	return nil
}

// channel returns the channel of bit plane key on (l, sb). The first time a
// brick touches a channel, the channel's chunk is written if the brick
// falls into a later chunk.
func (e *encoder) channel(brick uint64, l, sb, key int) (*channel, error) {
	ck := codestream.ChannelKey(key, l, sb)
	c, ok := e.channels[ck]
	if !ok {
		c = &channel{chunk: codestream.NewChunkBuilder(), block: bio.NewWriter(512)}
		e.channels[ck] = c
	}
	if slices.Contains(e.sigKeys, key) {
		return c, nil
	}
	e.sigKeys = append(e.sigKeys, key)
	if brick >= (c.lastChunk+1)*uint64(e.f.BricksPerChunk[l]) {
		if c.chunk.NBricks > 0 {
			if err := e.writeChunk(c, l, sb, key); err != nil {
				return nil, err
			}
		}
		c.lastChunk = brick >> uint(e.f.ChunkShift(l))
	}
	return c, nil
}

func (e *encoder) writeChunk(c *channel, l, sb, key int) error {
	addr := e.f.ChunkAddress(c.chunk.LastBrick, l, sb, key)
	e.chunkBuf.Rewind()
	c.chunk.AppendTo(e.chunkBuf)
	e.stats.Chunks++
	return e.sink.writeChunk(c.chunk.LastBrick, l, addr, e.chunkBuf.Bytes())
}

// encodeExponents appends the exponents of the subband just coded to the
// brick exponent stream of (l, sb).
func (e *encoder) encodeExponents(l, sb int, brick uint64) error {
	f := e.f
	k := subbandKey{l, sb}
	sc, ok := e.subChannels[k]
	if !ok {
		sc = &subChannel{blockExps: bio.NewWriter(256), brickExps: bio.NewWriter(4096)}
		e.subChannels[k] = sc
	}
	if brick >= (sc.lastChunk+1)*uint64(f.BricksPerChunk[l]) {
		if err := e.writeExponents(sc, l, sb); err != nil {
			return err
		}
		sc.lastChunk = brick >> uint(f.ChunkShift(l))
	}
	bits, bias := expBits(f.Type), f.Type.ExpBias()
	for _, emax := range e.exps {
		sc.blockExps.Write(uint64(emax+bias), bits)
	}
	sc.brickExps.WriteStream(sc.blockExps)
	sc.blockExps.Rewind()
	sc.lastBrick = brick
	sc.nBricks++
	return nil
}

func (e *encoder) writeExponents(sc *subChannel, l, sb int) error {
	if sc.nBricks == 0 {
		return nil
	}
	data, err := codestream.Compress(sc.brickExps.Bytes())
	if err != nil {
		return fmt.Errorf("compressing exponents: %w", err)
	}
	sc.brickExps.Rewind()
	sc.nBricks = 0
	addr := e.f.ChunkAddress(sc.lastBrick, l, sb, codestream.ExponentBitPlane)
	e.stats.ExponentChunks++
	return e.sink.writeExponents(sc.lastBrick, l, addr, data)
}

// flushChunks writes the open chunk of every channel, by channel key.
func (e *encoder) flushChunks() error {
	keys := lo.Keys(e.channels)
	slices.Sort(keys)
	for _, k := range keys {
		c := e.channels[k]
		if c.chunk.NBricks == 0 {
			continue
		}
		key, l, sb := codestream.SplitChannelKey(k)
		if err := e.writeChunk(c, l, sb, key); err != nil {
			return err
		}
	}
	return nil
}

// flushExponents writes the open exponent chunk of every subband, by level
// then subband.
func (e *encoder) flushExponents() error {
	keys := lo.Keys(e.subChannels)
	slices.SortFunc(keys, func(a, b subbandKey) int {
		return cmp.Or(cmp.Compare(a.level, b.level), cmp.Compare(a.subband, b.subband))
	})
	for _, k := range keys {
		if err := e.writeExponents(e.subChannels[k], k.level, k.subband); err != nil {
			return err
		}
	}
	return nil
}
