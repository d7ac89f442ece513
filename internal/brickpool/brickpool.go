// Package brickpool keeps the decoded bricks of a session.
//
// Bricks are keyed by codestream.BrickKey. After a decode in which only the
// significant bricks were kept, ComputeBrickResolution records for every
// finest brick the finest level that holds data for it, and BrickVolume
// resolves a finest brick to that data.
package brickpool

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/samber/lo"

	"github.com/mrjoshuak/go-idx2/internal/cache"
	"github.com/mrjoshuak/go-idx2/internal/codestream"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/layout"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// BrickVolume is a decoded brick. ExtentLocal is the part of Buf that
// belongs to the brick; it covers all of Buf except for bricks resolved
// from an ancestor.
type BrickVolume struct {
	Buf              *volume.Buffer
	ExtentLocal      volume.Extent
	Significant      bool
	NChildrenDecoded int
	NChildrenMax     int
}

// Pool maps brick keys to brick volumes.
type Pool struct {
	file   *layout.File
	arena  *Arena
	bricks *cache.Map[uint64, *BrickVolume]

	// ResolutionLevels holds, per finest brick, the level whose brick
	// carries its data, or -1 when no level does. Filled by
	// ComputeBrickResolution.
	ResolutionLevels []int8
}

// New creates an empty pool for f. arena may be nil, in which case buffers
// released from the pool are left to the garbage collector.
func New(f *layout.File, arena *Arena) *Pool {
	n := 1 + f.LinearBrick(0, f.NBricks[0].AddN(-1))
	return &Pool{
		file:             f,
		arena:            arena,
		bricks:           cache.New[uint64, *BrickVolume](1024),
		ResolutionLevels: make([]int8, n),
	}
}

// Load returns the brick of level l.
func (p *Pool) Load(l int, brick uint64) (*BrickVolume, bool) {
	return p.bricks.Load(codestream.BrickKey(l, brick))
}

// Store adds or replaces the brick of level l.
func (p *Pool) Store(l int, brick uint64, bv *BrickVolume) {
	p.bricks.Store(codestream.BrickKey(l, brick), bv)
}

// LoadOrCreate returns the brick of level l, creating it with a fresh
// buffer and nChildren expected children when absent.
func (p *Pool) LoadOrCreate(l int, brick uint64, nChildren int) *BrickVolume {
	bv, _ := p.bricks.LoadOrCompute(codestream.BrickKey(l, brick), func() (*BrickVolume, error) {
		return &BrickVolume{
			Buf:          p.newBuffer(),
			ExtentLocal:  volume.NewExtent(p.file.BrickDimsExt),
			NChildrenMax: nChildren,
		}, nil
	})
	return bv
}

func (p *Pool) newBuffer() *volume.Buffer {
	if p.arena != nil {
		return p.arena.Get()
	}
	return volume.NewBuffer(p.file.BrickDimsExt)
}

// Release removes the brick of level l and recycles its buffer.
func (p *Pool) Release(l int, brick uint64) {
	bv, ok := p.bricks.LoadAndDelete(codestream.BrickKey(l, brick))
	if ok && p.arena != nil {
		p.arena.Put(bv.Buf)
	}
}

// Len returns the number of bricks in the pool.
func (p *Pool) Len() int { return p.bricks.Len() }

// Keys returns the keys of every brick in the pool, in no particular order.
func (p *Pool) Keys() []uint64 { return lo.Keys(p.bricks.Snapshot()) }

type stackItem struct {
	brick3          volume.V3
	level           int
	resolutionToSet int8
}

// ComputeBrickResolution walks down from every brick of the coarsest level
// and sets, for every finest brick, the finest level on its path that has
// a brick in the pool. Bricks with no such level, such as those outside a
// decoded extent, get -1.
func (p *Pool) ComputeBrickResolution() {
	f := p.file
	coarsest := f.NLevels - 1
	stack := make([]stackItem, 0, f.NLevels*8)
	volume.ForEach(f.NBricks[coarsest], func(b3 volume.V3) {
		stack = append(stack, stackItem{brick3: b3, level: coarsest, resolutionToSet: -1})
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			brick := f.LinearBrick(cur.level, cur.brick3)
			if _, ok := p.Load(cur.level, brick); ok {
				cur.resolutionToSet = int8(cur.level)
			}
			if cur.level == 0 {
				p.ResolutionLevels[brick] = cur.resolutionToSet
				continue
			}
			next := cur.level - 1
			for i := 0; i < 8; i++ {
				child := cur.brick3.Mul(f.GroupBrick).Add(volume.V3{i & 1, i >> 1 & 1, i >> 2 & 1})
				if child.Less(f.NBricks[next]) {
					stack = append(stack, stackItem{brick3: child, level: next, resolutionToSet: cur.resolutionToSet})
				}
			}
		}
	})
}

// BrickVolume returns the data of the finest brick b3. When the brick was
// not kept, the brick of the ancestor recorded by ComputeBrickResolution is
// returned with ExtentLocal set to the part of it that covers b3.
func (p *Pool) BrickVolume(b3 volume.V3) (BrickVolume, error) {
	f := p.file
	brick := f.LinearBrick(0, b3)
	res := int(p.ResolutionLevels[brick])
	if res < 0 {
		return BrickVolume{}, fmt.Errorf("brick %v was not decoded: %w", b3, idxerr.BrickNotFound)
	}
	if res == 0 {
		bv, ok := p.Load(0, brick)
		if !ok {
			return BrickVolume{}, fmt.Errorf("brick %v: %w", b3, idxerr.BrickNotFound)
		}
		out := *bv
		out.ExtentLocal = volume.NewExtent(f.BrickDimsExt)
		return out, nil
	}
	group := f.GroupBrick.Pow(res)
	ancestor := b3.Div(group)
	bv, ok := p.Load(res, f.LinearBrick(res, ancestor))
	if !ok {
		return BrickVolume{}, fmt.Errorf("brick %v at level %d: %w", ancestor, res, idxerr.BrickNotFound)
	}
	dims := f.BrickDims.Div(group)
	out := *bv
	out.ExtentLocal = volume.Extent{From: b3.Mod(group).Mul(dims), Dims: dims.Ext()}
	out.Significant = false
	return out, nil
}

// WriteBricks writes every finest brick to w. The stream starts with the
// volume dims, the brick dims and the brick counts as little-endian int32
// triples; each brick follows as its brick coordinates and local dims
// (int32 triples) and its float64 samples, X fastest. Bricks that were not
// decoded are left out.
func (p *Pool) WriteBricks(w io.Writer) error {
	f := p.file
	bw := bufio.NewWriter(w)
	putV3 := func(v volume.V3) error {
		return binary.Write(bw, binary.LittleEndian, [3]int32{int32(v[0]), int32(v[1]), int32(v[2])})
	}
	for _, v := range []volume.V3{f.Dims, f.BrickDims, f.NBricks[0]} {
		if err := putV3(v); err != nil {
			return err
		}
	}
	var err error
	samples := make([]float64, 0, f.BrickDimsExt.Prod())
	volume.ForEach(f.NBricks[0], func(b3 volume.V3) {
		if err != nil || p.ResolutionLevels[f.LinearBrick(0, b3)] < 0 {
			return
		}
		var bv BrickVolume
		if bv, err = p.BrickVolume(b3); err != nil {
			return
		}
		if err = putV3(b3); err != nil {
			return
		}
		if err = putV3(bv.ExtentLocal.Dims); err != nil {
			return
		}
		samples = samples[:0]
		volume.ForEach(bv.ExtentLocal.Dims, func(q volume.V3) {
			samples = append(samples, bv.Buf.At(bv.ExtentLocal.From.Add(q)))
		})
		err = binary.Write(bw, binary.LittleEndian, samples)
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// WriteBricksFile writes the brick dump to a new file at path.
func (p *Pool) WriteBricksFile(path string) (err error) {
	fp, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("brick dump %s: %w", path, err)
	}
	defer func() {
		if cerr := fp.Close(); err == nil {
			err = cerr
		}
	}()
	return p.WriteBricks(fp)
}

// LevelStats counts the bricks of one level kept in the pool.
type LevelStats struct {
	Level       int
	Significant int
	Total       int
}

// Percent returns the share of significant bricks in percent.
func (s LevelStats) Percent() float64 {
	return float64(s.Significant) * 100 / float64(s.Total)
}

// Statistics returns the significant brick counts of every level.
func (p *Pool) Statistics() []LevelStats {
	keys := p.Keys()
	out := make([]LevelStats, p.file.NLevels)
	for l := range out {
		out[l] = LevelStats{
			Level:       l,
			Significant: lo.CountBy(keys, func(k uint64) bool { return codestream.LevelFromKey(k) == l }),
			Total:       p.file.NBricks[l].Prod(),
		}
	}
	return out
}

// LogStatistics logs Statistics at info level.
func (p *Pool) LogStatistics(logger *slog.Logger) {
	for _, s := range p.Statistics() {
		logger.Info("significant bricks",
			slog.Int("level", s.Level),
			slog.Int("count", s.Significant),
			slog.Int("total", s.Total),
			slog.Float64("percent", s.Percent()))
	}
}
