package idx2

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mrjoshuak/go-idx2/internal/brickpool"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// ParallelDecode is Decode with every brick of the coarsest level decoded,
// together with all its descendants, as a separate task. At most
// opts.Workers tasks run at once. The first failing task cancels the
// others and its error is returned.
func ParallelDecode(ctx context.Context, ds *Dataset, opts *DecodeOptions) (*Result, error) {
	d, err := newDecoder(ds, opts)
	if err != nil {
		return nil, err
	}
	if !d.empty() {
		if err := d.decodeParallel(ctx); err != nil {
			return nil, err
		}
	}
	return d.finish()
}

func (d *decoder) decodeParallel(ctx context.Context) error {
	f := d.f
	top := f.NLevels - 1
	if f.DecodeSubbandMasks[top] == 0 {
		return nil
	}
	levelBricks := make([]volume.Extent, f.NLevels)
	for l := range levelBricks {
		levelBricks[l] = f.TraversalExtents(d.ext, l).Bricks
	}
	workers := d.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	err := d.walkBricks(gctx, top, levelBricks[top], func(ref brickRef) error {
		g.Go(func() error { return d.decodeTree(gctx, top, ref, nil, levelBricks) })
		return nil
	})
	if werr := g.Wait(); werr != nil {
		return werr
	}
	return err
}

// decodeTree decodes brick ref of level l and, depth first, its children
// inside the requested extent.
func (d *decoder) decodeTree(ctx context.Context, l int, ref brickRef, parent *volume.Buffer, levelBricks []volume.Extent) error {
	f := d.f
	bv := &brickpool.BrickVolume{Buf: d.arena.Get(), ExtentLocal: volume.NewExtent(f.BrickDimsExt)}
	err := d.decodeBrick(ctx, l, ref, parent, bv)
	if err == nil {
		if d.isOutputLevel(l) {
			d.emit(l, ref.b3, bv)
		} else {
			children := volume.CropExtent(volume.Extent{From: ref.b3.Mul(f.GroupBrick), Dims: f.GroupBrick}, levelBricks[l-1])
			err = d.walkBricks(ctx, l-1, children, func(c brickRef) error {
				return d.decodeTree(ctx, l-1, c, bv.Buf, levelBricks)
			})
		}
	}
	if err == nil && d.keep(bv) {
		d.pool.Store(l, ref.brick, bv)
		return nil
	}
	d.arena.Put(bv.Buf)
	return err
}
