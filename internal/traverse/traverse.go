// Package traverse walks grids of bricks, chunks or files along the
// space-filling curve encoded by a transform-order style string.
//
// The walk recursively bisects a box whose dims are rounded up to powers of
// two. Each bisection consumes one character of the order (X, Y or Z), and
// a '+' marks where the order repeats, in the same packing as
// dwt.EncodeTransformOrder. Only boxes that overlap the requested extent are
// visited, so the walk over a small region of a large grid is cheap.
package traverse

import (
	"iter"

	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// Item is one leaf of the walk.
type Item struct {
	Pos     volume.V3 // grid coordinates of the leaf
	NBefore int       // leaves inside the extent visited before this one
	InGroup int       // leaves inside the group extent that precede this one along the curve
	Address uint64    // curve position inside the padded box
}

type frame struct {
	order, prev uint64
	from, to    volume.V3
	nBefore     int
	inGroup     int
	address     uint64
}

// Iterator yields the leaves of a walk in curve order.
type Iterator struct {
	stack  []frame
	extent volume.Extent
	group  volume.Extent
}

// New starts a walk over the box at from with the given dims. Only leaves
// inside extent are yielded. group is the extent leaves are ranked against
// in Item.InGroup; it is usually the extent of the enclosing chunk or file
// cropped to the valid grid.
func New(order uint64, from, dims volume.V3, extent, group volume.Extent) *Iterator {
	it := &Iterator{
		stack:  make([]frame, 1, 64),
		extent: extent,
		group:  group,
	}
	it.stack[0] = frame{order: order, prev: order, from: from, to: from.Add(dims.NextPow2())}
	return it
}

func (it *Iterator) overlaps(f frame) bool {
	return volume.Overlaps(f.from, f.to, it.extent.From, it.extent.To())
}

// Next returns the next leaf, or false when the walk is over.
func (it *Iterator) Next() (Item, bool) {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		d := int(top.order & 0x3)
		top.order >>= 2
		if d == 3 {
			if top.order == 3 {
				top.order = top.prev
			} else {
				top.prev = top.order
			}
			continue
		}
		f := *top
		it.stack = it.stack[:len(it.stack)-1]
		if f.to.Sub(f.from) == volume.Splat(1) {
			return Item{Pos: f.from, NBefore: f.nBefore, InGroup: f.inGroup, Address: f.address}, true
		}
		first, second := f, f
		mid := f.from[d] + (f.to[d]-f.from[d])/2
		first.to[d] = mid
		second.from[d] = mid
		skip := volume.Extent{From: first.from, Dims: first.to.Sub(first.from)}
		second.nBefore = first.nBefore + volume.CropExtent(skip, it.extent).Size()
		second.inGroup = first.inGroup + volume.CropExtent(skip, it.group).Size()
		second.address = f.address + uint64(skip.Size())
		if it.overlaps(second) {
			it.stack = append(it.stack, second)
		}
		if it.overlaps(first) {
			it.stack = append(it.stack, first)
		}
	}
	return Item{}, false
}

// All returns the remaining leaves as a sequence.
func (it *Iterator) All() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for {
			item, ok := it.Next()
			if !ok || !yield(item) {
				return
			}
		}
	}
}

// Walk is shorthand for New(...).All().
func Walk(order uint64, from, dims volume.V3, extent, group volume.Extent) iter.Seq[Item] {
	return New(order, from, dims, extent, group).All()
}
