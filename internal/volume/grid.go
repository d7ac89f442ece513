package volume

// Extent is an axis-aligned box of unit-stride samples.
type Extent struct {
	From V3
	Dims V3
}

// NewExtent returns the extent starting at the origin with the given dims.
func NewExtent(dims V3) Extent { return Extent{Dims: dims} }

// To returns the exclusive upper corner.
func (e Extent) To() V3 { return e.From.Add(e.Dims) }

// Last returns the inclusive upper corner.
func (e Extent) Last() V3 { return e.To().AddN(-1) }

// Size returns the number of samples.
func (e Extent) Size() int { return e.Dims.Prod() }

// Grid returns e as a unit-stride grid.
func (e Extent) Grid() Grid { return Grid{From: e.From, Dims: e.Dims, Stride: Splat(1)} }

// Grid is an extent with a per-axis stride.
type Grid struct {
	From   V3
	Dims   V3
	Stride V3
}

// NewGrid returns a unit-stride grid at the origin.
func NewGrid(dims V3) Grid { return Grid{Dims: dims, Stride: Splat(1)} }

// To returns the exclusive upper corner.
func (g Grid) To() V3 { return g.From.Add(g.Dims.Mul(g.Stride)) }

// Last returns the position of the last sample.
func (g Grid) Last() V3 { return g.To().Sub(g.Stride) }

// Size returns the number of samples.
func (g Grid) Size() int { return g.Dims.Prod() }

// Extent returns the bounding extent of g (ignoring the stride).
func (g Grid) Extent() Extent {
	return Extent{From: g.From, Dims: g.Last().Sub(g.From).AddN(1)}
}

// Crop restricts g to the samples that also fall inside the box of other.
// The result keeps the stride of g; it has zero dims if nothing overlaps.
func (g Grid) Crop(other Grid) Grid {
	s := g.Stride
	first := Max3(g.From, other.From)
	last := Min3(g.Last(), other.Last())
	first = first.Sub(g.From).Add(s).AddN(-1).FloorDiv(s).Mul(s).Add(g.From)
	last = last.Sub(g.From).FloorDiv(s).Mul(s).Add(g.From)
	out := Grid{From: first, Stride: s}
	if first.LessEq(last) {
		out.Dims = last.Sub(first).Div(s).AddN(1)
	}
	return out
}

// CropExtent crops two extents against each other.
func CropExtent(a, b Extent) Extent {
	g := a.Grid().Crop(b.Grid())
	return Extent{From: g.From, Dims: g.Dims}
}

// IsSubGrid reports whether every sample of g is a sample of other.
func (g Grid) IsSubGrid(other Grid) bool {
	if !other.From.LessEq(g.From) || !g.Last().LessEq(other.Last()) {
		return false
	}
	if !g.Stride.Mod(other.Stride).IsZero() {
		return false
	}
	return g.From.Sub(other.From).Mod(other.Stride).IsZero()
}

// SubGrid maps sub, expressed in the index space of g, to absolute positions.
func (g Grid) SubGrid(sub Grid) Grid {
	return Grid{From: g.From.Add(g.Stride.Mul(sub.From)), Dims: sub.Dims, Stride: g.Stride.Mul(sub.Stride)}
}

// Relative expresses g in the index space of other. g must be a sub-grid of other.
func (g Grid) Relative(other Grid) Grid {
	return Grid{
		From:   g.From.Sub(other.From).Div(other.Stride),
		Dims:   g.Dims,
		Stride: g.Stride.Div(other.Stride),
	}
}

// SplitAlternate splits g along axis d into its even-indexed (low) and
// odd-indexed (high) samples.
func (g Grid) SplitAlternate(d int) (Grid, Grid) {
	first, second := g, g
	n := g.Dims[d]
	first.Dims[d] = (n + 1) >> 1
	first.Stride[d] <<= 1
	second.Dims[d] = n - first.Dims[d]
	second.Stride[d] <<= 1
	second.From[d] += g.Stride[d]
	return first, second
}

// Overlaps reports whether the half-open boxes [aFrom, aTo) and [bFrom, bTo)
// intersect on every axis.
func Overlaps(aFrom, aTo, bFrom, bTo V3) bool {
	return aFrom.Less(bTo) && bFrom.Less(aTo)
}
