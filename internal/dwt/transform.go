package dwt

import "github.com/mrjoshuak/go-idx2/internal/volume"

// TransformDetails is the precomputed sequence of lifting passes for one
// resolution level of a brick.
type TransformDetails struct {
	Grids   []volume.Grid // grid touched by each pass
	Axes    []int         // axis of each pass
	NPasses int           // number of levels covered
	Order   uint64        // order remaining after the last pass
}

// walkOrder simulates nLevels levels of the transform order on dims and
// returns the grid and axis of every lifting pass.
func walkOrder(dims volume.V3, nLevels int, order uint64) ([]volume.Grid, []int, uint64) {
	var grids []volume.Grid
	var axes []int
	prev := order
	d3, r3, s3 := dims, dims, volume.Splat(1)
	g := volume.NewGrid(dims)
	for level := 0; level < nLevels; {
		if order == 0 {
			break
		}
		d := int(order & 0x3)
		order >>= 2
		if d == 3 {
			if order == 3 {
				order = prev
			} else {
				prev = order
			}
			g.Stride = s3
			g.Dims = d3
			r3 = d3
			level++
			continue
		}
		grids = append(grids, g)
		axes = append(axes, d)
		r3[d] = d3[d] + (1 - d3[d]%2)
		g.Dims = r3
		d3[d] = (r3[d] + 1) >> 1
		s3[d] <<= 1
	}
	return grids, axes, order
}

// ComputeTransformDetails records the lifting passes needed to transform a
// buffer of the given dims by nPasses levels.
func ComputeTransformDetails(dims volume.V3, nPasses int, order uint64) TransformDetails {
	grids, axes, rest := walkOrder(dims, nPasses, order)
	return TransformDetails{Grids: grids, Axes: axes, NPasses: nPasses, Order: rest}
}

// subbandWeight returns the product of per-axis basis norms for subband s.
// Axes of extent 1 are not transformed and contribute 1.
func subbandWeight(m volume.V3, iter, nPasses int, s Subband) float64 {
	w := 1.0
	for d := 0; d < 3; d++ {
		if m[d] == 1 {
			continue
		}
		if s.LowHigh[d] == 0 {
			w *= cdf53Norms.Scal[iter*nPasses+s.Level3Rev[d]-1]
		} else {
			w *= cdf53Norms.Wave[iter*nPasses+s.Level3Rev[d]]
		}
	}
	return w
}

func scaleGrid(g volume.Grid, buf *volume.Buffer, w float64) {
	volume.ForEach(g.Dims, func(p volume.V3) {
		i := buf.Index(g.From.Add(p.Mul(g.Stride)))
		buf.Data[i] *= w
	})
}

// ForwardCdf53 transforms one level of a brick in place and normalizes its
// subbands. Subband 0 is only normalized on the coarsest level, since on
// other levels it is handed to the parent brick and transformed again.
func ForwardCdf53(m volume.V3, iter int, subbands []Subband, td TransformDetails, buf *volume.Buffer, coarsest bool) {
	for i, g := range td.Grids {
		liftForward(g, m, td.Axes[i], buf)
	}
	for i, s := range subbands {
		if i == 0 && !coarsest {
			continue
		}
		scaleGrid(s.Grid, buf, subbandWeight(m, iter, td.NPasses, s))
	}
}

// InverseCdf53 undoes ForwardCdf53.
func InverseCdf53(m volume.V3, iter int, subbands []Subband, td TransformDetails, buf *volume.Buffer, coarsest bool) {
	for i, s := range subbands {
		if i == 0 && !coarsest {
			continue
		}
		scaleGrid(s.Grid, buf, 1/subbandWeight(m, iter, td.NPasses, s))
	}
	for i := len(td.Grids) - 1; i >= 0; i-- {
		liftInverse(td.Grids[i], m, td.Axes[i], buf)
	}
}

// ForwardLevels runs nLevels unnormalized levels over the first dims
// samples of buf.
func ForwardLevels(dims, m volume.V3, nLevels int, order uint64, buf *volume.Buffer) {
	grids, axes, _ := walkOrder(dims, nLevels, order)
	for i, g := range grids {
		liftForward(g, m, axes[i], buf)
	}
}

// InverseLevels undoes ForwardLevels.
func InverseLevels(dims, m volume.V3, nLevels int, order uint64, buf *volume.Buffer) {
	grids, axes, _ := walkOrder(dims, nLevels, order)
	for i := len(grids) - 1; i >= 0; i-- {
		liftInverse(grids[i], m, axes[i], buf)
	}
}

// ExtrapolateCdf53 fills the samples of buf outside the leading dims region
// with a smooth continuation: it transforms the valid region as far as it
// goes and inverse transforms the whole buffer with all missing detail
// coefficients left at zero. The buffer dims must be 2^k+1 (or 1) per axis.
func ExtrapolateCdf53(dims volume.V3, order uint64, buf *volume.Buffer) {
	n3 := buf.Dims
	var m3 volume.V3
	for d := 0; d < 3; d++ {
		m3[d] = 1
		if n3[d] > 1 {
			m3[d] = n3[d] - 1
		}
	}
	nLevels := volume.Log2Floor(n3.MaxElem())
	ForwardLevels(dims, m3, nLevels, order, buf)
	InverseLevels(n3, m3, nLevels, order, buf)
}
