// Package dwt implements the CDF 5/3 lifting wavelet used to decorrelate
// IDX2 bricks.
//
// The transform runs in place on a float64 brick buffer. A transform order
// (see EncodeTransformOrder) selects the axis of every lifting pass and where
// each resolution level ends. Segments of even length are extended by one
// linearly extrapolated sample so that every level keeps an odd number of
// samples and the coarse grid nests inside the fine one.
package dwt

import (
	"math"

	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// MaxNormLevels is the number of precomputed basis norms.
const MaxNormLevels = 16

// Norms holds the L2 norms of the CDF 5/3 scaling and wavelet basis functions
// per level.
type Norms struct {
	Scal [MaxNormLevels]float64
	Wave [MaxNormLevels]float64
}

var cdf53Norms = computeNorms()

func computeNorms() Norms {
	var n Norms
	num1, num2 := 3.0, 23.0
	for i := 0; i < MaxNormLevels; i++ {
		n.Scal[i] = math.Sqrt(num1 / float64(int(1)<<(i+1)))
		num1 = num1*4 - 1
		n.Wave[i] = math.Sqrt(num2 / float64(int(1)<<(i+5)))
		num2 = num2*4 - 33
	}
	return n
}

// CDF53Norms returns the basis norms table.
func CDF53Norms() Norms { return cdf53Norms }

// axisStrides returns the buffer strides of the three axes, and the two axes
// orthogonal to a.
func axisStrides(dims volume.V3, a int) (stride [3]int, b, c int) {
	stride = [3]int{1, dims[0], dims[0] * dims[1]}
	b, c = (a+1)%3, (a+2)%3
	return stride, b, c
}

// liftForward runs one forward CDF 5/3 lifting pass along axis a over the
// samples of g. m clamps positions on every axis (the last valid index).
func liftForward(g volume.Grid, m volume.V3, a int, buf *volume.Buffer) {
	p, d, s := g.From, g.Dims, g.Stride
	if d[a] == 1 {
		return
	}
	st, b, c := axisStrides(buf.Dims, a)
	f := buf.Data
	x0 := min(p[a]+s[a]*d[a], m[a]) // extrapolated position
	x1 := min(p[a]+s[a]*(d[a]-1), m[a])
	x2 := p[a] + s[a]*(d[a]-2)
	x3 := p[a] + s[a]*(d[a]-3)
	ext := d[a]%2 == 0
	sa := s[a]
	end := p[a] + sa*(d[a]-2)
	for cc := p[c]; cc < p[c]+s[c]*d[c]; cc += s[c] {
		for bb := p[b]; bb < p[b]+s[b]*d[b]; bb += s[b] {
			base := min(cc, m[c])*st[c] + min(bb, m[b])*st[b]
			at := func(x int) int { return base + x*st[a] }
			if ext {
				f[at(x0)] = 2*f[at(x1)] - f[at(x2)]
			}
			// predict
			for x := p[a] + sa; x < end; x += 2 * sa {
				f[at(x)] -= (f[at(x-sa)] + f[at(x+sa)]) / 2
			}
			if !ext {
				f[at(x2)] -= (f[at(x1)] + f[at(x3)]) / 2
			} else if x1 < m[a] {
				f[at(x1)] = 0
			}
			// update
			for x := p[a] + sa; x < end; x += 2 * sa {
				v := f[at(x)] / 4
				f[at(x-sa)] += v
				f[at(x+sa)] += v
			}
			if !ext {
				v := f[at(x2)] / 4
				f[at(x3)] += v
				f[at(x1)] += v
			}
		}
	}
}

// liftInverse undoes liftForward.
func liftInverse(g volume.Grid, m volume.V3, a int, buf *volume.Buffer) {
	p, d, s := g.From, g.Dims, g.Stride
	if d[a] == 1 {
		return
	}
	st, b, c := axisStrides(buf.Dims, a)
	f := buf.Data
	x0 := min(p[a]+s[a]*d[a], m[a])
	x1 := min(p[a]+s[a]*(d[a]-1), m[a])
	x2 := p[a] + s[a]*(d[a]-2)
	x3 := p[a] + s[a]*(d[a]-3)
	ext := d[a]%2 == 0
	sa := s[a]
	end := p[a] + sa*(d[a]-2)
	for cc := p[c]; cc < p[c]+s[c]*d[c]; cc += s[c] {
		for bb := p[b]; bb < p[b]+s[b]*d[b]; bb += s[b] {
			base := min(cc, m[c])*st[c] + min(bb, m[b])*st[b]
			at := func(x int) int { return base + x*st[a] }
			for x := p[a] + sa; x < end; x += 2 * sa {
				v := f[at(x)] / 4
				f[at(x-sa)] -= v
				f[at(x+sa)] -= v
			}
			if !ext {
				v := f[at(x2)] / 4
				f[at(x3)] -= v
				f[at(x1)] -= v
			} else {
				f[at(x1)] = (f[at(x0)] + f[at(x2)]) / 2
			}
			for x := p[a] + sa; x < end; x += 2 * sa {
				f[at(x)] += (f[at(x-sa)] + f[at(x+sa)]) / 2
			}
			if !ext {
				f[at(x2)] += (f[at(x1)] + f[at(x3)]) / 2
			}
		}
	}
}
