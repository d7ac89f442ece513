// Package volume provides the 3D vector, extent and grid algebra used to
// address bricks, subbands and output regions, plus the dense sample buffers
// they index into.
package volume

import "math/bits"

// V3 is a triple of integers indexed by axis (0 = X, 1 = Y, 2 = Z).
type V3 [3]int

// Splat returns a V3 with all components set to n.
func Splat(n int) V3 { return V3{n, n, n} }

func (a V3) Add(b V3) V3 { return V3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a V3) Sub(b V3) V3 { return V3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a V3) Mul(b V3) V3 { return V3{a[0] * b[0], a[1] * b[1], a[2] * b[2]} }
func (a V3) Div(b V3) V3 { return V3{a[0] / b[0], a[1] / b[1], a[2] / b[2]} }
func (a V3) Mod(b V3) V3 { return V3{a[0] % b[0], a[1] % b[1], a[2] % b[2]} }

// AddN adds n to every component.
func (a V3) AddN(n int) V3 { return V3{a[0] + n, a[1] + n, a[2] + n} }

// MulN multiplies every component by n.
func (a V3) MulN(n int) V3 { return V3{a[0] * n, a[1] * n, a[2] * n} }

// CeilDiv divides component-wise, rounding up.
func (a V3) CeilDiv(b V3) V3 {
	return V3{(a[0] + b[0] - 1) / b[0], (a[1] + b[1] - 1) / b[1], (a[2] + b[2] - 1) / b[2]}
}

// FloorDiv divides component-wise, rounding toward negative infinity.
func (a V3) FloorDiv(b V3) V3 {
	return V3{floorDiv(a[0], b[0]), floorDiv(a[1], b[1]), floorDiv(a[2], b[2])}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Prod returns the product of the components.
func (a V3) Prod() int { return a[0] * a[1] * a[2] }

// MaxElem returns the largest component.
func (a V3) MaxElem() int { return max(a[0], a[1], a[2]) }

// MinElem returns the smallest component.
func (a V3) MinElem() int { return min(a[0], a[1], a[2]) }

// Less reports whether every component of a is less than the one in b.
func (a V3) Less(b V3) bool { return a[0] < b[0] && a[1] < b[1] && a[2] < b[2] }

// LessEq reports whether every component of a is at most the one in b.
func (a V3) LessEq(b V3) bool { return a[0] <= b[0] && a[1] <= b[1] && a[2] <= b[2] }

// IsZero reports whether all components are zero.
func (a V3) IsZero() bool { return a == V3{} }

// Min3 returns the component-wise minimum.
func Min3(a, b V3) V3 { return V3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])} }

// Max3 returns the component-wise maximum.
func Max3(a, b V3) V3 { return V3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])} }

// Pow returns a raised component-wise to the n-th power.
func (a V3) Pow(n int) V3 {
	r := Splat(1)
	for i := 0; i < n; i++ {
		r = r.Mul(a)
	}
	return r
}

// NumDims returns the number of components greater than one.
func (a V3) NumDims() int {
	n := 0
	for _, v := range a {
		if v > 1 {
			n++
		}
	}
	return n
}

// Ext returns a with one added to every component greater than one.
func (a V3) Ext() V3 {
	for i, v := range a {
		if v > 1 {
			a[i] = v + 1
		}
	}
	return a
}

// NonExt returns a with one subtracted from every component greater than one.
func (a V3) NonExt() V3 {
	for i, v := range a {
		if v > 1 {
			a[i] = v - 1
		}
	}
	return a
}

// NextPow2 rounds every component up to a power of two.
func (a V3) NextPow2() V3 { return V3{NextPow2(a[0]), NextPow2(a[1]), NextPow2(a[2])} }

// Log2Ceil applies Log2Ceil to every component.
func (a V3) Log2Ceil() V3 { return V3{Log2Ceil(a[0]), Log2Ceil(a[1]), Log2Ceil(a[2])} }

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// Log2Floor returns floor(log2(n)) for n > 0.
func Log2Floor(n int) int { return bits.Len(uint(n)) - 1 }

// Log2Ceil returns ceil(log2(n)) for n > 0.
func Log2Ceil(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// NextPow2 returns the smallest power of two that is at least n.
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << Log2Ceil(n)
}
