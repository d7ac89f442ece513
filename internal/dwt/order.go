package dwt

import (
	"fmt"
	"strings"

	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// A transform order string is made of the characters X, Y, Z and '+'. X, Y
// and Z name the axis of a lifting pass and '+' ends a resolution level.
// "++" ends the string; when the levels outnumber the written ones, the last
// level's order repeats. The packed form stores one character per two bits,
// first character lowest, with X=0, Y=1, Z=2 and '+'=3.
const levelEnd = 3

// EncodeTransformOrder packs a transform order string.
func EncodeTransformOrder(s string) (uint64, error) {
	if len(s) > 32 {
		return 0, fmt.Errorf("dwt: transform order %q longer than 32 characters", s)
	}
	var v uint64
	for i := len(s) - 1; i >= 0; i-- {
		var t uint64
		switch c := s[i]; c {
		case 'X', 'Y', 'Z':
			t = uint64(c - 'X')
		case '+':
			t = levelEnd
		default:
			return 0, fmt.Errorf("dwt: invalid character %q in transform order %q", c, s)
		}
		v = v<<2 + t
	}
	return v, nil
}

// MustEncodeTransformOrder is like EncodeTransformOrder but panics on error.
func MustEncodeTransformOrder(s string) uint64 {
	v, err := EncodeTransformOrder(s)
	if err != nil {
		panic(err)
	}
	return v
}

// DecodeTransformOrder unpacks a transform order back into its string form.
func DecodeTransformOrder(v uint64) string {
	var sb strings.Builder
	for ; v != 0; v >>= 2 {
		if t := v & 0x3; t == levelEnd {
			sb.WriteByte('+')
		} else {
			sb.WriteByte(byte('X' + t))
		}
	}
	return sb.String()
}

// AxisOrderForDims returns the sequence of axis passes that order applies
// to a brick of the given dims until every axis is reduced to one sample,
// as a string of X, Y and Z.
func AxisOrderForDims(v uint64, dims volume.V3) string {
	n := dims.NextPow2()
	saved := v
	var sb strings.Builder
	for n.Prod() > 1 {
		t := int(v & 0x3)
		v >>= 2
		if t == levelEnd {
			if v == levelEnd {
				v = saved
			} else {
				saved = v
			}
			continue
		}
		sb.WriteByte(byte('X' + t))
		n[t] >>= 1
	}
	return sb.String()
}

// AxisOrderForPasses returns the axis passes of order up to the first axis
// that would exceed passes transforms.
func AxisOrderForPasses(v uint64, passes int) string {
	saved := v
	left := volume.Splat(passes)
	var sb strings.Builder
	for {
		t := int(v & 0x3)
		v >>= 2
		if t == levelEnd {
			if v == levelEnd {
				v = saved
			} else {
				saved = v
			}
			continue
		}
		left[t]--
		if left[t] < 0 {
			break
		}
		sb.WriteByte(byte('X' + t))
	}
	return sb.String()
}
