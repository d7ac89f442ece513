package dwt

import (
	"slices"

	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// Subband is one region of a transformed brick.
type Subband struct {
	Grid      volume.Grid
	Level3    volume.V3 // per-axis level, 0 is the coarsest
	Level3Rev volume.V3 // per-axis level, 0 is the finest
	LowHigh   volume.V3 // 0 for low-pass, 1 for high-pass, per axis
	Level     int       // resolution level, 0 is the coarsest
}

// BuildSubbands lists the subbands produced by nLevels levels of order on a
// brick of dims n3. Subband 0 is the coarsest low-pass band; within a level,
// subband indices grow with the high-pass axes, X being the most significant.
func BuildSubbands(n3 volume.V3, nLevels int, order uint64) []Subband {
	queue := []Subband{{Grid: volume.NewGrid(n3)}}
	var out []Subband
	var maxLevel3 volume.V3
	prev := order
	for level := 0; level < nLevels && order != 0; {
		d := int(order & 0x3)
		order >>= 2
		if d == levelEnd {
			if order == levelEnd {
				order = prev
			} else {
				prev = order
			}
			for i := len(queue) - 1; i >= 1; i-- {
				out = append(out, queue[i])
			}
			queue = queue[:1]
			level++
			continue
		}
		maxLevel3[d]++
		n := len(queue)
		for i := 0; i < n; i++ {
			s := queue[i]
			lo, hi := s.Grid.SplitAlternate(d)
			next := s.Level3
			next[d]++
			highLH := s.LowHigh
			highLH[d] = 1
			queue = append(queue,
				Subband{Grid: lo, Level3: next, Level3Rev: next, LowHigh: s.LowHigh, Level: level},
				Subband{Grid: hi, Level3: s.Level3, Level3Rev: s.Level3, LowHigh: highLH, Level: level},
			)
		}
		queue = append(queue[:0], queue[n:]...)
	}
	if len(queue) > 0 {
		out = append(out, queue[0])
	}
	for i := range out {
		out[i].Level3 = maxLevel3.Sub(out[i].Level3Rev)
		out[i].Level = nLevels - out[i].Level - 1
	}
	slices.Reverse(out)
	return out
}
