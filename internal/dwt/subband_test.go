package dwt

import (
	"testing"

	"github.com/mrjoshuak/go-idx2/internal/volume"
)

func TestBuildSubbands_OneLevel(t *testing.T) {
	sbs := BuildSubbands(volume.Splat(9), 1, MustEncodeTransformOrder("XYZ++"))
	if len(sbs) != 8 {
		t.Fatalf("len = %d, want 8", len(sbs))
	}
	for i, s := range sbs {
		lh := volume.V3{i >> 2 & 1, i >> 1 & 1, i & 1}
		if s.LowHigh != lh {
			t.Errorf("subband %d LowHigh = %v, want %v", i, s.LowHigh, lh)
		}
		if s.Grid.From != lh {
			t.Errorf("subband %d From = %v, want %v", i, s.Grid.From, lh)
		}
		if s.Grid.Stride != volume.Splat(2) {
			t.Errorf("subband %d Stride = %v, want 2", i, s.Grid.Stride)
		}
		wantDims := volume.Splat(5).Sub(lh)
		if s.Grid.Dims != wantDims {
			t.Errorf("subband %d Dims = %v, want %v", i, s.Grid.Dims, wantDims)
		}
		if s.Level != 0 {
			t.Errorf("subband %d Level = %d, want 0", i, s.Level)
		}
		if s.Level3 != lh {
			t.Errorf("subband %d Level3 = %v, want %v", i, s.Level3, lh)
		}
	}
}

func TestBuildSubbands_TwoLevels(t *testing.T) {
	sbs := BuildSubbands(volume.Splat(17), 2, MustEncodeTransformOrder("XYZ++"))
	if len(sbs) != 15 {
		t.Fatalf("len = %d, want 15", len(sbs))
	}
	for i, s := range sbs {
		want := 0
		if i >= 8 {
			want = 1
		}
		if s.Level != want {
			t.Errorf("subband %d Level = %d, want %d", i, s.Level, want)
		}
	}
	if got := sbs[0].Grid; got.Stride != volume.Splat(4) || got.Dims != volume.Splat(5) {
		t.Errorf("coarsest subband = %+v, want dims 5 stride 4", got)
	}
	if got := sbs[14].Grid; got.From != volume.Splat(1) || got.Dims != volume.Splat(8) {
		t.Errorf("finest HHH subband = %+v, want from 1 dims 8", got)
	}
}

func TestBuildSubbands_2D(t *testing.T) {
	sbs := BuildSubbands(volume.V3{9, 9, 1}, 1, MustEncodeTransformOrder("XY++"))
	if len(sbs) != 4 {
		t.Fatalf("len = %d, want 4", len(sbs))
	}
	if got := sbs[3].LowHigh; got != (volume.V3{1, 1, 0}) {
		t.Errorf("subband 3 LowHigh = %v, want [1 1 0]", got)
	}
}
