package dwt

import (
	"testing"

	"github.com/mrjoshuak/go-idx2/internal/volume"
)

func TestTransformOrder_EncodeDecode(t *testing.T) {
	tests := []struct {
		s    string
		want uint64
	}{
		{"XYZ++", 996},
		{"++", 15},
		{"X++", 60},
		{"ZYX++", 0x3C6},
		{"XY+XYZ++", 0},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			v, err := EncodeTransformOrder(tt.s)
			if err != nil {
				t.Fatalf("EncodeTransformOrder: %v", err)
			}
			if tt.want != 0 && v != tt.want {
				t.Errorf("EncodeTransformOrder(%q) = %d, want %d", tt.s, v, tt.want)
			}
			if got := DecodeTransformOrder(v); got != tt.s {
				t.Errorf("DecodeTransformOrder = %q, want %q", got, tt.s)
			}
		})
	}
}

func TestEncodeTransformOrder_Invalid(t *testing.T) {
	for _, s := range []string{"XYW++", "xyz++", "XYZXYZXYZXYZXYZXYZXYZXYZXYZXYZXYZ++"} {
		if _, err := EncodeTransformOrder(s); err == nil {
			t.Errorf("EncodeTransformOrder(%q) succeeded, want error", s)
		}
	}
}

func TestAxisOrderForDims(t *testing.T) {
	tests := []struct {
		order string
		dims  volume.V3
		want  string
	}{
		{"XYZ++", volume.Splat(4), "XYZXYZ"},
		{"XYZ++", volume.V3{8, 4, 1}, "XYZ"},
		{"XY++", volume.V3{4, 4, 1}, "XYXY"},
		{"XYZ+XY++", volume.V3{32, 32, 2}, "XYZXYXYXYXY"},
	}

	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			got := AxisOrderForDims(MustEncodeTransformOrder(tt.order), tt.dims)
			if got != tt.want {
				t.Errorf("AxisOrderForDims(%q, %v) = %q, want %q", tt.order, tt.dims, got, tt.want)
			}
		})
	}
}

func TestAxisOrderForPasses(t *testing.T) {
	if got := AxisOrderForPasses(MustEncodeTransformOrder("XYZ++"), 2); got != "XYZXYZ" {
		t.Errorf("AxisOrderForPasses = %q, want XYZXYZ", got)
	}
	if got := AxisOrderForPasses(MustEncodeTransformOrder("XY++"), 1); got != "XY" {
		t.Errorf("AxisOrderForPasses = %q, want XY", got)
	}
}
