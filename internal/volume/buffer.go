package volume

import (
	"fmt"
	"math"
)

// DataType identifies the sample type of a field.
type DataType int

const (
	// Float32 is a single-precision sample.
	Float32 DataType = iota
	// Float64 is a double-precision sample.
	Float64
)

// Size returns the number of bytes per sample.
func (t DataType) Size() int {
	if t == Float32 {
		return 4
	}
	return 8
}

// String returns the metadata spelling of the type.
func (t DataType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// ParseDataType parses the metadata spelling of a type.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32", "Float32":
		return Float32, nil
	case "float64", "Float64":
		return Float64, nil
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// ExpBias is the exponent bias of the IEEE format matching t.
func (t DataType) ExpBias() int {
	if t == Float32 {
		return 127
	}
	return 1023
}

// Exponent returns the binary exponent of v as frexp reports it, clamped to
// the smallest normal exponent of t. Zero maps to -ExpBias.
func (t DataType) Exponent(v float64) int {
	if v == 0 {
		return -t.ExpBias()
	}
	if t == Float32 {
		v = float64(float32(v))
		if v == 0 {
			return -t.ExpBias()
		}
	}
	_, e := math.Frexp(v)
	return max(e, 1-t.ExpBias())
}

// Buffer is a dense row-major (X fastest) float64 array. Brick samples are
// always processed in float64 regardless of the field type.
type Buffer struct {
	Dims V3
	Data []float64
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(dims V3) *Buffer {
	return &Buffer{Dims: dims, Data: make([]float64, dims.Prod())}
}

// Index returns the linear index of position p.
func (b *Buffer) Index(p V3) int {
	return (p[2]*b.Dims[1]+p[1])*b.Dims[0] + p[0]
}

// At returns the sample at p.
func (b *Buffer) At(p V3) float64 { return b.Data[b.Index(p)] }

// Set stores v at p.
func (b *Buffer) Set(p V3, v float64) { b.Data[b.Index(p)] = v }

// Fill sets every sample to v.
func (b *Buffer) Fill(v float64) {
	for i := range b.Data {
		b.Data[i] = v
	}
}

// Grid returns the unit-stride grid covering the whole buffer.
func (b *Buffer) Grid() Grid { return NewGrid(b.Dims) }

// Volume is a typed dense array holding either float32 or float64 samples.
type Volume struct {
	Dims V3
	Type DataType
	F32  []float32
	F64  []float64
}

// NewVolume allocates a zeroed volume of the given type.
func NewVolume(dims V3, t DataType) *Volume {
	v := &Volume{Dims: dims, Type: t}
	if t == Float32 {
		v.F32 = make([]float32, dims.Prod())
	} else {
		v.F64 = make([]float64, dims.Prod())
	}
	return v
}

// Index returns the linear index of position p.
func (v *Volume) Index(p V3) int {
	return (p[2]*v.Dims[1]+p[1])*v.Dims[0] + p[0]
}

// At returns the sample at linear index i as float64.
func (v *Volume) At(i int) float64 {
	if v.Type == Float32 {
		return float64(v.F32[i])
	}
	return v.F64[i]
}

// Set stores x at linear index i, converting to the volume type.
func (v *Volume) Set(i int, x float64) {
	if v.Type == Float32 {
		v.F32[i] = float32(x)
		return
	}
	v.F64[i] = x
}

// Len returns the number of samples.
func (v *Volume) Len() int { return v.Dims.Prod() }
