// Package idx2 provides a pure Go implementation of the IDX2 codec for 3D
// scalar fields.
//
// IDX2 splits a float32 or float64 volume into bricks, transforms every
// brick with a multilevel CDF 5/3 wavelet and codes the coefficients bit
// plane by bit plane. The coded data is grouped by resolution level,
// subband and bit plane into chunks and files, so that a decoder can read
// only what a region, a resolution or an accuracy needs.
//
// Basic usage for encoding:
//
//	vol := idx2.NewVolume(idx2.V3{256, 256, 256}, idx2.Float32)
//	// fill vol.F32 ...
//	opts := idx2.DefaultOptions()
//	opts.Name, opts.Field = "miranda", "density"
//	opts.OutDir = "data"
//	opts.Tolerance = 1e-3
//	_, err := idx2.Encode(ctx, opts, idx2.NewVolumeSource(vol))
//
// Basic usage for decoding:
//
//	ds, err := idx2.Open("data/miranda/density.idx2")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dopts := idx2.DefaultDecodeOptions()
//	dopts.OutputMode = idx2.RegularGridMem
//	dopts.Downsampling = idx2.V3{1, 1, 1}
//	res, err := idx2.Decode(ctx, ds, dopts)
package idx2

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/layout"
	"github.com/mrjoshuak/go-idx2/internal/meta"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

type (
	// V3 is a triple of integers, one per axis, X first.
	V3 = volume.V3
	// Extent is a box of samples given by its first sample and its dims.
	Extent = volume.Extent
	// Grid is a box of samples taken every Stride samples.
	Grid = volume.Grid
	// Volume is a dense float32 or float64 array, X fastest.
	Volume = volume.Volume
	// Buffer is a dense float64 array, X fastest.
	Buffer = volume.Buffer
	// DataType is the sample type of a field.
	DataType = volume.DataType
)

// Sample types.
const (
	Float32 = volume.Float32
	Float64 = volume.Float64
)

// NewVolume allocates a zeroed volume.
func NewVolume(dims V3, t DataType) *Volume { return volume.NewVolume(dims, t) }

// ParseDataType parses "float32" or "float64".
func ParseDataType(s string) (DataType, error) {
	t, err := volume.ParseDataType(s)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, idxerr.InvalidArgument)
	}
	return t, nil
}

// OutputMode selects what Decode produces.
type OutputMode int

const (
	// RegularGridFile writes the decoded grid to a raw file.
	RegularGridFile OutputMode = iota
	// RegularGridMem returns the decoded grid as a Volume.
	RegularGridMem
	// HashMap keeps the significant bricks of every level in a BrickMap.
	HashMap
	// NoOutput decodes and discards the result.
	NoOutput
)

// String returns the string representation of the output mode.
func (m OutputMode) String() string {
	switch m {
	case RegularGridFile:
		return "RegularGridFile"
	case RegularGridMem:
		return "RegularGridMem"
	case HashMap:
		return "HashMap"
	case NoOutput:
		return "NoOutput"
	default:
		return "Unknown"
	}
}

// ChunkWriter receives the chunks of an encode instead of the data files.
// addr is the chunk address; exponent chunks use the exponent bit plane key.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, addr uint64, data []byte) error
}

// ChunkReader serves the chunks of a decode instead of the data files. It
// must return an error matching idxerr.ChunkNotFound for unknown addresses.
type ChunkReader interface {
	ReadChunk(ctx context.Context, addr uint64) ([]byte, error)
}

// Options specifies encoding parameters.
type Options struct {
	// Name is the dataset name, the first directory under OutDir.
	Name string

	// Field is the field name. The metadata file is
	// <OutDir>/<Name>/<Field>.idx2 and data files live under
	// <OutDir>/<Name>/<Field>/.
	Field string

	// OutDir is the root directory of the output. Default is ".".
	OutDir string

	// Dims is the size of the volume. If zero, the dims of the source are
	// used; otherwise they must match.
	Dims V3

	// Type is the sample type recorded in the metadata. Decoders produce
	// volumes of this type.
	Type DataType

	// BrickDims is the size of a brick, a power of two on every axis.
	// Default is 32x32x32.
	BrickDims V3

	// NLevels is the number of resolution levels. If zero, the largest
	// number of levels the volume allows is used.
	NLevels int

	// Tolerance is the absolute error the encoder aims for. Bit planes
	// finer than the tolerance are not coded. Zero codes every bit plane.
	Tolerance float64

	// BricksPerChunk is the number of bricks grouped in a chunk, a power
	// of two. Default is 4096.
	BricksPerChunk int

	// ChunksPerFile is the number of chunks grouped in a file, a power of
	// two. Default is 64.
	ChunksPerFile int

	// FilesPerDir is the number of files per directory. Default is 64.
	FilesPerDir int

	// BitPlanesPerChunk is the number of bit planes sharing a chunk.
	// Default is 1.
	BitPlanesPerChunk int

	// BitPlanesPerFile must be a multiple of BitPlanesPerChunk. Default
	// is 16.
	BitPlanesPerFile int

	// Version is the format version. Only major version 1 is supported.
	Version [2]int

	// ChunkWriter, if set, receives every chunk and no data files are
	// written. The metadata file is still written to OutDir.
	ChunkWriter ChunkWriter

	// Logger receives progress records. Default is slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default encoding options.
func DefaultOptions() *Options {
	f := layout.New()
	return &Options{
		OutDir:            ".",
		Type:              f.Type,
		BrickDims:         f.BrickDims,
		BricksPerChunk:    f.BricksPerChunkIn,
		ChunksPerFile:     f.ChunksPerFileIn,
		FilesPerDir:       f.FilesPerDir,
		BitPlanesPerChunk: f.BitPlanesPerChunk,
		BitPlanesPerFile:  f.BitPlanesPerFile,
		Version:           f.Version,
	}
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// layout validates o and derives the dataset layout for a source of the
// given dims.
func (o *Options) layout(dims V3) (*layout.File, error) {
	if o.Name == "" || o.Field == "" {
		return nil, fmt.Errorf("name %q, field %q: %w", o.Name, o.Field, idxerr.InvalidArgument)
	}
	if err := meta.CheckString("name", o.Name); err != nil {
		return nil, err
	}
	if err := meta.CheckString("field", o.Field); err != nil {
		return nil, err
	}
	if o.Version[0] != 1 {
		return nil, fmt.Errorf("version %d.%d: %w", o.Version[0], o.Version[1], idxerr.NotSupportedInVersion)
	}
	if o.Type != Float32 && o.Type != Float64 {
		return nil, fmt.Errorf("data type %d: %w", o.Type, idxerr.InvalidArgument)
	}
	if o.Tolerance < 0 {
		return nil, fmt.Errorf("tolerance %g: %w", o.Tolerance, idxerr.InvalidArgument)
	}
	if !o.Dims.IsZero() && o.Dims != dims {
		return nil, fmt.Errorf("options dims %v, source dims %v: %w", o.Dims, dims, idxerr.SizeMismatched)
	}
	if dims.MinElem() < 1 {
		return nil, fmt.Errorf("dims %v: %w", dims, idxerr.InvalidArgument)
	}
	f := layout.New()
	f.Name = o.Name
	f.Field = o.Field
	f.Dir = o.OutDir
	if f.Dir == "" {
		f.Dir = "."
	}
	f.Version = o.Version
	f.Dims = dims
	f.Type = o.Type
	f.BrickDims = o.BrickDims
	f.NLevels = o.NLevels
	f.Tolerance = o.Tolerance
	f.BricksPerChunkIn = o.BricksPerChunk
	f.ChunksPerFileIn = o.ChunksPerFile
	f.FilesPerDir = o.FilesPerDir
	f.BitPlanesPerChunk = o.BitPlanesPerChunk
	f.BitPlanesPerFile = o.BitPlanesPerFile
	if err := f.Finalize(); err != nil {
		return nil, err
	}
	return f, nil
}

// DecodeOptions specifies decoding parameters.
type DecodeOptions struct {
	// Extent is the region to decode, in samples of the finest level. If
	// nil, the whole volume is decoded. An extent outside the volume
	// yields an empty result.
	Extent *Extent

	// Tolerance is the absolute error the decoder may stop at. It cannot
	// be finer than the tolerance the dataset was encoded with.
	Tolerance float64

	// Downsampling is the per-axis power of two of the output stride.
	// (1, 1, 1) decodes every other sample on every axis.
	Downsampling V3

	// OutputMode selects what Decode produces. Default is RegularGridMem.
	OutputMode OutputMode

	// OutDir and OutFile name the raw file written in RegularGridFile
	// mode. If OutFile is empty, a name is derived from the dataset and
	// the decode parameters.
	OutDir  string
	OutFile string

	// InDir overrides the directory holding <Name>/<Field>/. By default it
	// is derived from the metadata path given to Open.
	InDir string

	// BrickDump, if set in HashMap mode, is the path the kept bricks are
	// written to.
	BrickDump string

	// Workers bounds the number of concurrent subtree decodes of
	// ParallelDecode. Zero means GOMAXPROCS.
	Workers int

	// ChunkReader, if set, serves every chunk and no data file is opened.
	ChunkReader ChunkReader

	// Logger receives progress records. Default is slog.Default().
	Logger *slog.Logger
}

// DefaultDecodeOptions returns the default decoding options.
func DefaultDecodeOptions() *DecodeOptions {
	return &DecodeOptions{
		OutputMode: RegularGridMem,
		OutDir:     ".",
	}
}

func (o *DecodeOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
