// Package layout derives the immutable configuration of an IDX2 dataset:
// per-level brick, chunk and file counts, the space-filling orders that
// index them, the subband table of a brick and the directory layout of the
// data files.
//
// A File is filled with user parameters (directly or from a metadata file)
// and then completed by Finalize. After Finalize it must not be modified.
package layout

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/mrjoshuak/go-idx2/internal/dwt"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// Static limits of the format.
const (
	MaxBricksPerChunk = 32768
	MaxChunksPerFile  = 4096
	MaxFilesPerDir    = 4096
	MaxBrickDim       = 256
	MaxLevels         = 16
	MaxSpatialDepth   = 4
	// NTformPasses is the number of transform levels applied to a brick per
	// resolution level.
	NTformPasses = 1
)

// File describes one dataset.
type File struct {
	// User parameters.
	Name              string
	Field             string
	Dir               string // directory holding <Name>/<Field>/...
	Version           [2]int
	Dims              volume.V3
	Type              volume.DataType
	BrickDims         volume.V3
	NLevels           int // 0 lets Finalize choose
	Tolerance         float64
	BricksPerChunkIn  int
	ChunksPerFileIn   int
	FilesPerDir       int
	BitPlanesPerChunk int
	BitPlanesPerFile  int
	Downsampling      volume.V3 // per-axis power of two of the decode stride
	ValueRange        [2]float64

	// Derived by Finalize.
	BrickDimsExt       volume.V3
	TransformOrder     uint64
	TransformOrderFull string
	TransformDetails   dwt.TransformDetails
	Subbands           []dwt.Subband // of the extrapolated brick
	SubbandsNonExt     []dwt.Subband
	DecodeSubbandMasks []uint8       // per level, bit i set when subband i is decoded
	DecodeSpacings     [][]volume.V3 // per level and subband
	GroupBrick         volume.V3     // bricks of one level that form a brick of the next

	NBricks            []volume.V3
	NChunks            []volume.V3
	NFiles             []volume.V3
	BricksOrder        []uint64
	BricksOrderStr     []string
	BricksOrderInChunk []uint64
	ChunksOrderInFile  []uint64
	ChunksOrder        []uint64
	ChunksOrderStr     []string
	FilesOrder         []uint64
	FilesOrderStr      []string
	BricksPerChunk     []int
	ChunksPerFile      []int
	BricksPerFile      []int
	BricksPerChunk3    []volume.V3
	ChunksPerFile3     []volume.V3
	FilesDirsDepth     [][]int
}

// New returns a File with the default parameters.
func New() *File {
	return &File{
		Version:           [2]int{1, 0},
		Dims:              volume.Splat(256),
		Type:              volume.Float32,
		BrickDims:         volume.Splat(32),
		BricksPerChunkIn:  4096,
		ChunksPerFileIn:   64,
		FilesPerDir:       64,
		BitPlanesPerChunk: 1,
		BitPlanesPerFile:  16,
		ValueRange:        [2]float64{0, 0},
	}
}

// Finalize validates the parameters and computes the derived tables.
func (f *File) Finalize() error {
	if err := f.checkBrickSize(); err != nil {
		return err
	}
	f.guessNumLevels()
	if f.NLevels < 1 || f.NLevels > MaxLevels {
		return fmt.Errorf("%d levels, at most %d: %w", f.NLevels, MaxLevels, idxerr.TooManyLevels)
	}
	if f.BitPlanesPerChunk < 1 || f.BitPlanesPerChunk > f.BitPlanesPerFile || f.BitPlanesPerFile%f.BitPlanesPerChunk != 0 {
		return fmt.Errorf("bit planes per file %d not a multiple of bit planes per chunk %d: %w",
			f.BitPlanesPerFile, f.BitPlanesPerChunk, idxerr.SizeMismatched)
	}
	tformOrder := f.computeTransformOrder()
	f.buildSubbands()
	f.computeNumBricks()
	if err := f.computeBricksOrder(tformOrder); err != nil {
		return err
	}
	if err := f.computeLocalOrders(); err != nil {
		return err
	}
	if err := f.computeFileDirDepths(); err != nil {
		return err
	}
	f.TransformDetails = dwt.ComputeTransformDetails(f.BrickDimsExt, NTformPasses, f.TransformOrder)
	return nil
}

func (f *File) checkBrickSize() error {
	b := f.BrickDims
	if !volume.IsPow2(b[0]) || !volume.IsPow2(b[1]) || !volume.IsPow2(b[2]) {
		return fmt.Errorf("brick size %v: %w", b, idxerr.BrickSizeNotPowerOfTwo)
	}
	if b.MaxElem() > MaxBrickDim || !b.LessEq(f.Dims) {
		return fmt.Errorf("brick size %v, volume %v: %w", b, f.Dims, idxerr.BrickSizeTooBig)
	}
	return nil
}

func (f *File) guessNumLevels() {
	if f.NLevels != 0 {
		return
	}
	b := f.BrickDims
	for b.LessEq(f.Dims) {
		for d := range b {
			if b[d] > 1 {
				b[d] *= 2
			}
		}
		if b.LessEq(f.Dims) {
			f.NLevels++
		}
	}
	f.NLevels = max(f.NLevels, 1)
}

// computeTransformOrder repeats XYZ over the axes the brick spans.
func (f *File) computeTransformOrder() string {
	var sb strings.Builder
	for d := 0; d < 3; d++ {
		if f.BrickDims[d] > 1 {
			sb.WriteByte(byte('X' + d))
		}
	}
	sb.WriteString("++")
	s := sb.String()
	f.TransformOrder = dwt.MustEncodeTransformOrder(s)
	f.TransformOrderFull = dwt.AxisOrderForPasses(f.TransformOrder, NTformPasses)
	return s
}

// buildSubbands builds the subband tables and, from Downsampling, the
// subbands and spacings to decode on each level.
func (f *File) buildSubbands() {
	f.BrickDimsExt = f.BrickDims.Ext()
	f.Subbands = dwt.BuildSubbands(f.BrickDimsExt, NTformPasses, f.TransformOrder)
	f.SubbandsNonExt = dwt.BuildSubbands(f.BrickDims, NTformPasses, f.TransformOrder)

	var spacing volume.V3
	for d := range spacing {
		spacing[d] = 1 << uint(f.Downsampling[d])
	}
	f.DecodeSubbandMasks = make([]uint8, f.NLevels)
	f.DecodeSpacings = make([][]volume.V3, f.NLevels)
	acc := volume.Splat(1) // stride of subband 0 accumulated over the finer levels
	for l := 0; l < f.NLevels; l++ {
		mask := uint8(0xFF)
		f.DecodeSpacings[l] = make([]volume.V3, len(f.Subbands))
		for sb, s := range f.Subbands {
			from := s.Grid.From.Mul(acc)
			stride := s.Grid.Stride.Mul(acc)
			f.DecodeSpacings[l][sb] = volume.Splat(1)
			for d := 0; d < 3; d++ {
				if from[d]%spacing[d] != 0 {
					mask &^= 1 << uint(sb)
					continue
				}
				if stride[d]%spacing[d] != 0 {
					f.DecodeSpacings[l][sb][d] = spacing[d] / stride[d]
				}
			}
		}
		// Subband 0 alone is reached through the coarser level.
		if l+1 < f.NLevels && mask == 1 {
			mask = 0
		}
		f.DecodeSubbandMasks[l] = mask
		acc = acc.Mul(f.Subbands[0].Grid.Stride)
	}
}

func (f *File) computeNumBricks() {
	f.GroupBrick = f.BrickDims.Div(f.SubbandsNonExt[0].Grid.Dims)
	n := f.Dims.CeilDiv(f.BrickDims)
	f.NBricks = make([]volume.V3, f.NLevels)
	for l := range f.NBricks {
		f.NBricks[l] = n
		n = n.CeilDiv(f.GroupBrick)
	}
}

// computeBricksOrder prefixes the transform order with the axes the brick
// grid of each level spans beyond its smallest axis.
func (f *File) computeBricksOrder(tformOrder string) error {
	f.BricksOrder = make([]uint64, f.NLevels)
	f.BricksOrderStr = make([]string, f.NLevels)
	for l := 0; l < f.NLevels; l++ {
		logN := f.NBricks[l].Log2Ceil()
		var spans volume.V3
		for d := range spans {
			if f.BrickDims[d] > 1 {
				spans[d] = 1
			}
		}
		minLog := lo.Min(logN[:])
		left := logN.Sub(spans.MulN(minLog))
		var sb strings.Builder
		for d := 0; d < 3; d++ {
			if f.BrickDims[d] == 1 {
				for ; left[d] > 0; left[d]-- {
					sb.WriteByte(byte('X' + d))
				}
			}
		}
		for lo.Max(left[:]) > 0 {
			for d := 0; d < 3; d++ {
				if left[d] > 0 {
					sb.WriteByte(byte('X' + d))
				}
				left[d]--
			}
		}
		if sb.Len() > 0 {
			sb.WriteByte('+')
		}
		sb.WriteString(tformOrder)
		order, err := dwt.EncodeTransformOrder(sb.String())
		if err != nil {
			return fmt.Errorf("level %d brick order: %w", l, idxerr.TooManyLevels)
		}
		f.BricksOrder[l] = order
		f.BricksOrderStr[l] = dwt.AxisOrderForDims(order, f.NBricks[l])
		// The coarsest level may consist of a single brick.
		if l+1 < f.NLevels && len(f.BricksOrderStr[l]) < len(f.TransformOrderFull) {
			return fmt.Errorf("level %d has %v bricks: %w", l, f.NBricks[l], idxerr.TooManyLevels)
		}
	}
	return nil
}

// suffix returns the n characters of s preceding its last end characters,
// and the per-axis product of two per character.
func suffix(s string, end, n int) (string, volume.V3) {
	c3 := volume.Splat(1)
	out := []byte(s[len(s)-end-n : len(s)-end])
	for _, c := range out {
		c3[c-'X'] *= 2
	}
	return string(out), c3
}

func (f *File) computeLocalOrders() error {
	if f.BricksPerChunkIn > MaxBricksPerChunk {
		return fmt.Errorf("%d bricks per chunk: %w", f.BricksPerChunkIn, idxerr.TooManyBricksPerChunk)
	}
	if !volume.IsPow2(f.BricksPerChunkIn) {
		return fmt.Errorf("%d bricks per chunk: %w", f.BricksPerChunkIn, idxerr.BricksPerChunkNotPowerOf2)
	}
	if f.ChunksPerFileIn > MaxChunksPerFile {
		return fmt.Errorf("%d chunks per file: %w", f.ChunksPerFileIn, idxerr.TooManyChunksPerFile)
	}
	if !volume.IsPow2(f.ChunksPerFileIn) {
		return fmt.Errorf("%d chunks per file: %w", f.ChunksPerFileIn, idxerr.ChunksPerFileNotPowerOf2)
	}
	n := f.NLevels
	f.BricksPerChunk = make([]int, n)
	f.ChunksPerFile = make([]int, n)
	f.BricksPerChunk3 = make([]volume.V3, n)
	f.ChunksPerFile3 = make([]volume.V3, n)
	f.BricksOrderInChunk = make([]uint64, n)
	f.ChunksOrderInFile = make([]uint64, n)
	f.ChunksOrder = make([]uint64, n)
	f.ChunksOrderStr = make([]string, n)
	f.FilesOrder = make([]uint64, n)
	f.FilesOrderStr = make([]string, n)
	f.NChunks = make([]volume.V3, n)
	f.NFiles = make([]volume.V3, n)
	for l := 0; l < n; l++ {
		full := f.BricksOrderStr[l]

		nb := min(volume.Log2Ceil(f.BricksPerChunkIn), len(full))
		f.BricksPerChunk[l] = 1 << uint(nb)
		inChunk, c3 := suffix(full, 0, nb)
		f.BricksPerChunk3[l] = c3
		var err error
		if f.BricksOrderInChunk[l], err = encodeAxes(inChunk); err != nil {
			return err
		}

		f.NChunks[l] = f.NBricks[l].CeilDiv(c3)
		nc := min(volume.Log2Ceil(f.ChunksPerFileIn), len(full)-nb)
		f.ChunksPerFile[l] = 1 << uint(nc)
		inFile, f3 := suffix(full, nb, nc)
		f.ChunksPerFile3[l] = f3
		if f.ChunksOrderInFile[l], err = encodeAxes(inFile); err != nil {
			return err
		}
		f.NFiles[l] = f.NChunks[l].CeilDiv(f3)

		chunks, _ := suffix(full, nb, len(full)-nb)
		if f.ChunksOrder[l], err = encodeAxes(chunks); err != nil {
			return err
		}
		f.ChunksOrderStr[l] = dwt.AxisOrderForDims(f.ChunksOrder[l], f.NChunks[l])

		files, _ := suffix(full, nb+nc, len(full)-nb-nc)
		if f.FilesOrder[l], err = encodeAxes(files); err != nil {
			return err
		}
		f.FilesOrderStr[l] = dwt.AxisOrderForDims(f.FilesOrder[l], f.NFiles[l])
	}
	return nil
}

// encodeAxes packs a string of axis characters.
func encodeAxes(s string) (uint64, error) {
	v, err := dwt.EncodeTransformOrder(s)
	if err != nil {
		return 0, fmt.Errorf("volume has too many bricks: %w", idxerr.InvalidArgument)
	}
	return v, nil
}

// computeFileDirDepths splits the brick bits of every level into the bits
// addressing bricks inside a file and up to MaxSpatialDepth-1 directory
// levels above it, coarsest first.
func (f *File) computeFileDirDepths() error {
	if f.FilesPerDir > MaxFilesPerDir || f.FilesPerDir < 1 {
		return fmt.Errorf("%d files per directory: %w", f.FilesPerDir, idxerr.TooManyFilesPerDir)
	}
	f.BricksPerFile = make([]int, f.NLevels)
	f.FilesDirsDepth = make([][]int, f.NLevels)
	for l := 0; l < f.NLevels; l++ {
		f.BricksPerFile[l] = f.BricksPerChunk[l] * f.ChunksPerFile[l]
		acc := volume.Log2Ceil(f.BricksPerFile[l])
		depths := []int{acc}
		total := len(f.BricksOrderStr[l])
		for acc < total {
			inc := min(total-acc, volume.Log2Ceil(f.FilesPerDir))
			if inc == 0 {
				return fmt.Errorf("%d files per directory: %w", f.FilesPerDir, idxerr.TooManyFilesPerDir)
			}
			depths = append(depths, inc)
			acc += inc
		}
		if len(depths) > MaxSpatialDepth {
			return fmt.Errorf("level %d needs %d directory levels: %w", l, len(depths), idxerr.TooManyFilesPerDir)
		}
		slices.Reverse(depths)
		f.FilesDirsDepth[l] = depths
	}
	return nil
}

// NumSubbands returns the number of subbands of a brick level.
func (f *File) NumSubbands() int { return len(f.Subbands) }

// BrickDimsAt returns the dims, in samples of the finest level, covered by
// one brick of level l.
func (f *File) BrickDimsAt(l int) volume.V3 {
	return f.BrickDims.Mul(f.GroupBrick.Pow(l))
}
