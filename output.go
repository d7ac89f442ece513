package idx2

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mrjoshuak/go-idx2/internal/brickpool"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// RawFileName returns the default name of a decoded raw file:
//
//	<name>-<field>-[<x>-<y>-<z>]-<Float32|Float64>-tolerance-<tolerance>.raw
func RawFileName(name, field string, dims V3, t DataType, tolerance float64) string {
	typ := "Float32"
	if t == Float64 {
		typ = "Float64"
	}
	return fmt.Sprintf("%s-%s-[%d-%d-%d]-%s-tolerance-%f.raw",
		name, field, dims[0], dims[1], dims[2], typ, tolerance)
}

func (d *decoder) outputPath() string {
	name := d.opts.OutFile
	if name == "" {
		name = RawFileName(d.f.Name, d.f.Field, d.outGrid.Dims, d.f.Type, d.opts.Tolerance)
	}
	return filepath.Join(d.opts.OutDir, name)
}

// WriteRaw writes the samples of v to w as little-endian values, X fastest.
func WriteRaw(w io.Writer, v *Volume) error {
	bw := bufio.NewWriter(w)
	var err error
	if v.Type == Float32 {
		err = binary.Write(bw, binary.LittleEndian, v.F32)
	} else {
		err = binary.Write(bw, binary.LittleEndian, v.F64)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

func writeRawFile(path string, v *Volume) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%s: %w: %w", dir, idxerr.CannotCreateDirectory, err)
	}
	fp, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := fp.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteRaw(fp, v)
}

// LevelStats counts the bricks of one level kept by a HashMap decode.
type LevelStats = brickpool.LevelStats

// BrickMap holds the bricks kept by a HashMap decode: the significant
// bricks of every level. A finest brick that was not kept resolves to the
// finest ancestor that was; bricks with no such ancestor have no data.
type BrickMap struct {
	pool *brickpool.Pool
}

// Len returns the number of kept bricks, over all levels.
func (m *BrickMap) Len() int { return m.pool.Len() }

// Brick returns the data of finest brick b3: the buffer holding it and the
// part of the buffer that covers b3.
func (m *BrickMap) Brick(b3 V3) (*Buffer, Extent, error) {
	bv, err := m.pool.BrickVolume(b3)
	if err != nil {
		return nil, volume.Extent{}, err
	}
	return bv.Buf, bv.ExtentLocal, nil
}

// Statistics returns the kept brick counts of every level.
func (m *BrickMap) Statistics() []LevelStats { return m.pool.Statistics() }

// WriteBricks writes every finest brick to w; see DecodeOptions.BrickDump.
func (m *BrickMap) WriteBricks(w io.Writer) error { return m.pool.WriteBricks(w) }
