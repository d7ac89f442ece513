package idx2

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/layout"
	"github.com/mrjoshuak/go-idx2/internal/meta"
)

// Dataset is an encoded field opened for decoding. It is safe for
// concurrent use; every decode works on its own copy of the layout.
type Dataset struct {
	path string
	file *layout.File
}

// Open reads the metadata file at path, <dir>/<Name>/<Field>.idx2. Data
// files are looked up under <dir> unless DecodeOptions.InDir says
// otherwise.
func Open(path string) (*Dataset, error) {
	f := layout.New()
	if err := meta.ReadFile(path, f); err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	f.Dir = filepath.Dir(filepath.Dir(path))
	if err := f.Finalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Dataset{path: path, file: f}, nil
}

// Path returns the metadata path the dataset was opened from.
func (d *Dataset) Path() string { return d.path }

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.file.Name }

// Field returns the field name.
func (d *Dataset) Field() string { return d.file.Field }

// Dims returns the size of the volume.
func (d *Dataset) Dims() V3 { return d.file.Dims }

// Type returns the sample type.
func (d *Dataset) Type() DataType { return d.file.Type }

// BrickDims returns the size of a brick.
func (d *Dataset) BrickDims() V3 { return d.file.BrickDims }

// NLevels returns the number of resolution levels.
func (d *Dataset) NLevels() int { return d.file.NLevels }

// Tolerance returns the tolerance the dataset was encoded with.
func (d *Dataset) Tolerance() float64 { return d.file.Tolerance }

// ValueRange returns the smallest and largest sample of the volume.
func (d *Dataset) ValueRange() [2]float64 { return d.file.ValueRange }

// Bricks returns the brick counts of every level, finest first.
func (d *Dataset) Bricks() []V3 { return slices.Clone(d.file.NBricks) }

// WriteMetadata writes the metadata document of the dataset to w.
func (d *Dataset) WriteMetadata(w io.Writer) error { return meta.Write(w, d.file) }

// session returns a finalized copy of the layout for one decode.
func (d *Dataset) session(o *DecodeOptions) (*layout.File, error) {
	for _, v := range o.Downsampling {
		if v < 0 || v >= layout.MaxLevels {
			return nil, fmt.Errorf("downsampling %v: %w", o.Downsampling, idxerr.InvalidArgument)
		}
	}
	f := *d.file
	f.Downsampling = o.Downsampling
	if o.InDir != "" {
		f.Dir = o.InDir
	}
	if err := f.Finalize(); err != nil {
		return nil, err
	}
	return &f, nil
}
