// Package meta reads and writes the IDX2 metadata file, a small
// S-expression document describing a dataset:
//
//	(
//	  (common
//	    (type "Simulation")
//	    (name "miranda")
//	    (field "density")
//	    (dimensions 384 384 256)
//	    (data-type "float32")
//	    (min-max 0.0 3.0)
//	    (accuracy 0.001)
//	  )
//	  (format
//	    (version 1 0)
//	    (brick-size 32 32 32)
//	    (transform-order "XYZ++")
//	    (num-levels 2)
//	    ...
//	  )
//	)
package meta

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrjoshuak/go-idx2/internal/dwt"
	"github.com/mrjoshuak/go-idx2/internal/idxerr"
	"github.com/mrjoshuak/go-idx2/internal/layout"
	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// CheckString reports an InvalidArgument error when s cannot be written as a
// metadata string. Strings have no escapes, so quotes and control
// characters are rejected.
func CheckString(key, s string) error {
	if strings.ContainsFunc(s, func(r rune) bool { return r == '"' || r < 0x20 || r == 0x7F }) {
		return fmt.Errorf("%s %q: quotes and control characters are not allowed: %w", key, s, idxerr.InvalidArgument)
	}
	return nil
}

// Write writes the metadata of f.
func Write(w io.Writer, f *layout.File) error {
	if err := CheckString("name", f.Name); err != nil {
		return err
	}
	if err := CheckString("field", f.Field); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) { fmt.Fprintf(bw, format, args...) }
	p("(\n")
	p("  (common\n")
	p("    (type \"Simulation\")\n")
	p("    (name \"%s\")\n", f.Name)
	p("    (field \"%s\")\n", f.Field)
	p("    (dimensions %d %d %d)\n", f.Dims[0], f.Dims[1], f.Dims[2])
	p("    (data-type \"%s\")\n", f.Type)
	p("    (min-max %.20f %.20f)\n", f.ValueRange[0], f.ValueRange[1])
	p("    (accuracy %.20f)\n", f.Tolerance)
	p("  )\n")
	p("  (format\n")
	p("    (version %d %d)\n", f.Version[0], f.Version[1])
	p("    (brick-size %d %d %d)\n", f.BrickDims[0], f.BrickDims[1], f.BrickDims[2])
	p("    (transform-order \"%s\")\n", dwt.DecodeTransformOrder(f.TransformOrder))
	p("    (num-levels %d)\n", f.NLevels)
	p("    (transform-passes-per-levels %d)\n", layout.NTformPasses)
	p("    (bricks-per-chunk %d)\n", f.BricksPerChunkIn)
	p("    (chunks-per-file %d)\n", f.ChunksPerFileIn)
	p("    (files-per-directory %d)\n", f.FilesPerDir)
	p("    (bit-planes-per-chunk %d)\n", f.BitPlanesPerChunk)
	p("  )\n")
	p(")\n")
	return bw.Flush()
}

// WriteFile writes the metadata of f to f.MetaPath(), creating the
// directory if needed.
func WriteFile(f *layout.File) error {
	path := f.MetaPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%s: %w: %w", path, idxerr.CannotCreateDirectory, err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metadata file: %w", err)
	}
	if err := Write(out, f); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return out.Close()
}

func ints(key string, args []Expr, n int) ([]int, error) {
	if len(args) < n {
		return nil, fmt.Errorf("%s: want %d integers, got %d values: %w", key, n, len(args), idxerr.SyntaxError)
	}
	out := make([]int, n)
	for i := range out {
		if args[i].Kind != Int {
			return nil, fmt.Errorf("%s (line %d): value %d is not an integer: %w", key, args[i].Line, i, idxerr.SyntaxError)
		}
		out[i] = int(args[i].Int)
	}
	return out, nil
}

func str(key string, args []Expr) (string, error) {
	if len(args) < 1 || args[0].Kind != String {
		return "", fmt.Errorf("%s: want a string: %w", key, idxerr.SyntaxError)
	}
	return args[0].Str, nil
}

func floats(key string, args []Expr, n int) ([]float64, error) {
	if len(args) < n {
		return nil, fmt.Errorf("%s: want %d numbers, got %d values: %w", key, n, len(args), idxerr.SyntaxError)
	}
	out := make([]float64, n)
	for i := range out {
		if !args[i].Number() {
			return nil, fmt.Errorf("%s (line %d): value %d is not a number: %w", key, args[i].Line, i, idxerr.SyntaxError)
		}
		out[i] = args[i].Float
	}
	return out, nil
}

// Parse fills the user parameters of f from a metadata document. Keys
// that are absent keep their current value; unknown keys are ignored.
func Parse(src []byte, f *layout.File) error {
	root, err := parseRoot(src)
	if err != nil {
		return err
	}
	err = Walk(root, func(key string, args []Expr) error {
		switch key {
		case "version":
			v, err := ints(key, args, 2)
			if err != nil {
				return err
			}
			f.Version = [2]int{v[0], v[1]}
		case "name":
			s, err := str(key, args)
			if err != nil {
				return err
			}
			f.Name = s
		case "field":
			s, err := str(key, args)
			if err != nil {
				return err
			}
			f.Field = s
		case "dimensions":
			v, err := ints(key, args, 3)
			if err != nil {
				return err
			}
			f.Dims = volume.V3{v[0], v[1], v[2]}
		case "data-type":
			s, err := str(key, args)
			if err != nil {
				return err
			}
			t, err := volume.ParseDataType(s)
			if err != nil {
				return fmt.Errorf("%v: %w", err, idxerr.SyntaxError)
			}
			f.Type = t
		case "min-max":
			v, err := floats(key, args, 2)
			if err != nil {
				return err
			}
			f.ValueRange = [2]float64{v[0], v[1]}
		case "accuracy":
			v, err := floats(key, args, 1)
			if err != nil {
				return err
			}
			f.Tolerance = v[0]
		case "brick-size":
			v, err := ints(key, args, 3)
			if err != nil {
				return err
			}
			f.BrickDims = volume.V3{v[0], v[1], v[2]}
		case "transform-order":
			s, err := str(key, args)
			if err != nil {
				return err
			}
			order, err := dwt.EncodeTransformOrder(s)
			if err != nil {
				return fmt.Errorf("%v: %w", err, idxerr.SyntaxError)
			}
			f.TransformOrder = order
		case "num-levels":
			return setInt(key, args, &f.NLevels)
		case "bricks-per-chunk":
			return setInt(key, args, &f.BricksPerChunkIn)
		case "chunks-per-file":
			return setInt(key, args, &f.ChunksPerFileIn)
		case "files-per-directory":
			return setInt(key, args, &f.FilesPerDir)
		case "bit-planes-per-chunk":
			return setInt(key, args, &f.BitPlanesPerChunk)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if f.Version[0] != 1 {
		return fmt.Errorf("version %d.%d: %w", f.Version[0], f.Version[1], idxerr.NotSupportedInVersion)
	}
	return nil
}

func setInt(key string, args []Expr, dst *int) error {
	v, err := ints(key, args, 1)
	if err != nil {
		return err
	}
	*dst = v[0]
	return nil
}

func parseRoot(src []byte) (Expr, error) {
	root, err := ParseExpr(src)
	if err != nil {
		return Expr{}, err
	}
	if root.Kind != List {
		return Expr{}, fmt.Errorf("metadata is not a list: %w", idxerr.SyntaxError)
	}
	return root, nil
}

// Read reads a metadata document from r into f.
func Read(r io.Reader, f *layout.File) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}
	return Parse(src, f)
}

// ReadFile reads the metadata file at path into f.
func ReadFile(path string, f *layout.File) error {
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, idxerr.FileNotFound)
		}
		return fmt.Errorf("reading metadata: %w", err)
	}
	if err := Parse(src, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
