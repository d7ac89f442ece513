package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	idx2 "github.com/mrjoshuak/go-idx2"
)

type encodeFlags struct {
	input     string
	name      string
	field     string
	dims      v3Value
	typ       string
	brick     v3Value
	nLevels   int
	tolerance float64
	bpChunk   int
	bpFile    int
	bpc       int
	cpf       int
	fpd       int
	version   versionValue
	outDir    string
}

func newEncodeCmd(g *globalFlags) *cobra.Command {
	def := idx2.DefaultOptions()
	fl := &encodeFlags{
		brick:   v3Value(def.BrickDims),
		nLevels: def.NLevels,
		bpChunk: def.BitPlanesPerChunk,
		bpFile:  def.BitPlanesPerFile,
		bpc:     def.BricksPerChunk,
		cpf:     def.ChunksPerFile,
		fpd:     def.FilesPerDir,
		version: versionValue(def.Version),
		outDir:  def.OutDir,
	}
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a raw volume into an IDX2 dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := fl.options()
			if err != nil {
				return err
			}
			opts.Logger = g.logger(cmd)
			src, err := idx2.OpenRawFile(fl.input, opts.Dims, opts.Type)
			if err != nil {
				return err
			}
			defer src.Close()
			stats, err := idx2.Encode(cmd.Context(), opts, src)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bricks, %d chunks, %d files, %d bytes\n",
				filepath.Join(opts.OutDir, opts.Name, opts.Field+".idx2"),
				stats.Bricks, stats.Chunks+stats.ExponentChunks, stats.Files, stats.FileBytes)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&fl.input, "input", "i", "", "raw input file")
	f.StringVar(&fl.name, "name", "", "dataset name")
	f.StringVar(&fl.field, "field", "", "field name")
	f.Var(&fl.dims, "dims", "volume size")
	f.StringVar(&fl.typ, "type", "", "sample type (float32 or float64)")
	f.Var(&fl.brick, "brick-size", "brick size, powers of two")
	f.IntVar(&fl.nLevels, "num-levels", fl.nLevels, "resolution levels (0 guesses)")
	f.Float64Var(&fl.tolerance, "tolerance", 0, "absolute error tolerance")
	f.IntVar(&fl.bpChunk, "bit-planes-per-chunk", fl.bpChunk, "bit planes per chunk")
	f.IntVar(&fl.bpFile, "bit-planes-per-file", fl.bpFile, "bit planes per file")
	f.IntVar(&fl.bpc, "bricks-per-chunk", fl.bpc, "bricks per chunk, a power of two")
	f.IntVar(&fl.cpf, "chunks-per-file", fl.cpf, "chunks per file")
	f.IntVar(&fl.fpd, "files-per-dir", fl.fpd, "files per directory")
	f.Var(&fl.version, "version", "format version")
	f.StringVarP(&fl.outDir, "out-dir", "o", fl.outDir, "output directory")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// options builds the encoder options, filling the parameters not given on
// the command line from the input file name.
func (fl *encodeFlags) options() (*idx2.Options, error) {
	opts := idx2.DefaultOptions()
	info, ok := parseRawName(filepath.Base(fl.input))
	if ok {
		opts.Name, opts.Field, opts.Dims, opts.Type = info.name, info.field, info.dims, info.typ
	}
	if fl.name != "" {
		opts.Name = fl.name
	}
	if fl.field != "" {
		opts.Field = fl.field
	}
	if d := idx2.V3(fl.dims); !d.IsZero() {
		opts.Dims = d
	}
	if fl.typ != "" {
		t, err := idx2.ParseDataType(fl.typ)
		if err != nil {
			return nil, err
		}
		opts.Type = t
	} else if !ok {
		return nil, fmt.Errorf("--type is required when the input name does not give it")
	}
	if opts.Name == "" || opts.Field == "" {
		return nil, fmt.Errorf("--name and --field are required when the input name does not give them")
	}
	if opts.Dims.IsZero() {
		return nil, fmt.Errorf("--dims is required when the input name does not give it")
	}
	opts.BrickDims = idx2.V3(fl.brick)
	opts.NLevels = fl.nLevels
	opts.Tolerance = fl.tolerance
	opts.BitPlanesPerChunk = fl.bpChunk
	opts.BitPlanesPerFile = fl.bpFile
	opts.BricksPerChunk = fl.bpc
	opts.ChunksPerFile = fl.cpf
	opts.FilesPerDir = fl.fpd
	opts.Version = [2]int(fl.version)
	opts.OutDir = fl.outDir
	return opts, nil
}
