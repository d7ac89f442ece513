package main

import (
	"fmt"

	"github.com/spf13/cobra"

	idx2 "github.com/mrjoshuak/go-idx2"
)

type decodeFlags struct {
	input        string
	inDir        string
	first        v3Value
	last         v3Value
	downsampling v3Value
	tolerance    float64
	parallel     bool
	workers      int
	brickMap     bool
	brickDump    string
	outDir       string
	outFile      string
	dry          bool
}

func newDecodeCmd(g *globalFlags) *cobra.Command {
	fl := &decodeFlags{outDir: "."}
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a region of an IDX2 dataset into a raw file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := idx2.Open(fl.input)
			if err != nil {
				return err
			}
			opts := fl.options(cmd, ds)
			opts.Logger = g.logger(cmd)
			decode := idx2.Decode
			if fl.parallel {
				decode = idx2.ParallelDecode
			}
			res, err := decode(cmd.Context(), ds, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case res.Path != "":
				fmt.Fprintf(out, "%s: %v samples\n", res.Path, res.Grid.Dims)
			case res.Bricks != nil:
				for _, s := range res.Bricks.Statistics() {
					fmt.Fprintf(out, "level %d: %d of %d bricks (%.2f%%)\n", s.Level, s.Significant, s.Total, s.Percent())
				}
			}
			fmt.Fprintf(out, "%d bricks, %d chunks, %d bytes read\n", res.Stats.Bricks, res.Stats.Chunks, res.Stats.Bytes)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&fl.input, "input", "i", "", "metadata file (.idx2)")
	f.StringVar(&fl.inDir, "in-dir", "", "directory holding <name>/<field>/ (default: from --input)")
	f.Var(&fl.first, "first", "first sample of the region")
	f.Var(&fl.last, "last", "last sample of the region, inclusive (default: end of the volume)")
	f.Var(&fl.downsampling, "downsampling", "per-axis power of two of the output stride")
	f.Float64Var(&fl.tolerance, "tolerance", 0, "absolute error tolerance")
	f.BoolVar(&fl.parallel, "parallel", false, "decode coarsest bricks concurrently")
	f.IntVar(&fl.workers, "workers", 0, "concurrent decodes with --parallel (0: GOMAXPROCS)")
	f.BoolVar(&fl.brickMap, "brick-map", false, "keep significant bricks instead of writing a raw file")
	f.StringVar(&fl.brickDump, "brick-dump", "", "with --brick-map, write the bricks to this file")
	f.StringVarP(&fl.outDir, "out-dir", "o", fl.outDir, "output directory")
	f.StringVar(&fl.outFile, "out-file", "", "output file name (default: derived from the dataset)")
	f.BoolVar(&fl.dry, "dry", false, "decode without producing output")
	cmd.MarkFlagsMutuallyExclusive("brick-map", "dry")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (fl *decodeFlags) options(cmd *cobra.Command, ds *idx2.Dataset) *idx2.DecodeOptions {
	opts := idx2.DefaultDecodeOptions()
	opts.OutputMode = idx2.RegularGridFile
	switch {
	case fl.dry:
		opts.OutputMode = idx2.NoOutput
	case fl.brickMap:
		opts.OutputMode = idx2.HashMap
	}
	first := idx2.V3(fl.first)
	last := ds.Dims().AddN(-1)
	if cmd.Flags().Changed("last") {
		last = idx2.V3(fl.last)
	}
	opts.Extent = &idx2.Extent{From: first, Dims: last.Sub(first).AddN(1)}
	opts.Tolerance = fl.tolerance
	opts.Downsampling = idx2.V3(fl.downsampling)
	opts.InDir = fl.inDir
	opts.Workers = fl.workers
	opts.BrickDump = fl.brickDump
	opts.OutDir = fl.outDir
	opts.OutFile = fl.outFile
	return opts
}
