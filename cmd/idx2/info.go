package main

import (
	"fmt"

	"github.com/spf13/cobra"

	idx2 "github.com/mrjoshuak/go-idx2"
)

func newInfoCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "info <file.idx2>",
		Short: "Print the parameters of an IDX2 dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := idx2.Open(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if raw {
				return ds.WriteMetadata(out)
			}
			fmt.Fprintf(out, "name:       %s\n", ds.Name())
			fmt.Fprintf(out, "field:      %s\n", ds.Field())
			fmt.Fprintf(out, "dims:       %v\n", ds.Dims())
			fmt.Fprintf(out, "type:       %v\n", ds.Type())
			fmt.Fprintf(out, "brick size: %v\n", ds.BrickDims())
			fmt.Fprintf(out, "levels:     %d\n", ds.NLevels())
			fmt.Fprintf(out, "tolerance:  %g\n", ds.Tolerance())
			vr := ds.ValueRange()
			fmt.Fprintf(out, "range:      [%g, %g]\n", vr[0], vr[1])
			for l, b := range ds.Bricks() {
				fmt.Fprintf(out, "level %d:    %v bricks\n", l, b)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the metadata document")
	return cmd
}
