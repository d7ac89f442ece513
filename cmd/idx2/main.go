// Command idx2 encodes raw volumes into IDX2 datasets and decodes them.
//
// Usage:
//
//	idx2 encode --input MIRANDA-DENSITY-[96-96-96]-Float64.raw --brick-size 32,32,32 --num-levels 3 --tolerance 1e-6
//	idx2 decode --input MIRANDA/DENSITY.idx2 --downsampling 1,1,1 --first 0,0,0 --last 63,63,63
//	idx2 info MIRANDA/DENSITY.idx2
//
// When --name, --field, --dims or --type are omitted, encode takes them
// from an input file named <name>-<field>-[<x>-<y>-<z>]-<Float32|Float64>.raw.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
