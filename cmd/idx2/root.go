package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	verbose bool
	quiet   bool
}

// logger returns the logger of a command: text records on its error
// stream.
func (g *globalFlags) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case g.quiet:
		level = slog.LevelError
	case g.verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "idx2",
		Short:         "Encode and decode IDX2 volumes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug records")
	cmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "log errors only")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	cmd.AddCommand(newEncodeCmd(g), newDecodeCmd(g), newInfoCmd())
	return cmd
}
