// Package cli implements the segb command line: the HTTP server and the
// offline history and export commands that share its configuration.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

// Execute runs the command line with args and returns the process exit
// code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "segb",
		Short: "Semantic audit log for RDF events",
		Long: `segb keeps one canonical RDF graph, folds submitted Turtle fragments
into it and records every insertion and deletion as an immutable audit
entry behind a role-gated HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (defaults to $SEGB_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(opts),
		newHistoryCommand(opts),
		newExportCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "segb %s\n", Version)
			},
		},
	)
	return cmd
}
