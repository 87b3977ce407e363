package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/PipeOpsHQ/segb/rdf"
	"github.com/PipeOpsHQ/segb/service"
)

func newExportCommand(root *rootOptions) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the canonical graph to stdout or a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := rdf.ParseFormat(format)
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), root, f, output, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "turtle", "turtle, ntriples or jsonld")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (defaults to stdout)")
	return cmd
}

func runExport(ctx context.Context, root *rootOptions, format rdf.Format, output string, stdout, errOut io.Writer) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg, newLogger(cfg.Log, errOut))
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.service.Graph(ctx)
	if service.KindOf(err) == service.KindEmpty {
		fmt.Fprintln(errOut, "graph is empty")
		return nil
	}
	if err != nil {
		return err
	}
	body, err := rdf.Serialize(doc, format)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = io.WriteString(stdout, body)
		return err
	}
	return os.WriteFile(output, []byte(body), 0o644)
}
