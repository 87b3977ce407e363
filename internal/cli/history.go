package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/PipeOpsHQ/segb/audit"
	"github.com/PipeOpsHQ/segb/service"
)

type historyOptions struct {
	limit  int
	start  string
	end    string
	asJSON bool
}

func newHistoryCommand(root *rootOptions) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print audit entries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.Context(), root, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "maximum number of entries (defaults to the configured history limit)")
	cmd.Flags().StringVar(&opts.start, "start", "", "inclusive RFC3339 lower bound")
	cmd.Flags().StringVar(&opts.end, "end", "", "inclusive RFC3339 upper bound")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func runHistory(ctx context.Context, root *rootOptions, opts *historyOptions, out, errOut io.Writer) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, errOut)
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var logs []audit.LogEntry
	if opts.start != "" || opts.end != "" {
		start, end, perr := parseRange(opts.start, opts.end)
		if perr != nil {
			return perr
		}
		logs, err = a.service.HistoryRange(ctx, start, end)
	} else {
		logs, err = a.service.History(ctx, opts.limit)
	}
	if service.KindOf(err) == service.KindEmpty {
		fmt.Fprintln(out, "no audit entries")
		return nil
	}
	if err != nil {
		return err
	}
	return printHistory(out, logs, opts.asJSON, time.Now())
}

func parseRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--start and --end go together")
	}
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
	}
	return start, end, nil
}

func printHistory(out io.Writer, logs []audit.LogEntry, asJSON bool, now time.Time) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(logs)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUPLOADED\tAGE\tTYPE\tORIGIN")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			l.ID,
			l.UploadedAt.UTC().Format(time.RFC3339),
			humanize.RelTime(l.UploadedAt, now, "ago", "from now"),
			l.ActionType,
			l.OriginIP)
	}
	return tw.Flush()
}
