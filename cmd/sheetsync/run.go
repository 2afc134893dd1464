package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

type runOptions struct {
	group string
	all   bool
	json  bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [job...]",
		Short: "Run sync jobs once and print their reports",
		Long: "Run the named jobs in order. Use --group to run every job of one upstream\n" +
			"API family or --all for every registered job. The exit code is 2 when a\n" +
			"run finished with failed batches or mismatches and 1 when a run failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := selectJobs(args, opts)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			return runJobs(cmd.Context(), a.service, keys, cmd.OutOrStdout(), opts.json)
		},
	}

	cmd.Flags().StringVar(&opts.group, "group", "", "Run every job in this group")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Run every registered job")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print reports as JSON")
	cmd.MarkFlagsMutuallyExclusive("group", "all")
	return cmd
}

func selectJobs(args []string, opts runOptions) ([]string, error) {
	var keys []string
	switch {
	case opts.all:
		for _, def := range core.All() {
			keys = append(keys, def.Info.Key)
		}
	case opts.group != "":
		for _, def := range core.ByGroup(opts.group) {
			keys = append(keys, def.Info.Key)
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("no jobs in group %q", opts.group)
		}
	}
	keys = append(keys, args...)
	if len(keys) == 0 {
		return nil, errors.New("name at least one job, or use --group or --all")
	}
	return keys, nil
}

// runJobs runs keys one after another. A failed job does not stop the
// remaining ones; the worst outcome decides the exit code.
func runJobs(ctx context.Context, svc *core.Service, keys []string, out io.Writer, asJSON bool) error {
	ctx = core.ContextWithTrigger(ctx, core.TriggerCLI)

	var failed, partial []string
	for _, key := range keys {
		if ctx.Err() != nil {
			return &exitError{code: exitFailure, err: ctx.Err()}
		}

		report, err := svc.RunJob(ctx, key)
		if report == nil {
			fmt.Fprintf(out, "%s: %s\n", key, core.MapError(err).Message)
			failed = append(failed, key)
			continue
		}
		if err := printReport(out, report, asJSON); err != nil {
			return err
		}
		switch report.Status {
		case core.RunFailed:
			failed = append(failed, key)
		case core.RunPartial:
			partial = append(partial, key)
		}
	}

	switch {
	case len(failed) > 0:
		return &exitError{code: exitFailure, err: fmt.Errorf("failed: %s", strings.Join(failed, ", "))}
	case len(partial) > 0:
		return &exitError{code: exitPartial, err: fmt.Errorf("completed with problems: %s", strings.Join(partial, ", "))}
	}
	return nil
}

func printReport(out io.Writer, r *core.SyncReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(out, "%s [%s] %s in %s\n", r.Job, r.RunID, r.Status, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  fetched %d, unique %d, failed records %d\n", r.Fetched, r.Unique, r.FailedRecords)
	fmt.Fprintf(out, "  updated rows %d, appended %d, cells %d/%d, batches failed %d/%d\n",
		r.UpdatedRows, r.Appended, r.CellsWritten, r.CellsPlanned, r.BatchesFailed, r.BatchesTotal)
	if r.NotFound > 0 {
		fmt.Fprintf(out, "  keys not in sheet (skipped): %d\n", r.NotFound)
	}
	if len(r.MissingKeys) > 0 {
		fmt.Fprintf(out, "  missing columns: %s\n", strings.Join(r.MissingKeys, ", "))
	}
	if len(r.Duplicates) > 0 {
		fmt.Fprintf(out, "  duplicate keys: %d\n", len(r.Duplicates))
	}
	if v := r.Validation; v != nil {
		fmt.Fprintf(out, "  validation: matched %d/%d, not found %d, passed %v\n", v.Matched, v.Checked, len(v.NotFound), v.Passed)
	}
	if r.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", r.Error)
	}
	return nil
}
