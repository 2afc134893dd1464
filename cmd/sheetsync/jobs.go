package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/core"
)

func newJobsCmd() *cobra.Command {
	var jobsFile string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List registered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobsFile == "" {
				jobsFile = os.Getenv("SYNC_JOBS_FILE")
			}
			if jobsFile != "" {
				if _, err := config.ApplyJobs(jobsFile); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GROUP\tKEY\tSHEET\tKEY FIELDS\tLABEL")
			for _, def := range core.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n", def.Info.Group, def.Info.Key, def.Sheet, def.KeyNames(), def.Info.Label)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&jobsFile, "jobs-file", "", "YAML jobs file (default: $SYNC_JOBS_FILE)")
	return cmd
}

func newHeadersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "headers <job>",
		Short: "Resolve a job's header row without syncing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			hm, err := a.service.Headers(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", core.MapError(err).Message, err)
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tCOLUMN\tTITLE")
			for _, key := range hm.Keys() {
				info, _ := hm.Get(key)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", key, info.Letter, info.Title)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(hm.Missing) > 0 {
				fmt.Fprintf(out, "missing: %v\n", hm.Missing)
			}
			return nil
		},
	}
}
