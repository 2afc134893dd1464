// Command sheetsync copies marketplace API data into spreadsheet tabs.
//
// Usage:
//
//	sheetsync run discounts_prices        # sync one job now
//	sheetsync run --group content         # sync every job in a group
//	sheetsync serve                       # HTTP API plus optional scheduler
//	sheetsync jobs                        # list registered jobs
//	sheetsync headers warehouse_remains   # show the resolved header row
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "github.com/JonMunkholm/sheetsync/internal/jobs" // register built-in jobs
)

const (
	exitFailure = 1
	exitPartial = 2
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.code == exitPartial {
				fmt.Fprintln(os.Stderr, "warning:", ee.err)
			} else {
				fmt.Fprintln(os.Stderr, "error:", ee.err)
			}
			stop()
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(exitFailure)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sheetsync",
		Short:         "Sync marketplace API data into spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newJobsCmd(),
		newHeadersCmd(),
	)
	return root
}
