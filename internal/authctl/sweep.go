package authctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gameauth/internal/logging"
	"github.com/dmitrijs2005/gameauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gameauth/internal/server/sweeper"
	"github.com/spf13/cobra"
)

const kindAll = "all"

var errNoDSN = errors.New("a database DSN is required (--dsn or GAMEAUTH_DATABASE_DSN)")

// openRepos is replaced in tests.
var openRepos = func(ctx context.Context, dsn string) (repomanager.RepositoryManager, error) {
	return repomanager.New(ctx, dsn)
}

type sweepOptions struct {
	dsn       string
	kind      string
	batchSize int
	verbose   bool
}

func newSweepCmd() *cobra.Command {
	opts := &sweepOptions{}
	cmd := &cobra.Command{
		Use:           "sweep",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Clear expired verification codes and recovery tokens once",
		Long: `
Runs one bounded sweep against the database and prints the report as JSON.
Rows changed concurrently by a user are skipped and picked up next time.

Usage:
  $ authctl sweep --kind verification --dsn postgres://...
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dsn, "dsn", os.Getenv("GAMEAUTH_DATABASE_DSN"), "PostgreSQL DSN")
	cmd.Flags().StringVar(&opts.kind, "kind", kindAll, "verification, recovery or all")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", sweeper.DefaultBatchSize, "maximum rows per kind")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log each sweep to stderr")
	return cmd
}

func runSweep(cmd *cobra.Command, opts *sweepOptions) error {
	if opts.dsn == "" {
		return errNoDSN
	}

	kinds := []string{sweeper.KindVerification, sweeper.KindRecovery}
	if opts.kind != kindAll {
		kinds = []string{opts.kind}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rm, err := openRepos(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer rm.Close()

	var logger logging.Logger = logging.Nop{}
	if opts.verbose {
		logger = logging.NewJSON(cmd.ErrOrStderr(), "debug")
	}
	sw := sweeper.New(rm.Accounts(), logger, sweeper.Config{BatchSize: opts.batchSize})

	out := make(map[string]sweeper.Report, len(kinds))
	for _, k := range kinds {
		rep, err := sw.Sweep(ctx, k)
		if err != nil {
			return err
		}
		out[k] = rep
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
