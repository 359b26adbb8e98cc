package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seclens/auditgate/pkg/services/gate"
	"github.com/seclens/auditgate/pkg/services/trend"
	"github.com/seclens/auditgate/pkg/store/duckdb"
	duckdbrun "github.com/seclens/auditgate/pkg/store/duckdb/run"
	duckdbtrend "github.com/seclens/auditgate/pkg/store/duckdb/trend"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "auditgate",
		Short: "Admin commands for the auditgate service",
	}
	rootCmd.AddCommand(rebuildTrendsCmd(), validatePolicyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rebuildTrendsCmd() *cobra.Command {
	var (
		dbPath string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "rebuild-trends",
		Short: "Recompute the per-day trend aggregates from the run store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
			ctx := logger.WithContext(cmd.Context())

			db, err := duckdb.NewDB(duckdb.Settings{DbPath: dbPath})
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer db.Close()

			runs, err := duckdbrun.NewStore(db)
			if err != nil {
				return err
			}
			trends, err := duckdbtrend.NewStore(db)
			if err != nil {
				return err
			}

			aggregator := trend.NewAggregator(db, runs, trends)
			window := time.Duration(days) * 24 * time.Hour
			if err := aggregator.Rebuild(ctx, window); err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}
			logger.Info().Int("days", days).Msg("trend rebuild complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "auditgate.db", "Path to the DuckDB database file")
	cmd.Flags().IntVar(&days, "days", 30, "Rebuild window in days")
	return cmd
}

func validatePolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-policy <file>",
		Short: "Validate a severity policy file without starting the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			policy, err := gate.LoadPolicy(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("policy %s is valid (%d blocking tiers)\n",
				policy.Version, len(policy.Thresholds))
			return nil
		},
	}
}
