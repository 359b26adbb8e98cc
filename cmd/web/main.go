package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"

	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/server"
	"github.com/seclens/auditgate/pkg/services/config"
	"github.com/seclens/auditgate/pkg/services/dashboard"
	"github.com/seclens/auditgate/pkg/services/gate"
	"github.com/seclens/auditgate/pkg/services/ingest"
	"github.com/seclens/auditgate/pkg/services/ratelimit"
	"github.com/seclens/auditgate/pkg/services/trend"
	"github.com/seclens/auditgate/pkg/store/duckdb"
	duckdbrun "github.com/seclens/auditgate/pkg/store/duckdb/run"
	duckdbtrend "github.com/seclens/auditgate/pkg/store/duckdb/trend"
	postgresrun "github.com/seclens/auditgate/pkg/store/postgres/run"
	runstore "github.com/seclens/auditgate/pkg/store/run"
)

var cfgPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the auditgate ingestion and dashboard server",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to the auditgate config file (defaults apply when omitted)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx, cancel := context.WithCancel(logger.WithContext(cmd.Context()))
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := duckdb.NewDB(duckdb.Settings{DbPath: cfg.Storage.Path})
	if err != nil {
		return fmt.Errorf("failed to open embedded store: %w", err)
	}
	defer db.Close()

	runs, err := openRunStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	trendStore, err := duckdbtrend.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create trend store: %w", err)
	}

	policy, err := loadPolicy(cfg)
	if err != nil {
		return err
	}
	logger.Info().Str("policy_version", policy.Version).Msg("severity policy loaded")

	limiterOpts, policyFor, err := applyProfiles(ctx, cfg, policy, logger)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Capacity:     cfg.RateLimit.Capacity,
		RefillPerSec: cfg.RateLimit.RefillPerSec,
		IdleEviction: cfg.RateLimit.IdleEviction(),
	}, limiterOpts...)
	go evictIdleBuckets(ctx, limiter)

	aggregator := trend.NewAggregator(db, runs, trendStore)
	go aggregator.Run(ctx)

	gateway := ingest.NewGateway(runs, limiter, aggregator, policyFor)
	dashboardSvc := dashboard.NewService(runs, aggregator)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	api := server.NewWebAPI(logger, server.Config{
		Addr:            addr,
		ShutdownTimeout: 10 * time.Second,
		Dependencies: server.Dependencies{
			Gateway:   gateway,
			Dashboard: dashboardSvc,
			Logger:    logger,
		},
	})

	logger.Info().Str("addr", addr).Str("driver", cfg.Storage.Driver).Msg("auditgate ready")
	err = api.Start()

	cancel()
	<-aggregator.Done()
	return err
}

func openRunStore(ctx context.Context, cfg *config.Config, embedded *sql.DB) (runstore.Store, error) {
	if cfg.Storage.Driver == "postgres" {
		db, err := postgresrun.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return postgresrun.NewStore(db)
	}
	return duckdbrun.NewStore(embedded)
}

func loadPolicy(cfg *config.Config) (domain.SeverityPolicy, error) {
	if cfg.PolicyFile == "" {
		return domain.DefaultPolicy(), nil
	}
	policy, err := gate.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return domain.SeverityPolicy{}, fmt.Errorf("failed to load policy: %w", err)
	}
	return policy, nil
}

// applyProfiles folds the per-repo ini overrides into limiter options and
// a policy resolver. Without a profile file every repo gets the defaults.
func applyProfiles(
	ctx context.Context,
	cfg *config.Config,
	policy domain.SeverityPolicy,
	logger zerolog.Logger,
) ([]ratelimit.Option, ingest.PolicyResolver, error) {
	defaultResolver := func(string) domain.SeverityPolicy { return policy }
	if cfg.ProfilesFile == "" {
		return nil, defaultResolver, nil
	}

	registry, err := config.NewRegistry(cfg.ProfilesFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load repo profiles: %w", err)
	}
	repos, err := registry.GetProfiles(ctx)
	if err != nil {
		return nil, nil, err
	}

	var opts []ratelimit.Option
	policies := make(map[string]domain.SeverityPolicy)
	for _, repo := range repos {
		profile, err := registry.GetProfile(ctx, repo)
		if err != nil {
			return nil, nil, err
		}
		if profile.RateCapacity != nil || profile.RateRefillPerSec != nil {
			override := ratelimit.Config{
				Capacity:     cfg.RateLimit.Capacity,
				RefillPerSec: cfg.RateLimit.RefillPerSec,
				IdleEviction: cfg.RateLimit.IdleEviction(),
			}
			if profile.RateCapacity != nil {
				override.Capacity = *profile.RateCapacity
			}
			if profile.RateRefillPerSec != nil {
				override.RefillPerSec = *profile.RateRefillPerSec
			}
			opts = append(opts, ratelimit.WithOverride(repo, override))
		}
		if profile.P1Threshold != nil {
			policies[repo] = gate.WithP1Threshold(policy, *profile.P1Threshold)
		}
	}
	logger.Info().
		Int("profiles", len(repos)).
		Strs("custom_policies", maps.Keys(policies)).
		Msg("repo profiles loaded")

	resolver := func(repo string) domain.SeverityPolicy {
		if p, ok := policies[repo]; ok {
			return p
		}
		return policy
	}
	return opts, resolver, nil
}

func evictIdleBuckets(ctx context.Context, limiter *ratelimit.Limiter) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.EvictIdle(); n > 0 {
				zerolog.Ctx(ctx).Debug().Int("buckets", n).Msg("evicted idle rate buckets")
			}
		}
	}
}
