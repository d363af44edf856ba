package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patrickwarner/adsimulator/internal/analytics"
	"github.com/patrickwarner/adsimulator/internal/config"
	"github.com/patrickwarner/adsimulator/internal/db"
	"github.com/patrickwarner/adsimulator/internal/observability"
	"github.com/patrickwarner/adsimulator/internal/simulation"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Simulate one or more scenarios",
		Long: `Run simulates every scenario file. Independent scenarios run
concurrently, each with its own engines. Reports are printed in the order the
files were given.

Runs are recorded in the run store, Redis and ClickHouse when those sinks are
enabled through the environment (RUN_STORE_ENABLED, SNAPSHOTS_ENABLED,
ANALYTICS_ENABLED) or when --store names a SQLite file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			workers, _ := cmd.Flags().GetInt("workers")
			days, _ := cmd.Flags().GetInt("days")
			seed, _ := cmd.Flags().GetUint32("seed")
			seedSet := cmd.Flags().Changed("seed")

			scenarios := make([]simulation.Scenario, 0, len(args))
			for _, path := range args {
				sc, err := simulation.LoadScenario(path)
				if err != nil {
					return err
				}
				if days > 0 {
					sc.Days = days
				}
				if seedSet {
					s := seed
					sc.Seed = &s
				}
				scenarios = append(scenarios, sc)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if workers < 1 {
				workers = cfg.SimulationWorkers
			}

			logger, err := observability.InitStderrLogger("adsimulator-cli")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			metrics := observability.NewNoOpRegistry()
			sinks, closeSinks, err := openSinks(cmd.Context(), cfg, metrics)
			if err != nil {
				return err
			}
			defer closeSinks()

			reports, err := simulation.RunAll(cmd.Context(), scenarios, workers, simulation.Options{
				Engines: cfg.Engines,
				Logger:  logger,
				Metrics: metrics,
				Sinks:   sinks,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			for i, r := range reports {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				if err := writeReport(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("workers", 0, "Scenarios simulated at once (default SIMULATION_WORKERS)")
	cmd.Flags().Int("days", 0, "Override the number of simulated days")
	cmd.Flags().Uint32("seed", 0, "Override the deterministic seed of every scenario")
	return cmd
}

// loadConfig reads the environment and applies the --store flag.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Load()
	store, err := cmd.Flags().GetString("store")
	if err != nil {
		return cfg, err
	}
	if store != "" {
		cfg.RunStoreEnabled = true
		cfg.RunStoreDriver = "sqlite"
		cfg.SQLitePath = store
	}
	return cfg, nil
}

// openSinks dials every enabled sink. The returned func closes them.
func openSinks(ctx context.Context, cfg config.Config, metrics observability.MetricsRegistry) (simulation.Sinks, func(), error) {
	var (
		sinks   simulation.Sinks
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.RunStoreEnabled {
		pg, err := db.OpenRunStore(ctx, cfg)
		if err != nil {
			return sinks, closeAll, err
		}
		closers = append(closers, pg.Close)
		sinks.Runs = pg
	}

	if cfg.SnapshotsEnabled {
		store, err := db.InitRedis(ctx, cfg.RedisAddr, cfg.SnapshotTTL)
		if err != nil {
			closeAll()
			return simulation.Sinks{}, func() {}, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, store.Close)
		sinks.Snapshots = store
	}

	if cfg.AnalyticsEnabled {
		ch, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime, metrics)
		if err != nil {
			closeAll()
			return simulation.Sinks{}, func() {}, fmt.Errorf("connect clickhouse: %w", err)
		}
		closers = append(closers, ch.Close)
		sinks.Analytics = ch
	}

	return sinks, closeAll, nil
}
