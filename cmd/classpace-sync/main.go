package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/classpace/entitlement-sync/internal/billing"
	"github.com/classpace/entitlement-sync/internal/config"
	"github.com/classpace/entitlement-sync/internal/directory"
	"github.com/classpace/entitlement-sync/internal/entitlement"
	"github.com/classpace/entitlement-sync/internal/logging"
	"github.com/classpace/entitlement-sync/internal/reconciler"
	"github.com/classpace/entitlement-sync/internal/server"
	"github.com/classpace/entitlement-sync/internal/store"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "classpace-sync",
	Short:   "Classpace entitlement sync - Stripe to entitlement store reconciliation",
	Long:    `classpace-sync reconciles Stripe subscription state onto the Classpace entitlement store, and serves the subscription self-service API`,
	Version: Version,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass over all directory principals and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the periodic reconciliation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("classpace-sync %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the shared dependency graph.
func bootstrap() (*config.Config, *store.EntitlementStore, *reconciler.Reconciler, error) {
	// Baseline logger for early startup logs; re-initialized once config is in
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "classpace-sync",
	})

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "classpace-sync",
	})

	st, err := store.Open(cfg.StoreDir())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open entitlement store: %w", err)
	}

	tiers := entitlement.NewTierTable(cfg.TeacherProductID, cfg.StudentProductID, cfg.DefaultTier)
	rec := reconciler.New(
		directory.NewGoTrueClient(cfg.DirectoryURL, cfg.DirectoryServiceKey),
		billing.NewStripeClient(cfg.StripeSecretKey),
		st,
		tiers,
		cfg.CallTimeout,
	)
	return cfg, st, rec, nil
}

func runSync(ctx context.Context) error {
	_, st, rec, err := bootstrap()
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	defer st.Close()

	log.Info().Str("version", Version).Msg("Starting one-shot reconciliation")

	result, err := rec.RunBatch(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}

	fmt.Printf("Processed %d principals: %d updated, %d skipped, %d errors\n",
		result.Processed, result.Updated, result.Skipped, result.Errors)
	return nil
}

func runServe(ctx context.Context) error {
	cfg, st, rec, err := bootstrap()
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	defer st.Close()

	if err := cfg.ValidateServe(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}

	log.Info().
		Str("version", Version).
		Str("bind", cfg.BindAddress).
		Int("port", cfg.Port).
		Dur("sync_interval", cfg.SyncInterval).
		Msg("Starting entitlement sync server")

	// Hot-reload log settings on .env changes; everything else needs a restart.
	watcher, err := config.NewWatcher(".env", func(level, format string) {
		logging.Init(logging.Config{
			Format:    format,
			Level:     level,
			Component: "classpace-sync",
		})
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		_ = watcher.Start()
		defer watcher.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go rec.RunPeriodic(ctx, cfg.SyncInterval)

	deps := &server.Deps{
		Config:     cfg,
		Store:      st,
		Reconciler: rec,
		Verifier:   directory.NewJWTVerifier(cfg.DirectoryJWTSecret),
		Version:    Version,
	}
	if err := server.Serve(ctx, deps); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	return nil
}
