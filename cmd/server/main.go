/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ticket reimbursement claims server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (TICKETCOVER_* env, optional .env, flag overrides)
  2. Initialize logging
  3. Open the store (SQLite, or in-memory for ":memory:")
  4. Build the plan catalog and claims service
  5. Start the rollover scheduler and metrics listener
  6. Start the API server with graceful shutdown

COMMANDS:
  ticket-cover [serve]   Run the API server (default)
  ticket-cover plans     Print the effective plan catalog as JSON
  ticket-cover version   Print version information

SERVE FLAGS (override environment):
  --port   HTTP server port
  --db     SQLite database path (":memory:" for in-memory)
  --demo   Enable demo scenarios

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the rollover scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/warp/ticket-cover/api"
	"github.com/warp/ticket-cover/claims"
	"github.com/warp/ticket-cover/config"
	"github.com/warp/ticket-cover/factory"
	"github.com/warp/ticket-cover/logging"
	"github.com/warp/ticket-cover/policy"
	"github.com/warp/ticket-cover/store/memory"
	"github.com/warp/ticket-cover/store/sqlite"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var serveFlags struct {
	port int
	db   string
	demo bool
}

var rootCmd = &cobra.Command{
	Use:          "ticket-cover",
	Short:        "Parking ticket reimbursement claims server",
	Version:      Version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print the effective plan catalog as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		catalog, err := loadCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}
		return printCatalog(cmd.OutOrStdout(), catalog)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ticket-cover %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().IntVar(&serveFlags.port, "port", 0, "HTTP server port (overrides TICKETCOVER_PORT)")
		c.Flags().StringVar(&serveFlags.db, "db", "", "SQLite database path, \":memory:\" for in-memory (overrides TICKETCOVER_DB_PATH)")
		c.Flags().BoolVar(&serveFlags.demo, "demo", false, "Enable demo scenarios (overrides TICKETCOVER_DEMO)")
	}
	rootCmd.AddCommand(serveCmd, plansCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// store is what the server needs from either backend.
type store interface {
	claims.TxRepository
	api.Resetter
}

func runServer(cmd *cobra.Command) error {
	// Baseline logger for early startup messages
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "ticket-cover"})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "ticket-cover"})
	log.Info().Str("version", Version).Msg("Starting ticket-cover server")

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	repo, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := claims.NewService(repo, claims.NewEngine(catalog), claims.WithUsagePolicy(cfg.UsagePolicy))

	var resetter api.Resetter
	if cfg.DemoMode {
		resetter = repo
	}
	handler := api.NewHandler(svc, resetter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr)
	}

	scheduler := api.NewRolloverScheduler(svc)
	scheduler.CheckInterval = cfg.RolloverInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      api.NewRouter(handler, cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("db", cfg.DBPath).
			Str("plan_change_usage", string(cfg.UsagePolicy)).
			Bool("demo", cfg.DemoMode).
			Msg("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Port = serveFlags.port
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = serveFlags.db
	}
	if cmd.Flags().Changed("demo") {
		cfg.DemoMode = serveFlags.demo
	}
}

// openStore picks the backend. ":memory:" uses the in-memory repository.
func openStore(cfg *config.Config) (store, func(), error) {
	if cfg.DBPath == ":memory:" {
		log.Info().Msg("Using in-memory store")
		return memory.New(), func() {}, nil
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	s, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	return s, func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}, nil
}

func loadCatalog(path string) (*policy.Catalog, error) {
	if path == "" {
		return policy.DefaultCatalog(), nil
	}
	catalog, err := factory.LoadCatalogFile(path)
	if err != nil {
		return nil, fmt.Errorf("load plan catalog %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Loaded plan catalog")
	return catalog, nil
}

func printCatalog(w io.Writer, catalog *policy.Catalog) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(factory.ToJSON(catalog))
}
