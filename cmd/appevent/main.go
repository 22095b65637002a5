package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/appevent/pkg/appevent"
	"github.com/cuemby/appevent/pkg/config"
	"github.com/cuemby/appevent/pkg/log"
	"github.com/cuemby/appevent/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// settings is filled by the root command before any subcommand runs
var settings config.Settings

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "appevent",
	Short: "appevent - application event logging engine",
	Long: `appevent validates and stores structured application events, reports
them to registered watchers and keeps the processors, user ids and user
properties attached to event reports.

Settings are read from flags, then APPEVENT_* environment variables, then
the optional --config file.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"appevent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Settings file (yaml, json or toml)")
	flags.String("data-dir", "", "Directory holding the event database")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log in JSON instead of console format")

	rootCmd.AddCommand(serveCmd)
}

func loadSettings(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	s, err := config.LoadSettings(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		s.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		s.LogLevel = log.ParseLevel(level)
	}
	if flags.Changed("log-json") {
		s.LogJSON, _ = flags.GetBool("log-json")
	}
	if err := s.Validate(); err != nil {
		return err
	}

	log.Init(log.Config{Level: s.LogLevel, JSONOutput: s.LogJSON})
	settings = s
	return nil
}

// openManager opens the engine with the loaded settings. The caller closes it.
func openManager() (*appevent.Manager, error) {
	m, err := appevent.New(appevent.Options{
		DataDir:     settings.DataDir,
		BundlePath:  settings.BundlePath,
		TimeoutUnit: settings.TimeoutUnit,
		MaxStorage:  settings.MaxStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open event engine: %w", err)
	}
	return m, nil
}

// withManager runs fn against an open engine and closes it afterwards
func withManager(fn func(m *appevent.Manager) error) error {
	m, err := openManager()
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Hold the engine open and expose metrics and health endpoints",
	Long: `Open the event database and serve /metrics, /health, /ready and /live
until interrupted. Gauges are refreshed from the store every --interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = settings.MetricsAddr
		}
		interval, _ := cmd.Flags().GetDuration("interval")

		metrics.SetVersion(Version)

		m, err := openManager()
		if err != nil {
			return err
		}
		defer m.Close()

		collector := metrics.NewCollector(m, interval)
		collector.Start()
		defer collector.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()

		fmt.Printf("Serving metrics on %s (data dir %s). Press Ctrl+C to stop.\n", addr, settings.DataDir)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop metrics server: %w", err)
		}
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (defaults to the metrics_addr setting)")
	serveCmd.Flags().Duration("interval", 15*time.Second, "Gauge refresh interval")
}
