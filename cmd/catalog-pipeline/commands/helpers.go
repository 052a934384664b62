package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shelfline/catalog-pipeline/internal/config"
	"github.com/shelfline/catalog-pipeline/internal/observability"
)

// loadConfig loads configuration honoring the global --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildLogger creates the service logger from config, with --verbose
// forcing debug level.
func buildLogger(cfg *config.Config) *observability.Logger {
	level := cfg.Observability.LogLevel
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "catalog-pipeline",
	})
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so in-flight
// work can drain instead of being killed mid-upload.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	return ctx, cancel
}
