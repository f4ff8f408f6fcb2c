package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"secondbrain/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "secondbrain",
	Short:         "File store with conflict checks on upload",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, diagnoseCmd)

	diagnoseCmd.Flags().String("owner", "", "owner id (UUID) to diagnose")
	diagnoseCmd.Flags().String("text", "", "text to embed (default: built-in sample)")
	diagnoseCmd.Flags().Float64("threshold", 0, "similarity threshold for the search stage (default 0.5)")
	diagnoseCmd.MarkFlagRequired("owner")
}

// setup loads .env and the configuration and installs the default logger.
func setup() (config.Config, *slog.Logger, error) {
	// A missing .env is fine: the environment may be set by other means.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.Log, w *os.File) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

const shutdownTimeout = 5 * time.Second
