package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"secondbrain/app/server"
)

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default command)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	srv, err := server.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal, shutting down server")
	case err := <-errCh:
		if err != nil {
			srv.Stop(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// --- diagnose ---

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Walk the conflict pipeline for one owner and print the result",
	Long: `Walk the conflict pipeline for one owner: list the stored files, embed a
text, search for similar documents and run a full conflict check.

Examples:
  secondbrain diagnose --owner 7d444840-9dc0-11d1-b245-5ffdce74fad2
  secondbrain diagnose --owner 7d444840-9dc0-11d1-b245-5ffdce74fad2 --text "meeting notes" --threshold 0.7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		text, _ := cmd.Flags().GetString("text")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		id, err := uuid.Parse(owner)
		if err != nil {
			return fmt.Errorf("invalid --owner: %w", err)
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		srv, err := server.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer srv.Stop(context.Background())

		diag := srv.Detector().Diagnose(ctx, id.String(), text, threshold)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(diag); err != nil {
			fmt.Fprintf(os.Stderr, "encoding diagnostics: %v\n", err)
			return err
		}
		return nil
	},
}
