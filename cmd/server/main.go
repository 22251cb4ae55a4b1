// Package main is the cupcakes server binary.
//
// COMMANDS:
//
//	cupcakes                   same as "cupcakes serve"
//	cupcakes serve             run the HTTP server
//	cupcakes migrate up        apply pending migrations
//	cupcakes migrate down -n 1 revert the last migration
//	cupcakes migrate version   print the applied schema version
//
// The server applies pending migrations on startup, so "migrate" is only
// needed for inspecting or rolling back a database by hand.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/cupcakes/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra already printed usage errors; this covers RunE failures.
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	root := &cobra.Command{
		Use:           "cupcakes",
		Short:         "Cupcake ratings API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.AddCommand(serve, newMigrateCmd())
	return root
}

// newLogger builds the process logger. Development gets readable text;
// production gets JSON for the log collector.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
