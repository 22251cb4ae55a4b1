package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/cupcakes/internal/config"
	"github.com/sakif/cupcakes/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server until SIGINT or SIGTERM.

Configuration comes from the environment and an optional .env file:
PORT, ENV, LOG_LEVEL, DB_PATH, JWT_SECRET, CORS_ALLOWED_ORIGINS and, for
browser login, SECRET, BASE_URL, CLIENT_ID, CLIENT_SECRET, ISSUER_BASE_URL
and AUTH0_LOGOUT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := newLogger(cfg, os.Stdout)
			slog.SetDefault(logger)

			srv, err := server.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			// Start blocks until shutdown and closes the server itself.
			return srv.Start()
		},
	}
}
