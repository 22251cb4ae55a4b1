package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/cupcakes/internal/config"
	sqliteRepo "github.com/sakif/cupcakes/internal/repository/sqlite"
)

func newMigrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the database schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dbPath != "" {
				return nil
			}
			p, err := config.DatabasePath()
			if err != nil {
				return err
			}
			dbPath = p
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default $DB_PATH or "+config.DefaultDBPath+")")

	// open skips sqlite.New so that "down" and "version" see the schema as
	// it is, not as it would be after an implicit migrate up.
	open := func(fn func(db *sqliteRepo.DB) error) error {
		db, err := sqliteRepo.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(db)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return open(func(db *sqliteRepo.DB) error {
				if err := db.Migrate(); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return open(func(db *sqliteRepo.DB) error {
				if err := db.Rollback(steps); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to revert")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return open(func(db *sqliteRepo.DB) error {
				return printVersion(cmd, db)
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(cmd *cobra.Command, db *sqliteRepo.DB) error {
	v, dirty, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty)\n", v)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
	return nil
}
