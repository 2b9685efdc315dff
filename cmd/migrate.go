package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"clouddrive/internal/database"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, func(db dbHandle) error {
				if err := database.Migrate(db); err != nil {
					return errors.Wrap(err, "applying migrations")
				}
				return printVersion(db)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return errors.New("--steps must be positive")
			}
			return withDB(cmd, func(db dbHandle) error {
				if err := database.Rollback(db, steps); err != nil {
					return errors.Wrap(err, "rolling back migrations")
				}
				return printVersion(db)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd, printVersion)
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(db dbHandle) error {
	v, dirty, err := database.Version(db)
	if err != nil {
		return errors.Wrap(err, "reading schema version")
	}
	fmt.Printf("schema version: %d (dirty: %t)\n", v, dirty)
	return nil
}
