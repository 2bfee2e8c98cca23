package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/chenjf2025/BookQuoteApp/internal/config"
	"github.com/chenjf2025/BookQuoteApp/internal/repository"
	"github.com/chenjf2025/BookQuoteApp/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create every table that does not exist yet",
	RunE:  withDatabase(migrations.Up, "applied"),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop every table, deleting all data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !migrateConfirm {
			return errors.New("migrate down deletes all data; pass --yes to confirm")
		}
		return withDatabase(migrations.Down, "rolled back")(cmd, args)
	},
}

var migrateConfirm bool

func init() {
	migrateDownCmd.Flags().BoolVar(&migrateConfirm, "yes", false, "confirm dropping all tables")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

// withDatabase runs a schema step against DATABASE_URL only; migrations
// must work before Redis or the rest of the stack is reachable.
func withDatabase(step func(context.Context, *pgxpool.Pool) error, verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		repo, err := repository.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer repo.Close()

		if err := step(cmd.Context(), repo.Pool()); err != nil {
			return err
		}
		names, err := migrations.Files(".up.sql")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out(cmd), "%s %d migrations\n", verb, len(names))
		return err
	}
}
