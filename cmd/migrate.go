package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/qrave1/roomspeak-mesh/internal/application/config"
	"github.com/qrave1/roomspeak-mesh/internal/application/constant"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/postgres/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status|...]",
	Short: "Run postgres store migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("empty args: needed at least one arg")
		}

		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		goose.SetBaseFS(migrations.MigrationsFS)

		db, err := goose.OpenDBWithDriver("pgx", cfg.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("goose: open db: %w", err)
		}

		defer func() {
			if err := db.Close(); err != nil {
				slog.Error("goose: close db", slog.Any(constant.Error, err))
			}
		}()

		if err = goose.RunContext(cmd.Context(), args[0], db, ".", args[1:]...); err != nil {
			return fmt.Errorf("goose %s: %w", args[0], err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
