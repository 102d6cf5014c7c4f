package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lanehq/lanehq/internal/config"
	"github.com/lanehq/lanehq/internal/db"
	"github.com/lanehq/lanehq/internal/telemetry"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runMigrations(cmd.Context(), cfg, args[0])
		},
	}
}

func runMigrations(ctx context.Context, cfg *config.Config, direction string) error {
	logger := telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("running migrations", "direction", direction)
	v, dirty, err := db.Migrate(database.DB, direction)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("migration completed", "version", v, "dirty", dirty)
	return nil
}
