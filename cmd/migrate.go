package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fjod/coffee-store/internal/logger"
	"github.com/fjod/coffee-store/internal/repository"
	"github.com/spf13/cobra"
)

func migrateCmd(load func() (*Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			slog.SetDefault(logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout))

			repo, err := repository.NewRepository(&cfg.DB)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer repo.Close()

			if err := repo.RunMigrations(&cfg.DB); err != nil {
				return err
			}
			slog.Info("migrations applied", "path", cfg.DB.MigrationsDirPath)
			return nil
		},
	}
}
