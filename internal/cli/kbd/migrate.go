package kbd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/crmkb/internal/config"
	"github.com/cloo-solutions/crmkb/internal/database"
	"github.com/cloo-solutions/crmkb/internal/logging"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  "Apply or roll back the knowledge base schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.Must(cfg.Debug)
	defer func() { _ = logger.Sync() }()

	return database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger)
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	steps, _ := cmd.Flags().GetInt("steps")
	if steps <= 0 {
		return fmt.Errorf("--steps must be positive, got %d", steps)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.Must(cfg.Debug)
	defer func() { _ = logger.Sync() }()

	return database.RollbackMigrations(cfg.DatabaseURL, cfg.MigrationsPath, steps, logger)
}
