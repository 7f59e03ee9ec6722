package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "migrate [config.toml]",
		Short:        "Create or update the database schema and exit",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configArg(args))
			if err != nil {
				return err
			}
			logger := zap.NewNop()
			if verbose {
				logger, _ = zap.NewDevelopment()
			}

			// InitDB runs the auto-migration.
			db, err := storage.InitDB(cfg.Storage.Driver, cfg.Storage.DSN, logger)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := storage.Close(db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database schema is up to date (%s)\n", cfg.Storage.Driver)
			return nil
		},
	}
}
