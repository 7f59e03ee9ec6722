package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/bot"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/config"
)

const defaultConfigPath = "./config.toml"

func newStartCmd(version string, buildTime string) *cobra.Command {
	return &cobra.Command{
		Use:          "start [config.toml]",
		Short:        "Run the bot",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configArg(args))
			if err != nil {
				return err
			}
			if verbose {
				config.PrintConfig(cfg)
			}
			return bot.StartBot(cfg, version, buildTime)
		},
	}
}

func configArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return defaultConfigPath
}

// loadConfig reads and validates the config file, logging each step with a bootstrap logger
// because the configured one does not exist yet.
func loadConfig(path string) (*config.Config, error) {
	tempLogger, _ := zap.NewProduction()
	defer func() { _ = tempLogger.Sync() }()

	tempLogger.Info("Loading config", zap.String("path", path))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		tempLogger.Error("Config file does not exist", zap.String("path", path))
		return nil, fmt.Errorf("config file %s does not exist", path)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		tempLogger.Error("Failed to load config", zap.Error(err))
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		tempLogger.Error("Config validation failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
