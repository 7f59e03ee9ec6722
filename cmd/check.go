package cmd

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/config"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
	"github.com/nerdneilsfield/telegram-slide-bot/pkg/openai"
)

const checkTimeout = 30 * time.Second

func newCheckCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:          "check [config.toml]",
		Short:        "Validate the config and test the Telegram, database and LLM connections",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configArg(args))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "config: ok")
			if verbose {
				config.PrintConfig(cfg)
			}
			if offline {
				return nil
			}

			db, err := storage.InitDB(cfg.Storage.Driver, cfg.Storage.DSN, zap.NewNop())
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			_ = storage.Close(db)
			fmt.Fprintln(out, "database: ok")

			bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, cfg.TelegramAPIURL)
			if err != nil {
				return fmt.Errorf("telegram: %w", err)
			}
			fmt.Fprintf(out, "telegram: ok (@%s)\n", bot.Self.UserName)

			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()
			llm := openai.NewClient(openai.Options{
				APIKey:    cfg.OpenAI.APIKey,
				BaseURL:   cfg.OpenAI.BaseURL,
				ChatModel: cfg.OpenAI.ChatModel,
				Timeout:   checkTimeout,
			}, zap.NewNop())
			if err := llm.Ping(ctx); err != nil {
				return fmt.Errorf("llm: %w", err)
			}
			fmt.Fprintf(out, "llm: ok (%s)\n", cfg.OpenAI.ChatModel)
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Only validate the config file")
	return cmd
}
