package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/auth"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/config"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/deck"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/i18n"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/logger"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/outline"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/tariff"
	"github.com/nerdneilsfield/telegram-slide-bot/pkg/openai"
)

const shutdownTimeout = 2 * time.Minute

// StartBot wires every component and serves updates until SIGINT or SIGTERM.
func StartBot(cfg *config.Config, version string, buildDate string) error {
	logger, err := logger.InitLogger(cfg.LogConfig.Level, cfg.LogConfig.Format, cfg.LogConfig.File)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting slide bot...", zap.String("version", version), zap.String("buildDate", buildDate))

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, cfg.TelegramAPIURL)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	if cfg.BotUsername == "" {
		cfg.BotUsername = bot.Self.UserName
	}
	logger.Info("Authorized on account", zap.String("username", bot.Self.UserName))

	i18nManager, err := i18n.NewManager(cfg.DefaultLanguage, logger)
	if err != nil {
		return fmt.Errorf("initialize i18n: %w", err)
	}

	db, err := storage.InitDB(cfg.Storage.Driver, cfg.Storage.DSN, logger)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := storage.Close(db); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}()
	store := storage.NewStore(db, logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureReferralSettings(initCtx,
		decimal.NewFromInt(cfg.Referral.ReferrerReward),
		decimal.NewFromInt(cfg.Referral.ReferredReward))
	cancel()
	if err != nil {
		return fmt.Errorf("seed referral settings: %w", err)
	}

	catalog, err := tariff.NewCatalog(cfg.Tariffs, cfg.Order.FreeOrders)
	if err != nil {
		return fmt.Errorf("load tariffs: %w", err)
	}

	llm := openai.NewClient(openai.Options{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		ChatModel:   cfg.OpenAI.ChatModel,
		ImageModel:  cfg.OpenAI.ImageModel,
		ImageSize:   cfg.OpenAI.ImageSize,
		Temperature: cfg.OpenAI.Temperature,
		Timeout:     time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second,
	}, logger)
	var images outline.ImageModel
	if cfg.OpenAI.ImageModel != "" {
		images = llm
	}

	deps := BotDeps{
		Bot:          bot,
		Config:       cfg,
		Store:        store,
		Ledger:       storage.NewGormLedger(db, logger),
		Tariffs:      catalog,
		Generator:    outline.NewGenerator(llm, images, cfg.Generation.MaxTokensPerSlide, logger),
		Decks:        deck.NewAssembler(cfg.OutputDir, deck.NewHTTPFetcher(time.Duration(cfg.Deck.FetchTimeout)*time.Second), cfg.Deck.FontPath, logger),
		I18n:         i18nManager,
		StateManager: NewStateManager(),
		Authorizer:   auth.NewAuthorizer(cfg.Admins.AdminUserIDs),
		Limiter:      NewRateLimiter(time.Duration(cfg.RateLimit.IntervalSeconds) * time.Second),
		Tasks:        &sync.WaitGroup{},
		Logger:       logger,
		Version:      version,
		BuildDate:    buildDate,
	}

	SetBotCommands(bot, logger, cfg.DefaultLanguage, i18nManager)

	scheduler, err := startScheduler(deps)
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if cfg.HTTP.Listen != "" {
		srv = &http.Server{Addr: cfg.HTTP.Listen, Handler: NewRouter(deps), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server stopped", zap.Error(err))
				stop()
			}
		}()
	}

	if cfg.WebhookEnabled() {
		err = runWebhook(ctx, bot, deps)
	} else {
		err = runPolling(ctx, bot, deps)
	}

	logger.Info("Shutting down, waiting for running jobs...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown", zap.Error(err))
		}
	}
	waitTasks(shutdownCtx, deps)
	return err
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, deps BotDeps) error {
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		deps.Logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	deps.Logger.Info("Bot started, listening for updates...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			deps.Tasks.Add(1)
			go func(upd tgbotapi.Update) {
				defer deps.Tasks.Done()
				HandleUpdate(upd, deps)
			}(update)
		}
	}
}

func runWebhook(ctx context.Context, bot *tgbotapi.BotAPI, deps BotDeps) error {
	hook, err := tgbotapi.NewWebhook(deps.Config.HTTP.WebhookURL + "/webhook/" + deps.Config.HTTP.WebhookSecret)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	if _, err := bot.Request(hook); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	deps.Logger.Info("Webhook registered", zap.String("url", deps.Config.HTTP.WebhookURL))
	<-ctx.Done()
	return nil
}

func waitTasks(ctx context.Context, deps BotDeps) {
	done := make(chan struct{})
	go func() {
		deps.Tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		deps.Logger.Warn("Shutdown timeout reached with jobs still running")
	}
}

// SetBotCommands publishes the command list in the default language.
func SetBotCommands(bot Sender, logger *zap.Logger, defaultLang string, i18nManager *i18n.Manager) {
	names := []string{"start", "help", "balance", "stats", "language", "cancel", "version"}
	commands := make([]tgbotapi.BotCommand, 0, len(names))
	for _, name := range names {
		commands = append(commands, tgbotapi.BotCommand{
			Command:     name,
			Description: i18nManager.T(defaultLang, "command_desc_"+name),
		})
	}

	if _, err := bot.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		logger.Error("Failed to set bot commands", zap.Error(err))
	} else {
		logger.Info("Successfully set bot commands")
	}
}
