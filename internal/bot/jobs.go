package bot

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/deck"
)

const expirySchedule = "@hourly"

// startScheduler registers the housekeeping jobs. The caller stops the returned cron.
func startScheduler(deps BotDeps) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(deps.Config.Cleanup.Schedule, func() { CleanupDecks(deps) }); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(expirySchedule, func() { ExpireStaleOrders(context.Background(), deps) }); err != nil {
		return nil, err
	}
	c.Start()
	deps.Logger.Info("Scheduler started",
		zap.String("cleanup", deps.Config.Cleanup.Schedule),
		zap.String("expiry", expirySchedule))
	return c, nil
}

// CleanupDecks removes generated files older than the configured age.
func CleanupDecks(deps BotDeps) {
	maxAge := time.Duration(deps.Config.Cleanup.MaxAgeHours) * time.Hour
	n, err := deck.Sweep(deps.Config.OutputDir, maxAge, time.Now())
	if err != nil {
		deps.Logger.Error("Deck cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		deps.Logger.Info("Old decks removed", zap.Int("files", n))
	}
}

// ExpireStaleOrders cancels pending orders nobody confirmed and drops idle dialogs.
func ExpireStaleOrders(ctx context.Context, deps BotDeps) {
	ttl := time.Duration(deps.Config.Order.PendingTTLHours) * time.Hour
	n, err := deps.Store.ExpirePendingOrders(ctx, time.Now().Add(-ttl))
	if err != nil {
		deps.Logger.Error("Failed to expire pending orders", zap.Error(err))
	}
	dropped := deps.StateManager.Sweep(ttl)
	if n > 0 || dropped > 0 {
		deps.Logger.Info("Stale orders expired", zap.Int64("orders", n), zap.Int("dialogs", dropped))
	}
}
