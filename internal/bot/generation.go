package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/deck"
	st "github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/tariff"
)

// RunGeneration builds and delivers the deck of a confirmed order in the background.
// It returns immediately; deps.Tasks tracks the goroutine.
func RunGeneration(order st.Order, chatID int64, lang string, deps BotDeps) {
	deps.Tasks.Add(1)
	go func() {
		defer deps.Tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				deps.Logger.Error("Panic recovered in generation", zap.Any("panic_value", r), zap.String("stack", string(debug.Stack())))
				failGeneration(order, chatID, lang, fmt.Errorf("panic: %v", r), deps)
			}
		}()

		timeout := time.Duration(deps.Config.Generation.TimeoutMinutes) * time.Minute
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		if err := generateAndDeliver(ctx, order, chatID, lang, deps); err != nil {
			failGeneration(order, chatID, lang, err, deps)
			return
		}
		deps.Logger.Info("Presentation delivered",
			zap.Uint("order_id", order.ID),
			zap.Int64("user_id", order.UserID),
			zap.Duration("took", time.Since(start)))
	}()
}

func generateAndDeliver(ctx context.Context, order st.Order, chatID int64, lang string, deps BotDeps) error {
	t, ok := deps.Tariffs.Get(tariff.Key(order.Tariff))
	if !ok {
		return fmt.Errorf("unknown tariff %q", order.Tariff)
	}

	out, err := deps.Generator.Generate(ctx, order.Topic, order.PageCount)
	if err != nil {
		return fmt.Errorf("generate outline: %w", err)
	}
	res, err := deps.Decks.Build(ctx, deck.Request{Outline: out, WithPDF: t.WithPDF})
	if err != nil {
		return fmt.Errorf("build deck: %w", err)
	}

	if err := deps.Store.SavePresentation(ctx, &order, res.Files, out); err != nil {
		deps.Logger.Error("Failed to save presentation", zap.Uint("order_id", order.ID), zap.Error(err))
	}

	caption := deps.I18n.T(lang, "presentation_ready",
		"topic", esc(order.Topic),
		"pages", strconv.Itoa(len(out.Slides)),
		"tariff", esc(t.Name))
	names := make([]string, 0, len(res.Files))
	for i, path := range res.Files {
		names = append(names, filepath.Base(path))
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
		if i == 0 {
			doc.Caption = caption
			doc.ParseMode = tgbotapi.ModeHTML
		}
		if _, err := deps.Bot.Send(doc); err != nil {
			deps.Logger.Error("Failed to deliver file", zap.Uint("order_id", order.ID), zap.String("file", path), zap.Error(err))
		}
	}

	if err := deps.Store.CompleteOrder(ctx, order.ID); err != nil {
		deps.Logger.Error("Failed to complete order", zap.Uint("order_id", order.ID), zap.Error(err))
	}
	deps.Store.LogAction(ctx, order.UserID, st.ActionGenerated, map[string]interface{}{
		"order_id": order.ID,
		"topic":    order.Topic,
		"pages":    order.PageCount,
		"tariff":   order.Tariff,
		"files":    names,
		"images":   res.Images,
	})
	return nil
}

// failGeneration apologises, marks the order failed, refunds the charge and tells the admins.
func failGeneration(order st.Order, chatID int64, lang string, cause error, deps BotDeps) {
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	deps.Logger.Error("Presentation generation failed",
		zap.Uint("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.Error(cause))

	_, _ = sendText(chatID, deps.I18n.T(lang, "generation_failed"), nil, deps)

	if err := deps.Store.FailOrder(ctx, order.ID, cause.Error()); err != nil {
		deps.Logger.Error("Failed to mark order failed", zap.Uint("order_id", order.ID), zap.Error(err))
	}

	if order.Charged.IsPositive() {
		if err := refund(ctx, order.UserID, order.ID, order.Charged, deps); err != nil {
			deps.Logger.Error("Refund failed", zap.Uint("order_id", order.ID), zap.Error(err))
		} else {
			_, _ = sendText(chatID, deps.I18n.T(lang, "refund_done", "amount", deps.I18n.Money(lang, order.Charged)), nil, deps)
		}
	}

	adminLang := deps.I18n.DefaultLanguage()
	notifyAdmins(deps.I18n.T(adminLang, "admin_generation_failed",
		"order_id", strconv.FormatUint(uint64(order.ID), 10),
		"user_id", strconv.FormatInt(order.UserID, 10),
		"topic", esc(order.Topic),
		"error", esc(cause.Error())), deps)

	deps.Store.LogAction(ctx, order.UserID, st.ActionGenerationFailed, map[string]interface{}{
		"order_id": order.ID,
		"error":    cause.Error(),
		"topic":    order.Topic,
		"pages":    order.PageCount,
		"tariff":   order.Tariff,
	})
}

// refund returns amount to the cash part of the balance. Zero amounts are a no-op.
func refund(ctx context.Context, userID int64, orderID uint, amount decimal.Decimal, deps BotDeps) error {
	if !amount.IsPositive() {
		return nil
	}
	return deps.Ledger.Add(ctx, userID, amount, st.BalanceCash, st.Movement{
		Kind:        st.TxRefund,
		Description: fmt.Sprintf("refund for order #%d", orderID),
		OrderID:     &orderID,
	})
}
