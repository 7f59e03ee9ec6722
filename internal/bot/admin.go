package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	st "github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
)

const (
	adminOpAdd      = "add"
	adminOpSub      = "sub"
	adminOpReferrer = "referrer"
	adminOpReferred = "referred"

	broadcastProgressEvery = 25
)

// ShowAdminPanel sends the admin menu, or edits messageID into it when non-zero.
func ShowAdminPanel(ctx context.Context, chatID int64, messageID int, lang string, deps BotDeps) {
	enabled, err := deps.Store.GetBoolSetting(ctx, st.SettingPresentationEnabled, true)
	if err != nil {
		deps.Logger.Error("Failed to read feature switch", zap.Error(err))
	}
	status := deps.I18n.T(lang, "admin_status_enabled")
	if !enabled {
		status = deps.I18n.T(lang, "admin_status_disabled")
	}
	text := deps.I18n.T(lang, "admin_panel", "status", status)
	kb := adminKeyboard(lang, enabled, deps)
	if messageID != 0 {
		editText(chatID, messageID, text, &kb, deps)
		return
	}
	_, _ = sendText(chatID, text, kb, deps)
}

// HandleAdminCallback serves the admin_* buttons. The caller has checked the admin role.
func HandleAdminCallback(ctx context.Context, query *tgbotapi.CallbackQuery, lang string, deps BotDeps) {
	adminID := query.From.ID
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	answerCallback(query.ID, "", deps)

	prompt := func(step Step, op, key string) {
		deps.StateManager.SetState(adminID, &UserState{
			UserID:  adminID,
			ChatID:  chatID,
			Step:    step,
			AdminOp: op,
		})
		kb := adminCancelKeyboard(lang, deps)
		editText(chatID, messageID, deps.I18n.T(lang, key), &kb, deps)
	}

	switch query.Data {
	case "admin_stats":
		text, err := adminStatsText(ctx, lang, deps)
		if err != nil {
			sendGenericError(chatID, adminID, lang, "admin_stats", err, deps)
			return
		}
		kb := adminBackKeyboard(lang, deps)
		editText(chatID, messageID, text, &kb, deps)

	case "admin_broadcast":
		prompt(StepAdminBroadcast, "", "admin_broadcast_prompt")
	case "admin_balance_add":
		prompt(StepAdminBalanceUser, adminOpAdd, "admin_ask_user_id")
	case "admin_balance_sub":
		prompt(StepAdminBalanceUser, adminOpSub, "admin_ask_user_id")
	case "admin_message":
		prompt(StepAdminMessageUser, "", "admin_ask_user_id")
	case "admin_referral_referrer":
		prompt(StepAdminReferralReward, adminOpReferrer, "admin_ask_reward")
	case "admin_referral_referred":
		prompt(StepAdminReferralReward, adminOpReferred, "admin_ask_reward")

	case "admin_referral":
		settings, err := deps.Store.GetReferralSettings(ctx)
		if err != nil {
			sendGenericError(chatID, adminID, lang, "admin_referral", err, deps)
			return
		}
		kb := adminReferralKeyboard(lang, deps)
		editText(chatID, messageID, deps.I18n.T(lang, "admin_referral_settings",
			"referrer", deps.I18n.Money(lang, settings.ReferrerReward),
			"referred", deps.I18n.Money(lang, settings.ReferredReward)), &kb, deps)

	case "admin_toggle":
		enabled, err := deps.Store.GetBoolSetting(ctx, st.SettingPresentationEnabled, true)
		if err != nil {
			sendGenericError(chatID, adminID, lang, "admin_toggle", err, deps)
			return
		}
		if err := deps.Store.SetBoolSetting(ctx, st.SettingPresentationEnabled, !enabled, "presentation ordering switch"); err != nil {
			sendGenericError(chatID, adminID, lang, "admin_toggle", err, deps)
			return
		}
		deps.Store.LogAction(ctx, adminID, st.ActionAdminSettings, map[string]interface{}{
			"key":   st.SettingPresentationEnabled,
			"value": !enabled,
		})
		deps.Logger.Info("Presentation ordering switched", zap.Int64("admin_id", adminID), zap.Bool("enabled", !enabled))
		ShowAdminPanel(ctx, chatID, messageID, lang, deps)

	case "admin_cancel", "admin_back":
		deps.StateManager.ClearState(adminID)
		ShowAdminPanel(ctx, chatID, messageID, lang, deps)

	default:
		deps.Logger.Warn("Unknown admin callback", zap.Int64("admin_id", adminID), zap.String("data", query.Data))
	}
}

func adminStatsText(ctx context.Context, lang string, deps BotDeps) (string, error) {
	s, err := deps.Store.GetGlobalStats(ctx, time.Now())
	if err != nil {
		return "", err
	}
	n := func(v int64) string { return strconv.FormatInt(v, 10) }
	return deps.I18n.T(lang, "admin_stats",
		"users", n(s.Users),
		"blocked", n(s.BlockedUsers),
		"new_today", n(s.NewUsersToday),
		"pending", n(s.Orders[st.OrderPending]),
		"confirmed", n(s.Orders[st.OrderConfirmed]),
		"completed", n(s.Orders[st.OrderCompleted]),
		"failed", n(s.Orders[st.OrderFailed]),
		"cancelled", n(s.Orders[st.OrderCancelled]),
		"presentations", n(s.Presentations),
		"revenue", deps.I18n.Money(lang, s.Revenue),
		"cash", deps.I18n.Money(lang, s.CashOnHand)), nil
}

// handleAdminInput consumes the text an admin types while a panel dialog waits for it.
func handleAdminInput(ctx context.Context, message *tgbotapi.Message, state *UserState, lang string, deps BotDeps) {
	if !deps.Authorizer.IsAdmin(message.From.ID) {
		deps.StateManager.ClearState(message.From.ID)
		return
	}
	chatID := message.Chat.ID

	switch state.Step {
	case StepAdminBroadcast:
		deps.StateManager.ClearState(state.UserID)
		StartBroadcast(state.UserID, chatID, message.MessageID, lang, deps)

	case StepAdminBalanceUser, StepAdminMessageUser:
		target, err := adminTargetUser(ctx, message.Text, deps)
		if err != nil {
			_, _ = sendText(chatID, deps.I18n.T(lang, "admin_user_not_found"), adminCancelKeyboard(lang, deps), deps)
			return
		}
		state.TargetUserID = target.UserID
		next, key := StepAdminBalanceAmount, "admin_ask_amount"
		if state.Step == StepAdminMessageUser {
			next, key = StepAdminMessageText, "admin_ask_message"
		}
		state.Step = next
		deps.StateManager.SetState(state.UserID, state)

		bal, err := deps.Ledger.GetBalance(ctx, target.UserID)
		if err != nil {
			sendGenericError(chatID, state.UserID, lang, "admin_balance", err, deps)
			return
		}
		_, _ = sendText(chatID, deps.I18n.T(lang, key,
			"name", esc(target.FullName),
			"user_id", strconv.FormatInt(target.UserID, 10),
			"balance", deps.I18n.Money(lang, bal.Total())), adminCancelKeyboard(lang, deps), deps)

	case StepAdminBalanceAmount:
		amount, ok := parseAmount(message.Text)
		if !ok || !amount.IsPositive() {
			_, _ = sendText(chatID, deps.I18n.T(lang, "admin_invalid_amount"), adminCancelKeyboard(lang, deps), deps)
			return
		}
		adminChangeBalance(ctx, chatID, state, amount, lang, deps)

	case StepAdminMessageText:
		deps.StateManager.ClearState(state.UserID)
		copyMsg := tgbotapi.NewCopyMessage(state.TargetUserID, chatID, message.MessageID)
		key := "admin_message_sent"
		if _, err := deps.Bot.Request(copyMsg); err != nil {
			deps.Logger.Warn("Failed to deliver admin message", zap.Int64("target_id", state.TargetUserID), zap.Error(err))
			key = "admin_message_failed"
			if isBotBlocked(err) {
				_ = deps.Store.SetUserBlocked(ctx, state.TargetUserID, true)
			}
		} else {
			deps.Store.LogAction(ctx, state.UserID, st.ActionAdminMessage, map[string]interface{}{"target_id": state.TargetUserID})
		}
		_, _ = sendText(chatID, deps.I18n.T(lang, key, "user_id", strconv.FormatInt(state.TargetUserID, 10)), nil, deps)

	case StepAdminReferralReward:
		amount, ok := parseAmount(message.Text)
		if !ok || amount.IsNegative() {
			_, _ = sendText(chatID, deps.I18n.T(lang, "admin_invalid_amount"), adminCancelKeyboard(lang, deps), deps)
			return
		}
		settings, err := deps.Store.GetReferralSettings(ctx)
		if err != nil {
			sendGenericError(chatID, state.UserID, lang, "admin_referral", err, deps)
			return
		}
		referrer, referred := settings.ReferrerReward, settings.ReferredReward
		if state.AdminOp == adminOpReferrer {
			referrer = amount
		} else {
			referred = amount
		}
		if err := deps.Store.UpdateReferralSettings(ctx, referrer, referred); err != nil {
			sendGenericError(chatID, state.UserID, lang, "admin_referral", err, deps)
			return
		}
		deps.StateManager.ClearState(state.UserID)
		deps.Store.LogAction(ctx, state.UserID, st.ActionAdminSettings, map[string]interface{}{
			"referrer_reward": referrer.String(),
			"referred_reward": referred.String(),
		})
		_, _ = sendText(chatID, deps.I18n.T(lang, "admin_referral_updated",
			"referrer", deps.I18n.Money(lang, referrer),
			"referred", deps.I18n.Money(lang, referred)), adminBackKeyboard(lang, deps), deps)
	}
}

func adminTargetUser(ctx context.Context, text string, deps BotDeps) (*st.User, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return nil, err
	}
	return deps.Store.GetUser(ctx, id)
}

// parseAmount accepts whole or decimal numbers with optional space or comma grouping.
func parseAmount(text string) (decimal.Decimal, bool) {
	clean := strings.NewReplacer(" ", "", ",", "", "_", "").Replace(strings.TrimSpace(text))
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func adminChangeBalance(ctx context.Context, chatID int64, state *UserState, amount decimal.Decimal, lang string, deps BotDeps) {
	target := state.TargetUserID
	m := st.Movement{Description: fmt.Sprintf("by admin %d", state.UserID)}

	switch state.AdminOp {
	case adminOpAdd:
		m.Kind = st.TxTopUp
		if err := deps.Ledger.Add(ctx, target, amount, st.BalanceCash, m); err != nil {
			sendGenericError(chatID, state.UserID, lang, "admin_top_up", err, deps)
			return
		}
	case adminOpSub:
		m.Kind = st.TxAdminDebit
		ok, err := deps.Ledger.Deduct(ctx, target, amount, m)
		if err != nil {
			sendGenericError(chatID, state.UserID, lang, "admin_debit", err, deps)
			return
		}
		if !ok {
			bal, _ := deps.Ledger.GetBalance(ctx, target)
			_, _ = sendText(chatID, deps.I18n.T(lang, "admin_balance_insufficient",
				"balance", deps.I18n.Money(lang, bal.Total())), adminCancelKeyboard(lang, deps), deps)
			return
		}
	default:
		deps.StateManager.ClearState(state.UserID)
		return
	}
	deps.StateManager.ClearState(state.UserID)

	bal, err := deps.Ledger.GetBalance(ctx, target)
	if err != nil {
		deps.Logger.Error("Failed to read balance after admin change", zap.Int64("target_id", target), zap.Error(err))
	}
	deps.Store.LogAction(ctx, state.UserID, st.ActionAdminBalance, map[string]interface{}{
		"target_id": target,
		"op":        state.AdminOp,
		"amount":    amount.String(),
	})
	_, _ = sendText(chatID, deps.I18n.T(lang, "admin_balance_done",
		"user_id", strconv.FormatInt(target, 10),
		"balance", deps.I18n.Money(lang, bal.Total())), adminBackKeyboard(lang, deps), deps)

	if state.AdminOp == adminOpAdd {
		userLang := deps.I18n.DefaultLanguage()
		if u, err := deps.Store.GetUser(ctx, target); err == nil && deps.I18n.HasLanguage(u.Language) {
			userLang = u.Language
		}
		_, _ = sendText(target, deps.I18n.T(userLang, "balance_topped_up",
			"amount", deps.I18n.Money(userLang, amount),
			"balance", deps.I18n.Money(userLang, bal.Total())), nil, deps)
	}
}

type BroadcastResult struct {
	Total   int
	Sent    int
	Blocked int
	Failed  int
}

// StartBroadcast copies the admin's message to every reachable user in the background.
func StartBroadcast(adminID, chatID int64, messageID int, lang string, deps BotDeps) {
	deps.Tasks.Add(1)
	go func() {
		defer deps.Tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				deps.Logger.Error("Panic recovered in broadcast", zap.Any("panic_value", r))
			}
		}()
		runBroadcast(context.Background(), adminID, chatID, messageID, lang, deps)
	}()
}

func runBroadcast(ctx context.Context, adminID, chatID int64, messageID int, lang string, deps BotDeps) BroadcastResult {
	var res BroadcastResult
	recipients, err := deps.Store.BroadcastRecipients(ctx)
	if err != nil {
		sendGenericError(chatID, adminID, lang, "broadcast_recipients", err, deps)
		return res
	}
	res.Total = len(recipients)

	progress, err := sendText(chatID, deps.I18n.T(lang, "broadcast_started", "total", strconv.Itoa(res.Total)), nil, deps)
	if err != nil {
		progress = tgbotapi.Message{}
	}
	delay := time.Duration(deps.Config.Broadcast.DelayMillis) * time.Millisecond
	logger := deps.Logger.With(zap.Int64("admin_id", adminID))

	for i, userID := range recipients {
		if ctx.Err() != nil {
			break
		}
		_, err := deps.Bot.Request(tgbotapi.NewCopyMessage(userID, chatID, messageID))
		switch {
		case err == nil:
			res.Sent++
		case isBotBlocked(err):
			res.Blocked++
			if err := deps.Store.SetUserBlocked(ctx, userID, true); err != nil {
				logger.Warn("Failed to mark user blocked", zap.Int64("user_id", userID), zap.Error(err))
			}
		default:
			res.Failed++
			logger.Debug("Broadcast delivery failed", zap.Int64("user_id", userID), zap.Error(err))
		}

		if progress.MessageID != 0 && (i+1)%broadcastProgressEvery == 0 && i+1 < res.Total {
			editText(chatID, progress.MessageID, deps.I18n.T(lang, "broadcast_progress",
				"done", strconv.Itoa(i+1),
				"total", strconv.Itoa(res.Total)), nil, deps)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	_, _ = sendText(chatID, deps.I18n.T(lang, "broadcast_done",
		"total", strconv.Itoa(res.Total),
		"sent", strconv.Itoa(res.Sent),
		"blocked", strconv.Itoa(res.Blocked),
		"failed", strconv.Itoa(res.Failed)), nil, deps)
	deps.Store.LogAction(ctx, adminID, st.ActionAdminBroadcast, map[string]interface{}{
		"total":   res.Total,
		"sent":    res.Sent,
		"blocked": res.Blocked,
		"failed":  res.Failed,
	})
	logger.Info("Broadcast finished", zap.Int("total", res.Total), zap.Int("sent", res.Sent), zap.Int("blocked", res.Blocked))
	return res
}

// isBotBlocked reports whether Telegram refused delivery because the user blocked the bot
// or deleted the account.
func isBotBlocked(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 403
	}
	return strings.Contains(err.Error(), "Forbidden")
}
