package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	st "github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
)

// updateTimeout bounds the synchronous part of one update. Generation and broadcasts run on their own.
const updateTimeout = 30 * time.Second

func HandleUpdate(update tgbotapi.Update, deps BotDeps) {
	defer func() {
		if r := recover(); r != nil {
			errMsg := fmt.Sprintf("%v", r)
			stackTrace := string(debug.Stack())
			deps.Logger.Error("Panic recovered in HandleUpdate", zap.Any("panic_value", errMsg), zap.String("stack", stackTrace))

			var chatID, userID int64
			if update.Message != nil && update.Message.From != nil {
				chatID = update.Message.Chat.ID
				userID = update.Message.From.ID
			} else if update.CallbackQuery != nil {
				userID = update.CallbackQuery.From.ID
				if update.CallbackQuery.Message != nil {
					chatID = update.CallbackQuery.Message.Chat.ID
				}
			}

			trace := stackTrace
			const maxTrace = 3000
			if len(trace) > maxTrace {
				trace = trace[:maxTrace] + "\n...(truncated)"
			}
			notifyAdmins(fmt.Sprintf("☢️ PANIC RECOVERED\nUser: %d\nError: %s\n\n<pre>%s</pre>",
				userID, esc(errMsg), esc(trace)), deps)

			if chatID != 0 && !deps.Authorizer.IsAdmin(userID) {
				_, _ = sendText(chatID, deps.I18n.T(deps.I18n.DefaultLanguage(), "error_generic"), nil, deps)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	if update.Message != nil {
		HandleMessage(ctx, update.Message, deps)
	} else if update.CallbackQuery != nil {
		HandleCallbackQuery(ctx, update.CallbackQuery, deps)
	}
}

func HandleMessage(ctx context.Context, message *tgbotapi.Message, deps BotDeps) {
	if message.From == nil || message.Chat == nil {
		return
	}
	if message.Chat.Type != "" && !message.Chat.IsPrivate() {
		return
	}
	userID := message.From.ID
	chatID := message.Chat.ID
	lang := userLanguage(ctx, userID, message.From.LanguageCode, deps)

	if err := deps.Store.TouchUser(ctx, userID, message.From.UserName); err != nil {
		deps.Logger.Debug("Failed to touch user", zap.Int64("user_id", userID), zap.Error(err))
	}

	if message.IsCommand() {
		if !deps.Authorizer.IsAdmin(userID) && !deps.Limiter.Allow(userID) {
			_, _ = sendText(chatID, deps.I18n.T(lang, "rate_limited"), nil, deps)
			return
		}
		handleCommand(ctx, message, lang, deps)
		return
	}

	state, hasState := deps.StateManager.GetState(userID)

	if message.Contact != nil {
		if hasState && state.Step == StepAskContact {
			HandleContactInput(ctx, message, state, lang, deps)
		}
		return
	}

	// Menu buttons leave any order or admin dialog; onboarding has to finish first.
	if action := menuAction(lang, message.Text, deps); action != "" && (!hasState || !state.Step.IsOnboarding()) {
		if hasState {
			abandonState(ctx, state, deps)
		}
		handleMenu(ctx, action, chatID, userID, lang, deps)
		return
	}

	if hasState {
		switch state.Step {
		case StepAskFullName:
			HandleFullNameInput(ctx, message, state, lang, deps)
		case StepAskContact:
			HandleContactInput(ctx, message, state, lang, deps)
		case StepAskTopic:
			HandleTopicInput(ctx, message, state, lang, deps)
		case StepAskPages:
			HandlePagesInput(ctx, message, state, lang, deps)
		case StepChooseTariff, StepConfirm1, StepConfirm2:
			_, _ = sendText(chatID, deps.I18n.T(lang, "use_buttons"), nil, deps)
		default:
			if state.Step.IsAdmin() {
				handleAdminInput(ctx, message, state, lang, deps)
			}
		}
		return
	}

	_, _ = sendText(chatID, deps.I18n.T(lang, "use_menu"), mainMenuKeyboard(lang, deps), deps)
}

func handleCommand(ctx context.Context, message *tgbotapi.Message, lang string, deps BotDeps) {
	userID := message.From.ID
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		handleStart(ctx, message, lang, deps)
	case "help":
		HandleHelpCommand(chatID, lang, deps)
	case "balance":
		ShowBalance(ctx, chatID, 0, userID, lang, deps)
	case "stats":
		ShowStats(ctx, chatID, userID, lang, deps)
	case "language":
		_, _ = sendText(chatID, deps.I18n.T(lang, "choose_language"), languageKeyboard(deps), deps)
	case "cancel":
		HandleCancelOrder(ctx, chatID, 0, userID, lang, deps)
	case "version":
		_, _ = sendText(chatID, deps.I18n.T(lang, "version_info",
			"version", esc(deps.Version),
			"build_date", esc(deps.BuildDate)), nil, deps)
	case "admin":
		if !deps.Authorizer.IsAdmin(userID) {
			_, _ = sendText(chatID, deps.I18n.T(lang, "admin_only"), nil, deps)
			return
		}
		deps.StateManager.ClearState(userID)
		ShowAdminPanel(ctx, chatID, 0, lang, deps)
	default:
		_, _ = sendText(chatID, deps.I18n.T(lang, "unknown_command"), nil, deps)
	}
}

func handleMenu(ctx context.Context, action string, chatID, userID int64, lang string, deps BotDeps) {
	switch action {
	case menuOrder:
		StartOrder(ctx, chatID, userID, lang, deps)
	case menuBalance:
		ShowBalance(ctx, chatID, 0, userID, lang, deps)
	case menuAbout:
		text := deps.I18n.T(lang, "about_text",
			"min", strconv.Itoa(deps.Config.Order.MinPages),
			"max", strconv.Itoa(deps.Config.Order.MaxPages),
			"free", strconv.Itoa(deps.Tariffs.FreeOrders()))
		sendWithOptionalKeyboard(chatID, text, supportKeyboard(lang, deps), deps)
	case menuContact:
		sendWithOptionalKeyboard(chatID, deps.I18n.T(lang, "contact_text"), supportKeyboard(lang, deps), deps)
	}
}

func sendWithOptionalKeyboard(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup, deps BotDeps) {
	if kb == nil {
		_, _ = sendText(chatID, text, nil, deps)
		return
	}
	_, _ = sendText(chatID, text, *kb, deps)
}

// abandonState drops a dialog the user walked away from. A pending order is cancelled.
func abandonState(ctx context.Context, state *UserState, deps BotDeps) {
	if state.Step.IsOrder() && state.OrderID != 0 {
		cancelPendingOrder(ctx, state.UserID, state.OrderID, deps)
	}
	deps.StateManager.ClearState(state.UserID)
}

func HandleHelpCommand(chatID int64, lang string, deps BotDeps) {
	text := deps.I18n.T(lang, "help_text",
		"min", strconv.Itoa(deps.Config.Order.MinPages),
		"max", strconv.Itoa(deps.Config.Order.MaxPages))
	_, _ = sendText(chatID, text, nil, deps)
}

// ShowBalance sends the balance view, or edits messageID into it when non-zero.
func ShowBalance(ctx context.Context, chatID int64, messageID int, userID int64, lang string, deps BotDeps) {
	if _, err := deps.Store.GetUser(ctx, userID); err != nil {
		replyNotRegistered(chatID, userID, lang, err, deps)
		return
	}
	text, err := balanceText(ctx, userID, lang, deps)
	if err != nil {
		sendGenericError(chatID, userID, lang, "show_balance", err, deps)
		return
	}
	kb := balanceKeyboard(lang, deps)
	if messageID != 0 {
		editText(chatID, messageID, text, &kb, deps)
		return
	}
	_, _ = sendText(chatID, text, kb, deps)
}

func balanceText(ctx context.Context, userID int64, lang string, deps BotDeps) (string, error) {
	bal, err := deps.Ledger.GetBalance(ctx, userID)
	if err != nil {
		return "", err
	}
	refs, err := deps.Store.GetReferralStats(ctx, userID)
	if err != nil {
		return "", err
	}
	stats, err := deps.Store.GetUserStats(ctx, userID, time.Now())
	if err != nil {
		return "", err
	}
	text := deps.I18n.T(lang, "balance_info",
		"total", deps.I18n.Money(lang, bal.Total()),
		"cash", deps.I18n.Money(lang, bal.Cash),
		"referral", deps.I18n.Money(lang, bal.Referral),
		"invited", strconv.FormatInt(refs.Confirmed, 10),
		"decks", strconv.FormatInt(stats.Total, 10),
		"member_since", stats.MemberSince.Format("2006-01-02"))

	txs, err := deps.Ledger.ListTransactions(ctx, userID, recentTransactions)
	if err != nil {
		deps.Logger.Warn("Failed to list transactions", zap.Int64("user_id", userID), zap.Error(err))
		return text, nil
	}
	if len(txs) == 0 {
		return text, nil
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n")
	b.WriteString(deps.I18n.T(lang, "balance_history"))
	for _, tx := range txs {
		sign := "+"
		if tx.Amount.IsNegative() {
			sign = "−"
		}
		fmt.Fprintf(&b, "\n%s %s%s · %s", tx.CreatedAt.Format("02.01"), sign,
			deps.I18n.Money(lang, tx.Amount.Abs()), deps.I18n.T(lang, "tx_"+string(tx.Kind)))
	}
	return b.String(), nil
}

const recentTransactions = 5

func ShowStats(ctx context.Context, chatID, userID int64, lang string, deps BotDeps) {
	if _, err := deps.Store.GetUser(ctx, userID); err != nil {
		replyNotRegistered(chatID, userID, lang, err, deps)
		return
	}
	stats, err := deps.Store.GetUserStats(ctx, userID, time.Now())
	if err != nil {
		sendGenericError(chatID, userID, lang, "show_stats", err, deps)
		return
	}
	lastActivity := deps.I18n.T(lang, "never")
	if !stats.LastActivity.IsZero() {
		lastActivity = stats.LastActivity.Format("2006-01-02 15:04")
	}
	_, _ = sendText(chatID, deps.I18n.T(lang, "user_stats",
		"total", strconv.FormatInt(stats.Total, 10),
		"this_month", strconv.FormatInt(stats.ThisMonth, 10),
		"last_month", strconv.FormatInt(stats.LastMonth, 10),
		"active_days", strconv.Itoa(stats.ActiveDays),
		"last_activity", lastActivity), nil, deps)
}

func showReferral(ctx context.Context, chatID int64, messageID int, userID int64, lang string, deps BotDeps) {
	user, err := deps.Store.GetUser(ctx, userID)
	if err != nil {
		replyNotRegistered(chatID, userID, lang, err, deps)
		return
	}
	settings, err := deps.Store.GetReferralSettings(ctx)
	if err != nil {
		sendGenericError(chatID, userID, lang, "referral_settings", err, deps)
		return
	}
	stats, err := deps.Store.GetReferralStats(ctx, userID)
	if err != nil {
		sendGenericError(chatID, userID, lang, "referral_stats", err, deps)
		return
	}

	link := referralLink(deps.Config.BotUsername, user.ReferralCode)
	text := deps.I18n.T(lang, "referral_info",
		"link", esc(link),
		"referrer_reward", deps.I18n.Money(lang, settings.ReferrerReward),
		"referred_reward", deps.I18n.Money(lang, settings.ReferredReward),
		"invited", strconv.FormatInt(stats.Invited, 10),
		"confirmed", strconv.FormatInt(stats.Confirmed, 10),
		"earned", deps.I18n.Money(lang, stats.Earned))
	kb := referralKeyboard(lang, link, deps)
	editText(chatID, messageID, text, &kb, deps)
}

func topUpText(lang string, deps BotDeps) string {
	s := deps.Config.Support
	admin := strings.TrimPrefix(s.AdminUsername, "@")
	return deps.I18n.T(lang, "top_up_info",
		"card", esc(s.PaymentCard),
		"card_name", esc(s.PaymentCardName),
		"admin", esc(admin))
}

func replyNotRegistered(chatID, userID int64, lang string, err error, deps BotDeps) {
	if err != nil && !errors.Is(err, st.ErrUserNotFound) {
		sendGenericError(chatID, userID, lang, "load_user", err, deps)
		return
	}
	_, _ = sendText(chatID, deps.I18n.T(lang, "not_registered"), nil, deps)
}
