package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func HandleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery, deps BotDeps) {
	if query.From == nil {
		return
	}
	userID := query.From.ID
	lang := userLanguage(ctx, userID, query.From.LanguageCode, deps)
	if query.Message == nil || query.Message.Chat == nil {
		deps.Logger.Warn("Callback query without message", zap.Int64("user_id", userID), zap.String("data", query.Data))
		answerCallback(query.ID, deps.I18n.T(lang, "callback_expired"), deps)
		return
	}
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	data := query.Data

	deps.Logger.Debug("Callback received", zap.Int64("user_id", userID), zap.String("data", data), zap.Int("message_id", messageID))

	state, hasState := deps.StateManager.GetState(userID)
	inStep := func(steps ...Step) bool {
		if !hasState {
			return false
		}
		for _, s := range steps {
			if state.Step == s {
				return true
			}
		}
		return false
	}

	switch {
	case strings.HasPrefix(data, cbTariffPrefix):
		if !inStep(StepChooseTariff) {
			expireCallback(query, lang, deps)
			return
		}
		HandleTariffCallback(ctx, query, state, strings.TrimPrefix(data, cbTariffPrefix), lang, deps)

	case data == cbConfirmYes:
		if !inStep(StepConfirm1) {
			expireCallback(query, lang, deps)
			return
		}
		HandleFirstConfirmation(ctx, query, state, lang, deps)

	case data == cbConfirmFinal:
		if !inStep(StepConfirm2) {
			expireCallback(query, lang, deps)
			return
		}
		HandleFinalConfirmation(ctx, query, state, lang, deps)

	case data == cbConfirmNo:
		if !hasState || !state.Step.IsOrder() {
			expireCallback(query, lang, deps)
			return
		}
		answerCallback(query.ID, "", deps)
		HandleCancelOrder(ctx, chatID, messageID, userID, lang, deps)

	case data == cbBackToMenu:
		answerCallback(query.ID, "", deps)
		if hasState && state.Step.IsOrder() {
			abandonState(ctx, state, deps)
		}
		editText(chatID, messageID, deps.I18n.T(lang, "back_to_menu_text"), nil, deps)
		_, _ = sendText(chatID, deps.I18n.T(lang, "menu_prompt"), mainMenuKeyboard(lang, deps), deps)

	case data == cbTopUp:
		answerCallback(query.ID, "", deps)
		kb := backToBalanceKeyboard(lang, deps)
		editText(chatID, messageID, topUpText(lang, deps), &kb, deps)

	case data == cbReferralLink:
		answerCallback(query.ID, "", deps)
		showReferral(ctx, chatID, messageID, userID, lang, deps)

	case data == cbBackToBalance:
		answerCallback(query.ID, "", deps)
		ShowBalance(ctx, chatID, messageID, userID, lang, deps)

	case strings.HasPrefix(data, cbLanguagePrefix):
		code := strings.TrimPrefix(data, cbLanguagePrefix)
		if !deps.I18n.HasLanguage(code) {
			expireCallback(query, lang, deps)
			return
		}
		if err := deps.Store.SetUserLanguage(ctx, userID, code); err != nil {
			answerCallback(query.ID, "", deps)
			replyNotRegistered(chatID, userID, lang, err, deps)
			return
		}
		answerCallback(query.ID, "", deps)
		name, _ := deps.I18n.GetLanguageName(code)
		editText(chatID, messageID, deps.I18n.T(code, "language_changed", "language", esc(name)), nil, deps)
		_, _ = sendText(chatID, deps.I18n.T(code, "menu_prompt"), mainMenuKeyboard(code, deps), deps)

	case strings.HasPrefix(data, cbAdminPrefix):
		if !deps.Authorizer.IsAdmin(userID) {
			answerCallback(query.ID, deps.I18n.T(lang, "admin_only"), deps)
			return
		}
		HandleAdminCallback(ctx, query, lang, deps)

	default:
		deps.Logger.Warn("Unknown callback data", zap.Int64("user_id", userID), zap.String("data", data))
		answerCallback(query.ID, deps.I18n.T(lang, "unknown_action"), deps)
	}
}

// expireCallback answers a button that no longer matches the conversation and strips its keyboard.
func expireCallback(query *tgbotapi.CallbackQuery, lang string, deps BotDeps) {
	answerCallback(query.ID, deps.I18n.T(lang, "callback_expired"), deps)
	strip := tgbotapi.NewEditMessageReplyMarkup(query.Message.Chat.ID, query.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := deps.Bot.Request(strip); err != nil {
		deps.Logger.Debug("Failed to remove stale keyboard", zap.Int64("user_id", query.From.ID), zap.Error(err))
	}
}
