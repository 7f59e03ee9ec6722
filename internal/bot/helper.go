package bot

import (
	"context"
	"errors"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	st "github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
)

// userLanguage picks the stored preference, then the Telegram client language, then the default.
func userLanguage(ctx context.Context, userID int64, clientLang string, deps BotDeps) string {
	user, err := deps.Store.GetUser(ctx, userID)
	if err == nil && user.Language != "" && deps.I18n.HasLanguage(user.Language) {
		return user.Language
	}
	if err != nil && !errors.Is(err, st.ErrUserNotFound) {
		deps.Logger.Error("Failed to load user for language preference", zap.Int64("user_id", userID), zap.Error(err))
	}
	if clientLang != "" && deps.I18n.HasLanguage(clientLang) {
		return clientLang
	}
	return deps.I18n.DefaultLanguage()
}

func esc(s string) string {
	return html.EscapeString(s)
}

// sendText sends an HTML message. markup may be nil.
func sendText(chatID int64, text string, markup interface{}, deps BotDeps) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := deps.Bot.Send(msg)
	if err != nil {
		deps.Logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return sent, err
}

// editText replaces the text of a bot message. A nil markup removes the inline keyboard.
func editText(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup, deps BotDeps) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = markup
	if _, err := deps.Bot.Send(edit); err != nil {
		deps.Logger.Warn("Failed to edit message", zap.Int64("chat_id", chatID), zap.Int("message_id", messageID), zap.Error(err))
	}
}

func answerCallback(callbackID, text string, deps BotDeps) {
	if _, err := deps.Bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		deps.Logger.Debug("Failed to answer callback", zap.String("callback_id", callbackID), zap.Error(err))
	}
}

// sendGenericError logs err and tells the user something went wrong.
func sendGenericError(chatID int64, userID int64, lang string, operation string, err error, deps BotDeps) {
	deps.Logger.Error("Operation failed", zap.String("operation", operation), zap.Error(err), zap.Int64("user_id", userID))
	_, _ = sendText(chatID, deps.I18n.T(lang, "error_generic"), nil, deps)
}

func notifyAdmins(text string, deps BotDeps) {
	for _, adminID := range deps.Authorizer.AdminIDs() {
		_, _ = sendText(adminID, text, nil, deps)
	}
}
