package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	st "github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
)

const (
	minNameRunes = 2
	maxNameRunes = 128
)

// handleStart greets known users and starts registration for new ones.
// "/start ref_<code>" remembers the referral code until registration finishes.
func handleStart(ctx context.Context, message *tgbotapi.Message, lang string, deps BotDeps) {
	userID := message.From.ID
	chatID := message.Chat.ID

	if state, ok := deps.StateManager.GetState(userID); ok && !state.Step.IsOnboarding() {
		abandonState(ctx, state, deps)
	}

	user, err := deps.Store.GetUser(ctx, userID)
	if err == nil {
		deps.Store.LogAction(ctx, userID, st.ActionStart, nil)
		_, _ = sendText(chatID, deps.I18n.T(lang, "welcome_back", "name", esc(user.FullName)), mainMenuKeyboard(lang, deps), deps)
		return
	}
	if !errors.Is(err, st.ErrUserNotFound) {
		sendGenericError(chatID, userID, lang, "start", err, deps)
		return
	}

	ref := strings.TrimPrefix(strings.TrimSpace(message.CommandArguments()), "ref_")
	deps.StateManager.SetState(userID, &UserState{
		UserID:  userID,
		ChatID:  chatID,
		Step:    StepAskFullName,
		RefCode: ref,
	})
	_, _ = sendText(chatID, deps.I18n.T(lang, "welcome_new"), tgbotapi.NewRemoveKeyboard(true), deps)
}

func HandleFullNameInput(ctx context.Context, message *tgbotapi.Message, state *UserState, lang string, deps BotDeps) {
	chatID := message.Chat.ID
	name := strings.Join(strings.Fields(message.Text), " ")
	if utf8.RuneCountInString(name) < minNameRunes {
		_, _ = sendText(chatID, deps.I18n.T(lang, "ask_full_name_again"), nil, deps)
		return
	}
	if r := []rune(name); len(r) > maxNameRunes {
		name = string(r[:maxNameRunes])
	}

	state.FullName = name
	state.Step = StepAskContact
	deps.StateManager.SetState(state.UserID, state)
	_, _ = sendText(chatID, deps.I18n.T(lang, "ask_contact", "name", esc(name)), contactKeyboard(lang, deps), deps)
}

// HandleContactInput accepts the user's own shared contact or the skip button.
func HandleContactInput(ctx context.Context, message *tgbotapi.Message, state *UserState, lang string, deps BotDeps) {
	chatID := message.Chat.ID
	phone := ""
	switch {
	case message.Contact != nil:
		if message.Contact.UserID != 0 && message.Contact.UserID != message.From.ID {
			_, _ = sendText(chatID, deps.I18n.T(lang, "contact_not_yours"), contactKeyboard(lang, deps), deps)
			return
		}
		phone = message.Contact.PhoneNumber
	case strings.TrimSpace(message.Text) == deps.I18n.T(lang, "button_skip"):
		// registered without a phone
	default:
		_, _ = sendText(chatID, deps.I18n.T(lang, "ask_contact_again"), contactKeyboard(lang, deps), deps)
		return
	}
	finishRegistration(ctx, message, state, phone, lang, deps)
}

func finishRegistration(ctx context.Context, message *tgbotapi.Message, state *UserState, phone, lang string, deps BotDeps) {
	userID := message.From.ID
	chatID := message.Chat.ID

	user := &st.User{
		UserID:        userID,
		Username:      message.From.UserName,
		FullName:      state.FullName,
		Phone:         phone,
		ContactShared: phone != "",
		Language:      lang,
	}
	err := deps.Store.RegisterUser(ctx, user)
	if err != nil && !errors.Is(err, st.ErrUserExists) {
		sendGenericError(chatID, userID, lang, "register_user", err, deps)
		return
	}
	deps.StateManager.ClearState(userID)

	if err == nil {
		deps.Logger.Info("User registered", zap.Int64("user_id", userID), zap.String("phone", phone))
		deps.Store.LogAction(ctx, userID, st.ActionRegister, map[string]interface{}{
			"full_name":      user.FullName,
			"contact_shared": user.ContactShared,
			"ref_code":       state.RefCode,
		})
		applyReferral(ctx, user, state.RefCode, deps)
	}

	_, _ = sendText(chatID, deps.I18n.T(lang, "registration_done", "name", esc(user.FullName)), mainMenuKeyboard(lang, deps), deps)
}

// applyReferral links a freshly registered user to the owner of code and pays both rewards
// into the referral part of their balances.
func applyReferral(ctx context.Context, user *st.User, code string, deps BotDeps) {
	if code == "" {
		return
	}
	logger := deps.Logger.With(zap.Int64("user_id", user.UserID), zap.String("ref_code", code))

	referrer, err := deps.Store.FindUserByReferralCode(ctx, code)
	if err != nil {
		if !errors.Is(err, st.ErrUserNotFound) {
			logger.Error("Failed to look up referral code", zap.Error(err))
		}
		return
	}
	if _, err := deps.Store.CreateReferral(ctx, referrer.UserID, user.UserID); err != nil {
		logger.Warn("Referral not recorded", zap.Error(err))
		return
	}
	if _, err := deps.Store.ConfirmReferral(ctx, user.UserID); err != nil {
		logger.Error("Failed to confirm referral", zap.Error(err))
		return
	}

	settings, err := deps.Store.GetReferralSettings(ctx)
	if err != nil {
		logger.Error("Failed to load referral settings", zap.Error(err))
		return
	}

	if settings.ReferrerReward.IsPositive() {
		err := deps.Ledger.Add(ctx, referrer.UserID, settings.ReferrerReward, st.BalanceReferral, st.Movement{
			Kind:        st.TxReferralBonus,
			Description: fmt.Sprintf("invited user %d", user.UserID),
		})
		if err != nil {
			logger.Error("Failed to credit referrer", zap.Int64("referrer_id", referrer.UserID), zap.Error(err))
		} else {
			refLang := referrer.Language
			if !deps.I18n.HasLanguage(refLang) {
				refLang = deps.I18n.DefaultLanguage()
			}
			_, _ = sendText(referrer.UserID, deps.I18n.T(refLang, "referral_reward_referrer",
				"name", esc(user.FullName),
				"amount", deps.I18n.Money(refLang, settings.ReferrerReward)), nil, deps)
		}
	}

	if settings.ReferredReward.IsPositive() {
		err := deps.Ledger.Add(ctx, user.UserID, settings.ReferredReward, st.BalanceReferral, st.Movement{
			Kind:        st.TxReferralBonus,
			Description: fmt.Sprintf("joined by invitation of %d", referrer.UserID),
		})
		if err != nil {
			logger.Error("Failed to credit referred user", zap.Error(err))
		} else {
			_, _ = sendText(user.UserID, deps.I18n.T(user.Language, "referral_reward_referred",
				"amount", deps.I18n.Money(user.Language, settings.ReferredReward)), nil, deps)
		}
	}

	deps.Store.LogAction(ctx, user.UserID, st.ActionReferralJoined, map[string]interface{}{
		"referrer_id": referrer.UserID,
	})
	logger.Info("Referral applied", zap.Int64("referrer_id", referrer.UserID))
}
