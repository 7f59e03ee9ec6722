package bot

import (
	"fmt"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data.
const (
	cbTariffPrefix   = "tariff_"
	cbConfirmYes     = "confirm_yes"
	cbConfirmFinal   = "confirm_final"
	cbConfirmNo      = "confirm_no"
	cbBackToMenu     = "back_to_menu"
	cbTopUp          = "top_up"
	cbReferralLink   = "referral_link"
	cbBackToBalance  = "back_to_balance"
	cbLanguagePrefix = "lang_"
	cbAdminPrefix    = "admin_"
)

// Menu actions of the reply keyboard.
const (
	menuOrder   = "menu_order"
	menuBalance = "menu_balance"
	menuAbout   = "menu_about"
	menuContact = "menu_contact"
)

var menuActions = []string{menuOrder, menuBalance, menuAbout, menuContact}

// menuAction maps a reply-keyboard label back to its action key, or "" for other text.
func menuAction(lang, text string, deps BotDeps) string {
	text = strings.TrimSpace(text)
	for _, key := range menuActions {
		if text == deps.I18n.T(lang, key) {
			return key
		}
	}
	return ""
}

func mainMenuKeyboard(lang string, deps BotDeps) tgbotapi.ReplyKeyboardMarkup {
	t := func(key string) tgbotapi.KeyboardButton { return tgbotapi.NewKeyboardButton(deps.I18n.T(lang, key)) }
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(t(menuOrder)),
		tgbotapi.NewKeyboardButtonRow(t(menuBalance), t(menuAbout)),
		tgbotapi.NewKeyboardButtonRow(t(menuContact)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func contactKeyboard(lang string, deps BotDeps) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(deps.I18n.T(lang, "button_share_contact"))),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(deps.I18n.T(lang, "button_skip"))),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func tariffKeyboard(lang string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range deps.Tariffs.All() {
		label := deps.I18n.T(lang, "tariff_button",
			"name", t.Name,
			"price", deps.I18n.Money(lang, t.PricePerPage))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbTariffPrefix+string(t.Key))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_back"), cbBackToMenu)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// confirmKeyboard offers yes (yesData) and no.
func confirmKeyboard(lang, yesData string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_yes"), yesData)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_no"), cbConfirmNo)),
	)
}

func backToMenuKeyboard(lang string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_back"), cbBackToMenu)))
}

func balanceKeyboard(lang string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_top_up"), cbTopUp)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_referral"), cbReferralLink)),
	)
}

func topUpKeyboard(lang string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_top_up"), cbTopUp)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_back"), cbBackToMenu)),
	)
}

func referralKeyboard(lang, link string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	share := "https://t.me/share/url?url=" + url.QueryEscape(link) + "&text=" + url.QueryEscape(deps.I18n.T(lang, "referral_share_text"))
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(deps.I18n.T(lang, "button_share_link"), share)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_back"), cbBackToBalance)),
	)
}

func backToBalanceKeyboard(lang string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_back"), cbBackToBalance)))
}

// supportKeyboard links the configured admin account and channel. It returns nil when neither is set.
func supportKeyboard(lang string, deps BotDeps) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if name := strings.TrimPrefix(deps.Config.Support.AdminUsername, "@"); name != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(deps.I18n.T(lang, "button_contact_admin"), "https://t.me/"+name)))
	}
	if ch := deps.Config.Support.ChannelURL; ch != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(deps.I18n.T(lang, "button_channel"), ch)))
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func languageKeyboard(deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, code := range deps.I18n.Languages() {
		name, _ := deps.I18n.GetLanguageName(code)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(name, cbLanguagePrefix+code)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func adminKeyboard(lang string, presentationsEnabled bool, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	b := func(key, data string) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, key), data)
	}
	toggle := "admin_button_disable"
	if !presentationsEnabled {
		toggle = "admin_button_enable"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(b("admin_button_stats", "admin_stats"), b("admin_button_broadcast", "admin_broadcast")),
		tgbotapi.NewInlineKeyboardRow(b("admin_button_balance_add", "admin_balance_add"), b("admin_button_balance_sub", "admin_balance_sub")),
		tgbotapi.NewInlineKeyboardRow(b("admin_button_message", "admin_message"), b("admin_button_referral", "admin_referral")),
		tgbotapi.NewInlineKeyboardRow(b(toggle, "admin_toggle")),
	)
}

func adminReferralKeyboard(lang string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	b := func(key, data string) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, key), data)
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(b("admin_button_referrer_reward", "admin_referral_referrer")),
		tgbotapi.NewInlineKeyboardRow(b("admin_button_referred_reward", "admin_referral_referred")),
		tgbotapi.NewInlineKeyboardRow(b("button_back", "admin_back")),
	)
}

func adminBackKeyboard(lang string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_back"), "admin_back")))
}

func adminCancelKeyboard(lang string, deps BotDeps) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(deps.I18n.T(lang, "button_cancel"), "admin_cancel")))
}

// referralLink is the deep link that opens the bot with the user's referral code.
func referralLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%s", strings.TrimPrefix(botUsername, "@"), code)
}
