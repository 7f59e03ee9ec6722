package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/config"
	st "github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/tariff"
)

// StartOrder opens the order dialog with the tariff choice.
func StartOrder(ctx context.Context, chatID, userID int64, lang string, deps BotDeps) {
	enabled, err := deps.Store.GetBoolSetting(ctx, st.SettingPresentationEnabled, true)
	if err != nil {
		deps.Logger.Error("Failed to read feature switch", zap.Error(err))
	}
	if !enabled {
		_, _ = sendText(chatID, deps.I18n.T(lang, "service_disabled"), nil, deps)
		return
	}
	if _, err := deps.Store.GetUser(ctx, userID); err != nil {
		replyNotRegistered(chatID, userID, lang, err, deps)
		return
	}
	if state, ok := deps.StateManager.GetState(userID); ok {
		abandonState(ctx, state, deps)
	}

	deps.StateManager.SetState(userID, &UserState{
		UserID: userID,
		ChatID: chatID,
		Step:   StepChooseTariff,
	})
	_, _ = sendText(chatID, deps.I18n.T(lang, "choose_tariff"), tariffKeyboard(lang, deps), deps)
}

func HandleTariffCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state *UserState, key string, lang string, deps BotDeps) {
	chatID := query.Message.Chat.ID
	t, ok := deps.Tariffs.Get(tariff.Key(key))
	if !ok {
		answerCallback(query.ID, deps.I18n.T(lang, "callback_expired"), deps)
		return
	}
	answerCallback(query.ID, "", deps)

	state.Tariff = t.Key
	state.Step = StepAskTopic
	deps.StateManager.SetState(state.UserID, state)

	format := "PPTX"
	if t.WithPDF {
		format = "PPTX + PDF"
	}
	textKey := "tariff_selected_paid"
	if t.FreeQuota && deps.Tariffs.FreeOrders() > 0 {
		textKey = "tariff_selected_free"
	}
	text := deps.I18n.T(lang, textKey,
		"name", esc(t.Name),
		"price", deps.I18n.Money(lang, t.PricePerPage),
		"free", strconv.Itoa(deps.Tariffs.FreeOrders()),
		"format", format)
	editText(chatID, query.Message.MessageID, text, nil, deps)
}

// validTopic requires enough words and characters to describe a deck.
func validTopic(topic string, cfg config.OrderConfig) bool {
	n := utf8.RuneCountInString(topic)
	return len(strings.Fields(topic)) >= cfg.MinTopicWords &&
		n >= cfg.MinTopicLength &&
		n <= cfg.MaxTopicLength
}

func HandleTopicInput(ctx context.Context, message *tgbotapi.Message, state *UserState, lang string, deps BotDeps) {
	chatID := message.Chat.ID
	topic := strings.Join(strings.Fields(message.Text), " ")
	if !validTopic(topic, deps.Config.Order) {
		_, _ = sendText(chatID, deps.I18n.T(lang, "topic_invalid",
			"max", strconv.Itoa(deps.Config.Order.MaxTopicLength)), nil, deps)
		return
	}

	state.Topic = topic
	state.Step = StepAskPages
	deps.StateManager.SetState(state.UserID, state)
	_, _ = sendText(chatID, deps.I18n.T(lang, "topic_accepted",
		"topic", esc(topic),
		"min", strconv.Itoa(deps.Config.Order.MinPages),
		"max", strconv.Itoa(deps.Config.Order.MaxPages)), nil, deps)
}

// HandlePagesInput validates the page count and creates the pending order.
func HandlePagesInput(ctx context.Context, message *tgbotapi.Message, state *UserState, lang string, deps BotDeps) {
	chatID := message.Chat.ID
	userID := message.From.ID
	minPages, maxPages := deps.Config.Order.MinPages, deps.Config.Order.MaxPages

	pages, err := strconv.Atoi(strings.TrimSpace(message.Text))
	switch {
	case err != nil:
		_, _ = sendText(chatID, deps.I18n.T(lang, "pages_not_number"), nil, deps)
		return
	case pages >= 1 && pages < minPages:
		_, _ = sendText(chatID, deps.I18n.T(lang, "pages_too_few", "min", strconv.Itoa(minPages)), nil, deps)
		return
	case pages < minPages || pages > maxPages:
		_, _ = sendText(chatID, deps.I18n.T(lang, "pages_out_of_range",
			"min", strconv.Itoa(minPages),
			"max", strconv.Itoa(maxPages)), nil, deps)
		return
	}

	t, ok := deps.Tariffs.Get(state.Tariff)
	if !ok {
		deps.StateManager.ClearState(userID)
		sendGenericError(chatID, userID, lang, "pages_input", fmt.Errorf("unknown tariff %q in state", state.Tariff), deps)
		return
	}
	quote, err := quoteFor(ctx, userID, t, pages, deps)
	if err != nil {
		sendGenericError(chatID, userID, lang, "quote", err, deps)
		return
	}

	order := &st.Order{
		UserID:    userID,
		Topic:     state.Topic,
		PageCount: pages,
		Tariff:    string(t.Key),
		Price:     quote.Amount,
		Free:      quote.Free,
	}
	if err := deps.Store.CreateOrder(ctx, order); err != nil {
		sendGenericError(chatID, userID, lang, "create_order", err, deps)
		return
	}
	deps.Store.LogAction(ctx, userID, st.ActionOrderCreated, map[string]interface{}{
		"order_id": order.ID,
		"topic":    order.Topic,
		"pages":    pages,
		"tariff":   order.Tariff,
	})

	state.Pages = pages
	state.OrderID = order.ID
	state.Quote = quote
	state.Step = StepConfirm1
	deps.StateManager.SetState(userID, state)

	name := deps.I18n.T(lang, "unknown_user")
	if user, err := deps.Store.GetUser(ctx, userID); err == nil {
		name = user.FullName
	}
	_, _ = sendText(chatID, deps.I18n.T(lang, "order_summary",
		"topic", esc(order.Topic),
		"pages", strconv.Itoa(pages),
		"tariff", esc(t.Name),
		"name", esc(name)), confirmKeyboard(lang, cbConfirmYes, deps), deps)
}

// quoteFor prices an order, counting the free orders the user has already used.
func quoteFor(ctx context.Context, userID int64, t tariff.Tariff, pages int, deps BotDeps) (tariff.Quote, error) {
	used := 0
	if t.FreeQuota {
		var err error
		used, err = deps.Ledger.GetFreeOrderCount(ctx, userID, string(t.Key))
		if err != nil {
			return tariff.Quote{}, err
		}
	}
	return deps.Tariffs.Quote(t, pages, used), nil
}

// HandleFirstConfirmation shows the price and asks for the final confirmation.
func HandleFirstConfirmation(ctx context.Context, query *tgbotapi.CallbackQuery, state *UserState, lang string, deps BotDeps) {
	chatID := query.Message.Chat.ID
	t, ok := deps.Tariffs.Get(state.Tariff)
	if !ok {
		answerCallback(query.ID, deps.I18n.T(lang, "callback_expired"), deps)
		return
	}
	quote, err := quoteFor(ctx, state.UserID, t, state.Pages, deps)
	if err != nil {
		answerCallback(query.ID, "", deps)
		sendGenericError(chatID, state.UserID, lang, "quote", err, deps)
		return
	}
	answerCallback(query.ID, "", deps)

	state.Quote = quote
	state.Step = StepConfirm2
	deps.StateManager.SetState(state.UserID, state)

	var text string
	if quote.Free {
		text = deps.I18n.T(lang, "confirm_free",
			"ordinal", strconv.Itoa(quote.FreeOrdinal),
			"remaining", strconv.Itoa(quote.FreeRemaining))
	} else {
		text = deps.I18n.T(lang, "confirm_paid",
			"topic", esc(state.Topic),
			"pages", strconv.Itoa(state.Pages),
			"price", deps.I18n.Money(lang, t.PricePerPage),
			"total", deps.I18n.Money(lang, quote.Amount))
	}
	kb := confirmKeyboard(lang, cbConfirmFinal, deps)
	editText(chatID, query.Message.MessageID, text, &kb, deps)
}

// HandleFinalConfirmation charges the order and starts the generation.
// With too little balance nothing is charged and the order stays pending.
func HandleFinalConfirmation(ctx context.Context, query *tgbotapi.CallbackQuery, state *UserState, lang string, deps BotDeps) {
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	userID := state.UserID

	order, err := deps.Store.GetOrder(ctx, state.OrderID)
	if err != nil || order.Status != st.OrderPending || order.UserID != userID {
		answerCallback(query.ID, deps.I18n.T(lang, "callback_expired"), deps)
		deps.StateManager.ClearState(userID)
		editText(chatID, messageID, deps.I18n.T(lang, "order_expired"), nil, deps)
		return
	}
	t, ok := deps.Tariffs.Get(tariff.Key(order.Tariff))
	if !ok {
		answerCallback(query.ID, "", deps)
		sendGenericError(chatID, userID, lang, "final_confirmation", fmt.Errorf("unknown tariff %q", order.Tariff), deps)
		return
	}
	quote, err := quoteFor(ctx, userID, t, order.PageCount, deps)
	if err != nil {
		answerCallback(query.ID, "", deps)
		sendGenericError(chatID, userID, lang, "quote", err, deps)
		return
	}
	answerCallback(query.ID, "", deps)

	if quote.Amount.IsPositive() {
		orderID := order.ID
		ok, err := deps.Ledger.Deduct(ctx, userID, quote.Amount, st.Movement{
			Kind:        st.TxOrderPayment,
			Description: fmt.Sprintf("order #%d: %d pages %s", order.ID, order.PageCount, order.Tariff),
			OrderID:     &orderID,
		})
		if err != nil {
			sendGenericError(chatID, userID, lang, "deduct", err, deps)
			return
		}
		if !ok {
			deps.StateManager.ClearState(userID)
			bal, _ := deps.Ledger.GetBalance(ctx, userID)
			kb := topUpKeyboard(lang, deps)
			editText(chatID, messageID, deps.I18n.T(lang, "insufficient_balance",
				"price", deps.I18n.Money(lang, quote.Amount),
				"balance", deps.I18n.Money(lang, bal.Total())), &kb, deps)
			deps.Store.LogAction(ctx, userID, st.ActionInsufficientFunds, map[string]interface{}{
				"order_id": order.ID,
				"price":    quote.Amount.String(),
				"balance":  bal.Total().String(),
			})
			return
		}
	}

	if err := deps.Store.ConfirmOrder(ctx, order.ID, quote.Amount, quote.Free); err != nil {
		if rerr := refund(ctx, userID, order.ID, quote.Amount, deps); rerr != nil {
			deps.Logger.Error("Refund after failed confirmation failed", zap.Uint("order_id", order.ID), zap.Error(rerr))
		}
		deps.StateManager.ClearState(userID)
		sendGenericError(chatID, userID, lang, "confirm_order", err, deps)
		return
	}
	deps.StateManager.ClearState(userID)

	order.Status = st.OrderConfirmed
	order.Charged = quote.Amount
	order.Free = quote.Free
	deps.Store.LogAction(ctx, userID, st.ActionOrderConfirmed, map[string]interface{}{
		"order_id": order.ID,
		"charged":  quote.Amount.String(),
		"free":     quote.Free,
	})

	editText(chatID, messageID, deps.I18n.T(lang, "order_confirmed"), nil, deps)
	RunGeneration(*order, chatID, lang, deps)
}

// HandleCancelOrder cancels the order in progress. messageID, when non-zero, is edited instead
// of sending a new message.
func HandleCancelOrder(ctx context.Context, chatID int64, messageID int, userID int64, lang string, deps BotDeps) {
	state, ok := deps.StateManager.GetState(userID)
	if ok {
		abandonState(ctx, state, deps)
	}
	text := deps.I18n.T(lang, "order_cancelled")
	if !ok {
		text = deps.I18n.T(lang, "nothing_to_cancel")
	}
	if messageID != 0 {
		kb := backToMenuKeyboard(lang, deps)
		editText(chatID, messageID, text, &kb, deps)
		return
	}
	_, _ = sendText(chatID, text, mainMenuKeyboard(lang, deps), deps)
}

func cancelPendingOrder(ctx context.Context, userID int64, orderID uint, deps BotDeps) {
	err := deps.Store.CancelOrder(ctx, orderID)
	if err != nil {
		if !errors.Is(err, st.ErrInvalidTransition) && !errors.Is(err, st.ErrOrderNotFound) {
			deps.Logger.Error("Failed to cancel order", zap.Uint("order_id", orderID), zap.Error(err))
		}
		return
	}
	deps.Store.LogAction(ctx, userID, st.ActionOrderCancelled, map[string]interface{}{"order_id": orderID})
}
