package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/auth"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/config"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/deck"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/i18n"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/outline"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/tariff"
)

const (
	adminID = int64(9000)
	topic   = "Interstellar - kino haqida"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failFor  map[int64]error
	nextID   int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if cp, ok := c.(tgbotapi.CopyMessageConfig); ok {
		if err := f.failFor[cp.ChatID]; err != nil {
			return nil, err
		}
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// textsTo returns sent and edited texts addressed to chatID, oldest first.
func (f *fakeSender) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		case tgbotapi.EditMessageTextConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		}
	}
	return out
}

func (f *fakeSender) lastTextTo(chatID int64) string {
	texts := f.textsTo(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeSender) documentsTo(chatID int64) []tgbotapi.DocumentConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.DocumentConfig
	for _, c := range f.sent {
		if d, ok := c.(tgbotapi.DocumentConfig); ok && d.ChatID == chatID {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeSender) copiesTo(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.requests {
		if cp, ok := c.(tgbotapi.CopyMessageConfig); ok && cp.ChatID == chatID {
			n++
		}
	}
	return n
}

func (f *fakeSender) callbackAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

type fakeGenerator struct {
	mu    sync.Mutex
	err   error
	calls int
	pages []int
}

func (g *fakeGenerator) Generate(_ context.Context, topic string, pages int) (*outline.Outline, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.pages = append(g.pages, pages)
	if g.err != nil {
		return nil, g.err
	}
	return sampleOutline(topic, pages), nil
}

func sampleOutline(topic string, pages int) *outline.Outline {
	out := &outline.Outline{Topic: topic}
	for i, k := range outline.Layout(pages) {
		s := outline.Slide{Index: i + 1, Kind: k, Title: fmt.Sprintf("Sarlavha %d", i+1)}
		switch {
		case k == outline.KindAgenda:
			s.Sections = []string{"Syujet", "Ilmiy asos", "Tanqid"}
		case k == outline.KindBody && outline.IsBulletPosition(i+1):
			s.Bullets = []string{"Birinchi fakt", "Ikkinchi fakt"}
		default:
			s.Paragraph = "Bu paragraf matni."
		}
		out.Slides = append(out.Slides, s)
	}
	return out
}

func privateChat(id int64) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: id, Type: "private"}
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: fmt.Sprintf("user%d", userID)},
		Chat:      privateChat(userID),
		Text:      text,
	}}
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	u := textUpdate(userID, text)
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	return u
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      fmt.Sprintf("cb-%d-%s", userID, data),
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 77, Chat: privateChat(userID)},
		Data:    data,
	}}
}

type BotSuite struct {
	suite.Suite
	ctx    context.Context
	sender *fakeSender
	gen    *fakeGenerator
	deps   BotDeps
}

func TestBotSuite(t *testing.T) {
	suite.Run(t, new(BotSuite))
}

func (s *BotSuite) SetupTest() {
	s.ctx = context.Background()
	logger := zap.NewNop()

	db, err := storage.InitDB("sqlite", ":memory:", logger)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = storage.Close(db) })

	cfg := &config.Config{
		BotUsername: "slide_test_bot",
		Admins:      config.AdminConfig{AdminUserIDs: []int64{adminID}},
		Support: config.SupportConfig{
			AdminUsername:   "@slide_admin",
			PaymentCard:     "8600 1234 5678 9012",
			PaymentCardName: "Test Admin",
		},
	}
	config.ApplyDefaults(cfg)
	cfg.Broadcast.DelayMillis = 0
	cfg.OutputDir = s.T().TempDir()

	i18nManager, err := i18n.NewManager("uz", logger)
	s.Require().NoError(err)
	catalog, err := tariff.NewCatalog(cfg.Tariffs, cfg.Order.FreeOrders)
	s.Require().NoError(err)

	store := storage.NewStore(db, logger)
	s.Require().NoError(store.EnsureReferralSettings(s.ctx, decimal.NewFromInt(1000), decimal.NewFromInt(500)))

	s.sender = &fakeSender{failFor: make(map[int64]error)}
	s.gen = &fakeGenerator{}
	s.deps = BotDeps{
		Bot:          s.sender,
		Config:       cfg,
		Store:        store,
		Ledger:       storage.NewGormLedger(db, logger),
		Tariffs:      catalog,
		Generator:    s.gen,
		Decks:        deck.NewAssembler(cfg.OutputDir, nil, "", logger),
		I18n:         i18nManager,
		StateManager: NewStateManager(),
		Authorizer:   auth.NewAuthorizer(cfg.Admins.AdminUserIDs),
		Limiter:      NewRateLimiter(0),
		Tasks:        &sync.WaitGroup{},
		Logger:       logger,
		Version:      "test",
		BuildDate:    "today",
	}
}

func (s *BotSuite) handle(u tgbotapi.Update) {
	HandleUpdate(u, s.deps)
	s.deps.Tasks.Wait()
}

func (s *BotSuite) t(key string, args ...interface{}) string {
	return s.deps.I18n.T("uz", key, args...)
}

func (s *BotSuite) register(userID int64, name, startArg string) {
	text := "/start"
	if startArg != "" {
		text += " " + startArg
	}
	s.handle(commandUpdate(userID, text))
	s.handle(textUpdate(userID, name))
	s.handle(textUpdate(userID, s.t("button_skip")))
	_, err := s.deps.Store.GetUser(s.ctx, userID)
	s.Require().NoError(err, "user %d should be registered", userID)
}

func (s *BotSuite) topUp(userID int64, amount int64) {
	s.Require().NoError(s.deps.Ledger.Add(s.ctx, userID, decimal.NewFromInt(amount), storage.BalanceCash,
		storage.Movement{Kind: storage.TxTopUp}))
}

func (s *BotSuite) balance(userID int64) storage.UserBalance {
	b, err := s.deps.Ledger.GetBalance(s.ctx, userID)
	s.Require().NoError(err)
	return b
}

func (s *BotSuite) orders(userID int64) []storage.Order {
	var out []storage.Order
	s.Require().NoError(s.deps.Store.DB().Where("user_id = ?", userID).Order("id").Find(&out).Error)
	return out
}

func (s *BotSuite) step(userID int64) Step {
	st, ok := s.deps.StateManager.GetState(userID)
	if !ok {
		return ""
	}
	return st.Step
}

// orderUpTo drives the dialog until the order summary waits for the first confirmation.
func (s *BotSuite) orderUpTo(userID int64, tariffKey string, pages int) {
	s.handle(textUpdate(userID, s.t(menuOrder)))
	s.Require().Equal(StepChooseTariff, s.step(userID))
	s.handle(callbackUpdate(userID, cbTariffPrefix+tariffKey))
	s.Require().Equal(StepAskTopic, s.step(userID))
	s.handle(textUpdate(userID, topic))
	s.Require().Equal(StepAskPages, s.step(userID))
	s.handle(textUpdate(userID, fmt.Sprint(pages)))
	s.Require().Equal(StepConfirm1, s.step(userID))
}

func (s *BotSuite) confirmBoth(userID int64) {
	s.handle(callbackUpdate(userID, cbConfirmYes))
	s.Require().Equal(StepConfirm2, s.step(userID))
	s.handle(callbackUpdate(userID, cbConfirmFinal))
}

func (s *BotSuite) TestRegistrationWithReferral() {
	s.register(1001, "Ali Valiyev", "")
	referrer, err := s.deps.Store.GetUser(s.ctx, 1001)
	s.Require().NoError(err)
	s.Contains(s.sender.lastTextTo(1001), "Ali Valiyev")

	s.register(1002, "Vali Aliyev", "ref_"+referrer.ReferralCode)

	s.True(s.balance(1001).Referral.Equal(decimal.NewFromInt(1000)))
	s.True(s.balance(1002).Referral.Equal(decimal.NewFromInt(500)))
	stats, err := s.deps.Store.GetReferralStats(s.ctx, 1001)
	s.Require().NoError(err)
	s.EqualValues(1, stats.Confirmed)
	s.Contains(strings.Join(s.sender.textsTo(1001), "\n"), "Vali Aliyev")
}

func (s *BotSuite) TestShortNameIsAskedAgain() {
	s.handle(commandUpdate(1101, "/start"))
	s.handle(textUpdate(1101, "A"))
	s.Equal(StepAskFullName, s.step(1101))
	s.Equal(s.t("ask_full_name_again"), s.sender.lastTextTo(1101))
}

func (s *BotSuite) TestPagesValidation() {
	s.register(1201, "Sardor", "")
	s.handle(textUpdate(1201, s.t(menuOrder)))
	s.handle(callbackUpdate(1201, cbTariffPrefix+"STANDARD"))
	s.handle(textUpdate(1201, "Interstellar"))
	s.Equal(StepAskTopic, s.step(1201), "one word is not a topic")
	s.handle(textUpdate(1201, topic))

	tooFew := s.t("pages_too_few", "min", "5")
	outOfRange := s.t("pages_out_of_range", "min", "5", "max", "50")
	notNumber := s.t("pages_not_number")
	cases := []struct {
		input string
		reply string
	}{
		{"1", tooFew},
		{"2", tooFew},
		{"3", tooFew},
		{"4", tooFew},
		{"0", outOfRange},
		{"-5", outOfRange},
		{"51", outOfRange},
		{"60", outOfRange},
		{"abc", notNumber},
		{"10-12", notNumber},
	}
	for _, tc := range cases {
		s.handle(textUpdate(1201, tc.input))
		s.Equal(StepAskPages, s.step(1201), "input %q", tc.input)
		s.Equal(tc.reply, s.sender.lastTextTo(1201), "input %q", tc.input)
	}
	s.Empty(s.orders(1201))

	s.handle(textUpdate(1201, "5"))
	s.Equal(StepConfirm1, s.step(1201))
	s.Len(s.orders(1201), 1)
}

func (s *BotSuite) TestPaidOrderIsChargedAndDelivered() {
	s.register(2001, "Jasur", "")
	s.topUp(2001, 100000)

	s.orderUpTo(2001, "STANDARD", 10)
	orders := s.orders(2001)
	s.Require().Len(orders, 1)
	s.Equal(storage.OrderPending, orders[0].Status)

	s.confirmBoth(2001)

	docs := s.sender.documentsTo(2001)
	s.Require().Len(docs, 1)
	name := filepath.Base(string(docs[0].File.(tgbotapi.FilePath)))
	s.True(strings.HasPrefix(name, "Interstellar_kino_haqida_"), name)
	s.Equal(".pptx", filepath.Ext(name))
	s.Contains(docs[0].Caption, topic)

	orders = s.orders(2001)
	s.Equal(storage.OrderCompleted, orders[0].Status)
	s.True(orders[0].Charged.Equal(decimal.NewFromInt(45000)))
	s.True(s.balance(2001).Cash.Equal(decimal.NewFromInt(55000)))
	s.Equal([]int{10}, s.gen.pages)
	s.Equal(Step(""), s.step(2001))

	p, err := s.deps.Store.GetPresentationByOrder(s.ctx, orders[0].ID)
	s.Require().NoError(err)
	s.Len(p.Files, 1)
}

func (s *BotSuite) TestSmartOrderAddsPDF() {
	s.register(2101, "Malika", "")
	s.topUp(2101, 100000)
	s.orderUpTo(2101, "SMART", 5)
	s.confirmBoth(2101)

	docs := s.sender.documentsTo(2101)
	s.Require().Len(docs, 2)
	s.Equal(".pptx", filepath.Ext(string(docs[0].File.(tgbotapi.FilePath))))
	s.Equal(".pdf", filepath.Ext(string(docs[1].File.(tgbotapi.FilePath))))
	s.True(s.balance(2101).Cash.Equal(decimal.NewFromInt(100000 - 32500)))
}

func (s *BotSuite) TestInsufficientBalanceKeepsOrderPending() {
	s.register(2201, "Bekzod", "")
	s.orderUpTo(2201, "SMART", 5)
	s.confirmBoth(2201)

	orders := s.orders(2201)
	s.Require().Len(orders, 1)
	s.Equal(storage.OrderPending, orders[0].Status)
	s.Zero(s.gen.calls)
	s.True(s.balance(2201).Total().IsZero())
	s.Equal(Step(""), s.step(2201))
	s.Contains(s.sender.lastTextTo(2201), s.deps.I18n.Money("uz", decimal.NewFromInt(32500)))
}

func (s *BotSuite) TestFreeStartOrder() {
	s.register(2301, "Nodira", "")
	s.orderUpTo(2301, "START", 5)

	s.handle(callbackUpdate(2301, cbConfirmYes))
	s.Equal(s.t("confirm_free", "ordinal", "1", "remaining", "4"), s.sender.lastTextTo(2301))
	s.handle(callbackUpdate(2301, cbConfirmFinal))

	orders := s.orders(2301)
	s.Require().Len(orders, 1)
	s.Equal(storage.OrderCompleted, orders[0].Status)
	s.True(orders[0].Free)
	s.True(orders[0].Charged.IsZero())
	s.Len(s.sender.documentsTo(2301), 1)

	used, err := s.deps.Ledger.GetFreeOrderCount(s.ctx, 2301, "START")
	s.Require().NoError(err)
	s.Equal(1, used)
}

func (s *BotSuite) TestGenerationFailureRefunds() {
	s.gen.err = errors.New("model unavailable")
	s.register(2401, "Otabek", "")
	s.topUp(2401, 100000)
	s.orderUpTo(2401, "STANDARD", 10)
	s.confirmBoth(2401)

	orders := s.orders(2401)
	s.Require().Len(orders, 1)
	s.Equal(storage.OrderFailed, orders[0].Status)
	s.Contains(orders[0].Error, "model unavailable")
	s.True(s.balance(2401).Cash.Equal(decimal.NewFromInt(100000)))
	s.Empty(s.sender.documentsTo(2401))

	texts := s.sender.textsTo(2401)
	s.Contains(texts, s.t("generation_failed"))
	s.Contains(s.sender.lastTextTo(adminID), fmt.Sprintf("#%d", orders[0].ID))
}

func (s *BotSuite) TestStaleCallbackIsRejected() {
	s.register(2501, "Aziz", "")
	s.handle(callbackUpdate(2501, cbConfirmFinal))

	s.Contains(s.sender.callbackAnswers(), s.t("callback_expired"))
	s.Empty(s.orders(2501))
	s.Zero(s.gen.calls)
}

func (s *BotSuite) TestConfirmNoCancelsOrder() {
	s.register(2601, "Dilnoza", "")
	s.orderUpTo(2601, "STANDARD", 7)
	s.handle(callbackUpdate(2601, cbConfirmNo))

	orders := s.orders(2601)
	s.Require().Len(orders, 1)
	s.Equal(storage.OrderCancelled, orders[0].Status)
	s.Equal(Step(""), s.step(2601))
	s.Equal(s.t("order_cancelled"), s.sender.lastTextTo(2601))
}

func (s *BotSuite) TestMenuButtonAbandonsOrder() {
	s.register(2701, "Kamola", "")
	s.orderUpTo(2701, "STANDARD", 7)
	s.handle(textUpdate(2701, s.t(menuBalance)))

	s.Equal(storage.OrderCancelled, s.orders(2701)[0].Status)
	s.Equal(Step(""), s.step(2701))
}

func (s *BotSuite) TestDisabledServiceRefusesOrders() {
	s.register(2801, "Rustam", "")
	s.Require().NoError(s.deps.Store.SetBoolSetting(s.ctx, storage.SettingPresentationEnabled, false, ""))
	s.handle(textUpdate(2801, s.t(menuOrder)))

	s.Equal(s.t("service_disabled"), s.sender.lastTextTo(2801))
	s.Equal(Step(""), s.step(2801))
}

func (s *BotSuite) TestBroadcastMarksBlockedUsers() {
	for _, id := range []int64{3001, 3002, 3003} {
		s.register(id, fmt.Sprintf("User %d", id), "")
	}
	s.sender.failFor[3002] = &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}

	s.handle(commandUpdate(adminID, "/admin"))
	s.handle(callbackUpdate(adminID, "admin_broadcast"))
	s.Equal(StepAdminBroadcast, s.step(adminID))
	s.handle(textUpdate(adminID, "Yangi tariflar!"))

	s.Equal(1, s.sender.copiesTo(3001))
	s.Equal(1, s.sender.copiesTo(3003))
	blocked, err := s.deps.Store.GetUser(s.ctx, 3002)
	s.Require().NoError(err)
	s.True(blocked.Blocked)
	s.Equal(s.t("broadcast_done", "total", "3", "sent", "2", "blocked", "1", "failed", "0"), s.sender.lastTextTo(adminID))

	recipients, err := s.deps.Store.BroadcastRecipients(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int64{3001, 3003}, recipients)
}

func (s *BotSuite) TestAdminTopUp() {
	s.register(4001, "Shahzod", "")

	s.handle(callbackUpdate(adminID, "admin_balance_add"))
	s.handle(textUpdate(adminID, "4001"))
	s.Equal(StepAdminBalanceAmount, s.step(adminID))
	s.handle(textUpdate(adminID, "50 000"))

	s.True(s.balance(4001).Cash.Equal(decimal.NewFromInt(50000)))
	s.Equal(Step(""), s.step(adminID))
	s.Contains(s.sender.lastTextTo(4001), s.deps.I18n.Money("uz", decimal.NewFromInt(50000)))

	txs, err := s.deps.Ledger.ListTransactions(s.ctx, 4001, 5)
	s.Require().NoError(err)
	s.Require().Len(txs, 1)
	s.Equal(storage.TxTopUp, txs[0].Kind)
}

func (s *BotSuite) TestAdminDebitRefusesOverdraft() {
	s.register(4101, "Laylo", "")
	s.topUp(4101, 1000)

	s.handle(callbackUpdate(adminID, "admin_balance_sub"))
	s.handle(textUpdate(adminID, "4101"))
	s.handle(textUpdate(adminID, "5000"))

	s.True(s.balance(4101).Cash.Equal(decimal.NewFromInt(1000)))
	s.Equal(StepAdminBalanceAmount, s.step(adminID))
}

func (s *BotSuite) TestNonAdminIsDenied() {
	s.register(4201, "Umid", "")
	s.handle(commandUpdate(4201, "/admin"))
	s.Equal(s.t("admin_only"), s.sender.lastTextTo(4201))

	s.handle(callbackUpdate(4201, "admin_balance_add"))
	s.Contains(s.sender.callbackAnswers(), s.t("admin_only"))
	s.Equal(Step(""), s.step(4201))
}

func (s *BotSuite) TestAdminUpdatesReferralReward() {
	s.handle(callbackUpdate(adminID, "admin_referral_referrer"))
	s.handle(textUpdate(adminID, "2500"))

	settings, err := s.deps.Store.GetReferralSettings(s.ctx)
	s.Require().NoError(err)
	s.True(settings.ReferrerReward.Equal(decimal.NewFromInt(2500)))
	s.True(settings.ReferredReward.Equal(decimal.NewFromInt(500)))
}

func (s *BotSuite) TestLanguageSwitch() {
	s.register(4301, "John", "")
	s.handle(callbackUpdate(4301, cbLanguagePrefix+"en"))

	u, err := s.deps.Store.GetUser(s.ctx, 4301)
	s.Require().NoError(err)
	s.Equal("en", u.Language)
	s.Equal(s.deps.I18n.T("en", "menu_prompt"), s.sender.lastTextTo(4301))
}

func (s *BotSuite) TestExpireStaleOrders() {
	s.register(4401, "Zarina", "")
	s.orderUpTo(4401, "STANDARD", 7)
	old := time.Now().Add(-48 * time.Hour)
	s.Require().NoError(s.deps.Store.DB().Model(&storage.Order{}).Where("user_id = ?", 4401).Update("created_at", old).Error)

	ExpireStaleOrders(s.ctx, s.deps)
	s.Equal(storage.OrderCancelled, s.orders(4401)[0].Status)
}

func (s *BotSuite) TestWebhookRouter() {
	s.deps.Config.HTTP.WebhookSecret = "s3cret"
	r := NewRouter(s.deps)

	do := func(method, path, body string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w.Code
	}

	s.Equal(http.StatusOK, do(http.MethodGet, HealthRoute, ""))
	s.Equal(http.StatusNotFound, do(http.MethodPost, "/webhook/wrong", "{}"))
	s.Equal(http.StatusBadRequest, do(http.MethodPost, "/webhook/s3cret", "{"))

	body := `{"update_id":1,"message":{"message_id":1,"from":{"id":5001},"chat":{"id":5001,"type":"private"},"text":"salom"}}`
	s.Equal(http.StatusOK, do(http.MethodPost, "/webhook/s3cret", body))
	s.deps.Tasks.Wait()
	s.Equal(s.t("use_menu"), s.sender.lastTextTo(5001))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2 * time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow(1))
	assert.False(t, rl.Allow(1))
	assert.True(t, rl.Allow(2))

	now = now.Add(2 * time.Second)
	assert.True(t, rl.Allow(1))

	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Allow(1))
	assert.True(t, NewRateLimiter(0).Allow(1))
}

func TestStateManagerSweep(t *testing.T) {
	sm := NewStateManager()
	sm.SetState(1, &UserState{UserID: 1, Step: StepAskTopic})
	sm.SetState(2, &UserState{UserID: 2, Step: StepAskPages})

	sm.mu.Lock()
	sm.states[1].LastUpdated = time.Now().Add(-2 * time.Hour)
	sm.mu.Unlock()

	assert.Equal(t, 1, sm.Sweep(time.Hour))
	_, ok := sm.GetState(1)
	assert.False(t, ok)
	st, ok := sm.GetState(2)
	require.True(t, ok)

	st.Step = StepConfirm1
	got, _ := sm.GetState(2)
	assert.Equal(t, StepAskPages, got.Step, "GetState returns a copy")
}

func TestValidTopic(t *testing.T) {
	cfg := config.OrderConfig{MinTopicWords: 2, MinTopicLength: 10, MaxTopicLength: 40}
	assert.True(t, validTopic("Interstellar - kino haqida", cfg))
	assert.False(t, validTopic("Interstellar", cfg))
	assert.False(t, validTopic("a b", cfg))
	assert.False(t, validTopic(strings.Repeat("uzun so'z ", 6), cfg))
}

func TestParseAmount(t *testing.T) {
	d, ok := parseAmount(" 50 000 ")
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromInt(50000)))

	d, ok = parseAmount("1,500.50")
	require.True(t, ok)
	assert.Equal(t, "1500.5", d.String())

	_, ok = parseAmount("ellik ming")
	assert.False(t, ok)
}

func TestIsBotBlocked(t *testing.T) {
	assert.True(t, isBotBlocked(&tgbotapi.Error{Code: 403, Message: "Forbidden: user is deactivated"}))
	assert.False(t, isBotBlocked(&tgbotapi.Error{Code: 429, Message: "Too Many Requests"}))
	assert.True(t, isBotBlocked(fmt.Errorf("send: %w", errors.New("Forbidden: bot was blocked by the user"))))
	assert.False(t, isBotBlocked(errors.New("timeout")))
}

func TestReferralLink(t *testing.T) {
	assert.Equal(t, "https://t.me/slide_bot?start=ref_ABC123", referralLink("@slide_bot", "ABC123"))
}
