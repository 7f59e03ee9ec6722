package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/auth"
	cfg "github.com/nerdneilsfield/telegram-slide-bot/internal/config"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/deck"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/i18n"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/outline"
	st "github.com/nerdneilsfield/telegram-slide-bot/internal/storage"
	"github.com/nerdneilsfield/telegram-slide-bot/internal/tariff"
)

// Sender is the part of *tgbotapi.BotAPI the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Ledger is implemented by *storage.GormLedger.
type Ledger interface {
	GetBalance(ctx context.Context, userID int64) (st.UserBalance, error)
	Deduct(ctx context.Context, userID int64, amount decimal.Decimal, m st.Movement) (bool, error)
	Add(ctx context.Context, userID int64, amount decimal.Decimal, kind st.BalanceKind, m st.Movement) error
	GetFreeOrderCount(ctx context.Context, userID int64, tariffKey string) (int, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]st.Transaction, error)
}

type ContentGenerator interface {
	Generate(ctx context.Context, topic string, pages int) (*outline.Outline, error)
}

type DeckBuilder interface {
	Build(ctx context.Context, req deck.Request) (*deck.Result, error)
}

// BotDeps holds the dependencies shared by every handler.
type BotDeps struct {
	Bot          Sender
	Config       *cfg.Config
	Store        *st.Store
	Ledger       Ledger
	Tariffs      *tariff.Catalog
	Generator    ContentGenerator
	Decks        DeckBuilder
	I18n         *i18n.Manager
	StateManager *StateManager
	Authorizer   *auth.Authorizer
	Limiter      *RateLimiter
	// Tasks tracks background generations and broadcasts so shutdown can wait for them.
	Tasks     *sync.WaitGroup
	Logger    *zap.Logger
	Version   string
	BuildDate string
}
