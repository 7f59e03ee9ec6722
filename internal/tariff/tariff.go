// Package tariff prices orders and decides whether an order is covered by the free quota.
package tariff

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/config"
)

type Key string

const (
	Start    Key = "START"
	Standard Key = "STANDARD"
	Smart    Key = "SMART"
)

type Tariff struct {
	Key          Key
	Name         string
	PricePerPage decimal.Decimal
	// WithPDF adds a PDF rendering next to the slide deck.
	WithPDF bool
	// FreeQuota tariffs are free for the first Catalog.FreeOrders accepted orders.
	FreeQuota bool
}

// Price is the paid price for pages, ignoring any free quota.
func (t Tariff) Price(pages int) decimal.Decimal {
	return t.PricePerPage.Mul(decimal.NewFromInt(int64(pages)))
}

type Catalog struct {
	tariffs    []Tariff
	freeOrders int
}

func NewCatalog(cfgs []config.TariffConfig, freeOrders int) (*Catalog, error) {
	c := &Catalog{freeOrders: freeOrders}
	seen := make(map[Key]bool, len(cfgs))
	for _, tc := range cfgs {
		k := Key(tc.Key)
		if seen[k] {
			return nil, fmt.Errorf("duplicate tariff %s", k)
		}
		seen[k] = true
		c.tariffs = append(c.tariffs, Tariff{
			Key:          k,
			Name:         tc.Name,
			PricePerPage: decimal.NewFromInt(tc.PricePerPage),
			WithPDF:      tc.WithPDF,
			FreeQuota:    tc.FreeQuota,
		})
	}
	if len(c.tariffs) == 0 {
		return nil, fmt.Errorf("no tariffs configured")
	}
	return c, nil
}

// All returns the tariffs in configuration order.
func (c *Catalog) All() []Tariff {
	out := make([]Tariff, len(c.tariffs))
	copy(out, c.tariffs)
	return out
}

func (c *Catalog) Get(k Key) (Tariff, bool) {
	for _, t := range c.tariffs {
		if t.Key == k {
			return t, true
		}
	}
	return Tariff{}, false
}

func (c *Catalog) FreeOrders() int {
	return c.freeOrders
}

// Quote is the amount to charge for one order.
type Quote struct {
	Amount decimal.Decimal
	Free   bool
	// FreeOrdinal is 1 for the first free order; zero for paid quotes.
	FreeOrdinal   int
	FreeRemaining int
}

// Quote prices pages of t for a user that has already used freeUsed free orders.
func (c *Catalog) Quote(t Tariff, pages int, freeUsed int) Quote {
	if t.FreeQuota && freeUsed < c.freeOrders {
		return Quote{
			Amount:        decimal.Zero,
			Free:          true,
			FreeOrdinal:   freeUsed + 1,
			FreeRemaining: c.freeOrders - freeUsed - 1,
		}
	}
	return Quote{Amount: t.Price(pages)}
}
