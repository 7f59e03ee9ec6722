package tariff

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/config"
)

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(config.DefaultTariffs(), 5)
	require.NoError(t, err)
	return c
}

func TestCatalog(t *testing.T) {
	c := defaultCatalog(t)

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, []Key{Start, Standard, Smart}, []Key{all[0].Key, all[1].Key, all[2].Key})

	smart, ok := c.Get(Smart)
	require.True(t, ok)
	assert.True(t, smart.WithPDF)
	assert.True(t, smart.Price(5).Equal(decimal.NewFromInt(32500)))

	standard, _ := c.Get(Standard)
	assert.False(t, standard.WithPDF)
	assert.True(t, standard.Price(10).Equal(decimal.NewFromInt(45000)))

	_, ok = c.Get("GOLD")
	assert.False(t, ok)
}

func TestQuoteFreeQuota(t *testing.T) {
	c := defaultCatalog(t)
	start, _ := c.Get(Start)

	q := c.Quote(start, 12, 0)
	assert.True(t, q.Free)
	assert.True(t, q.Amount.IsZero())
	assert.Equal(t, 1, q.FreeOrdinal)
	assert.Equal(t, 4, q.FreeRemaining)

	q = c.Quote(start, 12, 4)
	assert.True(t, q.Free)
	assert.Equal(t, 5, q.FreeOrdinal)
	assert.Equal(t, 0, q.FreeRemaining)

	q = c.Quote(start, 12, 5)
	assert.False(t, q.Free)
	assert.True(t, q.Amount.Equal(decimal.NewFromInt(24000)))
}

func TestQuotePaidTariffIgnoresQuota(t *testing.T) {
	c := defaultCatalog(t)
	smart, _ := c.Get(Smart)

	q := c.Quote(smart, 5, 0)
	assert.False(t, q.Free)
	assert.True(t, q.Amount.Equal(decimal.NewFromInt(32500)))
}

func TestNewCatalogErrors(t *testing.T) {
	_, err := NewCatalog(nil, 5)
	assert.Error(t, err)

	dup := append(config.DefaultTariffs(), config.DefaultTariffs()[0])
	_, err = NewCatalog(dup, 5)
	assert.ErrorContains(t, err, "duplicate")
}
