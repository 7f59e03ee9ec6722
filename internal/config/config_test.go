package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
botToken = "123456:telegram-token"
botUsername = "slide_uz_bot"

[openai]
apiKey = "sk-test-key-0000"

[admins]
adminUserIDs = [1001]

[storage]
driver = "sqlite"
dsn = ":memory:"

[[tariffs]]
key = "START"
name = "Start"
pricePerPage = 2000
freeQuota = true

[[tariffs]]
key = "SMART"
name = "Smart"
pricePerPage = 6500
withPDF = true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "uz", cfg.DefaultLanguage)
	assert.Equal(t, 5, cfg.Order.MinPages)
	assert.Equal(t, 50, cfg.Order.MaxPages)
	assert.Equal(t, 5, cfg.Order.FreeOrders)
	assert.Equal(t, int64(1000), cfg.Referral.ReferrerReward)
	assert.Equal(t, int64(500), cfg.Referral.ReferredReward)
	assert.Equal(t, 168, cfg.Cleanup.MaxAgeHours)
	assert.Len(t, cfg.Tariffs, 2)
	assert.False(t, cfg.WebhookEnabled())
	require.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "999:from-env")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ADMIN_IDS", "7,8,9")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "999:from-env", cfg.BotToken)
	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	assert.Equal(t, []int64{7, 8, 9}, cfg.Admins.AdminUserIDs)
}

func TestValidateConfigMissingCredentials(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BotToken")

	cfg.BotToken = "1:x"
	err = ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")

	cfg.OpenAI.APIKey = "sk"
	err = ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AdminUserIDs")

	cfg.Admins.AdminUserIDs = []int64{1}
	assert.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfigRejectsDuplicateTariffs(t *testing.T) {
	cfg := &Config{BotToken: "1:x", OpenAI: OpenAIConfig{APIKey: "sk"}, Admins: AdminConfig{AdminUserIDs: []int64{1}}}
	ApplyDefaults(cfg)
	cfg.Tariffs = append(cfg.Tariffs, cfg.Tariffs[0])

	assert.ErrorContains(t, ValidateConfig(cfg), "declared twice")
}

func TestValidateConfigWebhookNeedsSecret(t *testing.T) {
	cfg := &Config{BotToken: "1:x", OpenAI: OpenAIConfig{APIKey: "sk"}, Admins: AdminConfig{AdminUserIDs: []int64{1}}}
	ApplyDefaults(cfg)
	cfg.HTTP.WebhookURL = "https://bot.example.uz"
	cfg.HTTP.Listen = ":8000"

	assert.ErrorContains(t, ValidateConfig(cfg), "webhookSecret")

	cfg.HTTP.WebhookSecret = "s3cret"
	assert.NoError(t, ValidateConfig(cfg))
}

func TestMaskedPrint(t *testing.T) {
	assert.Equal(t, "****", MaskedPrint("abcd"))
	assert.Equal(t, "*****6789", MaskedPrint("123456789"))
}

func TestValidateConfigFontPath(t *testing.T) {
	cfg := &Config{BotToken: "1:x", OpenAI: OpenAIConfig{APIKey: "sk"}, Admins: AdminConfig{AdminUserIDs: []int64{1}}}
	ApplyDefaults(cfg)
	require.Empty(t, cfg.Deck.FontPath)
	assert.NoError(t, ValidateConfig(cfg))

	cfg.Deck.FontPath = filepath.Join(t.TempDir(), "missing.ttf")
	assert.ErrorContains(t, ValidateConfig(cfg), "FontPath")

	cfg.Deck.FontPath = t.TempDir()
	assert.ErrorContains(t, ValidateConfig(cfg), "FontPath")

	font := filepath.Join(t.TempDir(), "font.ttf")
	require.NoError(t, os.WriteFile(font, []byte("ttf"), 0o600))
	cfg.Deck.FontPath = font
	assert.NoError(t, ValidateConfig(cfg))
}
