package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	BotToken        string           `toml:"botToken" env:"BOT_TOKEN" validate:"required"`
	BotUsername     string           `toml:"botUsername" env:"BOT_USERNAME"`
	TelegramAPIURL  string           `toml:"telegramAPIURL" env:"TELEGRAM_API_URL"`
	DefaultLanguage string           `toml:"defaultLanguage" env:"DEFAULT_LANGUAGE" validate:"required"`
	OutputDir       string           `toml:"outputDir" env:"OUTPUT_DIR" validate:"required"`
	LogConfig       LogConfig        `toml:"logConfig"`
	Storage         StorageConfig    `toml:"storage"`
	OpenAI          OpenAIConfig     `toml:"openai"`
	Admins          AdminConfig      `toml:"admins"`
	Order           OrderConfig      `toml:"order"`
	Tariffs         []TariffConfig   `toml:"tariffs" validate:"required,min=1,dive"`
	Referral        ReferralConfig   `toml:"referral"`
	Generation      GenerationConfig `toml:"generation"`
	Deck            DeckConfig       `toml:"deck"`
	Broadcast       BroadcastConfig  `toml:"broadcast"`
	Cleanup         CleanupConfig    `toml:"cleanup"`
	HTTP            HTTPConfig       `toml:"http"`
	RateLimit       RateLimitConfig  `toml:"rateLimit"`
	Support         SupportConfig    `toml:"support"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL"`
	Format string `toml:"format" env:"LOG_FORMAT" validate:"omitempty,oneof=json console"`
	File   string `toml:"file" env:"LOG_FILE"`
}

type StorageConfig struct {
	Driver string `toml:"driver" env:"DATABASE_DRIVER" validate:"oneof=sqlite postgres"`
	DSN    string `toml:"dsn" env:"DATABASE_URL" validate:"required"`
}

type OpenAIConfig struct {
	APIKey         string  `toml:"apiKey" env:"OPENAI_API_KEY" validate:"required"`
	BaseURL        string  `toml:"baseURL" env:"OPENAI_BASE_URL" validate:"required,url"`
	ChatModel      string  `toml:"chatModel" env:"OPENAI_CHAT_MODEL" validate:"required"`
	ImageModel     string  `toml:"imageModel" env:"OPENAI_IMAGE_MODEL"`
	ImageSize      string  `toml:"imageSize"`
	Temperature    float64 `toml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSeconds int     `toml:"timeoutSeconds" validate:"gte=0"`
}

type AdminConfig struct {
	AdminUserIDs []int64 `toml:"adminUserIDs" env:"ADMIN_IDS" envSeparator:"," validate:"required,min=1"`
}

type OrderConfig struct {
	MinPages       int `toml:"minPages" validate:"gte=1"`
	MaxPages       int `toml:"maxPages" validate:"gtefield=MinPages"`
	MinTopicWords  int `toml:"minTopicWords" validate:"gte=1"`
	MinTopicLength int `toml:"minTopicLength" validate:"gte=1"`
	MaxTopicLength int `toml:"maxTopicLength" validate:"gtefield=MinTopicLength"`
	FreeOrders     int `toml:"freeOrders" validate:"gte=0"`
	// Pending orders older than this are cancelled by the expiry job.
	PendingTTLHours int `toml:"pendingTTLHours" validate:"gte=0"`
}

// TariffConfig prices are whole so'm per page.
type TariffConfig struct {
	Key          string `toml:"key" validate:"required,oneof=START STANDARD SMART"`
	Name         string `toml:"name" validate:"required"`
	PricePerPage int64  `toml:"pricePerPage" validate:"gte=0"`
	WithPDF      bool   `toml:"withPDF"`
	FreeQuota    bool   `toml:"freeQuota"`
}

type ReferralConfig struct {
	ReferrerReward int64 `toml:"referrerReward" validate:"gte=0"`
	ReferredReward int64 `toml:"referredReward" validate:"gte=0"`
}

type GenerationConfig struct {
	TimeoutMinutes int `toml:"timeoutMinutes" validate:"gte=1"`
	// Upper bound for the completion, scaled by page count.
	MaxTokensPerSlide int `toml:"maxTokensPerSlide" validate:"gte=50"`
}

type DeckConfig struct {
	// UTF-8 TTF for PDFs; the bundled DejaVu Sans is used when empty.
	FontPath     string `toml:"fontPath" validate:"omitempty,file"`
	FetchTimeout int    `toml:"fetchTimeoutSeconds" validate:"gte=0"`
}

type BroadcastConfig struct {
	DelayMillis int `toml:"delayMillis" validate:"gte=0"`
}

type CleanupConfig struct {
	Schedule    string `toml:"schedule" validate:"required"`
	MaxAgeHours int    `toml:"maxAgeHours" validate:"gte=1"`
}

type HTTPConfig struct {
	Listen        string `toml:"listen" env:"HTTP_LISTEN"`
	WebhookURL    string `toml:"webhookURL" env:"WEBHOOK_URL" validate:"omitempty,url"`
	WebhookSecret string `toml:"webhookSecret" env:"WEBHOOK_SECRET"`
}

type RateLimitConfig struct {
	IntervalSeconds int `toml:"intervalSeconds" validate:"gte=0"`
}

type SupportConfig struct {
	AdminUsername   string `toml:"adminUsername"`
	PaymentCard     string `toml:"paymentCard"`
	PaymentCardName string `toml:"paymentCardName"`
	ChannelURL      string `toml:"channelURL"`
}

// WebhookEnabled reports whether updates arrive through the HTTP endpoint instead of long polling.
func (c *Config) WebhookEnabled() bool {
	return c.HTTP.WebhookURL != ""
}

// LoadConfig reads the TOML file, fills defaults and applies environment overrides.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	ApplyDefaults(&cfg)

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset optional value.
func ApplyDefaults(cfg *Config) {
	if cfg.TelegramAPIURL == "" {
		cfg.TelegramAPIURL = "https://api.telegram.org/bot%s/%s"
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "uz"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./presentations"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Format == "" {
		cfg.LogConfig.Format = "console"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = "./slidebot.db"
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.ImageModel == "" {
		cfg.OpenAI.ImageModel = "dall-e-3"
	}
	if cfg.OpenAI.ImageSize == "" {
		cfg.OpenAI.ImageSize = "1792x1024"
	}
	if cfg.OpenAI.Temperature == 0 {
		cfg.OpenAI.Temperature = 0.7
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 180
	}
	if cfg.Order.MinPages == 0 {
		cfg.Order.MinPages = 5
	}
	if cfg.Order.MaxPages == 0 {
		cfg.Order.MaxPages = 50
	}
	if cfg.Order.MinTopicWords == 0 {
		cfg.Order.MinTopicWords = 2
	}
	if cfg.Order.MinTopicLength == 0 {
		cfg.Order.MinTopicLength = 10
	}
	if cfg.Order.MaxTopicLength == 0 {
		cfg.Order.MaxTopicLength = 200
	}
	if cfg.Order.FreeOrders == 0 {
		cfg.Order.FreeOrders = 5
	}
	if cfg.Order.PendingTTLHours == 0 {
		cfg.Order.PendingTTLHours = 24
	}
	if len(cfg.Tariffs) == 0 {
		cfg.Tariffs = DefaultTariffs()
	}
	if cfg.Referral.ReferrerReward == 0 && cfg.Referral.ReferredReward == 0 {
		cfg.Referral.ReferrerReward = 1000
		cfg.Referral.ReferredReward = 500
	}
	if cfg.Generation.TimeoutMinutes == 0 {
		cfg.Generation.TimeoutMinutes = 10
	}
	if cfg.Generation.MaxTokensPerSlide == 0 {
		cfg.Generation.MaxTokensPerSlide = 220
	}
	if cfg.Deck.FetchTimeout == 0 {
		cfg.Deck.FetchTimeout = 60
	}
	if cfg.Broadcast.DelayMillis == 0 {
		cfg.Broadcast.DelayMillis = 100
	}
	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "@daily"
	}
	if cfg.Cleanup.MaxAgeHours == 0 {
		cfg.Cleanup.MaxAgeHours = 7 * 24
	}
	if cfg.RateLimit.IntervalSeconds == 0 {
		cfg.RateLimit.IntervalSeconds = 2
	}
}

// DefaultTariffs is the START / STANDARD / SMART price list.
func DefaultTariffs() []TariffConfig {
	return []TariffConfig{
		{Key: "START", Name: "Start", PricePerPage: 2000, FreeQuota: true},
		{Key: "STANDARD", Name: "Standard", PricePerPage: 4500},
		{Key: "SMART", Name: "Smart", PricePerPage: 6500, WithPDF: true},
	}
}

func ValidateURL(urlString string) bool {
	if urlString == "" {
		return false
	}
	u, err := url.Parse(urlString)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// MaskedPrint keeps only the last 4 characters visible.
func MaskedPrint(str string) string {
	if len(str) <= 4 {
		return strings.Repeat("*", len(str))
	}
	return strings.Repeat("*", len(str)-4) + str[len(str)-4:]
}

func PrintConfig(cfg *Config) {
	fmt.Println()
	fmt.Println("--------------------------------")
	fmt.Println("Config:")
	fmt.Printf("\tBotToken: %s\n", MaskedPrint(cfg.BotToken))
	fmt.Printf("\tBotUsername: %s\n", cfg.BotUsername)
	fmt.Printf("\tTelegramAPIURL: %s\n", cfg.TelegramAPIURL)
	fmt.Printf("\tDefaultLanguage: %s\n", cfg.DefaultLanguage)
	fmt.Printf("\tOutputDir: %s\n", cfg.OutputDir)
	fmt.Printf("\tLogConfig: %+v\n", cfg.LogConfig)
	fmt.Printf("\tStorage: driver=%s dsn=%s\n", cfg.Storage.Driver, MaskedPrint(cfg.Storage.DSN))
	fmt.Printf("\tOpenAI: baseURL=%s chat=%s image=%s apiKey=%s\n",
		cfg.OpenAI.BaseURL, cfg.OpenAI.ChatModel, cfg.OpenAI.ImageModel, MaskedPrint(cfg.OpenAI.APIKey))
	fmt.Printf("\tAdmins: %v\n", cfg.Admins.AdminUserIDs)
	fmt.Printf("\tOrder: %+v\n", cfg.Order)
	fmt.Printf("\tTariffs: %+v\n", cfg.Tariffs)
	fmt.Printf("\tReferral: %+v\n", cfg.Referral)
	fmt.Printf("\tGeneration: %+v\n", cfg.Generation)
	fmt.Printf("\tCleanup: %+v\n", cfg.Cleanup)
	fmt.Printf("\tHTTP: listen=%s webhook=%t\n", cfg.HTTP.Listen, cfg.WebhookEnabled())
	fmt.Println("--------------------------------")
	fmt.Println()
}

// ValidateConfig checks struct tags first and then the rules that span several fields.
func ValidateConfig(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config field %s failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}

	if !ValidateURL(strings.ReplaceAll(cfg.TelegramAPIURL, "%s", "x")) {
		return fmt.Errorf("telegramAPIURL must be a valid URL")
	}

	seen := make(map[string]bool, len(cfg.Tariffs))
	for _, t := range cfg.Tariffs {
		if seen[t.Key] {
			return fmt.Errorf("tariff %s is declared twice", t.Key)
		}
		seen[t.Key] = true
	}

	if cfg.WebhookEnabled() {
		if cfg.HTTP.Listen == "" {
			return fmt.Errorf("http.listen is required when webhookURL is set")
		}
		if cfg.HTTP.WebhookSecret == "" {
			return fmt.Errorf("http.webhookSecret is required when webhookURL is set")
		}
	}
	return nil
}
