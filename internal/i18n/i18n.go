package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed all:locales
var localeFS embed.FS

// Manager owns the message bundle and one cached localizer per language.
type Manager struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	Logger          *zap.Logger
	localizers      map[string]*i18n.Localizer
	availableLangs  map[string]string // code -> display name
	money           *message.Printer
}

// NewManager loads every embedded locales/*.toml file. defaultLang must be one of them.
func NewManager(defaultLang string, logger *zap.Logger) (*Manager, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("invalid default language tag '%s': %w", defaultLang, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	m := &Manager{
		bundle:          bundle,
		defaultLanguage: defaultLang,
		Logger:          logger.Named("i18n"),
		localizers:      make(map[string]*i18n.Localizer),
		availableLangs:  make(map[string]string),
		money:           message.NewPrinter(language.English),
	}

	if err := m.LoadTranslations(); err != nil {
		return nil, err
	}
	if _, ok := m.availableLangs[defaultLang]; !ok {
		return nil, fmt.Errorf("no locale file for default language %q", defaultLang)
	}

	for code := range m.availableLangs {
		m.localizers[code] = i18n.NewLocalizer(m.bundle, code, defaultLang)
	}

	m.Logger.Info("i18n manager initialized",
		zap.String("default_language", defaultLang),
		zap.Int("loaded_languages", len(m.availableLangs)),
	)
	return m, nil
}

func (m *Manager) LoadTranslations() error {
	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return fmt.Errorf("read embedded locales: %w", err)
	}

	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ".toml" {
			continue
		}
		mf, err := m.bundle.LoadMessageFileFS(localeFS, "locales/"+name)
		if err != nil {
			m.Logger.Warn("Failed to load translation file", zap.String("file", name), zap.Error(err))
			continue
		}

		// active.uz.toml -> uz
		parts := strings.Split(strings.TrimSuffix(name, ".toml"), ".")
		code := parts[len(parts)-1]

		display := code
		for _, msg := range mf.Messages {
			if msg.ID == "language_name" {
				display = msg.Other
				break
			}
		}
		m.availableLangs[code] = display
		m.Logger.Debug("Loaded translation file", zap.String("file", name), zap.Int("messages", len(mf.Messages)))
	}

	if len(m.availableLangs) == 0 {
		return errors.New("no valid translation files loaded")
	}
	return nil
}

// T translates key for lang (empty means the default language).
// args are key/value pairs for template data; a single int is used as the plural count.
func (m *Manager) T(lang string, key string, args ...interface{}) string {
	if lang == "" {
		lang = m.defaultLanguage
	}
	localizer, ok := m.localizers[lang]
	if !ok {
		localizer = m.localizers[m.defaultLanguage]
	}

	cfg := &i18n.LocalizeConfig{MessageID: key}
	data := make(map[string]interface{})
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case int:
			if cfg.PluralCount == nil {
				cfg.PluralCount = v
			}
		case string:
			if i+1 < len(args) {
				data[v] = args[i+1]
				i++
			}
		case map[string]interface{}:
			for k, val := range v {
				data[k] = val
			}
		default:
			m.Logger.Warn("Unsupported argument type in T", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", v)))
		}
	}
	if len(data) > 0 {
		cfg.TemplateData = data
	}

	localized, err := localizer.Localize(cfg)
	if err != nil {
		var notFound *i18n.MessageNotFoundErr
		if !errors.As(err, &notFound) {
			m.Logger.Error("Failed to localize message", zap.String("key", key), zap.String("lang", lang), zap.Error(err))
		}
		if localized == "" {
			return key
		}
	}
	return localized
}

// Money renders an amount with thousands separators, e.g. "32,500 so'm".
func (m *Manager) Money(lang string, amount decimal.Decimal) string {
	return m.T(lang, "money_format", "amount", m.money.Sprintf("%d", amount.Round(0).IntPart()))
}

// Languages returns the available language codes, sorted.
func (m *Manager) Languages() []string {
	codes := make([]string, 0, len(m.availableLangs))
	for code := range m.availableLangs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (m *Manager) GetLanguageName(code string) (string, bool) {
	name, ok := m.availableLangs[code]
	return name, ok
}

func (m *Manager) HasLanguage(code string) bool {
	_, ok := m.availableLangs[code]
	return ok
}

func (m *Manager) DefaultLanguage() string {
	return m.defaultLanguage
}
