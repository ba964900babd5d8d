package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration. TestMode decides Real vs Mock
// payment gateway once at startup; nothing reads it ambiently afterwards.
type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	ContentDir string `env:"CONTENT_DIR" envDefault:"content"`
	DBPath     string `env:"DB_PATH" envDefault:"oraculo.db"`
	TestMode   bool   `env:"TEST_MODE" envDefault:"false"`

	// Fallback order price when a spread carries no precio of its own.
	OrderPrice string `env:"ORDER_PRICE" envDefault:"19.99"`
	Currency   string `env:"CURRENCY" envDefault:"EUR"`

	AdminAPIKey    string `env:"ADMIN_API_KEY"`
	AdminAPISecret string `env:"ADMIN_API_SECRET"`
	JWTSecret      string `env:"JWT_SECRET" envDefault:"oraculo-secret-key"`

	PayPal   PayPal
	Telegram Telegram

	// Orders stuck in AWAITING_PAYMENT longer than ExpiryTTL are failed by
	// the background processor.
	ExpiryInterval time.Duration `env:"ORDER_EXPIRY_INTERVAL" envDefault:"5m"`
	ExpiryTTL      time.Duration `env:"ORDER_EXPIRY_TTL" envDefault:"24h"`
}

type PayPal struct {
	ClientID string `env:"PAYPAL_CLIENT_ID"`
	Secret   string `env:"PAYPAL_CLIENT_SECRET"`
	Env      string `env:"PAYPAL_ENV" envDefault:"sandbox"` // sandbox or live
	BaseURL  string `env:"PAYPAL_BASE_URL"`                 // overrides Env when set
}

// Configured reports whether real PayPal credentials are present.
func (p PayPal) Configured() bool {
	return p.ClientID != "" && p.Secret != ""
}

type Telegram struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `env:"TELEGRAM_CHAT_ID"`
}

func (t Telegram) Configured() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if _, err := decimal.NewFromString(cfg.OrderPrice); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Price returns the fallback order price as a decimal.
func (c *Config) Price() decimal.Decimal {
	d, _ := decimal.NewFromString(c.OrderPrice)
	return d
}
