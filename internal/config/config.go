package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/hitoshi/storefront/internal/model"
)

// LocalEnvFile は起動時に読み込むローカル開発用の環境変数ファイル。
const LocalEnvFile = ".env.local"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL              string        `env:"DATABASE_URL,required,notEmpty"`
	DBServerSelectionTimeout time.Duration `env:"DB_SERVER_SELECTION_TIMEOUT" envDefault:"10s"`
	DBSocketTimeout          time.Duration `env:"DB_SOCKET_TIMEOUT" envDefault:"45s"`
	DBMaxOpenConns           int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`

	// Webhook
	WebhookSecret          string `env:"CLERK_WEBHOOK_SECRET"`
	WebhookMaxPayloadBytes int64  `env:"WEBHOOK_MAX_PAYLOAD_BYTES" envDefault:"1048576"`

	// Identity provider (session sync)
	ProviderSecretKey string `env:"CLERK_SECRET_KEY"`
	ProviderAPIURL    string `env:"CLERK_API_URL" envDefault:"https://api.clerk.com/v1"`
	SessionPublicKey  string `env:"CLERK_JWT_KEY"`

	// Rate Limit
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Cookie (CSRFトークン)
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は.env.local（存在すれば）と環境変数からConfigを読み込む。
// 既に設定されている環境変数はファイルの値で上書きしない。
// 必須環境変数が未設定の場合はmodel.ErrConfigurationをラップしたエラーを返す。
func Load() (*Config, error) {
	if err := loadEnvFile(LocalEnvFile); err != nil {
		return nil, err
	}
	return Parse()
}

// Parse は環境変数のみからConfigを読み込む。
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %w", model.ErrConfiguration, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBServerSelectionTimeout <= 0 || c.DBSocketTimeout <= 0 {
		return fmt.Errorf("%w: database timeouts must be positive", model.ErrConfiguration)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("%w: RATE_LIMIT_PER_MINUTE must be positive", model.ErrConfiguration)
	}
	if c.WebhookMaxPayloadBytes <= 0 {
		return fmt.Errorf("%w: WEBHOOK_MAX_PAYLOAD_BYTES must be positive", model.ErrConfiguration)
	}
	return nil
}

// SessionSyncEnabled はセッション同期に必要な設定が揃っているかを返す。
func (c *Config) SessionSyncEnabled() bool {
	return c.ProviderSecretKey != "" && c.SessionPublicKey != ""
}

func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: failed to load %s: %w", model.ErrConfiguration, path, err)
}
