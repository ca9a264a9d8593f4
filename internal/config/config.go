package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type StorageBackend string

const (
	StorageFile     StorageBackend = "file"
	StoragePostgres StorageBackend = "postgres"
)

type Config struct {
	// Core
	BotToken string `env:"BOT_TOKEN,required,notEmpty"`

	// Generation API
	APIBaseURL  string `env:"GEN_API_URL,required,notEmpty"`
	APIKey      string `env:"GEN_API_KEY"`
	Model       string `env:"GEN_MODEL" envDefault:"photo-chat-v1"`
	Streaming   bool   `env:"GEN_STREAMING" envDefault:"true"`
	ManifestURL string `env:"CONTENT_MANIFEST_URL"`
	CreditsURL  string `env:"CREDITS_API_URL"`

	// Storage
	StorageBackend StorageBackend `env:"STORAGE_BACKEND" envDefault:"file"`
	DataDir        string         `env:"DATA_DIR" envDefault:"./data"`
	DatabaseURL    string         `env:"DATABASE_URL"`
	DBMaxConns     int32          `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns     int32          `env:"DB_MIN_CONNS" envDefault:"2"`

	// Image cache
	CacheDir     string `env:"IMAGE_CACHE_DIR" envDefault:"./data/images"`
	CacheEntries int    `env:"IMAGE_CACHE_ENTRIES" envDefault:"128"`

	// Admin
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	// Bot behavior
	DropPendingUpdates bool `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`

	// Telegram logging
	LogTelegramChatID  int64 `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError      int   `env:"LOG_TOPIC_ERROR"`
	LogTopicGeneration int   `env:"LOG_TOPIC_GENERATION"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageFile:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for storage backend %q", c.StorageBackend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.CacheEntries <= 0 {
		return fmt.Errorf("IMAGE_CACHE_ENTRIES must be positive, got %d", c.CacheEntries)
	}
	return nil
}

func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c *Config) AdminIDsString() string {
	parts := make([]string, len(c.AdminIDs))
	for i, id := range c.AdminIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
