package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Path to the sqlite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"database/marktwatch.db"`

	// Path to the product rules JSON file
	RulesPath string `env:"PRODUCT_RULES_PATH" envDefault:"config/product_rules.json"`

	// Search queries to reconcile, comma separated
	Searches []string `env:"SEARCH_QUERIES" envSeparator:","`

	// HTTP port for the dashboard API
	Port string `env:"PORT" envDefault:"5250"`

	Source struct {
		// Base URL of the listing source JSON API
		BaseURL string `env:"SOURCE_BASE_URL"`

		// User agent sent with source requests
		UserAgent string `env:"SOURCE_USER_AGENT" envDefault:"Mozilla/5.0"`

		// Request timeout in seconds
		TimeoutSeconds int `env:"SOURCE_TIMEOUT" envDefault:"30"`
	}

	Reconciliation struct {
		// Maximum result pages fetched per search before giving up
		MaxPages int `env:"RECONCILE_MAX_PAGES" envDefault:"50"`

		// Maximum number of retries for a failed store commit
		MaxRetries int `env:"RECONCILE_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"RECONCILE_RETRY_DELAY" envDefault:"5"`

		// Buffer size of the sold notification queue
		SoldQueueSize int `env:"SOLD_QUEUE_SIZE" envDefault:"32"`
	}

	Valuation struct {
		// Lookback window for the valuation report, in days
		WindowDays int `env:"VALUATION_WINDOW_DAYS" envDefault:"90"`
	}

	Telegram struct {
		BotToken string `env:"TELEGRAM_BOT_TOKEN"`
		ChatID   string `env:"TELEGRAM_CHAT_ID"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
