package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// UpdatesWebhookConfig specifies the listener used when Telegram updates are
// delivered via webhook instead of long polling.
type UpdatesWebhookConfig struct {
	URL    string `yaml:"url" envconfig:"UPDATES_WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"UPDATES_WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"UPDATES_WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// PlanConfig declares the admission limits of a single service tier.
type PlanConfig struct {
	DailyLimit      int     `yaml:"daily_limit"`
	WindowLimit     int     `yaml:"window_limit"`
	WindowSeconds   int     `yaml:"window_seconds"`
	CooldownSeconds float64 `yaml:"cooldown_seconds"`
	MaxActive       int     `yaml:"max_active"`
}

// PlansConfig groups per-tier limits and the premium whitelist.
type PlansConfig struct {
	Free           PlanConfig `yaml:"free"`
	Premium        PlanConfig `yaml:"premium"`
	PremiumUserIDs []int64    `yaml:"premium_user_ids" envconfig:"PREMIUM_USER_IDS"`
}

// GalleryConfig configures the catalog client and its existence cache.
type GalleryConfig struct {
	BaseURL            string `yaml:"base_url" envconfig:"GALLERY_BASE_URL"`
	ServiceToken       string `yaml:"service_token" envconfig:"GALLERY_SERVICE_TOKEN"`
	CacheTTLHours      int    `yaml:"cache_ttl_hours"`
	CacheMaxSize       int    `yaml:"cache_max_size"`
	SweepIntervalHours int    `yaml:"sweep_interval_hours"`
}

// PaymentsConfig configures Telegram Stars payment processing.
type PaymentsConfig struct {
	BackendWebhookURL     string `yaml:"backend_webhook_url" envconfig:"BACKEND_WEBHOOK_URL"`
	SharedSecret          string `yaml:"shared_secret" envconfig:"WEBHOOK_SHARED_SECRET"`
	IdempotencyRetentionD int    `yaml:"idempotency_retention_days"`
	InvoiceTTLHours       int    `yaml:"invoice_ttl_hours"`
}

// NotifierConfig configures outbound webhook delivery.
type NotifierConfig struct {
	MaxAttempts        int `yaml:"max_attempts" envconfig:"WEBHOOK_MAX_ATTEMPTS"`
	BaseBackoffSeconds int `yaml:"base_backoff_seconds"`
	TimeoutSeconds     int `yaml:"timeout_seconds" envconfig:"WEBHOOK_TIMEOUT_SECONDS"`
}

// GenAPIConfig configures the image generation client.
type GenAPIConfig struct {
	BaseURL             string `yaml:"base_url" envconfig:"GENAPI_BASE_URL"`
	APIKey              string `yaml:"api_key" envconfig:"GENAPI_API_KEY"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	PollBudgetSeconds   int    `yaml:"poll_budget_seconds"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram       TelegramConfig       `yaml:"telegram"`
	UpdatesWebhook UpdatesWebhookConfig `yaml:"updates_webhook"`
	Logging        LoggingConfig        `yaml:"logging"`
	Plans          PlansConfig          `yaml:"plans"`
	Gallery        GalleryConfig        `yaml:"gallery"`
	Payments       PaymentsConfig       `yaml:"payments"`
	Notifier       NotifierConfig       `yaml:"notifier"`
	GenAPI         GenAPIConfig         `yaml:"genapi"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.UpdatesWebhook.URL) == "" {
			return fmt.Errorf("updates_webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.UpdatesWebhook.Listen) == "" {
			return fmt.Errorf("updates_webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.UpdatesWebhook.Port <= 0 {
			return fmt.Errorf("updates_webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	normalizePlan(&cfg.Plans.Free, PlanConfig{
		DailyLimit:      5,
		WindowLimit:     2,
		WindowSeconds:   600,
		CooldownSeconds: 30,
		MaxActive:       1,
	})
	normalizePlan(&cfg.Plans.Premium, PlanConfig{
		DailyLimit:      50,
		WindowLimit:     10,
		WindowSeconds:   600,
		CooldownSeconds: 5,
		MaxActive:       1,
	})
	if cfg.Plans.Free.DailyLimit <= 0 || cfg.Plans.Premium.DailyLimit <= 0 {
		return fmt.Errorf("plan daily_limit must be > 0")
	}

	if cfg.Gallery.CacheTTLHours <= 0 {
		cfg.Gallery.CacheTTLHours = 7 * 24
	}
	if cfg.Gallery.CacheMaxSize <= 0 {
		cfg.Gallery.CacheMaxSize = 5000
	}
	if cfg.Gallery.SweepIntervalHours <= 0 {
		cfg.Gallery.SweepIntervalHours = 1
	}

	if cfg.Payments.IdempotencyRetentionD <= 0 {
		cfg.Payments.IdempotencyRetentionD = 7
	}
	if cfg.Payments.InvoiceTTLHours <= 0 {
		cfg.Payments.InvoiceTTLHours = 24
	}
	if u := strings.TrimSpace(cfg.Payments.BackendWebhookURL); u != "" {
		if !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("payments.backend_webhook_url must use https")
		}
		cfg.Payments.BackendWebhookURL = u
	}

	if cfg.Notifier.MaxAttempts <= 0 {
		cfg.Notifier.MaxAttempts = 3
	}
	if cfg.Notifier.BaseBackoffSeconds <= 0 {
		cfg.Notifier.BaseBackoffSeconds = 1
	}
	if cfg.Notifier.TimeoutSeconds <= 0 {
		cfg.Notifier.TimeoutSeconds = 10
	}

	if cfg.GenAPI.PollIntervalSeconds <= 0 {
		cfg.GenAPI.PollIntervalSeconds = 2
	}
	if cfg.GenAPI.PollBudgetSeconds <= 0 {
		cfg.GenAPI.PollBudgetSeconds = 120
	}

	return nil
}

func normalizePlan(p *PlanConfig, def PlanConfig) {
	if p.DailyLimit == 0 {
		p.DailyLimit = def.DailyLimit
	}
	if p.WindowLimit == 0 {
		p.WindowLimit = def.WindowLimit
	}
	if p.WindowSeconds == 0 {
		p.WindowSeconds = def.WindowSeconds
	}
	if p.CooldownSeconds == 0 {
		p.CooldownSeconds = def.CooldownSeconds
	}
	if p.MaxActive == 0 {
		p.MaxActive = def.MaxActive
	}
}

// WindowPeriod returns the rolling window duration of a plan.
func (p PlanConfig) WindowPeriod() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// Cooldown returns the cooldown duration of a plan.
func (p PlanConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownSeconds * float64(time.Second))
}
