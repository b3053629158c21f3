package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies Telegram webhook-mode settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LeadWebhookConfig specifies the HTTP ingress that accepts leads from the
// landing page. Disabled unless a listen address is configured.
type LeadWebhookConfig struct {
	Listen string `yaml:"listen" envconfig:"LEAD_WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"LEAD_WEBHOOK_PORT"`
	Secret string `yaml:"secret" envconfig:"LEAD_WEBHOOK_SECRET"`
}

// Enabled reports whether the lead webhook listener should start.
func (c LeadWebhookConfig) Enabled() bool {
	return strings.TrimSpace(c.Listen) != ""
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateContact identifies contact-share updates for rate limit exclusions.
	UpdateContact = "contact"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "contact": shared phone contacts
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// DatabaseConfig holds Postgres connection settings. It lives here so the
// config package stays a leaf; internal/storage consumes it.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// BranchRule routes a survey step to an alternate successor when every
// condition in When matches an already collected answer. Rules are
// configuration data so skip conditions never get hardcoded in the engine.
type BranchRule struct {
	Step string            `yaml:"step"`
	When map[string]string `yaml:"when"`
	Next string            `yaml:"next"`
}

const (
	// SessionStoreMemory keeps sessions in process memory.
	SessionStoreMemory = "memory"
	// SessionStorePostgres persists sessions between restarts.
	SessionStorePostgres = "postgres"
)

// SurveyConfig tunes the dialog engine.
type SurveyConfig struct {
	FallbackLanguage  string       `yaml:"fallback_language" envconfig:"SURVEY_FALLBACK_LANGUAGE"`
	SessionTTLMinutes int          `yaml:"session_ttl_minutes" envconfig:"SURVEY_SESSION_TTL_MINUTES"`
	Store             string       `yaml:"store" envconfig:"SURVEY_STORE"`
	Branches          []BranchRule `yaml:"branches"`
}

// LeadsConfig wires the staff-chat notification collaborator.
type LeadsConfig struct {
	// ChatID is the workgroup chat that receives lead summaries.
	ChatID int64 `yaml:"chat_id" envconfig:"LEADS_CHAT_ID"`
}

// Config aggregates the full application configuration.
type Config struct {
	Telegram    TelegramConfig    `yaml:"telegram"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	LeadWebhook LeadWebhookConfig `yaml:"lead_webhook"`
	Logging     LoggingConfig     `yaml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Database    DatabaseConfig    `yaml:"database"`
	Survey      SurveyConfig      `yaml:"survey"`
	Leads       LeadsConfig       `yaml:"leads"`
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

// Normalize performs basic validation of required configuration fields and adjusts defaults.
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
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.LeadWebhook.Enabled() {
		if cfg.LeadWebhook.Port <= 0 {
			return fmt.Errorf("lead_webhook.port must be > 0 when lead_webhook.listen is set")
		}
		if strings.TrimSpace(cfg.LeadWebhook.Secret) == "" {
			return fmt.Errorf("lead_webhook.secret is required when lead_webhook.listen is set")
		}
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
		UpdateContact:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, contact", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	return normalizeSurvey(cfg)
}

func normalizeSurvey(cfg *Config) error {
	s := &cfg.Survey

	lang := strings.ToLower(strings.TrimSpace(s.FallbackLanguage))
	if lang == "" {
		lang = "ru"
	}
	s.FallbackLanguage = lang

	if s.SessionTTLMinutes < 0 {
		return fmt.Errorf("survey.session_ttl_minutes must be >= 0")
	}
	if s.SessionTTLMinutes == 0 {
		s.SessionTTLMinutes = 30
	}

	store := strings.ToLower(strings.TrimSpace(s.Store))
	if store == "" {
		store = SessionStoreMemory
	}
	switch store {
	case SessionStoreMemory, SessionStorePostgres:
	default:
		return fmt.Errorf("invalid survey.store %q; allowed: memory, postgres", s.Store)
	}
	s.Store = store

	for i, rule := range s.Branches {
		if strings.TrimSpace(rule.Step) == "" {
			return fmt.Errorf("survey.branches[%d].step is required", i)
		}
		if strings.TrimSpace(rule.Next) == "" {
			return fmt.Errorf("survey.branches[%d].next is required", i)
		}
		if len(rule.When) == 0 {
			return fmt.Errorf("survey.branches[%d].when must not be empty", i)
		}
	}
	return nil
}
