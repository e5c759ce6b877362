package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// WhatsAppConfig holds WhatsApp Cloud API settings shared by the bot core.
type WhatsAppConfig struct {
	AccessToken   string `yaml:"access_token" envconfig:"WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	APIVersion    string `yaml:"api_version" envconfig:"WHATSAPP_API_VERSION"`
	// GraphBaseURL overrides the Graph API host, mainly for tests.
	GraphBaseURL string `yaml:"graph_base_url" envconfig:"WHATSAPP_GRAPH_BASE_URL"`
	// MockMode logs outbound payloads instead of calling the Graph API.
	MockMode bool `yaml:"mock_mode" envconfig:"WHATSAPP_MOCK_MODE"`
}

// WebhookConfig specifies the inbound webhook listener settings.
type WebhookConfig struct {
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	VerifyToken string `yaml:"verify_token" envconfig:"WEBHOOK_VERIFY_TOKEN"`
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret string `yaml:"app_secret" envconfig:"WEBHOOK_APP_SECRET"`
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

// SessionConfig controls conversation session lifecycle.
type SessionConfig struct {
	IdleTTLMinutes    int `yaml:"idle_ttl_minutes" envconfig:"SESSION_IDLE_TTL_MINUTES"`
	SweepIntervalSecs int `yaml:"sweep_interval_seconds" envconfig:"SESSION_SWEEP_INTERVAL_SECONDS"`
}

// IdleTTL returns the configured inactivity window.
func (s SessionConfig) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLMinutes) * time.Minute
}

// SweepInterval returns the configured sweep cadence.
func (s SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSecs) * time.Second
}

// FlowConfig tunes conversation flow behaviour.
type FlowConfig struct {
	// GreetingResetsForms lets the hi/hello/menu shortcut fire while a
	// form step is collecting literal user text. Off by default so an
	// applicant named "Hi" is not bounced back to the welcome menu.
	GreetingResetsForms bool `yaml:"greeting_resets_forms" envconfig:"FLOW_GREETING_RESETS_FORMS"`
	// PartDelayMS spaces consecutive parts of one outbound sequence.
	PartDelayMS int `yaml:"part_delay_ms" envconfig:"FLOW_PART_DELAY_MS"`
}

// RateLimitConfig throttles inbound events per identity. Zero disables
// limiting.
type RateLimitConfig struct {
	MinIntervalMS int `yaml:"min_interval_ms" envconfig:"RATE_LIMIT_MIN_INTERVAL_MS"`
}

// MinInterval returns the configured minimum interval between events.
func (r RateLimitConfig) MinInterval() time.Duration {
	return time.Duration(r.MinIntervalMS) * time.Millisecond
}

// SheetsConfig enables mirroring application records to Google Sheets.
// The mirror is skipped entirely when SpreadsheetID is empty.
type SheetsConfig struct {
	SpreadsheetID       string `yaml:"spreadsheet_id" envconfig:"GOOGLE_SHEETS_ID"`
	StudyTab            string `yaml:"study_tab" envconfig:"GOOGLE_SHEETS_STUDY_TAB"`
	EnrollTab           string `yaml:"enroll_tab" envconfig:"GOOGLE_SHEETS_ENROLL_TAB"`
	ConsultTab          string `yaml:"consult_tab" envconfig:"GOOGLE_SHEETS_CONSULT_TAB"`
	ServiceAccountEmail string `yaml:"service_account_email" envconfig:"GOOGLE_SERVICE_ACCOUNT_EMAIL"`
	PrivateKey          string `yaml:"private_key" envconfig:"GOOGLE_PRIVATE_KEY"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sessions  SessionConfig   `yaml:"sessions"`
	Flow      FlowConfig      `yaml:"flow"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sheets    SheetsConfig    `yaml:"sheets"`
}

const (
	defaultAPIVersion   = "v22.0"
	defaultGraphBaseURL = "https://graph.facebook.com"
)

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

	if !cfg.WhatsApp.MockMode {
		if strings.TrimSpace(cfg.WhatsApp.AccessToken) == "" {
			return fmt.Errorf("whatsapp.access_token is required")
		}
		if strings.TrimSpace(cfg.WhatsApp.PhoneNumberID) == "" {
			return fmt.Errorf("whatsapp.phone_number_id is required")
		}
	}
	if strings.TrimSpace(cfg.WhatsApp.APIVersion) == "" {
		cfg.WhatsApp.APIVersion = defaultAPIVersion
	}
	if strings.TrimSpace(cfg.WhatsApp.GraphBaseURL) == "" {
		cfg.WhatsApp.GraphBaseURL = defaultGraphBaseURL
	}
	cfg.WhatsApp.GraphBaseURL = strings.TrimRight(cfg.WhatsApp.GraphBaseURL, "/")

	if strings.TrimSpace(cfg.Webhook.Listen) == "" {
		cfg.Webhook.Listen = "0.0.0.0"
	}
	if cfg.Webhook.Port <= 0 {
		cfg.Webhook.Port = 8080
	}
	if strings.TrimSpace(cfg.Webhook.VerifyToken) == "" {
		return fmt.Errorf("webhook.verify_token is required")
	}

	if cfg.Sessions.IdleTTLMinutes <= 0 {
		cfg.Sessions.IdleTTLMinutes = 60
	}
	if cfg.Sessions.SweepIntervalSecs <= 0 {
		cfg.Sessions.SweepIntervalSecs = 300
	}

	if cfg.Flow.PartDelayMS < 0 {
		return fmt.Errorf("flow.part_delay_ms must be >= 0")
	}
	if cfg.Flow.PartDelayMS == 0 {
		cfg.Flow.PartDelayMS = 900
	}

	if cfg.RateLimit.MinIntervalMS < 0 {
		return fmt.Errorf("rate_limit.min_interval_ms must be >= 0")
	}

	if cfg.Sheets.SpreadsheetID != "" {
		if strings.TrimSpace(cfg.Sheets.ServiceAccountEmail) == "" || strings.TrimSpace(cfg.Sheets.PrivateKey) == "" {
			return fmt.Errorf("sheets.service_account_email and sheets.private_key are required when sheets.spreadsheet_id is set")
		}
		if cfg.Sheets.StudyTab == "" {
			cfg.Sheets.StudyTab = "StudyApplications"
		}
		if cfg.Sheets.EnrollTab == "" {
			cfg.Sheets.EnrollTab = "Enrollments"
		}
		if cfg.Sheets.ConsultTab == "" {
			cfg.Sheets.ConsultTab = "Consultations"
		}
	}

	return nil
}
