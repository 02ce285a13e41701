// Package container provides dependency injection and lifecycle management
// for the billing system.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/investment-billing/internal/application/service"
	"github.com/garyjia/investment-billing/internal/domain/currency"
	"github.com/garyjia/investment-billing/internal/domain/fees"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database       DatabaseConfig
	Server         ServerConfig
	Gateway        GatewayConfig
	Notifier       NotifierConfig
	Lark           LarkConfig
	Reconciliation ScheduleConfig
	ManagementFees ManagementFeesConfig
	Documents      DocumentsConfig

	// Billing values are parsed once and handed to the services unchanged
	Rates      currency.Rates
	Membership fees.MembershipSchedule
	Settings   service.Settings
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// GatewayConfig holds payments service settings.
type GatewayConfig struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	WebhookSecret    string
	WebhookTolerance time.Duration
}

// NotifierConfig holds transactional email settings.
type NotifierConfig struct {
	APIURL  string
	APIKey  string
	DryRun  bool
	Timeout time.Duration
}

// LarkConfig holds operator alert settings. Alerts are off unless Enabled.
type LarkConfig struct {
	Enabled     bool
	AppID       string
	AppSecret   string
	AlertChatID string
}

// ScheduleConfig describes a cron driven background job.
type ScheduleConfig struct {
	Enabled   bool
	Schedule  string
	BatchSize int
	Timeout   time.Duration
}

// ManagementFeesConfig describes the yearly management fee run.
type ManagementFeesConfig struct {
	ScheduleConfig
	Publish bool
}

// DocumentsConfig holds invoice rendering and storage settings.
type DocumentsConfig struct {
	TemplatePath string
	OutputDir    string
	IssuerName   string
	IssuerLines  []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/billing.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			Timeout:          30 * time.Second,
			WebhookTolerance: 5 * time.Minute,
		},
		Notifier: NotifierConfig{
			Timeout: 30 * time.Second,
		},
		Reconciliation: ScheduleConfig{
			Enabled:   true,
			Schedule:  "*/15 * * * *",
			BatchSize: 100,
			Timeout:   5 * time.Minute,
		},
		ManagementFees: ManagementFeesConfig{
			ScheduleConfig: ScheduleConfig{
				Schedule: "0 6 2 1 *",
				Timeout:  30 * time.Minute,
			},
		},
		Documents: DocumentsConfig{
			OutputDir: "data/documents",
		},
		Rates:      currency.DefaultRates(),
		Membership: fees.MembershipSchedule{},
		Settings:   service.DefaultSettings(),
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if c.Lark.Enabled && c.Lark.AlertChatID == "" {
		return fmt.Errorf("lark.alert_chat_id is required when lark is enabled")
	}
	if c.Documents.OutputDir == "" {
		return fmt.Errorf("documents.output_dir is required")
	}
	return nil
}
