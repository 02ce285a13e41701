package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/garyjia/investment-billing/internal/application/service"
	"github.com/garyjia/investment-billing/internal/domain/currency"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/fees"
	"github.com/garyjia/investment-billing/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Logger         LoggerConfig         `mapstructure:"logger"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	Billing        BillingConfig        `mapstructure:"billing"`
	Notifier       NotifierConfig       `mapstructure:"notifier"`
	Lark           LarkConfig           `mapstructure:"lark"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	ManagementFees ManagementFeesConfig `mapstructure:"management_fees"`
	Documents      DocumentsConfig      `mapstructure:"documents"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// GatewayConfig holds the payments service client and callback settings
type GatewayConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
}

// BillingConfig holds fee schedules, rates and email templates.
// Money values are strings so they never pass through float64.
type BillingConfig struct {
	DefaultUSDRate        string                      `mapstructure:"default_usd_rate"`
	USDRates              map[string]string           `mapstructure:"usd_rates"`
	CommunityFee          string                      `mapstructure:"community_fee"`
	AdvancedInvestmentFee string                      `mapstructure:"advanced_investment_fee"`
	CommunityPreVAT       string                      `mapstructure:"community_pre_vat"`
	VATRate               string                      `mapstructure:"vat_rate"`
	PaymentTermDays       int                         `mapstructure:"payment_term_days"`
	CCEmails              []string                    `mapstructure:"cc_emails"`
	DefaultTemplateID     int64                       `mapstructure:"default_template_id"`
	TemplateIDs           map[string]map[string]int64 `mapstructure:"template_ids"`
}

// NotifierConfig holds transactional email settings
type NotifierConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	APIKey  string        `mapstructure:"api_key"`
	DryRun  bool          `mapstructure:"dry_run"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LarkConfig holds operator alert settings
type LarkConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AppID       string `mapstructure:"app_id"`
	AppSecret   string `mapstructure:"app_secret"`
	AlertChatID string `mapstructure:"alert_chat_id"`
}

// ReconciliationConfig holds the pay-in polling schedule
type ReconciliationConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Schedule  string        `mapstructure:"schedule"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ManagementFeesConfig holds the yearly management fee run
type ManagementFeesConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Publish  bool          `mapstructure:"publish"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DocumentsConfig holds invoice rendering and storage settings
type DocumentsConfig struct {
	TemplatePath string   `mapstructure:"template_path"`
	OutputDir    string   `mapstructure:"output_dir"`
	Prefix       string   `mapstructure:"prefix"`
	IssuerName   string   `mapstructure:"issuer_name"`
	IssuerLines  []string `mapstructure:"issuer_lines"`
}

// Load loads configuration from file and environment variables.
// An empty path reads environment variables and defaults only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/billing.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Gateway defaults
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.webhook_tolerance", 5*time.Minute)

	// Billing defaults
	v.SetDefault("billing.default_usd_rate", currency.DefaultUSDRate.String())
	v.SetDefault("billing.community_fee", "240")
	v.SetDefault("billing.advanced_investment_fee", "500")
	v.SetDefault("billing.community_pre_vat", "200")
	v.SetDefault("billing.vat_rate", "20")
	v.SetDefault("billing.payment_term_days", 30)
	v.SetDefault("billing.default_template_id", service.DefaultTemplateID)

	// Notifier defaults
	v.SetDefault("notifier.timeout", 30*time.Second)

	// Reconciliation defaults
	v.SetDefault("reconciliation.enabled", true)
	v.SetDefault("reconciliation.schedule", "*/15 * * * *")
	v.SetDefault("reconciliation.batch_size", 100)
	v.SetDefault("reconciliation.timeout", 5*time.Minute)

	// Management fee defaults
	v.SetDefault("management_fees.enabled", false)
	v.SetDefault("management_fees.schedule", "0 6 2 1 *")
	v.SetDefault("management_fees.timeout", 30*time.Minute)

	// Documents defaults
	v.SetDefault("documents.output_dir", "data/documents")
	v.SetDefault("documents.prefix", "bills")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("gateway.base_url", "PAYMENTS_BASE_URL")
	_ = v.BindEnv("gateway.api_key", "PAYMENTS_API_KEY")
	_ = v.BindEnv("gateway.webhook_secret", "PAYMENTS_WEBHOOK_SECRET")
	_ = v.BindEnv("notifier.api_key", "SENDINBLUE_API_KEY")
	_ = v.BindEnv("notifier.dry_run", "NOTIFIER_DRY_RUN")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.alert_chat_id", "LARK_ALERT_CHAT_ID")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Validate gateway
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}

	// Validate notifier
	if !c.Notifier.DryRun && c.Notifier.APIKey == "" {
		return fmt.Errorf("notifier.api_key is required unless notifier.dry_run is set")
	}

	// Validate lark
	if c.Lark.Enabled {
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
		}
		if c.Lark.AlertChatID == "" {
			return fmt.Errorf("lark.alert_chat_id is required when lark is enabled")
		}
	}

	// Validate schedules
	if c.Reconciliation.Enabled && c.Reconciliation.Schedule == "" {
		return fmt.Errorf("reconciliation.schedule is required")
	}
	if c.ManagementFees.Enabled && c.ManagementFees.Schedule == "" {
		return fmt.Errorf("management_fees.schedule is required")
	}

	if c.Documents.OutputDir == "" {
		return fmt.Errorf("documents.output_dir is required")
	}

	// Validate billing
	if _, err := c.Billing.Rates(); err != nil {
		return err
	}
	if _, err := c.Billing.Membership(); err != nil {
		return err
	}
	if _, err := c.Billing.Settings(c.Documents.Prefix); err != nil {
		return err
	}

	return nil
}

// Rates builds the EUR/USD rate table
func (b BillingConfig) Rates() (currency.Rates, error) {
	fallback, err := parseAmount("billing.default_usd_rate", b.DefaultUSDRate)
	if err != nil {
		return currency.Rates{}, err
	}

	byYear := make(map[int]decimal.Decimal, len(b.USDRates))
	for key, raw := range b.USDRates {
		year, err := strconv.Atoi(key)
		if err != nil {
			return currency.Rates{}, fmt.Errorf("billing.usd_rates: invalid year %q", key)
		}
		rate, err := parseAmount("billing.usd_rates."+key, raw)
		if err != nil {
			return currency.Rates{}, err
		}
		if !rate.IsPositive() {
			return currency.Rates{}, fmt.Errorf("billing.usd_rates.%s must be positive", key)
		}
		byYear[year] = rate
	}

	if len(byYear) == 0 {
		defaults := currency.DefaultRates()
		for year := 2016; year <= 2023; year++ {
			byYear[year] = defaults.USDRate(year)
		}
	}
	return currency.NewRates(fallback, byYear), nil
}

// Membership builds the yearly membership fee schedule
func (b BillingConfig) Membership() (fees.MembershipSchedule, error) {
	community, err := parseAmount("billing.community_fee", b.CommunityFee)
	if err != nil {
		return fees.MembershipSchedule{}, err
	}
	advanced, err := parseAmount("billing.advanced_investment_fee", b.AdvancedInvestmentFee)
	if err != nil {
		return fees.MembershipSchedule{}, err
	}
	return fees.MembershipSchedule{Community: community, AdvancedInvestment: advanced}, nil
}

// Settings builds the immutable service settings
func (b BillingConfig) Settings(documentPrefix string) (service.Settings, error) {
	settings := service.DefaultSettings()

	if b.DefaultTemplateID > 0 {
		settings.DefaultTemplateID = b.DefaultTemplateID
	}
	if b.PaymentTermDays > 0 {
		settings.PaymentTerm = time.Duration(b.PaymentTermDays) * 24 * time.Hour
	}
	if documentPrefix != "" {
		settings.DocumentDir = documentPrefix
	}

	if b.CommunityPreVAT != "" {
		amount, err := parseAmount("billing.community_pre_vat", b.CommunityPreVAT)
		if err != nil {
			return service.Settings{}, err
		}
		settings.CommunityPreVAT = amount
	}
	if b.VATRate != "" {
		rate, err := parseAmount("billing.vat_rate", b.VATRate)
		if err != nil {
			return service.Settings{}, err
		}
		settings.VATRate = rate
	}

	for _, email := range b.CCEmails {
		if err := utils.ValidateEmail(email); err != nil {
			return service.Settings{}, fmt.Errorf("billing.cc_emails: %w", err)
		}
	}
	settings.CCEmails = append([]string(nil), b.CCEmails...)

	templates := make(map[entity.BillType]map[string]int64, len(b.TemplateIDs))
	for rawType, byLanguage := range b.TemplateIDs {
		billType := entity.BillType(rawType)
		if !billType.IsValid() {
			return service.Settings{}, fmt.Errorf("billing.template_ids: %w: %q", entity.ErrInvalidBillType, rawType)
		}
		ids := make(map[string]int64, len(byLanguage))
		for lang, id := range byLanguage {
			ids[strings.ToUpper(lang)] = id
		}
		templates[billType] = ids
	}
	settings.TemplateIDs = templates

	return settings, nil
}

func parseAmount(key, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: invalid amount %q", key, raw)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative", key)
	}
	return amount, nil
}
