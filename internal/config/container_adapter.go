package config

import (
	"github.com/garyjia/investment-billing/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// Billing values are parsed here; Validate has already rejected bad input.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	rates, err := c.Billing.Rates()
	if err != nil {
		return nil, err
	}
	membership, err := c.Billing.Membership()
	if err != nil {
		return nil, err
	}
	settings, err := c.Billing.Settings(c.Documents.Prefix)
	if err != nil {
		return nil, err
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
			AllowedOrigins:  c.Server.AllowedOrigins,
		},
		Gateway: container.GatewayConfig{
			BaseURL:          c.Gateway.BaseURL,
			APIKey:           c.Gateway.APIKey,
			Timeout:          c.Gateway.Timeout,
			WebhookSecret:    c.Gateway.WebhookSecret,
			WebhookTolerance: c.Gateway.WebhookTolerance,
		},
		Notifier: container.NotifierConfig{
			APIURL:  c.Notifier.APIURL,
			APIKey:  c.Notifier.APIKey,
			DryRun:  c.Notifier.DryRun,
			Timeout: c.Notifier.Timeout,
		},
		Lark: container.LarkConfig{
			Enabled:     c.Lark.Enabled,
			AppID:       c.Lark.AppID,
			AppSecret:   c.Lark.AppSecret,
			AlertChatID: c.Lark.AlertChatID,
		},
		Reconciliation: container.ScheduleConfig{
			Enabled:   c.Reconciliation.Enabled,
			Schedule:  c.Reconciliation.Schedule,
			BatchSize: c.Reconciliation.BatchSize,
			Timeout:   c.Reconciliation.Timeout,
		},
		ManagementFees: container.ManagementFeesConfig{
			ScheduleConfig: container.ScheduleConfig{
				Enabled:  c.ManagementFees.Enabled,
				Schedule: c.ManagementFees.Schedule,
				Timeout:  c.ManagementFees.Timeout,
			},
			Publish: c.ManagementFees.Publish,
		},
		Documents: container.DocumentsConfig{
			TemplatePath: c.Documents.TemplatePath,
			OutputDir:    c.Documents.OutputDir,
			IssuerName:   c.Documents.IssuerName,
			IssuerLines:  c.Documents.IssuerLines,
		},
		Rates:      rates,
		Membership: membership,
		Settings:   settings,
	}, nil
}
