package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/dispatcher"
	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/application/service"
	"github.com/garyjia/investment-billing/internal/domain/fees"
	"github.com/garyjia/investment-billing/internal/email"
	"github.com/garyjia/investment-billing/internal/infrastructure/document"
	infraLark "github.com/garyjia/investment-billing/internal/infrastructure/external/lark"
	"github.com/garyjia/investment-billing/internal/infrastructure/external/payments"
	"github.com/garyjia/investment-billing/internal/infrastructure/persistence/repository"
	"github.com/garyjia/investment-billing/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/investment-billing/internal/infrastructure/storage"
	"github.com/garyjia/investment-billing/internal/infrastructure/worker"
	"github.com/garyjia/investment-billing/migrations"
	"github.com/garyjia/investment-billing/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ExternalBundle holds the clients of external services.
type ExternalBundle struct {
	Gateway  port.PaymentGateway
	Notifier port.Notifier
	// Alerter is nil when operator alerts are disabled
	Alerter port.OperatorAlerter
}

// StorageBundle holds document storage and rendering.
type StorageBundle struct {
	FileStorage port.FileStorage
	Renderer    port.DocumentRenderer
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      service.Repositories
	TxManager  port.TransactionManager
	External   *ExternalBundle
	Storage    *StorageBundle
	Dispatcher dispatcher.Dispatcher
	Config     *Config
	Logger     *zap.Logger
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Services *ServiceBundle
	Config   *Config
	Now      func() time.Time
	Logger   *zap.Logger
}

// ProvideDatabase opens the database, applies pending migrations and wraps it
// in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.Open(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, migrations.FS, logger)
	if err != nil {
		return nil, err
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (service.Repositories, error) {
	if db == nil {
		return service.Repositories{}, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return service.Repositories{}, fmt.Errorf("logger is required")
	}

	return service.Repositories{
		Bills:       repository.NewBillRepository(db.DB, logger),
		CashCalls:   repository.NewCashCallRepository(db.DB, logger),
		Investments: repository.NewInvestmentRepository(db.DB, logger),
		Investors:   repository.NewInvestorRepository(db.DB, logger),
	}, nil
}

// ProvideExternalClients creates the payments client, the email sender and,
// when enabled, the Lark alerter.
func ProvideExternalClients(cfg *Config, logger *zap.Logger) (*ExternalBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	gateway, err := payments.NewClient(payments.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create payments client: %w", err)
	}

	bundle := &ExternalBundle{
		Gateway: gateway,
		Notifier: email.NewSender(email.Config{
			APIURL:  cfg.Notifier.APIURL,
			APIKey:  cfg.Notifier.APIKey,
			DryRun:  cfg.Notifier.DryRun,
			Timeout: cfg.Notifier.Timeout,
		}, logger),
	}

	if cfg.Lark.Enabled {
		sdkClient := infraLark.NewSDKClient(infraLark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
		}, logger)
		bundle.Alerter = infraLark.NewAlerter(sdkClient, cfg.Lark.AlertChatID, logger)
	}

	return bundle, nil
}

// ProvideStorage creates the document store and the invoice renderer.
func ProvideStorage(cfg *DocumentsConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("documents config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &StorageBundle{
		FileStorage: storage.NewLocalFileStorage(cfg.OutputDir, logger),
		Renderer: document.NewExcelRenderer(document.Config{
			TemplatePath: cfg.TemplatePath,
			IssuerName:   cfg.IssuerName,
			IssuerLines:  cfg.IssuerLines,
		}, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(logger), nil
}

// ProvideServices creates all application services and subscribes operator alerts.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.TxManager == nil || deps.External == nil || deps.Storage == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("transaction manager, external clients, storage and dispatcher are required")
	}
	if deps.Config == nil || deps.Logger == nil {
		return nil, fmt.Errorf("config and logger are required")
	}

	cfg := deps.Config
	calculator := fees.NewCalculator(cfg.Rates, cfg.Membership)

	bills := service.NewBillService(
		deps.Repos,
		deps.TxManager,
		calculator,
		deps.Storage.Renderer,
		deps.Storage.FileStorage,
		cfg.Settings,
		deps.Logger.Named("bills"),
	)
	cashCalls := service.NewCashCallService(
		deps.Repos,
		deps.TxManager,
		bills,
		deps.External.Gateway,
		deps.External.Notifier,
		deps.Storage.FileStorage,
		deps.Dispatcher,
		cfg.Settings,
		deps.Logger.Named("cashcalls"),
	)
	reconciliation := service.NewReconciliationService(
		deps.Repos,
		cashCalls,
		deps.External.Gateway,
		deps.Logger.Named("reconciliation"),
	)
	management := service.NewManagementFeeService(
		deps.Repos,
		deps.TxManager,
		calculator,
		bills,
		cashCalls,
		deps.External.Alerter,
		deps.Logger.Named("management"),
	)

	if deps.External.Alerter != nil {
		service.RegisterAlerts(deps.Dispatcher, deps.External.Alerter, deps.Logger.Named("alerts"))
	}

	return &ServiceBundle{
		Bills:          bills,
		CashCalls:      cashCalls,
		Reconciliation: reconciliation,
		Management:     management,
	}, nil
}

// ProvideWorkers creates the scheduled workers enabled in configuration.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Services == nil || deps.Config == nil || deps.Logger == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	manager := worker.NewWorkerManager(deps.Logger)
	cfg := deps.Config

	if cfg.Reconciliation.Enabled {
		reconciliation := deps.Services.Reconciliation
		batch := cfg.Reconciliation.BatchSize
		logger := deps.Logger

		w, err := worker.NewScheduledWorker("payin-reconciliation", worker.ScheduleConfig{
			Schedule: cfg.Reconciliation.Schedule,
			Timeout:  cfg.Reconciliation.Timeout,
		}, func(ctx context.Context) error {
			report, err := reconciliation.Poll(ctx, batch)
			if err != nil {
				return err
			}
			logger.Info("Reconciliation sweep finished",
				zap.Int("checked", report.Checked),
				zap.Int("changed", report.Changed),
				zap.Int("errors", report.Errors))
			return nil
		}, deps.Logger)
		if err != nil {
			return nil, err
		}
		manager.Register(w)
	}

	if cfg.ManagementFees.Enabled {
		management := deps.Services.Management
		publish := cfg.ManagementFees.Publish
		logger := deps.Logger

		w, err := worker.NewScheduledWorker("management-fees", worker.ScheduleConfig{
			Schedule: cfg.ManagementFees.Schedule,
			Timeout:  cfg.ManagementFees.Timeout,
		}, func(ctx context.Context) error {
			year := now().Year()
			report, err := management.Generate(ctx, year, publish)
			if err != nil {
				return err
			}
			logger.Info("Management fee run finished",
				zap.Int("year", year),
				zap.Int("created", report.Count(service.OutcomeCreated)),
				zap.Int("published", report.Count(service.OutcomePublished)),
				zap.Int("errors", report.Count(service.OutcomeError)))
			return nil
		}, deps.Logger)
		if err != nil {
			return nil, err
		}
		manager.Register(w)
	}

	return manager, nil
}
