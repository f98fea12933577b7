package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/folio/internal/clients/broker"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/services/account"
	"github.com/bobmcallan/folio/internal/services/refresh"
	"github.com/bobmcallan/folio/internal/services/timeseries"
	"github.com/bobmcallan/folio/internal/services/trade"
	"github.com/bobmcallan/folio/internal/storage"
)

// App holds all initialized services and clients.
// It is the shared core behind every cmd/folio command.
type App struct {
	Config            *common.Config
	Logger            *common.Logger
	Storage           interfaces.StorageManager
	Broker            interfaces.BrokerClient
	AccountService    interfaces.AccountService
	Coordinator       *refresh.Coordinator
	TradeService      interfaces.TradeService
	TimeSeriesService interfaces.TimeSeriesService
	StartupTime       time.Time

	schedulerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPath checks the provided path, FOLIO_CONFIG, the binary
// directory and finally config/folio.toml.
func resolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("FOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "folio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/folio.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and initializes all services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	config, err := common.LoadConfig(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewAppWithConfig(config, common.NewLoggerFromConfig(config.Logging))
}

// NewAppWithConfig initializes all services from an already loaded config.
func NewAppWithConfig(config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if config.API.Token == "" {
		logger.Warn().Msg("API token not configured - remote calls will be rejected")
	}

	client := broker.NewClient(broker.StaticToken(config.API.Token),
		broker.WithBaseURL(config.API.BaseURL),
		broker.WithLogger(logger),
		broker.WithRateLimit(config.API.RateLimit),
		broker.WithTimeout(config.API.GetTimeout()),
	)
	brokerClient := broker.WithRetry(client, config.API.RetryMax, config.API.GetRetryInitial(), logger)

	accountOpts := []account.Option{account.WithSnapshotStore(storageManager.SnapshotStore())}
	if config.Refresh.MarkFromHistory {
		accountOpts = append(accountOpts, account.WithQuoteSource(broker.NewHistoryQuotes(brokerClient, logger)))
	}
	accountService := account.NewService(brokerClient, config, logger, accountOpts...)

	coordinator := refresh.NewCoordinator(accountService, brokerClient, config, logger)
	tradeService := trade.NewService(brokerClient, accountService, coordinator.Snapshot, storageManager.PendingStore(), config, logger)
	timeSeriesService := timeseries.NewService(brokerClient, config.TimeSeries, logger)

	a := &App{
		Config:            config,
		Logger:            logger,
		Storage:           storageManager,
		Broker:            brokerClient,
		AccountService:    accountService,
		Coordinator:       coordinator,
		TradeService:      tradeService,
		TimeSeriesService: timeSeriesService,
		StartupTime:       startupStart,
	}

	logger.Debug().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Restore publishes the last stored snapshot so reads have something to
// show before the first refresh completes.
func (a *App) Restore(ctx context.Context) {
	if err := a.AccountService.Restore(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Snapshot restore failed")
	}
}

// StartBackground launches the refresh pollers and the pending-submission
// reconciler. They run until Close.
func (a *App) StartBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	a.Coordinator.Start(ctx)
	go startReconcileScheduler(ctx, a.TradeService, a.Logger, a.Config.Trading.GetReconcileInterval())
}

// Close releases all resources held by the App.
// Shutdown order: stop pollers, cancel scheduler, close storage.
func (a *App) Close() {
	if a.Coordinator != nil {
		a.Coordinator.Stop()
	}
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
		a.Storage = nil
	}
}
