package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Firdavs28033/tg-monitoring-back/internal/analytics"
	"github.com/Firdavs28033/tg-monitoring-back/internal/api"
	"github.com/Firdavs28033/tg-monitoring-back/internal/config"
	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest"
	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/repository"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
	"github.com/Firdavs28033/tg-monitoring-back/internal/mongo"
	"github.com/Firdavs28033/tg-monitoring-back/internal/notify"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform/gotd"
)

const shutdownTimeout = 10 * time.Second

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	cfg *config.Config

	MongoDB     *mongo.Client
	Store       *repository.MongoStore
	Counter     *analytics.Counter
	Report      *analytics.ReportJob
	Notifier    *notify.Notifier
	API         *api.Server
	Coordinator *ingest.Coordinator
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会清理已初始化的服务并返回错误
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{cfg: cfg}

	mongoClient, err := mongo.NewClient(mongo.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDBName,
		Timeout:  cfg.MongoTimeout,
		AppName:  "tg-monitoring",
	})
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	transactions := cfg.MongoTransactions
	if transactions {
		ok, err := mongoClient.SupportsTransactions(ctx)
		if err != nil {
			logger.L().Warnf("Failed to detect transaction support: %v", err)
		}
		if !ok {
			logger.L().Warn("MongoDB deployment does not support transactions, batches are written without them")
			transactions = false
		}
	}

	app.Store = repository.NewMongoStore(mongoClient.Database(), transactions)
	if err := app.Store.EnsureIndexes(ctx); err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("ensure indexes failed: %w", err)
	}

	app.Counter = analytics.NewCounter()
	app.Report, err = analytics.NewReportJob(app.Counter, cfg.AnalyticsInterval, cfg.AnalyticsTop)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init analytics report failed: %w", err)
	}

	var reporter ingest.Reporter
	if cfg.NotifierEnabled() {
		app.Notifier, err = notify.New(notify.Config{Token: cfg.BotToken, AdminChatID: cfg.AdminChatID})
		if err != nil {
			app.Close(context.Background())
			return nil, fmt.Errorf("init notifier failed: %w", err)
		}
		reporter = app.Notifier
		logger.L().Info("Admin notifications enabled")
	}

	if cfg.HTTPAddr != "" {
		app.API = api.New(api.Config{Addr: cfg.HTTPAddr, StatsTop: cfg.AnalyticsTop}, app.Store, mongoClient, app.Counter)
	}

	dial := gotd.NewDialer(gotd.Config{SessionDir: cfg.SessionDir})
	app.Coordinator = ingest.NewCoordinator(dial, app.Store, ingestConfig(cfg), app.Counter, reporter)
	return app, nil
}

// ingestConfig 采集流程配置
func ingestConfig(cfg *config.Config) ingest.Config {
	batch := ingest.BatcherConfig{
		Size:       cfg.BatchSize,
		Retries:    cfg.FlushRetries,
		RetryDelay: cfg.FlushRetryDelay,
	}
	return ingest.Config{
		Backfill: ingest.BackfillConfig{
			Batch:      batch,
			PageSize:   cfg.HistoryPageSize,
			FullRescan: cfg.BackfillFullRescan,
			MediaDir:   cfg.MediaDir,
		},
		Live: ingest.LiveConfig{
			QueueSize: cfg.LiveQueueSize,
			Batch:     batch,
			MediaDir:  cfg.MediaDir,
		},
		ResolveCooldown: cfg.ResolveCooldown,
		GroupDelay:      cfg.GroupDelay,
		PagesPerSecond:  cfg.HistoryPagesPerSecond,
	}
}

// Run 启动只读 API 和全部账号，阻塞到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	if a.API != nil {
		go func() {
			if err := a.API.Start(); err != nil {
				logger.L().Errorf("HTTP API stopped: %v", err)
			}
		}()
	}

	err := a.Coordinator.Run(ctx, a.cfg.Accounts)
	if errors.Is(err, ingest.ErrNoAccounts) {
		return err
	}
	if err != nil {
		return fmt.Errorf("run coordinator: %w", err)
	}

	if a.Report != nil {
		a.Report.Report()
	}
	return nil
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.API != nil {
		if err := a.API.Shutdown(shutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("shutdown HTTP API failed: %w", err))
		}
	}
	if a.Report != nil {
		if err := a.Report.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop analytics report failed: %w", err))
		}
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close MongoDB failed: %w", err))
		}
	}
	return errors.Join(errs...)
}
