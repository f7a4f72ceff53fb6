package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TemirB/shop/internal/application/accounts"
	"github.com/TemirB/shop/internal/application/catalog"
	"github.com/TemirB/shop/internal/application/orders"
	"github.com/TemirB/shop/internal/cache"
	"github.com/TemirB/shop/internal/config"
	"github.com/TemirB/shop/internal/database"
	"github.com/TemirB/shop/internal/events"
	"github.com/TemirB/shop/internal/export"
	"github.com/TemirB/shop/internal/httpapi"
	"github.com/TemirB/shop/internal/media"
	"github.com/TemirB/shop/internal/observability"
	"github.com/TemirB/shop/internal/pkg/breaker"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("shop stopped with error", zap.Error(err))
	}
	logger.Info("shop stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics := observability.NewInmem(256)

	// Database
	pool, err := database.Connect(ctx, cfg.DSN(), logger, database.TraceLevel(cfg.LogLevel))
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := database.New(pool, cfg.Pg.Schema, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	if cfg.Pg.Migrate {
		if err := database.Migrate(cfg.DSN(), logger); err != nil {
			return err
		}
	}

	// Export cache
	var exportCache export.Cache
	switch cfg.Cache.Backend {
	case "redis":
		client, err := cache.DialRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		exportCache = cache.NewRedis(client, cfg.Cache.Prefix)
	default:
		exportCache = cache.NewMemory(cfg.Cache.Cap, cfg.Cache.TTL)
	}
	logger.Info("export cache ready", zap.String("backend", cfg.Cache.Backend))

	var stager export.Stager = export.BufferStager{}
	if cfg.StagingDir != "" {
		fs, err := export.NewFileStager(cfg.StagingDir)
		if err != nil {
			return err
		}
		stager = fs
	}

	exportSvc := export.NewService(exportCache, repo, stager, cfg.Cache.TTL, logger.Named("export"), metrics)

	// Order events
	var publisher orders.Publisher = events.NewLocal(exportSvc, logger.Named("events"))
	if cfg.Kafka.Enabled() {
		if err := events.EnsureTopic(ctx, cfg.Kafka, logger); err != nil {
			return err
		}

		kp := events.NewKafkaPublisher(events.NewWriter(cfg.Kafka), exportSvc, logger.Named("events"))
		defer kp.Close()
		publisher = kp

		reader := events.NewReader(cfg.Kafka, cfg.Cache.Backend != "redis")
		defer reader.Close()

		handler := events.NewHandler(exportSvc, breaker.New(cfg.Breaker), cfg.Retry, logger.Named("events"), metrics)
		consumer := events.NewConsumer(handler, reader, cfg.Kafka.Workers, logger.Named("consumer"))
		go consumer.Start(ctx)
	}

	// Services
	store, err := media.NewStore(cfg.MediaRoot)
	if err != nil {
		return err
	}
	catalogSvc := catalog.NewService(repo, store, logger.Named("catalog"), metrics)
	ordersSvc := orders.NewService(repo, publisher, logger.Named("orders"), metrics)
	accountsSvc := accounts.NewService(repo, store, bcrypt.DefaultCost, logger.Named("accounts"))

	if cfg.Cache.WarmSize > 0 {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		exportSvc.Warm(warmCtx, cfg.Cache.WarmSize)
		cancel()
	}

	// HTTP
	srv := httpapi.New(catalogSvc, ordersSvc, accountsSvc, exportSvc, logger.Named("http"), metrics)
	return srv.ListenAndServe(ctx, cfg.HTTPAddr, cfg.ShutdownTimeout)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Env == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}
