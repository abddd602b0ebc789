package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/lobsim/internal/backtest"
	s3blob "github.com/alanyoungcy/lobsim/internal/blob/s3"
	"github.com/alanyoungcy/lobsim/internal/cache/memory"
	"github.com/alanyoungcy/lobsim/internal/cache/redis"
	"github.com/alanyoungcy/lobsim/internal/config"
	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/marketdata"
	"github.com/alanyoungcy/lobsim/internal/notify"
	"github.com/alanyoungcy/lobsim/internal/service"
	"github.com/alanyoungcy/lobsim/internal/store/postgres"
	"github.com/alanyoungcy/lobsim/internal/store/sqlite"
	"github.com/alanyoungcy/lobsim/internal/strategy"
)

// Dependencies bundles everything the modes need. Optional members are nil
// when their backend is disabled.
type Dependencies struct {
	// Stores
	RunStore   domain.RunStore
	AuditStore domain.AuditStore

	// Caches
	ResultCache domain.ResultCache
	BookCache   domain.OrderbookCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Notifier *notify.Notifier

	// Health checks keyed by backend name.
	Pingers map[string]func(context.Context) error

	Series    *marketdata.Series
	Registry  *strategy.Registry
	Backtests *service.BacktestService
}

// Wire constructs every enabled backend from cfg, loads the bar series and
// builds the backtest service. The returned cleanup releases resources in
// reverse order of creation.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Pingers: map[string]func(context.Context) error{}}

	// --- Run store ---
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.RunStore = postgres.NewRunStore(pg.Pool())
		deps.AuditStore = postgres.NewAuditStore(pg.Pool())
		deps.Pingers["postgres"] = pg.Pool().Ping

	case config.StoreSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.RunStore = db
		deps.AuditStore = db.AuditLog()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.ResultCache = redis.NewResultCache(rc)
		deps.BookCache = redis.NewOrderbookCache(rc, cfg.Redis.BookTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBusWithMaxLen(rc, cfg.Redis.StreamMaxLen)
		deps.Pingers["redis"] = rc.Ping
	} else if cfg.Mode == config.ModeServer {
		// Websocket clients still get live snapshots from a single process.
		deps.SignalBus = memory.NewSignalBus(int(cfg.Redis.StreamMaxLen))
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = sc.Close() })

		writer := s3blob.NewWriter(sc)
		deps.BlobWriter = writer
		deps.BlobReader = s3blob.NewReader(sc)
		if cfg.Archive.Enabled {
			deps.Archiver = s3blob.NewArchiver(writer, deps.AuditStore, cfg.Archive.Prefix)
		}
		deps.Pingers["s3"] = sc.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Market data ---
	series, err := marketdata.NewLoader(deps.BlobReader, cfg.S3.Bucket).Load(ctx, cfg.Data.Source)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Series = series.WithSMA(cfg.Data.SMAWindows...)
	logger.InfoContext(ctx, "wire: market data loaded",
		slog.String("source", series.Source()),
		slog.Int("bars", series.Len()),
	)

	// --- Backtesting ---
	deps.Registry = strategy.DefaultRegistry()
	runner := backtest.NewRunner(
		deps.Registry,
		service.NewRiskService(service.RiskConfig{
			MaxPosition:    cfg.Risk.MaxPosition,
			MaxSingleTrade: cfg.Risk.MaxSingleTrade,
		}, logger),
		service.NewExecutionService(),
		logger,
	)

	btDeps := service.BacktestDeps{
		Runs:     deps.RunStore,
		Audit:    deps.AuditStore,
		Results:  deps.ResultCache,
		Books:    deps.BookCache,
		Bus:      deps.SignalBus,
		Locks:    deps.LockManager,
		Archiver: deps.Archiver,
	}
	if deps.Notifier != nil {
		btDeps.Notifier = deps.Notifier
	}
	deps.Backtests = service.NewBacktestService(deps.Series, runner, deps.Registry, service.BacktestConfig{
		StartIndex:     cfg.Backtest.StartIndex,
		EndIndex:       cfg.Backtest.EndIndex,
		StartingCash:   cfg.Backtest.StartingCash,
		Strategy:       cfg.Backtest.Strategy,
		StrategyParams: cfg.Backtest.Params,
		FillMode:       domain.FillMode(cfg.Backtest.FillMode),
		AtomicSteps:    cfg.Backtest.AtomicSteps,
		CacheTTL:       cfg.Backtest.CacheTTL.Duration,
		LockTTL:        cfg.Backtest.LockTTL.Duration,
	}, btDeps, logger)

	return deps, cleanup, nil
}
