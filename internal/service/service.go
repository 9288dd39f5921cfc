// Package service assembles the loyalty engine, its HTTP surface and the sweep
// scheduler from a Config.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/talx-hub/gopher-loyalty/internal/api/handlers"
	"github.com/talx-hub/gopher-loyalty/internal/dbmanager"
	"github.com/talx-hub/gopher-loyalty/internal/events"
	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/repo"
	"github.com/talx-hub/gopher-loyalty/internal/router"
	"github.com/talx-hub/gopher-loyalty/internal/service/config"
	"github.com/talx-hub/gopher-loyalty/internal/service/engine"
	"github.com/talx-hub/gopher-loyalty/internal/service/sweeper"
	"github.com/talx-hub/gopher-loyalty/internal/utils/caching"
	"github.com/talx-hub/gopher-loyalty/internal/utils/clock"
)

const (
	connectTO  = 10 * time.Second
	shutdownTO = 15 * time.Second
)

type App struct {
	cfg       *config.Config
	log       *slog.Logger
	db        *dbmanager.DBManager
	redis     redis.UniversalClient
	publisher events.Publisher
	engine    *engine.Engine
	clock     clock.Clock
}

// Init connects every backing service named in cfg. Redis and the broker are
// optional; without them summaries are not cached and events are dropped.
func Init(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{cfg: cfg, log: log, clock: clock.System{}}

	connectCtx, cancel := context.WithTimeout(ctx, connectTO)
	defer cancel()
	app.db = dbmanager.New(cfg.DatabaseURI, log).
		Connect(connectCtx).
		ApplyMigrations(connectCtx).
		Ping(connectCtx)
	if err := app.db.Error(); err != nil {
		app.db.Close()
		return nil, fmt.Errorf("failed to start service: db connection error: %w", err)
	}
	pool, err := app.db.GetPool(connectCtx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to start service: failed to get DB pool: %w", err)
	}

	catalog := config.DefaultCatalog()
	if cfg.ProgramConfig != "" {
		if catalog, err = config.LoadCatalog(cfg.ProgramConfig); err != nil {
			app.Close()
			return nil, err //nolint: wrapcheck // already descriptive
		}
	}

	var cache caching.Cache = caching.Noop{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		app.redis = redis.NewClient(opts)
		if err = app.redis.Ping(connectCtx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		cache = caching.NewRedisCache(app.redis, false)
	}

	app.publisher = &events.NoopPublisher{Log: log}
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, events.DefaultExchange, log)
		if err != nil {
			app.Close()
			return nil, err //nolint: wrapcheck // already descriptive
		}
		app.publisher = pub
	}

	app.engine = engine.New(repo.NewStore(pool, log), catalog,
		engine.WithClock(app.clock),
		engine.WithPublisher(app.publisher),
		engine.WithCache(cache, cfg.SummaryCacheTTL),
		engine.WithLogger(log),
		engine.WithRecentLimit(cfg.RecentTransactions),
		engine.WithSweepOptions(
			sweeper.WithBatchSize(cfg.SweepBatchSize),
			sweeper.WithWorkers(cfg.SweepWorkers),
			sweeper.WithMaxInFlight(cfg.SweepMaxInFlight),
		),
	)
	return app, nil
}

func (a *App) Handler() http.Handler {
	rr := router.New(a.cfg, a.log)
	if a.redis != nil {
		rr.WithLimiter(redis_rate.NewLimiter(a.redis))
	}
	rr.SetRouter(&handlers.API{
		PointsHandler:   handlers.NewPointsHandler(a.engine.Points, a.engine, a.log),
		RewardHandler:   handlers.NewRewardHandler(a.engine.Rewards, a.log),
		WalletHandler:   handlers.NewWalletHandler(a.engine.Wallets, a.log),
		MerchantHandler: handlers.NewMerchantHandler(a.engine.Points, a.log),
		HealthHandler:   handlers.NewHealthHandler(a.db, a.log),
		SweepHandler:    handlers.NewSweepHandler(a.engine.Sweeper, a.clock, a.log),
	})
	return rr.GetRouter()
}

// Sweep runs a single expiry pass.
func (a *App) Sweep(ctx context.Context) (sweeper.Report, error) {
	return a.engine.Sweeper.SweepOnce(ctx, a.clock.Now()) //nolint: wrapcheck // already descriptive
}

// RunServer serves HTTP and runs the sweep schedule until ctx is cancelled,
// then drains both.
func (a *App) RunServer(ctx context.Context) error {
	scheduler, err := sweeper.NewScheduler(a.engine.Sweeper, a.cfg.SweepSchedule, a.clock, a.log)
	if err != nil {
		return err //nolint: wrapcheck // already descriptive
	}

	srv := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: model.DefaultTimeout * 10,
	}

	errWg, errCtx := errgroup.WithContext(ctx)
	errWg.Go(func() error {
		a.log.LogAttrs(errCtx,
			slog.LevelInfo,
			"listen and serve",
			slog.String("address", a.cfg.RunAddr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve error: %w", err)
		}
		return nil
	})
	errWg.Go(func() error {
		scheduler.Start()
		<-errCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTO)
		defer cancel()
		return errors.Join(
			srv.Shutdown(shutdownCtx),
			scheduler.Stop(shutdownCtx),
		)
	})

	return errWg.Wait() //nolint: wrapcheck // errors wrapped above
}

func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.LogAttrs(context.Background(),
				slog.LevelWarn,
				"failed to close redis client",
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Migrate applies the embedded schema migrations and exits.
func Migrate(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, connectTO)
	defer cancel()
	db := dbmanager.New(cfg.DatabaseURI, log).
		Connect(ctx).
		ApplyMigrations(ctx)
	defer db.Close()
	return db.Error() //nolint: wrapcheck // already descriptive
}
