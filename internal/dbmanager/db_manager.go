package dbmanager

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/talx-hub/gopher-loyalty/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultMinConns = 1
	defaultMaxConns = 10
)

// DBManager prepares the pool step by step. The first failing step is kept in
// Error and turns every later step into a no-op.
type DBManager struct {
	log      *slog.Logger
	pool     *pgxpool.Pool
	err      error
	dsn      string
	maxConns int32
}

func New(dsn string, log *slog.Logger) *DBManager {
	return &DBManager{
		log:      log,
		dsn:      dsn,
		maxConns: defaultMaxConns,
	}
}

func (m *DBManager) WithMaxConns(n int32) *DBManager {
	if n > 0 {
		m.maxConns = n
	}
	return m
}

func (m *DBManager) Connect(ctx context.Context) *DBManager {
	if m.err != nil {
		return m
	}

	cfg, err := pgxpool.ParseConfig(m.dsn)
	if err != nil {
		return m.fail(ctx, "failed to parse DSN", err)
	}
	cfg.MinConns = defaultMinConns
	cfg.MaxConns = m.maxConns
	cfg.ConnConfig.Tracer = newQueryTracer(m.log)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return m.fail(ctx, "failed to init pgxpool", err)
	}
	m.pool = pool
	return m
}

func (m *DBManager) Ping(ctx context.Context) *DBManager {
	if m.err != nil {
		return m
	}
	if m.pool == nil {
		return m.fail(ctx, "failed to ping the DB", errors.New("not connected"))
	}
	if err := m.pool.Ping(ctx); err != nil {
		return m.fail(ctx, "failed to ping the DB", err)
	}
	return m
}

// ApplyMigrations brings the schema to the latest embedded version.
// Applying an up-to-date schema is a no-op.
func (m *DBManager) ApplyMigrations(ctx context.Context) *DBManager {
	if m.err != nil {
		return m
	}

	cfg, err := pgxpool.ParseConfig(m.dsn)
	if err != nil {
		return m.fail(ctx, "failed to parse DSN", err)
	}
	db := stdlib.OpenDB(*cfg.ConnConfig)
	defer func() {
		if err := db.Close(); err != nil {
			m.log.LogAttrs(ctx,
				slog.LevelWarn,
				"failed to close migration connection",
				slog.Any(model.KeyLoggerError, err),
			)
		}
	}()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return m.fail(ctx, "failed to create migration driver", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return m.fail(ctx, "failed to open embedded migrations", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return m.fail(ctx, "failed to create migrator", err)
	}

	if err = migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return m.fail(ctx, "failed to apply migrations", err)
	}
	version, dirty, err := migrator.Version()
	if err != nil {
		return m.fail(ctx, "failed to read schema version", err)
	}
	m.log.LogAttrs(ctx,
		slog.LevelInfo,
		"schema is up to date",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return m
}

func (m *DBManager) fail(ctx context.Context, msg string, err error) *DBManager {
	m.log.LogAttrs(ctx,
		slog.LevelError,
		msg,
		slog.Any(model.KeyLoggerError, err),
	)
	m.err = fmt.Errorf("%s: %w", msg, err)
	return m
}

func (m *DBManager) Error() error {
	return m.err
}

func (m *DBManager) GetPool(_ context.Context) (*pgxpool.Pool, error) {
	if m.pool == nil {
		return nil, errors.New("DB pool is not initialized")
	}
	return m.pool, nil
}

// Healthy reports whether the DB answers a ping. Used by the health endpoint.
func (m *DBManager) Healthy(ctx context.Context) error {
	if m.pool == nil {
		return errors.New("DB pool is not initialized")
	}
	return m.pool.Ping(ctx) //nolint: wrapcheck // error from pool
}

func (m *DBManager) Close() {
	if m.pool == nil {
		return
	}

	m.pool.Close()
	m.log.LogAttrs(context.TODO(),
		slog.LevelInfo,
		"connection to DB closed",
	)
}
