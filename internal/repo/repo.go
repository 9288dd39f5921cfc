// Package repo is the PostgreSQL implementation of ledger.Store.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

const maxAttemptCount = 3

type connectionPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type dbLogic[T any] func(ctx context.Context, tx connectionPool) (T, error)

func WithTX[T any](ctx context.Context,
	pool connectionPool, log *slog.Logger, f dbLogic[T],
) (T, error) {
	var zero T

	tx, err := pool.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to begin TX: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.LogAttrs(ctx,
				slog.LevelError,
				"failed to rollback TX",
				slog.Any(model.KeyLoggerError, rbErr),
			)
		}
	}()

	res, err := f(ctx, tx)
	if err != nil {
		return zero, err
	}

	if err = tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit TX: %w", err)
	}
	return res, nil
}

// WithRetry reruns dbQuery while it fails with a retryable error, sleeping
// 1, 3 and 5 units between attempts. Non-retryable errors are returned as is.
func WithRetry[T any](ctx context.Context,
	unit time.Duration, dbQuery func() (T, error), counter int,
) (T, error) {
	res, err := dbQuery()
	if err == nil {
		return res, nil
	}

	var zero T
	if !isRetryableError(err) {
		return zero, err
	}
	if counter >= maxAttemptCount {
		return zero, &serviceerrs.TransientError{Err: err, Attempts: counter + 1}
	}

	timer := time.NewTimer(time.Duration(counter*2+1) * unit) // count: 0 1 2 -> units: 1 3 5
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return zero, &serviceerrs.TransientError{Err: err, Attempts: counter + 1}
	case <-timer.C:
	}
	return WithRetry(ctx, unit, dbQuery, counter+1)
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ConnectionException,
			pgerrcode.ConnectionDoesNotExist,
			pgerrcode.ConnectionFailure,
			pgerrcode.CannotConnectNow,
			pgerrcode.SQLClientUnableToEstablishSQLConnection,
			pgerrcode.SQLServerRejectedEstablishmentOfSQLConnection,
			pgerrcode.TransactionResolutionUnknown,
			pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected:
			return true
		}
		return false
	}

	return pgconn.SafeToRetry(err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// notFound maps an empty result to the domain error and wraps everything else.
func notFound(err error, domainErr error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domainErr
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}

type Store struct {
	pool      connectionPool
	log       *slog.Logger
	retryUnit time.Duration
}

type StoreOption func(*Store)

// WithRetryUnit sets the base delay between retries of a failed unit.
func WithRetryUnit(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.retryUnit = d
		}
	}
}

func NewStore(pool connectionPool, log *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		pool:      pool,
		log:       log.With("module", "ledger_store"),
		retryUnit: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTx runs fn in a database transaction. A unit failing on a dropped connection,
// a serialization conflict or a deadlock is rerun from scratch; when retries are
// exhausted the error is a *serviceerrs.TransientError.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	unit := func() (struct{}, error) {
		return WithTX(ctx, s.pool, s.log, func(ctx context.Context, tx connectionPool) (struct{}, error) {
			return struct{}{}, fn(ctx, &pgTx{q: tx})
		})
	}

	_, err := WithRetry(ctx, s.retryUnit, unit, 0)
	return err
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	query := func() (struct{}, error) {
		return struct{}{}, fn(ctx, &pgTx{q: s.pool})
	}

	_, err := WithRetry(ctx, s.retryUnit, query, 0)
	return err
}

type pgTx struct {
	q connectionPool
}

func (t *pgTx) Points() ledger.PointsLedger {
	return &PointsRepository{q: t.q}
}

func (t *pgTx) Rewards() ledger.RewardLedger {
	return &RewardRepository{q: t.q}
}

func (t *pgTx) Wallets() ledger.WalletLedger {
	return &WalletRepository{q: t.q}
}

func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
