// Package sweeper expires aged points, wallet bonus lots, stale top-up sessions and
// unused redemptions. Every unit it runs is idempotent, so an interrupted sweep is
// finished by the next one.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/utils/semaphore"
)

type PointsExpirer interface {
	ExpireAccount(ctx context.Context, accountID string, now time.Time) (int64, error)
}

type BonusExpirer interface {
	ExpireBonus(ctx context.Context, walletID string, now time.Time) (int64, error)
}

type Sweeper struct {
	store     ledger.Store
	points    PointsExpirer
	bonus     BonusExpirer
	sema        UnitSemaphore
	log         *slog.Logger
	batchSize   int
	workers     int
	maxInFlight int
}

type Option func(*Sweeper)

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxInFlight bounds the store units running at once across all workers.
// Without it the bound equals the worker count.
func WithMaxInFlight(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Sweeper) { s.log = log }
}

func New(store ledger.Store, points PointsExpirer, bonus BonusExpirer, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		points:    points,
		bonus:     bonus,
		log:       slog.Default(),
		batchSize: model.DefaultSweepBatchSize,
		workers:   runtime.NumCPU() * model.DefaultWorkerCountMultiplier,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxInFlight == 0 {
		s.maxInFlight = s.workers
	}
	s.sema = semaphore.New(s.maxInFlight)
	s.log = s.log.With("module", "sweeper")
	return s
}

type Report struct {
	Accounts       int   `json:"accounts"`
	PointsExpired  int64 `json:"points_expired"`
	Wallets        int   `json:"wallets"`
	BonusExpired   int64 `json:"bonus_expired_cents"`
	Sessions       int64 `json:"sessions_expired"`
	Redemptions    int64 `json:"redemptions_expired"`
	FailedAccounts int   `json:"failed_accounts"`
	FailedWallets  int   `json:"failed_wallets"`
}

// SweepOnce runs every expiry pass as of now. A failed account or wallet is logged,
// counted and left for the next run; only listing failures abort the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (Report, error) {
	var r Report
	var err error

	r.Accounts, r.PointsExpired, r.FailedAccounts, err = s.sweep(ctx, now,
		func(ctx context.Context, tx ledger.Tx, limit int) ([]string, error) {
			return tx.Points().AccountsWithOverdueBatches(ctx, now, limit) //nolint: wrapcheck // error from store
		}, s.points.ExpireAccount)
	if err != nil {
		return r, fmt.Errorf("failed to sweep points: %w", err)
	}

	r.Wallets, r.BonusExpired, r.FailedWallets, err = s.sweep(ctx, now,
		func(ctx context.Context, tx ledger.Tx, limit int) ([]string, error) {
			return tx.Wallets().WalletsWithOverdueBonus(ctx, now, limit) //nolint: wrapcheck // error from store
		}, s.bonus.ExpireBonus)
	if err != nil {
		return r, fmt.Errorf("failed to sweep wallet bonus: %w", err)
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		r.Sessions, err = tx.Wallets().ExpireSessions(ctx, now)
		return err //nolint: wrapcheck // error from store
	})
	if err != nil {
		return r, fmt.Errorf("failed to expire top-up sessions: %w", err)
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		r.Redemptions, err = tx.Rewards().ExpireRedemptions(ctx, now)
		return err //nolint: wrapcheck // error from store
	})
	if err != nil {
		return r, fmt.Errorf("failed to expire redemptions: %w", err)
	}

	s.log.LogAttrs(ctx,
		slog.LevelInfo,
		"sweep finished",
		slog.Int("accounts", r.Accounts),
		slog.Int64("points_expired", r.PointsExpired),
		slog.Int("wallets", r.Wallets),
		slog.Int64("bonus_expired_cents", r.BonusExpired),
		slog.Int64("sessions", r.Sessions),
		slog.Int64("redemptions", r.Redemptions),
		slog.Int("failed", r.FailedAccounts+r.FailedWallets),
	)
	return r, nil
}

type listFunc func(ctx context.Context, tx ledger.Tx, limit int) ([]string, error)

// sweep pages through overdue ids until a page brings nothing new. Ids that failed
// stay overdue and are listed again, so the page grows by the failures and
// attempted ids are skipped.
func (s *Sweeper) sweep(ctx context.Context, now time.Time, list listFunc, expire expireFunc,
) (done int, amount int64, failed int, err error) {
	attempted := make(map[string]struct{})
	for {
		if err = ctx.Err(); err != nil {
			return done, amount, failed, err //nolint: wrapcheck // context error
		}

		var ids []string
		err = s.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
			var err error
			ids, err = list(ctx, tx, s.batchSize+failed)
			return err
		})
		if err != nil {
			return done, amount, failed, err
		}

		fresh := ids[:0]
		for _, id := range ids {
			if _, ok := attempted[id]; !ok {
				fresh = append(fresh, id)
				attempted[id] = struct{}{}
			}
		}
		if len(fresh) == 0 {
			return done, amount, failed, nil
		}

		for _, o := range fanOut(ctx, fresh, s.workers, s.sema, s.log, now, expire) {
			if o.err != nil {
				failed++
				continue
			}
			done++
			amount += o.amount
		}
	}
}
