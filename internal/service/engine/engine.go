// Package engine wires the points, redemption, wallet and sweep engines over one
// ledger store with a shared clock, publisher and logger.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/events"
	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model/program"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	pointsengine "github.com/talx-hub/gopher-loyalty/internal/service/points"
	"github.com/talx-hub/gopher-loyalty/internal/service/redemption"
	"github.com/talx-hub/gopher-loyalty/internal/service/sweeper"
	walletengine "github.com/talx-hub/gopher-loyalty/internal/service/wallet"
	"github.com/talx-hub/gopher-loyalty/internal/utils/caching"
	"github.com/talx-hub/gopher-loyalty/internal/utils/clock"
)

type Catalog interface {
	Loyalty(merchantID string) (program.Loyalty, error)
	Wallet(merchantID string) (program.WalletSettings, error)
}

type Engine struct {
	Points  *pointsengine.Engine
	Rewards *redemption.Engine
	Wallets *walletengine.Engine
	Sweeper *sweeper.Sweeper

	store ledger.Store
}

type settings struct {
	clock       clock.Clock
	publisher   events.Publisher
	cache       caching.Cache
	log         *slog.Logger
	sweep       []sweeper.Option
	cacheTTL    time.Duration
	recentLimit int
}

type Option func(*settings)

func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *settings) { s.publisher = p }
}

func WithCache(c caching.Cache, ttl time.Duration) Option {
	return func(s *settings) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *settings) { s.log = log }
}

func WithRecentLimit(n int) Option {
	return func(s *settings) { s.recentLimit = n }
}

func WithSweepOptions(opts ...sweeper.Option) Option {
	return func(s *settings) { s.sweep = append(s.sweep, opts...) }
}

func New(store ledger.Store, catalog Catalog, opts ...Option) *Engine {
	s := settings{
		clock:     clock.System{},
		publisher: &events.NoopPublisher{},
		cache:     caching.Noop{},
		log:       slog.Default(),
		cacheTTL:  time.Minute,
	}
	for _, opt := range opts {
		opt(&s)
	}

	pts := pointsengine.New(store, catalog,
		pointsengine.WithClock(s.clock),
		pointsengine.WithPublisher(s.publisher),
		pointsengine.WithCache(s.cache, s.cacheTTL),
		pointsengine.WithLogger(s.log),
		pointsengine.WithRecentLimit(s.recentLimit),
	)
	wallets := walletengine.New(store, catalog,
		walletengine.WithClock(s.clock),
		walletengine.WithPublisher(s.publisher),
		walletengine.WithLogger(s.log),
	)
	return &Engine{
		Points: pts,
		Rewards: redemption.New(store, pts,
			redemption.WithClock(s.clock),
			redemption.WithPublisher(s.publisher),
			redemption.WithLogger(s.log),
		),
		Wallets: wallets,
		Sweeper: sweeper.New(store, pts, wallets,
			append([]sweeper.Option{sweeper.WithLogger(s.log)}, s.sweep...)...),
		store: store,
	}
}

// Overview is what a customer sees on one screen: points and, when the
// customer holds one with the merchant, the wallet.
type Overview struct {
	Wallet *walletengine.Balance `json:"wallet,omitempty"`
	Points pointsengine.Summary  `json:"points"`
}

func (e *Engine) Overview(ctx context.Context, accountID string) (Overview, error) {
	summary, err := e.Points.GetSummary(ctx, accountID)
	if err != nil {
		return Overview{}, err //nolint: wrapcheck // domain error
	}
	out := Overview{Points: summary}

	var walletID string
	err = e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := tx.Wallets().FindWallet(ctx, accountID, summary.Account.MerchantID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		walletID = w.ID
		return nil
	})
	switch {
	case errors.Is(err, serviceerrs.ErrWalletNotFound):
		return out, nil
	case err != nil:
		return Overview{}, err //nolint: wrapcheck // error from store unit
	}

	b, err := e.Wallets.GetBalance(ctx, walletID)
	if err != nil {
		return Overview{}, err //nolint: wrapcheck // domain error
	}
	out.Wallet = &b
	return out, nil
}
