// Package memstore is an in-process ledger.Store. Units run one at a time and
// a failed unit restores the state it started from.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
)

type state struct {
	accounts     map[string]points.Account
	batches      map[string]points.ExpiryBatch
	pointsTxns   []points.Transaction
	rewards      map[string]reward.Reward
	redemptions  map[string]reward.Redemption
	wallets      map[string]wallet.Wallet
	walletTxns   []wallet.Transaction
	bonusLots    map[string]wallet.BonusLot
	sessions     map[string]wallet.TopUpSession
	sessionOrder []string
}

func newState() *state {
	return &state{
		accounts:    make(map[string]points.Account),
		batches:     make(map[string]points.ExpiryBatch),
		rewards:     make(map[string]reward.Reward),
		redemptions: make(map[string]reward.Redemption),
		wallets:     make(map[string]wallet.Wallet),
		bonusLots:   make(map[string]wallet.BonusLot),
		sessions:    make(map[string]wallet.TopUpSession),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:     make(map[string]points.Account, len(s.accounts)),
		batches:      maps.Clone(s.batches),
		pointsTxns:   slices.Clone(s.pointsTxns),
		rewards:      maps.Clone(s.rewards),
		redemptions:  maps.Clone(s.redemptions),
		wallets:      maps.Clone(s.wallets),
		walletTxns:   slices.Clone(s.walletTxns),
		bonusLots:    maps.Clone(s.bonusLots),
		sessions:     maps.Clone(s.sessions),
		sessionOrder: slices.Clone(s.sessionOrder),
	}
	for id, a := range s.accounts {
		a.Badges = slices.Clone(a.Badges)
		c.accounts[id] = a
	}
	return c
}

type Store struct {
	data *state
	mu   sync.Mutex
}

func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err //nolint: wrapcheck // context error
	}

	snapshot := s.data.clone()
	if err := fn(ctx, &memTx{data: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return s.InTx(ctx, fn)
}

type memTx struct {
	data *state
}

func (t *memTx) Points() ledger.PointsLedger {
	return &pointsLedger{data: t.data}
}

func (t *memTx) Rewards() ledger.RewardLedger {
	return &rewardLedger{data: t.data}
}

func (t *memTx) Wallets() ledger.WalletLedger {
	return &walletLedger{data: t.data}
}

func newestFirst[T any](rows []T, match func(T) bool, limit int) []T {
	out := make([]T, 0)
	for i := len(rows) - 1; i >= 0; i-- {
		if !match(rows[i]) {
			continue
		}
		out = append(out, rows[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
