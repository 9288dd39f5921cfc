// Package ledger declares the transactional store every balance mutation runs through.
//
// A mutation opens one unit with Store.InTx; inside it, Lock* calls take a row lock
// that is held until the unit commits or rolls back. Two units touching the same
// account or wallet therefore run one after the other, while units on different
// accounts proceed in parallel.
package ledger

import (
	"context"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
)

type Store interface {
	// InTx runs fn atomically. Any error from fn rolls back every write made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View runs fn for display reads. Writes made through tx are not guaranteed to be atomic.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Points() PointsLedger
	Rewards() RewardLedger
	Wallets() WalletLedger
}

type PointsLedger interface {
	// CreateAccount returns serviceerrs.ErrAlreadyExists when the id is taken.
	CreateAccount(ctx context.Context, a *points.Account) error
	GetAccount(ctx context.Context, id string) (points.Account, error)
	LockAccount(ctx context.Context, id string) (points.Account, error)
	UpdateAccount(ctx context.Context, a *points.Account) error

	AppendTransaction(ctx context.Context, t *points.Transaction) error
	// ListTransactions returns the newest transactions first. A non-positive limit lists all.
	ListTransactions(ctx context.Context, accountID string, limit int) ([]points.Transaction, error)

	InsertBatch(ctx context.Context, b *points.ExpiryBatch) error
	UpdateBatch(ctx context.Context, b *points.ExpiryBatch) error
	// ActiveBatches returns the active batches in FIFO order.
	ActiveBatches(ctx context.Context, accountID string) ([]points.ExpiryBatch, error)

	Totals(ctx context.Context, accountID string) (points.Totals, error)
	AccountsWithOverdueBatches(ctx context.Context, now time.Time, limit int) ([]string, error)

	ListMerchantAccounts(ctx context.Context, filter points.MemberFilter) ([]points.Account, error)
	// MerchantStats counts as active every member with an activity earn at or after activeSince.
	MerchantStats(ctx context.Context, merchantID string, activeSince time.Time) (points.MerchantStats, error)
}

type RewardLedger interface {
	SaveReward(ctx context.Context, r *reward.Reward) error
	GetReward(ctx context.Context, id string) (reward.Reward, error)

	CountRedemptions(ctx context.Context, accountID, rewardID string) (int, error)
	FindRedemptionByAttempt(ctx context.Context, accountID, attemptID string) (reward.Redemption, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	InsertRedemption(ctx context.Context, r *reward.Redemption) error
	LockRedemptionByCode(ctx context.Context, code string) (reward.Redemption, error)
	UpdateRedemption(ctx context.Context, r *reward.Redemption) error
	ListRedemptions(ctx context.Context, accountID string) ([]reward.Redemption, error)
	ExpireRedemptions(ctx context.Context, now time.Time) (int64, error)
}

type WalletLedger interface {
	// CreateWallet returns serviceerrs.ErrAlreadyExists when the account already
	// holds a wallet with the merchant.
	CreateWallet(ctx context.Context, w *wallet.Wallet) error
	FindWallet(ctx context.Context, accountID, merchantID string) (wallet.Wallet, error)
	GetWallet(ctx context.Context, id string) (wallet.Wallet, error)
	LockWallet(ctx context.Context, id string) (wallet.Wallet, error)
	UpdateWallet(ctx context.Context, w *wallet.Wallet) error

	AppendTransaction(ctx context.Context, t *wallet.Transaction) error
	GetTransaction(ctx context.Context, id string) (wallet.Transaction, error)
	ListTransactions(ctx context.Context, walletID string, limit int) ([]wallet.Transaction, error)
	Totals(ctx context.Context, walletID string) (wallet.Totals, error)

	InsertBonusLot(ctx context.Context, l *wallet.BonusLot) error
	UpdateBonusLot(ctx context.Context, l *wallet.BonusLot) error
	// ActiveBonusLots returns the active lots ordered by expiry.
	ActiveBonusLots(ctx context.Context, walletID string) ([]wallet.BonusLot, error)
	WalletsWithOverdueBonus(ctx context.Context, now time.Time, limit int) ([]string, error)

	InsertSession(ctx context.Context, s *wallet.TopUpSession) error
	GetSession(ctx context.Context, id string) (wallet.TopUpSession, error)
	LockSession(ctx context.Context, id string) (wallet.TopUpSession, error)
	// UpdateSession returns serviceerrs.ErrDuplicatePaymentRef when the external
	// reference is already bound to another session.
	UpdateSession(ctx context.Context, s *wallet.TopUpSession) error
	FindSessionByExternalRef(ctx context.Context, ref string) (wallet.TopUpSession, error)
	ExpireSessions(ctx context.Context, now time.Time) (int64, error)
}
