// Package wallet runs the monetary wallet: top-up sessions, bonus credits with their
// own expiry, spending and refunds.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talx-hub/gopher-loyalty/internal/events"
	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/model/program"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	"github.com/talx-hub/gopher-loyalty/internal/utils/clock"
)

type Settings interface {
	Wallet(merchantID string) (program.WalletSettings, error)
}

type Engine struct {
	store     ledger.Store
	settings  Settings
	publisher events.Publisher
	clock     clock.Clock
	log       *slog.Logger
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func New(store ledger.Store, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		settings:  settings,
		publisher: &events.NoopPublisher{},
		clock:     clock.System{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("module", "wallet")
	return e
}

// Credit is the wallet state after money was added.
type Credit struct {
	TransactionID     string `json:"transaction_id,omitempty"`
	AmountCents       int64  `json:"amount_cents"`
	BonusCents        int64  `json:"bonus_cents"`
	BalanceCents      int64  `json:"balance_cents"`
	BonusBalanceCents int64  `json:"bonus_balance_cents"`
	// Replayed is set when the call repeated an already applied credit.
	Replayed bool `json:"replayed,omitempty"`
}

func creditOf(txn wallet.Transaction) Credit {
	return Credit{
		TransactionID:     txn.ID,
		AmountCents:       txn.AmountCents,
		BonusCents:        txn.BonusAmountCents,
		BalanceCents:      txn.BalanceAfterCents,
		BonusBalanceCents: txn.BonusBalanceAfterCents,
	}
}

type Balance struct {
	WalletID          string `json:"wallet_id"`
	Currency          string `json:"currency"`
	Balance           string `json:"balance"`
	BonusBalance      string `json:"bonus_balance"`
	Total             string `json:"total"`
	BalanceCents      int64  `json:"balance_cents"`
	BonusBalanceCents int64  `json:"bonus_balance_cents"`
	TotalCents        int64  `json:"total_cents"`
}

func balanceOf(w *wallet.Wallet) Balance {
	cash, bonus, total := model.FromCents(w.BalanceCents), model.FromCents(w.BonusBalanceCents),
		model.FromCents(w.TotalCents())
	return Balance{
		WalletID:          w.ID,
		Currency:          w.Currency,
		BalanceCents:      w.BalanceCents,
		BonusBalanceCents: w.BonusBalanceCents,
		TotalCents:        w.TotalCents(),
		Balance:           cash.Format(w.Currency),
		BonusBalance:      bonus.Format(w.Currency),
		Total:             total.Format(w.Currency),
	}
}

// OpenWallet returns the wallet the account holds with the merchant, creating it on first use.
func (e *Engine) OpenWallet(ctx context.Context, accountID, merchantID string) (wallet.Wallet, error) {
	if accountID == "" || merchantID == "" {
		return wallet.Wallet{}, fmt.Errorf("%w: account and merchant ids are required",
			serviceerrs.ErrInvalidRequest)
	}
	settings, err := e.settings.Wallet(merchantID)
	if err != nil {
		return wallet.Wallet{}, err //nolint: wrapcheck // domain error
	}
	if !settings.WalletEnabled {
		return wallet.Wallet{}, serviceerrs.ErrWalletDisabled
	}

	var w wallet.Wallet
	err = e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		existing, err := tx.Wallets().FindWallet(ctx, accountID, merchantID)
		if err == nil {
			w = existing
			return nil
		}
		if !errors.Is(err, serviceerrs.ErrWalletNotFound) {
			return err //nolint: wrapcheck // error from store
		}

		now := e.clock.Now()
		w = wallet.Wallet{
			ID:              uuid.NewString(),
			AccountID:       accountID,
			MerchantID:      merchantID,
			Currency:        settings.Currency,
			MaxBalanceCents: settings.MaxBalanceCents,
			IsActive:        true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.Wallets().CreateWallet(ctx, &w) //nolint: wrapcheck // error from store
	})
	if errors.Is(err, serviceerrs.ErrAlreadyExists) {
		// lost a creation race; the winner's wallet is committed
		err = e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
			var err error
			w, err = tx.Wallets().FindWallet(ctx, accountID, merchantID)
			return err //nolint: wrapcheck // error from store
		})
	}
	if err != nil {
		return wallet.Wallet{}, err //nolint: wrapcheck // error from store unit
	}
	return w, nil
}

func (e *Engine) GetBalance(ctx context.Context, walletID string) (Balance, error) {
	var b Balance
	err := e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := tx.Wallets().GetWallet(ctx, walletID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		b = balanceOf(&w)
		return nil
	})
	if err != nil {
		return Balance{}, err //nolint: wrapcheck // error from store unit
	}
	return b, nil
}

func (e *Engine) Transactions(ctx context.Context, walletID string, limit int) ([]wallet.Transaction, error) {
	var txns []wallet.Transaction
	err := e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.Wallets().GetWallet(ctx, walletID); err != nil {
			return err //nolint: wrapcheck // error from store
		}
		var err error
		txns, err = tx.Wallets().ListTransactions(ctx, walletID, limit)
		return err //nolint: wrapcheck // error from store
	})
	if err != nil {
		return nil, err //nolint: wrapcheck // error from store unit
	}
	return txns, nil
}

func (e *Engine) walletSettings(w *wallet.Wallet) (program.WalletSettings, error) {
	settings, err := e.settings.Wallet(w.MerchantID)
	if err != nil {
		return program.WalletSettings{}, err //nolint: wrapcheck // domain error
	}
	if !settings.WalletEnabled || !w.IsActive {
		return program.WalletSettings{}, serviceerrs.ErrWalletDisabled
	}
	return settings, nil
}

func bonusExpiry(settings *program.WalletSettings, now time.Time) time.Time {
	months := settings.BonusExpiryMonths
	if months <= 0 {
		months = program.DefaultBonusExpiryMonths
	}
	return now.AddDate(0, months, 0)
}

type entry struct {
	Type               wallet.TransactionType
	ReferenceType      string
	ReferenceID        string
	ExternalPaymentRef string
	Description        string
	CashCents          int64
	BonusCents         int64
	BonusExpiresAt     time.Time
}

// apply writes one wallet transaction, a bonus lot for a positive bonus part and the
// new cached balances. The caller holds the wallet lock and has checked the cap.
func (e *Engine) apply(ctx context.Context, tx ledger.Tx, w *wallet.Wallet, en entry) (wallet.Transaction, error) {
	now := e.clock.Now()
	w.BalanceCents += en.CashCents
	w.BonusBalanceCents += en.BonusCents
	w.UpdatedAt = now

	txn := wallet.Transaction{
		ID:                     uuid.NewString(),
		WalletID:               w.ID,
		Type:                   en.Type,
		AmountCents:            en.CashCents,
		BonusAmountCents:       en.BonusCents,
		BalanceAfterCents:      w.BalanceCents,
		BonusBalanceAfterCents: w.BonusBalanceCents,
		ReferenceType:          en.ReferenceType,
		ReferenceID:            en.ReferenceID,
		ExternalPaymentRef:     en.ExternalPaymentRef,
		Description:            en.Description,
		CreatedAt:              now,
	}
	if en.BonusCents > 0 {
		expiresAt := en.BonusExpiresAt
		txn.ExpiresAt = &expiresAt
	}
	if err := tx.Wallets().AppendTransaction(ctx, &txn); err != nil {
		return wallet.Transaction{}, fmt.Errorf("failed to append wallet transaction: %w", err)
	}

	if en.BonusCents > 0 {
		lot := wallet.BonusLot{
			ID:                  uuid.NewString(),
			WalletID:            w.ID,
			AmountCents:         en.BonusCents,
			RemainingCents:      en.BonusCents,
			ExpiresAt:           en.BonusExpiresAt,
			Status:              wallet.LotActive,
			SourceTransactionID: txn.ID,
			CreatedAt:           now,
		}
		if err := tx.Wallets().InsertBonusLot(ctx, &lot); err != nil {
			return wallet.Transaction{}, fmt.Errorf("failed to insert bonus lot: %w", err)
		}
	}

	if err := e.persist(ctx, tx, w); err != nil {
		return wallet.Transaction{}, err
	}
	return txn, nil
}

func (e *Engine) persist(ctx context.Context, tx ledger.Tx, w *wallet.Wallet) error {
	if w.BalanceCents < 0 || w.BonusBalanceCents < 0 {
		return serviceerrs.ErrLedgerInconsistent
	}
	if err := tx.Wallets().UpdateWallet(ctx, w); err != nil {
		return fmt.Errorf("failed to update wallet %s: %w", w.ID, err)
	}

	totals, err := tx.Wallets().Totals(ctx, w.ID)
	if err != nil {
		return fmt.Errorf("failed to compute wallet totals: %w", err)
	}
	if totals.Cash == w.BalanceCents &&
		totals.Bonus == w.BonusBalanceCents &&
		totals.ActiveLotsCents == w.BonusBalanceCents {
		return nil
	}

	e.log.LogAttrs(ctx,
		slog.LevelError,
		"wallet ledger mismatch",
		slog.String("wallet_id", w.ID),
		slog.Int64("balance", w.BalanceCents),
		slog.Int64("ledger_cash", totals.Cash),
		slog.Int64("bonus_balance", w.BonusBalanceCents),
		slog.Int64("ledger_bonus", totals.Bonus),
		slog.Int64("active_lots", totals.ActiveLotsCents),
	)
	return serviceerrs.ErrLedgerInconsistent
}
