package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talx-hub/gopher-loyalty/internal/events"
	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

type SpendRequest struct {
	WalletID      string
	ReferenceType string
	ReferenceID   string
	Description   string
	AmountCents   int64
}

type Debit struct {
	TransactionID     string `json:"transaction_id"`
	CashCents         int64  `json:"cash_cents"`
	BonusCents        int64  `json:"bonus_cents"`
	BalanceCents      int64  `json:"balance_cents"`
	BonusBalanceCents int64  `json:"bonus_balance_cents"`
}

// SpendWallet pays from the bonus balance first, soonest-expiring lot first, and
// takes the rest from cash.
func (e *Engine) SpendWallet(ctx context.Context, req SpendRequest) (Debit, error) {
	if req.AmountCents <= 0 {
		return Debit{}, serviceerrs.ErrInvalidAmount
	}

	var res Debit
	var pending events.Pending
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		pending.Reset()

		w, err := tx.Wallets().LockWallet(ctx, req.WalletID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		if !w.IsActive {
			return serviceerrs.ErrWalletDisabled
		}
		now := e.clock.Now()
		if _, err = e.expireLots(ctx, tx, &pending, &w, now); err != nil {
			return err
		}
		if w.TotalCents() < req.AmountCents {
			return serviceerrs.ErrInsufficientFunds
		}

		fromBonus := min(w.BonusBalanceCents, req.AmountCents)
		if err = consumeLots(ctx, tx, w.ID, fromBonus); err != nil {
			return err
		}
		fromCash := req.AmountCents - fromBonus

		txn, err := e.apply(ctx, tx, &w, entry{
			Type:          wallet.TypePayment,
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
			Description:   req.Description,
			CashCents:     -fromCash,
			BonusCents:    -fromBonus,
		})
		if err != nil {
			return err
		}
		res = Debit{
			TransactionID:     txn.ID,
			CashCents:         fromCash,
			BonusCents:        fromBonus,
			BalanceCents:      w.BalanceCents,
			BonusBalanceCents: w.BonusBalanceCents,
		}
		return nil
	})
	if err != nil {
		return Debit{}, err //nolint: wrapcheck // error from store unit
	}
	pending.Flush(ctx, e.publisher, e.log)
	return res, nil
}

func consumeLots(ctx context.Context, tx ledger.Tx, walletID string, amount int64) error {
	if amount == 0 {
		return nil
	}
	lots, err := tx.Wallets().ActiveBonusLots(ctx, walletID)
	if err != nil {
		return fmt.Errorf("failed to list bonus lots: %w", err)
	}
	left := amount
	for i := range lots {
		if left == 0 {
			break
		}
		lot := &lots[i]
		take := min(lot.RemainingCents, left)
		lot.RemainingCents -= take
		left -= take
		if lot.RemainingCents == 0 {
			lot.Status = wallet.LotConsumed
		}
		if err = tx.Wallets().UpdateBonusLot(ctx, lot); err != nil {
			return fmt.Errorf("failed to update bonus lot %s: %w", lot.ID, err)
		}
	}
	if left > 0 {
		return serviceerrs.ErrLedgerInconsistent
	}
	return nil
}

type RefundRequest struct {
	WalletID      string
	ReferenceType string
	ReferenceID   string
	Description   string
	AmountCents   int64
}

// Refund returns money to the cash balance.
func (e *Engine) Refund(ctx context.Context, req RefundRequest) (Credit, error) {
	if req.AmountCents <= 0 {
		return Credit{}, serviceerrs.ErrInvalidAmount
	}
	var res Credit
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := tx.Wallets().LockWallet(ctx, req.WalletID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		if !w.Fits(req.AmountCents, 0) {
			return serviceerrs.ErrBalanceCapExceeded
		}
		txn, err := e.apply(ctx, tx, &w, entry{
			Type:          wallet.TypeRefund,
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
			Description:   req.Description,
			CashCents:     req.AmountCents,
		})
		if err != nil {
			return err
		}
		res = creditOf(txn)
		return nil
	})
	if err != nil {
		return Credit{}, err //nolint: wrapcheck // error from store unit
	}
	return res, nil
}

// AwardWelcomeBonus credits the merchant's welcome bonus once per wallet.
// Later calls return the current balances with Replayed set.
func (e *Engine) AwardWelcomeBonus(ctx context.Context, walletID string) (Credit, error) {
	var res Credit
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := tx.Wallets().LockWallet(ctx, walletID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		settings, err := e.walletSettings(&w)
		if err != nil {
			return err
		}
		if w.WelcomeBonusAwarded || settings.WelcomeBonusCents <= 0 {
			res = Credit{BalanceCents: w.BalanceCents, BonusBalanceCents: w.BonusBalanceCents, Replayed: true}
			return nil
		}
		if !w.Fits(0, settings.WelcomeBonusCents) {
			return serviceerrs.ErrBalanceCapExceeded
		}

		w.WelcomeBonusAwarded = true
		txn, err := e.apply(ctx, tx, &w, entry{
			Type:           wallet.TypeWelcomeBonus,
			Description:    "welcome bonus",
			BonusCents:     settings.WelcomeBonusCents,
			BonusExpiresAt: bonusExpiry(&settings, e.clock.Now()),
		})
		if err != nil {
			return err
		}
		res = creditOf(txn)
		return nil
	})
	if err != nil {
		return Credit{}, err //nolint: wrapcheck // error from store unit
	}
	return res, nil
}

// AwardReferralBonus credits the inviter or invitee share of the referral bonus.
func (e *Engine) AwardReferralBonus(ctx context.Context, walletID string, inviter bool, referenceID string,
) (Credit, error) {
	var res Credit
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := tx.Wallets().LockWallet(ctx, walletID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		settings, err := e.walletSettings(&w)
		if err != nil {
			return err
		}
		amount := settings.ReferralBonusInviteeCents
		description := "referral bonus (invitee)"
		if inviter {
			amount = settings.ReferralBonusInviterCents
			description = "referral bonus (inviter)"
		}
		if amount <= 0 {
			res = Credit{BalanceCents: w.BalanceCents, BonusBalanceCents: w.BonusBalanceCents}
			return nil
		}
		if !w.Fits(0, amount) {
			return serviceerrs.ErrBalanceCapExceeded
		}
		txn, err := e.apply(ctx, tx, &w, entry{
			Type:           wallet.TypeReferralBonus,
			ReferenceType:  "referral",
			ReferenceID:    referenceID,
			Description:    description,
			BonusCents:     amount,
			BonusExpiresAt: bonusExpiry(&settings, e.clock.Now()),
		})
		if err != nil {
			return err
		}
		res = creditOf(txn)
		return nil
	})
	if err != nil {
		return Credit{}, err //nolint: wrapcheck // error from store unit
	}
	return res, nil
}

// ExpireBonus expires every active bonus lot of the wallet due at or before now.
// Lots no longer active are skipped, so re-running is harmless.
func (e *Engine) ExpireBonus(ctx context.Context, walletID string, now time.Time) (int64, error) {
	var expired int64
	var pending events.Pending
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		pending.Reset()
		w, err := tx.Wallets().LockWallet(ctx, walletID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		expired, err = e.expireLots(ctx, tx, &pending, &w, now)
		return err
	})
	if err != nil {
		return 0, err //nolint: wrapcheck // error from store unit
	}
	pending.Flush(ctx, e.publisher, e.log)
	return expired, nil
}

// expireLots writes one expiry transaction per overdue lot. The caller holds the wallet lock.
func (e *Engine) expireLots(ctx context.Context,
	tx ledger.Tx, pending *events.Pending, w *wallet.Wallet, now time.Time,
) (int64, error) {
	lots, err := tx.Wallets().ActiveBonusLots(ctx, w.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list bonus lots: %w", err)
	}

	var expired int64
	for i := range lots {
		lot := &lots[i]
		if lot.ExpiresAt.After(now) {
			continue
		}
		amount := lot.RemainingCents
		lot.RemainingCents = 0
		lot.Status = wallet.LotExpired
		if err = tx.Wallets().UpdateBonusLot(ctx, lot); err != nil {
			return 0, fmt.Errorf("failed to expire bonus lot %s: %w", lot.ID, err)
		}
		if amount == 0 {
			continue
		}

		w.BonusBalanceCents -= amount
		expired += amount
		if err = tx.Wallets().AppendTransaction(ctx, &wallet.Transaction{
			ID:                     uuid.NewString(),
			WalletID:               w.ID,
			Type:                   wallet.TypeExpiry,
			BonusAmountCents:       -amount,
			BalanceAfterCents:      w.BalanceCents,
			BonusBalanceAfterCents: w.BonusBalanceCents,
			ReferenceType:          "bonus_lot",
			ReferenceID:            lot.ID,
			Description:            "bonus expired",
			CreatedAt:              now,
		}); err != nil {
			return 0, fmt.Errorf("failed to append expiry transaction: %w", err)
		}
	}
	if expired == 0 {
		return 0, nil
	}

	w.UpdatedAt = now
	if err = e.persist(ctx, tx, w); err != nil {
		return 0, err
	}
	pending.Add(events.Event{
		Type:       events.TypeBonusExpired,
		AccountID:  w.AccountID,
		WalletID:   w.ID,
		OccurredAt: now,
		Payload: map[string]any{
			"bonus_cents":         expired,
			"bonus_balance_cents": w.BonusBalanceCents,
		},
	})
	return expired, nil
}
