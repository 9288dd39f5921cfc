package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/talx-hub/gopher-loyalty/internal/events"
	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model/program"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

const cashRefPrefix = "cash:"

type TopUpRequest struct {
	WalletID    string
	Method      wallet.PaymentMethod
	AmountCents int64
}

// InitiateTopUp opens a pending session. The bonus is fixed here and is not
// recomputed when the session completes.
func (e *Engine) InitiateTopUp(ctx context.Context, req TopUpRequest) (wallet.TopUpSession, error) {
	var s wallet.TopUpSession
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		s, err = e.initiate(ctx, tx, req)
		return err
	})
	if err != nil {
		return wallet.TopUpSession{}, err //nolint: wrapcheck // error from store unit
	}
	return s, nil
}

func (e *Engine) initiate(ctx context.Context, tx ledger.Tx, req TopUpRequest) (wallet.TopUpSession, error) {
	if req.Method != wallet.MethodStripe && req.Method != wallet.MethodCash {
		return wallet.TopUpSession{}, serviceerrs.ErrInvalidPaymentMethod
	}
	if req.AmountCents <= 0 {
		return wallet.TopUpSession{}, serviceerrs.ErrInvalidAmount
	}

	w, err := tx.Wallets().GetWallet(ctx, req.WalletID)
	if err != nil {
		return wallet.TopUpSession{}, err //nolint: wrapcheck // error from store
	}
	settings, err := e.walletSettings(&w)
	if err != nil {
		return wallet.TopUpSession{}, err
	}
	if err = checkMethod(&settings, req.Method); err != nil {
		return wallet.TopUpSession{}, err
	}
	if req.AmountCents < settings.MinTopUpCents ||
		(settings.MaxTopUpCents > 0 && req.AmountCents > settings.MaxTopUpCents) {
		return wallet.TopUpSession{}, fmt.Errorf("%w: %d not in [%d, %d]",
			serviceerrs.ErrAmountOutOfRange, req.AmountCents, settings.MinTopUpCents, settings.MaxTopUpCents)
	}

	bonus := ComputeBonus(settings.BonusTiers, req.AmountCents)
	if !w.Fits(req.AmountCents, bonus.Cents) {
		return wallet.TopUpSession{}, serviceerrs.ErrBalanceCapExceeded
	}

	ttl := settings.SessionTTL
	if ttl <= 0 {
		ttl = program.DefaultSessionTTL
	}
	now := e.clock.Now()
	s := wallet.TopUpSession{
		ID:            uuid.NewString(),
		WalletID:      w.ID,
		AmountCents:   req.AmountCents,
		BonusCents:    bonus.Cents,
		BonusTierName: bonus.TierName,
		Currency:      w.Currency,
		PaymentMethod: req.Method,
		Status:        wallet.SessionPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	if err = tx.Wallets().InsertSession(ctx, &s); err != nil {
		return wallet.TopUpSession{}, fmt.Errorf("failed to insert top-up session: %w", err)
	}
	return s, nil
}

func checkMethod(settings *program.WalletSettings, method wallet.PaymentMethod) error {
	switch {
	case method == wallet.MethodStripe && !settings.StripeEnabled,
		method == wallet.MethodCash && !settings.CashEnabled:
		return serviceerrs.ErrPaymentMethodDisabled
	}
	return nil
}

// CompleteTopUp credits the session's amount and bonus once. A repeated call with the
// same external reference returns the original credit without touching the wallet.
func (e *Engine) CompleteTopUp(ctx context.Context, sessionID, externalRef string) (Credit, error) {
	if sessionID == "" || externalRef == "" {
		return Credit{}, fmt.Errorf("%w: session id and external reference are required",
			serviceerrs.ErrInvalidRequest)
	}
	return e.completeInTx(ctx, func(ctx context.Context, tx ledger.Tx, pending *events.Pending) (Credit, bool, error) {
		return e.complete(ctx, tx, pending, sessionID, externalRef, "")
	})
}

// ProcessCashTopUp records cash taken at the counter as a session completed on the spot.
func (e *Engine) ProcessCashTopUp(ctx context.Context, walletID string, amountCents int64, processedBy string,
) (Credit, error) {
	return e.completeInTx(ctx, func(ctx context.Context, tx ledger.Tx, pending *events.Pending) (Credit, bool, error) {
		s, err := e.initiate(ctx, tx, TopUpRequest{
			WalletID:    walletID,
			AmountCents: amountCents,
			Method:      wallet.MethodCash,
		})
		if err != nil {
			return Credit{}, false, err
		}
		description := "cash top-up"
		if processedBy != "" {
			description += " by " + processedBy
		}
		return e.complete(ctx, tx, pending, s.ID, cashRefPrefix+s.ID, description)
	})
}

type completeFunc func(ctx context.Context, tx ledger.Tx, pending *events.Pending) (Credit, bool, error)

// completeInTx commits the unit even when the cap check failed, so the session's
// failed status persists, and reports the cap error afterwards.
func (e *Engine) completeInTx(ctx context.Context, fn completeFunc) (Credit, error) {
	var (
		res         Credit
		capExceeded bool
		pending     events.Pending
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		pending.Reset()
		var err error
		res, capExceeded, err = fn(ctx, tx, &pending)
		return err
	})
	if err != nil {
		return Credit{}, err //nolint: wrapcheck // error from store unit
	}
	if capExceeded {
		return Credit{}, serviceerrs.ErrBalanceCapExceeded
	}
	pending.Flush(ctx, e.publisher, e.log)
	return res, nil
}

func (e *Engine) complete(ctx context.Context,
	tx ledger.Tx, pending *events.Pending, sessionID, ref, description string,
) (Credit, bool, error) {
	bound, err := tx.Wallets().FindSessionByExternalRef(ctx, ref)
	switch {
	case err == nil && bound.ID != sessionID:
		return Credit{}, false, serviceerrs.ErrDuplicatePaymentRef
	case err == nil && bound.Status == wallet.SessionCompleted:
		return replay(ctx, tx, &bound)
	case err != nil && !errors.Is(err, serviceerrs.ErrSessionNotFound):
		return Credit{}, false, err //nolint: wrapcheck // error from store
	}

	s, err := tx.Wallets().LockSession(ctx, sessionID)
	if err != nil {
		return Credit{}, false, err //nolint: wrapcheck // error from store
	}
	// a concurrent completion with the same reference may have won the lock
	if s.Status == wallet.SessionCompleted && s.ExternalPaymentRef == ref {
		return replay(ctx, tx, &s)
	}
	if !s.Status.CanTransition(wallet.SessionCompleted) {
		return Credit{}, false, fmt.Errorf("%w: %s to %s",
			serviceerrs.ErrInvalidTransition, s.Status, wallet.SessionCompleted)
	}
	now := e.clock.Now()
	if s.Status == wallet.SessionPending && !now.Before(s.ExpiresAt) {
		return Credit{}, false, serviceerrs.ErrSessionExpired
	}

	w, err := tx.Wallets().LockWallet(ctx, s.WalletID)
	if err != nil {
		return Credit{}, false, err //nolint: wrapcheck // error from store
	}
	settings, err := e.walletSettings(&w)
	if err != nil {
		return Credit{}, false, err
	}

	if !w.Fits(s.AmountCents, s.BonusCents) {
		s.Status = wallet.SessionFailed
		s.FailureReason = serviceerrs.ErrBalanceCapExceeded.Error()
		if err = tx.Wallets().UpdateSession(ctx, &s); err != nil {
			return Credit{}, false, fmt.Errorf("failed to update session: %w", err)
		}
		return Credit{}, true, nil
	}

	typ := wallet.TypeTopUpStripe
	if s.PaymentMethod == wallet.MethodCash {
		typ = wallet.TypeTopUpCash
	}
	txn, err := e.apply(ctx, tx, &w, entry{
		Type:               typ,
		ReferenceType:      "top_up_session",
		ReferenceID:        s.ID,
		ExternalPaymentRef: ref,
		Description:        description,
		CashCents:          s.AmountCents,
		BonusCents:         s.BonusCents,
		BonusExpiresAt:     bonusExpiry(&settings, now),
	})
	if err != nil {
		return Credit{}, false, err
	}

	s.Status = wallet.SessionCompleted
	s.CompletedAt = &now
	s.ExternalPaymentRef = ref
	s.TransactionID = txn.ID
	if err = tx.Wallets().UpdateSession(ctx, &s); err != nil {
		return Credit{}, false, fmt.Errorf("failed to complete session: %w", err)
	}

	pending.Add(events.Event{
		Type:       events.TypeTopUpCompleted,
		AccountID:  w.AccountID,
		WalletID:   w.ID,
		OccurredAt: now,
		Payload: map[string]any{
			"session_id":   s.ID,
			"amount_cents": s.AmountCents,
			"bonus_cents":  s.BonusCents,
			"method":       string(s.PaymentMethod),
		},
	})
	return creditOf(txn), false, nil
}

func replay(ctx context.Context, tx ledger.Tx, s *wallet.TopUpSession) (Credit, bool, error) {
	txn, err := tx.Wallets().GetTransaction(ctx, s.TransactionID)
	if err != nil {
		return Credit{}, false, fmt.Errorf("failed to load top-up transaction: %w", err)
	}
	res := creditOf(txn)
	res.Replayed = true
	return res, false, nil
}

// MarkProcessing records that the payment provider accepted the session.
func (e *Engine) MarkProcessing(ctx context.Context, sessionID string) (wallet.TopUpSession, error) {
	return e.transition(ctx, sessionID, wallet.SessionProcessing, "")
}

func (e *Engine) FailTopUp(ctx context.Context, sessionID, reason string) (wallet.TopUpSession, error) {
	return e.transition(ctx, sessionID, wallet.SessionFailed, reason)
}

func (e *Engine) ExpireTopUp(ctx context.Context, sessionID string) (wallet.TopUpSession, error) {
	return e.transition(ctx, sessionID, wallet.SessionExpired, "session expired")
}

func (e *Engine) CancelTopUp(ctx context.Context, sessionID string) (wallet.TopUpSession, error) {
	return e.transition(ctx, sessionID, wallet.SessionCancelled, "cancelled by caller")
}

// transition moves a session between non-crediting states. The wallet is never touched.
func (e *Engine) transition(ctx context.Context, sessionID string, to wallet.SessionStatus, reason string,
) (wallet.TopUpSession, error) {
	var s wallet.TopUpSession
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		s, err = tx.Wallets().LockSession(ctx, sessionID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		if !s.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s to %s", serviceerrs.ErrInvalidTransition, s.Status, to)
		}
		if to == wallet.SessionProcessing && !e.clock.Now().Before(s.ExpiresAt) {
			return serviceerrs.ErrSessionExpired
		}
		s.Status = to
		if reason != "" {
			s.FailureReason = reason
		}
		return tx.Wallets().UpdateSession(ctx, &s) //nolint: wrapcheck // error from store
	})
	if err != nil {
		return wallet.TopUpSession{}, err //nolint: wrapcheck // error from store unit
	}
	return s, nil
}

func (e *Engine) GetSession(ctx context.Context, sessionID string) (wallet.TopUpSession, error) {
	var s wallet.TopUpSession
	err := e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		s, err = tx.Wallets().GetSession(ctx, sessionID)
		return err //nolint: wrapcheck // error from store
	})
	if err != nil {
		return wallet.TopUpSession{}, err //nolint: wrapcheck // error from store unit
	}
	return s, nil
}
