package points

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/events"
	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/model/program"
	"github.com/talx-hub/gopher-loyalty/internal/model/tier"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	tiers "github.com/talx-hub/gopher-loyalty/internal/service/tier"
)

type creditEntry struct {
	Type          points.TransactionType
	ReferenceType string
	ReferenceID   string
	Notes         string
	Points        int64
}

// credit writes a positive ledger entry with its expiry batch and re-resolves the tier.
// The caller holds the account lock.
func (e *Engine) credit(ctx context.Context,
	tx ledger.Tx, pending *events.Pending, acc *points.Account, prog *program.Loyalty, entry creditEntry,
) (EarnResult, points.Transaction, error) {
	if entry.Points <= 0 || entry.Points > model.MaxPointsPerEntry ||
		acc.PointsEarned > math.MaxInt64-entry.Points {
		return EarnResult{}, points.Transaction{}, fmt.Errorf("%w: cannot credit %d points to account %s",
			serviceerrs.ErrInvalidAmount, entry.Points, acc.ID)
	}
	now := e.clock.Now()
	expiryMonths := prog.ExpiryMonths
	if expiryMonths <= 0 {
		expiryMonths = program.DefaultExpiryMonths
	}

	txn := points.Transaction{
		ID:            newID(),
		AccountID:     acc.ID,
		Type:          entry.Type,
		Points:        entry.Points,
		BalanceAfter:  acc.PointsBalance + entry.Points,
		ReferenceType: entry.ReferenceType,
		ReferenceID:   entry.ReferenceID,
		Notes:         entry.Notes,
		CreatedAt:     now,
	}
	if err := tx.Points().AppendTransaction(ctx, &txn); err != nil {
		return EarnResult{}, points.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	batch := points.ExpiryBatch{
		ID:                  newID(),
		AccountID:           acc.ID,
		PointsAmount:        entry.Points,
		RemainingPoints:     entry.Points,
		EarnedAt:            now,
		ExpiresAt:           now.AddDate(0, expiryMonths, 0),
		Status:              points.BatchActive,
		SourceTransactionID: txn.ID,
	}
	if err := tx.Points().InsertBatch(ctx, &batch); err != nil {
		return EarnResult{}, points.Transaction{}, fmt.Errorf("failed to insert expiry batch: %w", err)
	}

	acc.PointsBalance += entry.Points
	acc.PointsEarned += entry.Points

	previous := acc.CurrentTier
	resolved := tiers.Resolve(prog.Tiers, acc.PointsEarned).Current
	changed := resolved.Name != previous
	if changed {
		acc.CurrentTier = resolved.Name
		acc.TierUpdatedAt = now
		acc.AddBadge(tier.Badge(resolved.Name))
	}
	acc.UpdatedAt = now

	if err := e.persist(ctx, tx, acc); err != nil {
		return EarnResult{}, points.Transaction{}, err
	}

	pending.Add(events.Event{
		Type:       events.TypePointsEarned,
		AccountID:  acc.ID,
		OccurredAt: now,
		Payload: map[string]any{
			"source":      string(entry.Type),
			"points":      entry.Points,
			"new_balance": acc.PointsBalance,
		},
	})
	if changed {
		pending.Add(events.Event{
			Type:       events.TypeTierChanged,
			AccountID:  acc.ID,
			OccurredAt: now,
			Payload: map[string]any{
				"from": previous,
				"to":   resolved.Name,
			},
		})
	}

	return EarnResult{
		Points:      entry.Points,
		NewBalance:  acc.PointsBalance,
		Tier:        acc.CurrentTier,
		TierChanged: changed,
	}, txn, nil
}

// Spend debits points from the active batches, soonest to expire first, and writes
// one negative transaction. It runs inside the caller's unit, which must hold the
// account lock.
func (e *Engine) Spend(ctx context.Context, tx ledger.Tx, acc *points.Account, debit points.Debit,
) (points.Transaction, error) {
	if debit.Points <= 0 {
		return points.Transaction{}, serviceerrs.ErrInvalidAmount
	}
	if debit.Points > acc.PointsBalance {
		return points.Transaction{}, serviceerrs.ErrInsufficientPoints
	}

	batches, err := tx.Points().ActiveBatches(ctx, acc.ID)
	if err != nil {
		return points.Transaction{}, fmt.Errorf("failed to list active batches: %w", err)
	}

	left := debit.Points
	for i := range batches {
		if left == 0 {
			break
		}
		b := &batches[i]
		take := min(b.RemainingPoints, left)
		b.RemainingPoints -= take
		left -= take
		if b.RemainingPoints == 0 {
			b.Status = points.BatchConsumed
		}
		if err = tx.Points().UpdateBatch(ctx, b); err != nil {
			return points.Transaction{}, fmt.Errorf("failed to update batch %s: %w", b.ID, err)
		}
	}
	if left > 0 {
		e.log.LogAttrs(ctx,
			slog.LevelError,
			"active batches do not cover the cached balance",
			slog.String("account_id", acc.ID),
			slog.Int64("missing", left),
		)
		return points.Transaction{}, serviceerrs.ErrLedgerInconsistent
	}

	now := e.clock.Now()
	txn := points.Transaction{
		ID:            newID(),
		AccountID:     acc.ID,
		Type:          debit.Type,
		Points:        -debit.Points,
		BalanceAfter:  acc.PointsBalance - debit.Points,
		ReferenceType: debit.ReferenceType,
		ReferenceID:   debit.ReferenceID,
		Notes:         debit.Notes,
		CreatedAt:     now,
	}
	if err = tx.Points().AppendTransaction(ctx, &txn); err != nil {
		return points.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	acc.PointsBalance -= debit.Points
	acc.PointsSpent += debit.Points
	acc.UpdatedAt = now
	if err = e.persist(ctx, tx, acc); err != nil {
		return points.Transaction{}, err
	}
	return txn, nil
}

// ExpireAccount expires every active batch of the account due at or before now.
// Batches already expired or consumed are skipped, so re-running is harmless.
func (e *Engine) ExpireAccount(ctx context.Context, accountID string, now time.Time) (int64, error) {
	var expired int64
	var pending events.Pending
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		pending.Reset()
		expired = 0

		acc, err := tx.Points().LockAccount(ctx, accountID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		batches, err := tx.Points().ActiveBatches(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to list active batches: %w", err)
		}

		for i := range batches {
			b := &batches[i]
			if b.ExpiresAt.After(now) {
				continue
			}
			amount := b.RemainingPoints
			b.RemainingPoints = 0
			b.Status = points.BatchExpired
			if err = tx.Points().UpdateBatch(ctx, b); err != nil {
				return fmt.Errorf("failed to expire batch %s: %w", b.ID, err)
			}
			if amount == 0 {
				continue
			}

			acc.PointsBalance -= amount
			acc.PointsExpired += amount
			expired += amount
			if err = tx.Points().AppendTransaction(ctx, &points.Transaction{
				ID:            newID(),
				AccountID:     acc.ID,
				Type:          points.TypeExpire,
				Points:        -amount,
				BalanceAfter:  acc.PointsBalance,
				ReferenceType: "expiry_batch",
				ReferenceID:   b.ID,
				CreatedAt:     now,
			}); err != nil {
				return fmt.Errorf("failed to append expiry transaction: %w", err)
			}
		}
		if expired == 0 {
			return nil
		}

		acc.UpdatedAt = now
		if err = e.persist(ctx, tx, &acc); err != nil {
			return err
		}
		pending.Add(events.Event{
			Type:       events.TypePointsExpired,
			AccountID:  acc.ID,
			OccurredAt: now,
			Payload: map[string]any{
				"points":      expired,
				"new_balance": acc.PointsBalance,
			},
		})
		return nil
	})
	if err != nil {
		return 0, err //nolint: wrapcheck // error from store unit
	}

	if expired > 0 {
		e.afterCommit(ctx, accountID, &pending)
	}
	return expired, nil
}

func (e *Engine) persist(ctx context.Context, tx ledger.Tx, acc *points.Account) error {
	if err := tx.Points().UpdateAccount(ctx, acc); err != nil {
		return fmt.Errorf("failed to update account %s: %w", acc.ID, err)
	}
	return e.checkConsistency(ctx, tx, acc)
}

// checkConsistency compares the cached balances with the transaction log and the active batches.
func (e *Engine) checkConsistency(ctx context.Context, tx ledger.Tx, acc *points.Account) error {
	totals, err := tx.Points().Totals(ctx, acc.ID)
	if err != nil {
		return fmt.Errorf("failed to compute ledger totals: %w", err)
	}

	if totals.Net == acc.PointsBalance &&
		totals.ActiveRemaining == acc.PointsBalance &&
		totals.Credited == acc.PointsEarned &&
		totals.Debited == acc.PointsSpent &&
		totals.Expired == acc.PointsExpired &&
		acc.PointsBalance == acc.PointsEarned-acc.PointsSpent-acc.PointsExpired {
		return nil
	}

	e.log.LogAttrs(ctx,
		slog.LevelError,
		"points ledger mismatch",
		slog.String("account_id", acc.ID),
		slog.Int64("balance", acc.PointsBalance),
		slog.Int64("ledger_net", totals.Net),
		slog.Int64("active_remaining", totals.ActiveRemaining),
		slog.Int64("earned", acc.PointsEarned),
		slog.Int64("ledger_credited", totals.Credited),
	)
	return serviceerrs.ErrLedgerInconsistent
}
