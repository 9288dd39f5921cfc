package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

func TestPointsRepository_Account(t *testing.T) {
	store, ctx, cancel, _ := setupStore(t)
	defer cancel()

	id := uniqueID("acc")
	acc := newAccount(id)
	acc.Badges = []string{"tier:Bronze"}
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Points().CreateAccount(ctx, &acc)
	}))

	err := store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Points().CreateAccount(ctx, &acc)
	})
	require.ErrorIs(t, err, serviceerrs.ErrAlreadyExists)

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		locked, err := tx.Points().LockAccount(ctx, id)
		if err != nil {
			return err
		}
		locked.PointsBalance = 150
		locked.PointsEarned = 150
		locked.SignupBonusAwarded = true
		locked.AddBadge("tier:Silver")
		return tx.Points().UpdateAccount(ctx, &locked)
	}))

	var got points.Account
	require.NoError(t, store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		got, err = tx.Points().GetAccount(ctx, id)
		return err
	}))
	assert.Equal(t, int64(150), got.PointsBalance)
	assert.True(t, got.SignupBonusAwarded)
	assert.Equal(t, []string{"tier:Bronze", "tier:Silver"}, got.Badges)
	assert.Nil(t, got.ProfileCompletedAt)
	assert.True(t, acc.CreatedAt.Equal(got.CreatedAt))

	err = store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.Points().GetAccount(ctx, "ghost-"+id)
		return err
	})
	require.ErrorIs(t, err, serviceerrs.ErrAccountNotFound)

	err = store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		ghost := newAccount("ghost-" + id)
		return tx.Points().UpdateAccount(ctx, &ghost)
	})
	require.ErrorIs(t, err, serviceerrs.ErrAccountNotFound)
}

func TestPointsRepository_TransactionsAndBatches(t *testing.T) {
	store, ctx, cancel, _ := setupStore(t)
	defer cancel()

	id := uniqueID("batches")
	acc := newAccount(id)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	earn := func(tx ledger.Tx, amount int64, at time.Time) error {
		txn := points.Transaction{
			ID: uuid.NewString(), AccountID: id, Type: points.TypeEarnPurchase,
			Points: amount, BalanceAfter: amount, CreatedAt: at,
		}
		if err := tx.Points().AppendTransaction(ctx, &txn); err != nil {
			return err
		}
		return tx.Points().InsertBatch(ctx, &points.ExpiryBatch{
			ID: uuid.NewString(), AccountID: id, SourceTransactionID: txn.ID,
			PointsAmount: amount, RemainingPoints: amount, Status: points.BatchActive,
			EarnedAt: at, ExpiresAt: at.AddDate(1, 0, 0),
		})
	}

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Points().CreateAccount(ctx, &acc); err != nil {
			return err
		}
		if err := earn(tx, 80, start.AddDate(0, 1, 0)); err != nil {
			return err
		}
		if err := earn(tx, 40, start); err != nil {
			return err
		}
		return tx.Points().AppendTransaction(ctx, &points.Transaction{
			ID: uuid.NewString(), AccountID: id, Type: points.TypeExpire,
			Points: -10, BalanceAfter: 110, CreatedAt: start.AddDate(0, 2, 0),
		})
	}))

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		batches, err := tx.Points().ActiveBatches(ctx, id)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.Equal(t, int64(40), batches[0].PointsAmount)
		assert.Equal(t, int64(80), batches[1].PointsAmount)

		batches[0].RemainingPoints = 0
		batches[0].Status = points.BatchConsumed
		return tx.Points().UpdateBatch(ctx, &batches[0])
	}))

	require.NoError(t, store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		txns, err := tx.Points().ListTransactions(ctx, id, 0)
		require.NoError(t, err)
		require.Len(t, txns, 3)
		assert.Equal(t, points.TypeExpire, txns[0].Type)
		assert.Equal(t, int64(80), txns[2].Points)

		limited, err := tx.Points().ListTransactions(ctx, id, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		totals, err := tx.Points().Totals(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, points.Totals{
			Net: 110, Credited: 120, Debited: 0, Expired: 10, ActiveRemaining: 80,
		}, totals)

		overdue, err := tx.Points().AccountsWithOverdueBatches(ctx, start.AddDate(1, 1, 0), 0)
		require.NoError(t, err)
		assert.Contains(t, overdue, id)

		notYet, err := tx.Points().AccountsWithOverdueBatches(ctx, start.AddDate(1, 0, 1), 0)
		require.NoError(t, err)
		assert.NotContains(t, notYet, id)
		return nil
	}))
}

func TestPointsRepository_MerchantQueries(t *testing.T) {
	store, ctx, cancel, _ := setupStore(t)
	defer cancel()

	merchant := uniqueID("merchant")
	now := time.Now().UTC().Truncate(time.Microsecond)
	seed := []struct {
		tier    string
		txnType points.TransactionType
		earned  int64
		balance int64
		txnAge  time.Duration
	}{
		{"Gold", points.TypeEarnPurchase, 900, 700, time.Hour},
		{"Bronze", points.TypeEarnReferral, 100, 100, time.Hour},
		{"Silver", points.TypeEarnBonus, 400, 50, 40 * 24 * time.Hour},
	}
	ids := make([]string, len(seed))
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		for i, s := range seed {
			ids[i] = uniqueID("member")
			acc := newAccount(ids[i])
			acc.MerchantID = merchant
			acc.CurrentTier = s.tier
			acc.PointsEarned = s.earned
			acc.PointsBalance = s.balance
			acc.PointsSpent = s.earned - s.balance
			if err := tx.Points().CreateAccount(ctx, &acc); err != nil {
				return err
			}
			if err := tx.Points().AppendTransaction(ctx, &points.Transaction{
				ID:           uuid.NewString(),
				AccountID:    acc.ID,
				Type:         s.txnType,
				Points:       s.earned,
				BalanceAfter: s.earned,
				CreatedAt:    now.Add(-s.txnAge),
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	var all, silverUp, page []points.Account
	var stats points.MerchantStats
	require.NoError(t, store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		if all, err = tx.Points().ListMerchantAccounts(ctx, points.MemberFilter{MerchantID: merchant}); err != nil {
			return err
		}
		if silverUp, err = tx.Points().ListMerchantAccounts(ctx, points.MemberFilter{
			MerchantID: merchant, Tier: "Silver",
		}); err != nil {
			return err
		}
		if page, err = tx.Points().ListMerchantAccounts(ctx, points.MemberFilter{
			MerchantID: merchant, MinBalance: 60, Limit: 1, Offset: 1,
		}); err != nil {
			return err
		}
		stats, err = tx.Points().MerchantStats(ctx, merchant, now.Add(-30*24*time.Hour))
		return err
	}))

	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[0], ids[2], ids[1]}, []string{all[0].ID, all[1].ID, all[2].ID})
	require.Len(t, silverUp, 1)
	assert.Equal(t, ids[2], silverUp[0].ID)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	assert.Equal(t, merchant, stats.MerchantID)
	assert.Equal(t, int64(3), stats.TotalMembers)
	assert.Equal(t, int64(1), stats.ActiveMembers)
	assert.Equal(t, int64(1400), stats.PointsIssued)
	assert.Equal(t, int64(550), stats.PointsRedeemed)
	assert.Equal(t, int64(850), stats.PointsBalance)
	assert.Equal(t, map[string]int64{"Gold": 1, "Silver": 1, "Bronze": 1}, stats.TierBreakdown)
}
