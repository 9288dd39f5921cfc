package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

func TestRewardRepository(t *testing.T) {
	store, ctx, cancel, _ := setupStore(t)
	defer cancel()

	accountID := uniqueID("redeemer")
	acc := newAccount(accountID)
	rw := reward.Reward{
		ID: uuid.NewString(), MerchantID: "merchant-1", Name: "Coffee",
		PointsRequired: 60, MaxPerUser: 2, ValidityDays: 30, IsActive: true,
	}
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	code := uuid.NewString()[:12]
	red := reward.Redemption{
		ID: uuid.NewString(), AccountID: accountID, RewardID: rw.ID, AttemptID: "attempt-1",
		Code: code, Status: reward.StatusApproved, PointsSpent: 60,
		ValidUntil: now.AddDate(0, 0, 30), CreatedAt: now,
	}

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Points().CreateAccount(ctx, &acc); err != nil {
			return err
		}
		if err := tx.Rewards().SaveReward(ctx, &rw); err != nil {
			return err
		}
		rw.IsActive = false
		if err := tx.Rewards().SaveReward(ctx, &rw); err != nil {
			return err
		}
		return tx.Rewards().InsertRedemption(ctx, &red)
	}))

	err := store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		dup := red
		dup.ID = uuid.NewString()
		dup.Code = uuid.NewString()[:12]
		return tx.Rewards().InsertRedemption(ctx, &dup)
	})
	require.ErrorIs(t, err, serviceerrs.ErrAlreadyExists, "same attempt")

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		noAttempt := red
		noAttempt.ID = uuid.NewString()
		noAttempt.AttemptID = ""
		noAttempt.Code = uuid.NewString()[:12]
		noAttempt.ValidUntil = now.AddDate(1, 0, 0)
		return tx.Rewards().InsertRedemption(ctx, &noAttempt)
	}))

	require.NoError(t, store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		got, err := tx.Rewards().GetReward(ctx, rw.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)

		_, err = tx.Rewards().GetReward(ctx, uuid.NewString())
		require.ErrorIs(t, err, serviceerrs.ErrRewardNotFound)

		n, err := tx.Rewards().CountRedemptions(ctx, accountID, rw.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		prior, err := tx.Rewards().FindRedemptionByAttempt(ctx, accountID, "attempt-1")
		require.NoError(t, err)
		assert.Equal(t, red.ID, prior.ID)

		_, err = tx.Rewards().FindRedemptionByAttempt(ctx, accountID, "attempt-2")
		require.ErrorIs(t, err, serviceerrs.ErrRedemptionNotFound)

		exists, err := tx.Rewards().CodeExists(ctx, code)
		require.NoError(t, err)
		assert.True(t, exists)

		list, err := tx.Rewards().ListRedemptions(ctx, accountID)
		require.NoError(t, err)
		assert.Len(t, list, 2)
		return nil
	}))

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		locked, err := tx.Rewards().LockRedemptionByCode(ctx, code)
		if err != nil {
			return err
		}
		used := now.Add(time.Hour)
		locked.Status = reward.StatusUsed
		locked.UsedAt = &used
		return tx.Rewards().UpdateRedemption(ctx, &locked)
	}))

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.Rewards().ExpireRedemptions(ctx, now.AddDate(0, 2, 0))
		require.NoError(t, err)

		list, err := tx.Rewards().ListRedemptions(ctx, accountID)
		require.NoError(t, err)
		for _, r := range list {
			if r.ID == red.ID {
				assert.Equal(t, reward.StatusUsed, r.Status)
				require.NotNil(t, r.UsedAt)
				assert.Equal(t, "attempt-1", r.AttemptID)
			} else {
				assert.Equal(t, reward.StatusApproved, r.Status)
				assert.Empty(t, r.AttemptID)
			}
		}
		return nil
	}))
}
