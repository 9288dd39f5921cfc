package repo

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	pointsengine "github.com/talx-hub/gopher-loyalty/internal/service/points"
	"github.com/talx-hub/gopher-loyalty/internal/service/redemption"
	walletengine "github.com/talx-hub/gopher-loyalty/internal/service/wallet"
)

func TestStore_concurrentRedemption(t *testing.T) {
	store, ctx, cancel, _ := setupStore(t)
	defer cancel()

	pts := pointsengine.New(store, defaults{})
	redeemer := redemption.New(store, pts)

	accountID := uniqueID("race")
	_, err := pts.OpenAccount(ctx, accountID, "merchant-1", false)
	require.NoError(t, err)
	_, err = pts.EarnPoints(ctx, pointsengine.EarnRequest{
		AccountID: accountID, Source: points.TypeEarnBonus, BaseAmount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	rw, err := redeemer.SaveReward(ctx, reward.Reward{
		MerchantID: "merchant-1", Name: "Lunch", PointsRequired: 60, IsActive: true,
	})
	require.NoError(t, err)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = redeemer.RedeemReward(ctx, redemption.RedeemRequest{
				AccountID: accountID, RewardID: rw.ID,
			})
		}()
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, serviceerrs.ErrInsufficientPoints)
	}
	assert.Equal(t, 1, won)

	summary, err := pts.GetSummary(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), summary.Balance)
}

func TestStore_concurrentTopUpCompletion(t *testing.T) {
	store, ctx, cancel, _ := setupStore(t)
	defer cancel()

	wallets := walletengine.New(store, defaults{})
	w, err := wallets.OpenWallet(ctx, uniqueID("topup"), "merchant-1")
	require.NoError(t, err)
	s, err := wallets.InitiateTopUp(ctx, walletengine.TopUpRequest{
		WalletID: w.ID, AmountCents: 20000, Method: wallet.MethodStripe,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1000), s.BonusCents)

	ref := uniqueID("pi")
	const callers = 6
	results := make([]walletengine.Credit, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := wallets.CompleteTopUp(ctx, s.ID, ref)
			assert.NoError(t, err)
			results[i] = c
		}()
	}
	wg.Wait()

	fresh := 0
	for _, c := range results {
		if !c.Replayed {
			fresh++
		}
		assert.Equal(t, int64(20000), c.AmountCents)
	}
	assert.Equal(t, 1, fresh)

	b, err := wallets.GetBalance(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), b.BalanceCents)
	assert.Equal(t, int64(1000), b.BonusBalanceCents)

	other, err := wallets.InitiateTopUp(ctx, walletengine.TopUpRequest{
		WalletID: w.ID, AmountCents: 5000, Method: wallet.MethodStripe,
	})
	require.NoError(t, err)
	_, err = wallets.CompleteTopUp(ctx, other.ID, ref)
	require.True(t, errors.Is(err, serviceerrs.ErrDuplicatePaymentRef))
}

func TestStore_spendAndExpire(t *testing.T) {
	store, ctx, cancel, _ := setupStore(t)
	defer cancel()

	wallets := walletengine.New(store, defaults{})
	w, err := wallets.OpenWallet(ctx, uniqueID("spend"), "merchant-1")
	require.NoError(t, err)
	_, err = wallets.ProcessCashTopUp(ctx, w.ID, 10000, "cashier")
	require.NoError(t, err)

	debit, err := wallets.SpendWallet(ctx, walletengine.SpendRequest{
		WalletID: w.ID, AmountCents: 700, ReferenceID: uniqueID("order"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), debit.BonusCents)
	assert.Equal(t, int64(200), debit.CashCents)

	_, err = wallets.SpendWallet(ctx, walletengine.SpendRequest{
		WalletID: w.ID, AmountCents: 100000, ReferenceID: uniqueID("order"),
	})
	require.ErrorIs(t, err, serviceerrs.ErrInsufficientFunds)

	txns, err := wallets.Transactions(ctx, w.ID, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, wallet.TypePayment, txns[0].Type)
}
