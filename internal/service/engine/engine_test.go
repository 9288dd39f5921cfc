package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/gopher-loyalty/internal/events"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/repo/memstore"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	"github.com/talx-hub/gopher-loyalty/internal/service/config"
	pointsengine "github.com/talx-hub/gopher-loyalty/internal/service/points"
	"github.com/talx-hub/gopher-loyalty/internal/service/sweeper"
	"github.com/talx-hub/gopher-loyalty/internal/utils/clock"
)

func TestEngine_Overview(t *testing.T) {
	ctx := context.Background()
	rec := &events.Recorder{}
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	e := New(memstore.New(), config.DefaultCatalog(),
		WithClock(clk),
		WithPublisher(rec),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithSweepOptions(sweeper.WithWorkers(2)),
	)

	_, err := e.Overview(ctx, "ghost")
	require.ErrorIs(t, err, serviceerrs.ErrAccountNotFound)

	_, err = e.Points.OpenAccount(ctx, "alice", "cafe", true)
	require.NoError(t, err)
	_, err = e.Points.EarnPoints(ctx, pointsengine.EarnRequest{
		AccountID: "alice", Source: points.TypeEarnBonus, BaseAmount: decimal.NewFromInt(120),
	})
	require.NoError(t, err)

	o, err := e.Overview(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(120), o.Points.Balance)
	assert.Nil(t, o.Wallet)

	w, err := e.Wallets.OpenWallet(ctx, "alice", "cafe")
	require.NoError(t, err)
	_, err = e.Wallets.ProcessCashTopUp(ctx, w.ID, 5000, "front desk")
	require.NoError(t, err)

	o, err = e.Overview(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, o.Wallet)
	assert.Equal(t, int64(5000), o.Wallet.BalanceCents)
	assert.NotEmpty(t, rec.Events())

	clk.Advance(2 * 366 * 24 * time.Hour)
	report, err := e.Sweeper.SweepOnce(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(120), report.PointsExpired)
}
