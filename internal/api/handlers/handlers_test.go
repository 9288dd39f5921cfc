package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/talx-hub/gopher-loyalty/internal/api/handlers/mocks"
	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
	"github.com/talx-hub/gopher-loyalty/internal/repo/memstore"
	"github.com/talx-hub/gopher-loyalty/internal/service/config"
	"github.com/talx-hub/gopher-loyalty/internal/service/engine"
	pointsengine "github.com/talx-hub/gopher-loyalty/internal/service/points"
	"github.com/talx-hub/gopher-loyalty/internal/service/redemption"
	"github.com/talx-hub/gopher-loyalty/internal/service/sweeper"
	walletengine "github.com/talx-hub/gopher-loyalty/internal/service/wallet"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	"github.com/talx-hub/gopher-loyalty/internal/utils/clock"
)

var testStart = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	return engine.New(memstore.New(), config.DefaultCatalog(),
		engine.WithClock(clock.NewManual(testStart)),
		engine.WithLogger(discard()),
	)
}

func call(t *testing.T,
	handlerFunc http.HandlerFunc,
	method, body string,
	params map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()

	target := "/"
	if strings.HasPrefix(body, "?") {
		target, body = "/"+body, ""
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rr := httptest.NewRecorder()
	handlerFunc(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), rr.Body.String())
	return out
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want int
	}{
		{serviceerrs.ErrInvalidAmount, "validation", http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", serviceerrs.ErrAmountOutOfRange), "wrapped validation", http.StatusBadRequest},
		{serviceerrs.ErrAccountNotFound, "not found", http.StatusNotFound},
		{serviceerrs.ErrInsufficientFunds, "insufficient", http.StatusPaymentRequired},
		{serviceerrs.ErrDuplicatePaymentRef, "conflict", http.StatusConflict},
		{&serviceerrs.TransientError{Err: errors.New("conn reset"), Attempts: 4}, "transient",
			http.StatusServiceUnavailable},
		{&serviceerrs.TooManyRequestsError{RetryAfter: time.Second, Limit: 1}, "rate limited",
			http.StatusTooManyRequests},
		{serviceerrs.ErrLedgerInconsistent, "invariant", http.StatusInternalServerError},
		{errors.New("boom"), "unknown", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestWriteError_hidesInternalErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, discard(), httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pg: secret detail"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret detail")

	rr = httptest.NewRecorder()
	writeError(rr, discard(), httptest.NewRequest(http.MethodGet, "/", nil),
		&serviceerrs.TransientError{Err: errors.New("conn reset"), Attempts: 4})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, transientRetryAfter, rr.Header().Get("Retry-After"))
}

func TestPointsHandler(t *testing.T) {
	e := newTestEngine(t)
	h := NewPointsHandler(e.Points, e, discard())
	alice := map[string]string{ParamAccountID: "alice"}

	tests := []struct {
		name     string
		handler  http.HandlerFunc
		method   string
		body     string
		params   map[string]string
		wantCode int
	}{
		{"open", h.OpenAccount, http.MethodPost,
			`{"account_id":"alice","merchant_id":"cafe","is_resident":true}`, nil, http.StatusOK},
		{"open again", h.OpenAccount, http.MethodPost,
			`{"account_id":"alice","merchant_id":"cafe"}`, nil, http.StatusOK},
		{"open without merchant", h.OpenAccount, http.MethodPost,
			`{"account_id":"bob"}`, nil, http.StatusBadRequest},
		{"open unknown field", h.OpenAccount, http.MethodPost,
			`{"account_id":"bob","merchant_id":"cafe","vip":true}`, nil, http.StatusBadRequest},
		{"open decoding error", h.OpenAccount, http.MethodPost,
			`{"account_id":42}`, nil, http.StatusBadRequest},
		{"earn purchase", h.EarnPoints, http.MethodPost,
			`{"source":"earn_purchase","base_amount":"120.75","reference_id":"order-1"}`, alice, http.StatusOK},
		{"earn with spend source", h.EarnPoints, http.MethodPost,
			`{"source":"redeem","base_amount":"10"}`, alice, http.StatusBadRequest},
		{"earn negative", h.EarnPoints, http.MethodPost,
			`{"source":"earn_bonus","base_amount":"-1"}`, alice, http.StatusBadRequest},
		{"earn past int64", h.EarnPoints, http.MethodPost,
			`{"source":"earn_bonus","base_amount":"100000000000000000000"}`, alice, http.StatusBadRequest},
		{"earn unknown account", h.EarnPoints, http.MethodPost,
			`{"source":"earn_bonus","base_amount":"10"}`, map[string]string{ParamAccountID: "ghost"},
			http.StatusNotFound},
		{"signup", h.AwardSignup, http.MethodPost, "", alice, http.StatusOK},
		{"referral", h.AwardReferral, http.MethodPost, `{"reference_id":"bob"}`, alice, http.StatusOK},
		{"spend too much", h.SpendPoints, http.MethodPost, `{"points":100000}`, alice, http.StatusPaymentRequired},
		{"spend zero", h.SpendPoints, http.MethodPost, `{"points":0}`, alice, http.StatusBadRequest},
		{"spend", h.SpendPoints, http.MethodPost, `{"points":20,"reference_id":"order-2"}`, alice, http.StatusOK},
		{"adjust zero", h.AdjustPoints, http.MethodPost, `{"delta":0}`, alice, http.StatusBadRequest},
		{"adjust", h.AdjustPoints, http.MethodPost, `{"delta":-20,"notes":"goodwill reversal"}`, alice, http.StatusOK},
		{"summary", h.GetSummary, http.MethodGet, "", alice, http.StatusOK},
		{"summary unknown", h.GetSummary, http.MethodGet, "", map[string]string{ParamAccountID: "ghost"},
			http.StatusNotFound},
		{"forecast", h.GetForecast, http.MethodGet, "", alice, http.StatusOK},
		{"history", h.GetHistory, http.MethodGet, "?limit=2", alice, http.StatusOK},
		{"history bad limit", h.GetHistory, http.MethodGet, "?limit=-1", alice, http.StatusBadRequest},
		{"overview", h.GetOverview, http.MethodGet, "", alice, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := call(t, tt.handler, tt.method, tt.body, tt.params)
			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
		})
	}

	// 120 from the purchase, 100 resident signup, 100 referral, minus 20 spent and 20 adjusted.
	summary := decodeBody[pointsengine.Summary](t, call(t, h.GetSummary, http.MethodGet, "", alice))
	assert.Equal(t, int64(280), summary.Balance)

	history := decodeBody[[]points.Transaction](t, call(t, h.GetHistory, http.MethodGet, "?limit=2", alice))
	require.Len(t, history, 2)
	assert.Equal(t, points.TypeAdjustment, history[0].Type)

	rr := call(t, h.AwardSignup, http.MethodPost, "", alice)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeBody[pointsengine.EarnResult](t, rr).AlreadyAwarded)
}

func TestLimitParam(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", model.DefaultListLimit, false},
		{"?limit=0", model.DefaultListLimit, false},
		{"?limit=7", 7, false},
		{"?limit=100000000", model.MaxListLimit, false},
		{"?limit=-1", 0, true},
		{"?limit=ten", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := limitParam(httptest.NewRequest(http.MethodGet, "/"+tt.query, http.NoBody))
			if tt.wantErr {
				require.ErrorIs(t, err, serviceerrs.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMerchantHandler(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	for id, earned := range map[string]int64{"ann": 1200, "bob": 80, "cid": 400} {
		_, err := e.Points.OpenAccount(ctx, id, "cafe", false)
		require.NoError(t, err)
		_, err = e.Points.EarnPoints(ctx, pointsengine.EarnRequest{
			AccountID: id, Source: points.TypeEarnBonus, BaseAmount: decimal.NewFromInt(earned),
		})
		require.NoError(t, err)
	}
	_, err := e.Points.OpenAccount(ctx, "dora", "bakery", false)
	require.NoError(t, err)

	h := NewMerchantHandler(e.Points, discard())
	cafe := map[string]string{ParamMerchantID: "cafe"}

	members := func(query string) []string {
		rr := call(t, h.ListMembers, http.MethodGet, query, cafe)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var ids []string
		for _, a := range decodeBody[[]points.Account](t, rr) {
			ids = append(ids, a.ID)
		}
		return ids
	}
	assert.Equal(t, []string{"ann", "cid", "bob"}, members(""))
	assert.Equal(t, []string{"ann"}, members("?tier=Silver"))
	assert.Equal(t, []string{"ann", "cid"}, members("?min_balance=100"))
	assert.Equal(t, []string{"cid"}, members("?limit=1&offset=1"))

	rr := call(t, h.ListMembers, http.MethodGet, "?offset=-3", cafe)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = call(t, h.ListMembers, http.MethodGet, "?min_balance=lots", cafe)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(t, h.GetStats, http.MethodGet, "", cafe)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decodeBody[points.MerchantStats](t, rr)
	assert.Equal(t, int64(3), stats.TotalMembers)
	assert.Equal(t, int64(3), stats.ActiveMembers)
	assert.Equal(t, int64(1680), stats.PointsIssued)
	assert.Equal(t, map[string]int64{"Silver": 1, "Bronze": 2}, stats.TierBreakdown)

	rr = call(t, h.GetStats, http.MethodGet, "", map[string]string{ParamMerchantID: ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRewardHandler(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Points.OpenAccount(ctx, "alice", "cafe", false)
	require.NoError(t, err)
	_, err = e.Points.EarnPoints(ctx, pointsengine.EarnRequest{
		AccountID: "alice", Source: points.TypeEarnBonus, BaseAmount: decimal.NewFromInt(150),
	})
	require.NoError(t, err)

	h := NewRewardHandler(e.Rewards, discard())
	alice := map[string]string{ParamAccountID: "alice"}

	rr := call(t, h.SaveReward, http.MethodPut,
		`{"merchant_id":"cafe","name":"Coffee","points_required":100,"max_per_user":1,"is_active":true}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rw := decodeBody[reward.Reward](t, rr)
	require.NotEmpty(t, rw.ID)

	rr = call(t, h.SaveReward, http.MethodPut, `{"merchant_id":"cafe","name":"","points_required":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body := fmt.Sprintf(`{"reward_id":%q,"attempt_id":"try-1"}`, rw.ID)
	rr = call(t, h.Redeem, http.MethodPost, body, alice)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decodeBody[redemption.Result](t, rr)

	rr = call(t, h.Redeem, http.MethodPost, body, alice)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	replayed := decodeBody[redemption.Result](t, rr)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, first.Redemption.ID, replayed.Redemption.ID)

	rr = call(t, h.Redeem, http.MethodPost, fmt.Sprintf(`{"reward_id":%q,"attempt_id":"try-2"}`, rw.ID), alice)
	assert.Equal(t, http.StatusPaymentRequired, rr.Code, "50 points left")

	rr = call(t, h.Redeem, http.MethodPost, `{"reward_id":"missing"}`, alice)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = call(t, h.ListRedemptions, http.MethodGet, "", alice)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]reward.Redemption](t, rr), 1)

	code := map[string]string{ParamCode: first.Code}
	rr = call(t, h.MarkUsed, http.MethodPost, "", code)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, reward.StatusUsed, decodeBody[reward.Redemption](t, rr).Status)

	rr = call(t, h.MarkUsed, http.MethodPost, "", code)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = call(t, h.MarkUsed, http.MethodPost, "", map[string]string{ParamCode: "1234"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWalletHandler(t *testing.T) {
	e := newTestEngine(t)
	h := NewWalletHandler(e.Wallets, discard())

	rr := call(t, h.OpenWallet, http.MethodPost, `{"account_id":"alice","merchant_id":"cafe"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	wl := decodeBody[wallet.Wallet](t, rr)
	byWallet := map[string]string{ParamWalletID: wl.ID}

	rr = call(t, h.CashTopUp, http.MethodPost, `{"amount_cents":20000,"processed_by":"desk"}`, byWallet)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	credit := decodeBody[walletengine.Credit](t, rr)
	assert.Equal(t, int64(20000), credit.BalanceCents)
	assert.Equal(t, int64(1000), credit.BonusCents)

	rr = call(t, h.InitiateTopUp, http.MethodPost, `{"amount_cents":5000,"method":"stripe"}`, byWallet)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	session := decodeBody[wallet.TopUpSession](t, rr)
	bySession := map[string]string{ParamSessionID: session.ID}

	rr = call(t, h.MarkProcessing, http.MethodPost, "", bySession)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = call(t, h.CompleteTopUp, http.MethodPost, `{"external_payment_ref":"pi_1"}`, bySession)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.False(t, decodeBody[walletengine.Credit](t, rr).Replayed)

	rr = call(t, h.CompleteTopUp, http.MethodPost, `{"external_payment_ref":"pi_1"}`, bySession)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decodeBody[walletengine.Credit](t, rr).Replayed)

	rr = call(t, h.CancelTopUp, http.MethodPost, "", bySession)
	assert.Equal(t, http.StatusConflict, rr.Code)

	tests := []struct {
		name     string
		handler  http.HandlerFunc
		method   string
		body     string
		params   map[string]string
		wantCode int
	}{
		{"open without account", h.OpenWallet, http.MethodPost, `{"merchant_id":"cafe"}`, nil,
			http.StatusBadRequest},
		{"top-up below minimum", h.InitiateTopUp, http.MethodPost, `{"amount_cents":10,"method":"stripe"}`,
			byWallet, http.StatusBadRequest},
		{"top-up unknown method", h.InitiateTopUp, http.MethodPost, `{"amount_cents":5000,"method":"cheque"}`,
			byWallet, http.StatusBadRequest},
		{"complete without ref", h.CompleteTopUp, http.MethodPost, `{}`, bySession, http.StatusBadRequest},
		{"session unknown", h.GetSession, http.MethodGet, "", map[string]string{ParamSessionID: "nope"},
			http.StatusNotFound},
		{"session", h.GetSession, http.MethodGet, "", bySession, http.StatusOK},
		{"spend too much", h.SpendWallet, http.MethodPost, `{"amount_cents":1000000}`, byWallet,
			http.StatusPaymentRequired},
		{"spend", h.SpendWallet, http.MethodPost, `{"amount_cents":1500,"reference_id":"order-1"}`, byWallet,
			http.StatusOK},
		{"refund", h.Refund, http.MethodPost, `{"amount_cents":500,"reference_id":"order-1"}`, byWallet,
			http.StatusOK},
		{"refund zero", h.Refund, http.MethodPost, `{"amount_cents":0}`, byWallet, http.StatusBadRequest},
		{"balance", h.GetBalance, http.MethodGet, "", byWallet, http.StatusOK},
		{"balance unknown", h.GetBalance, http.MethodGet, "", map[string]string{ParamWalletID: "nope"},
			http.StatusNotFound},
		{"transactions", h.GetTransactions, http.MethodGet, "?limit=10", byWallet, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := call(t, tt.handler, tt.method, tt.body, tt.params)
			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
		})
	}

	// 20000 + 5000 cash, 1000 bonus; 1000 bonus then 500 cash spent; 500 refunded to cash.
	b := decodeBody[walletengine.Balance](t, call(t, h.GetBalance, http.MethodGet, "", byWallet))
	assert.Equal(t, int64(25000), b.BalanceCents)
	assert.Zero(t, b.BonusBalanceCents)

	rr = call(t, h.InitiateTopUp, http.MethodPost, `{"amount_cents":5000,"method":"stripe"}`, byWallet)
	require.Equal(t, http.StatusCreated, rr.Code)
	other := decodeBody[wallet.TopUpSession](t, rr)
	rr = call(t, h.FailTopUp, http.MethodPost, `{"reason":"card declined"}`,
		map[string]string{ParamSessionID: other.ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	failed := decodeBody[wallet.TopUpSession](t, rr)
	assert.Equal(t, wallet.SessionFailed, failed.Status)
	assert.Equal(t, "card declined", failed.FailureReason)
}

func TestHealthHandler_Ping(t *testing.T) {
	tests := []struct {
		err      error
		name     string
		wantCode int
	}{
		{nil, "healthy", http.StatusOK},
		{errors.New("connection refused"), "unhealthy", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := mocks.NewMockHealthChecker(t)
			checker.EXPECT().Healthy(mock.Anything).Return(tt.err)

			h := NewHealthHandler(checker, discard())
			rr := call(t, h.Ping, http.MethodGet, "", nil)
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestSweepHandler_Sweep(t *testing.T) {
	clk := clock.NewManual(testStart)

	runner := mocks.NewMockSweepRunner(t)
	runner.EXPECT().
		SweepOnce(mock.Anything, testStart).
		Return(sweeper.Report{Accounts: 3, PointsExpired: 90}, nil).
		Once()
	runner.EXPECT().
		SweepOnce(mock.Anything, testStart.Add(time.Hour)).
		Return(sweeper.Report{}, &serviceerrs.TransientError{Err: errors.New("conn reset"), Attempts: 4}).
		Once()

	h := NewSweepHandler(runner, clk, discard())

	rr := call(t, h.Sweep, http.MethodPost, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	report := decodeBody[sweeper.Report](t, rr)
	assert.Equal(t, int64(90), report.PointsExpired)

	clk.Advance(time.Hour)
	rr = call(t, h.Sweep, http.MethodPost, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
