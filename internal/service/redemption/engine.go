// Package redemption exchanges points for rewards and tracks the issued codes.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talx-hub/gopher-loyalty/internal/events"
	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/model/program"
	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	"github.com/talx-hub/gopher-loyalty/internal/utils/clock"
)

const maxCodeAttempts = 5

// Spender debits points inside a store unit that already holds the account lock.
type Spender interface {
	Spend(ctx context.Context, tx ledger.Tx, acc *points.Account, debit points.Debit) (points.Transaction, error)
	Invalidate(ctx context.Context, accountID string)
}

type Engine struct {
	store     ledger.Store
	points    Spender
	codes     CodeGenerator
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

func WithCodes(g CodeGenerator) Option {
	return func(e *Engine) { e.codes = g }
}

func New(store ledger.Store, spender Spender, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		points:    spender,
		codes:     LuhnCodes{},
		publisher: &events.NoopPublisher{},
		clock:     clock.System{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("module", "redemption")
	return e
}

type RedeemRequest struct {
	AccountID string
	RewardID  string
	// AttemptID makes a retried request return the first outcome instead of redeeming twice.
	AttemptID string
}

type Result struct {
	Redemption reward.Redemption `json:"redemption"`
	Code       string            `json:"code"`
	Replayed   bool              `json:"replayed,omitempty"`
}

// RedeemReward spends the reward's points and issues an approved redemption in one store unit.
// Checks run in order: reward active, balance sufficient, per-user limit not reached.
func (e *Engine) RedeemReward(ctx context.Context, req RedeemRequest) (Result, error) {
	if req.AccountID == "" || req.RewardID == "" {
		return Result{}, serviceerrs.ErrInvalidRequest
	}

	var res Result
	var pending events.Pending
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		pending.Reset()
		var err error
		res, err = e.redeem(ctx, tx, &pending, req)
		return err
	})
	if err != nil {
		return Result{}, err //nolint: wrapcheck // error from store unit
	}

	if !res.Replayed {
		e.points.Invalidate(ctx, req.AccountID)
	}
	pending.Flush(ctx, e.publisher, e.log)
	return res, nil
}

func (e *Engine) redeem(ctx context.Context, tx ledger.Tx, pending *events.Pending, req RedeemRequest,
) (Result, error) {
	acc, err := tx.Points().LockAccount(ctx, req.AccountID)
	if err != nil {
		return Result{}, err //nolint: wrapcheck // error from store
	}

	if req.AttemptID != "" {
		prior, err := tx.Rewards().FindRedemptionByAttempt(ctx, acc.ID, req.AttemptID)
		switch {
		case err == nil:
			return Result{Redemption: prior, Code: FormatCode(prior.Code), Replayed: true}, nil
		case !errors.Is(err, serviceerrs.ErrRedemptionNotFound):
			return Result{}, err //nolint: wrapcheck // error from store
		}
	}

	rw, err := tx.Rewards().GetReward(ctx, req.RewardID)
	if err != nil {
		return Result{}, err //nolint: wrapcheck // error from store
	}
	if rw.MerchantID != acc.MerchantID {
		return Result{}, serviceerrs.ErrRewardNotFound
	}
	if !rw.IsActive {
		return Result{}, serviceerrs.ErrRewardInactive
	}
	if acc.PointsBalance < rw.PointsRequired {
		return Result{}, serviceerrs.ErrInsufficientPoints
	}
	if rw.MaxPerUser > 0 {
		count, err := tx.Rewards().CountRedemptions(ctx, acc.ID, rw.ID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to count redemptions: %w", err)
		}
		if count >= rw.MaxPerUser {
			return Result{}, serviceerrs.ErrRedemptionLimitExceeded
		}
	}

	now := e.clock.Now()
	validityDays := rw.ValidityDays
	if validityDays <= 0 {
		validityDays = program.DefaultRedemptionDays
	}
	red := reward.Redemption{
		ID:          uuid.NewString(),
		AccountID:   acc.ID,
		RewardID:    rw.ID,
		AttemptID:   req.AttemptID,
		PointsSpent: rw.PointsRequired,
		Status:      reward.StatusApproved,
		ValidUntil:  now.AddDate(0, 0, validityDays),
		CreatedAt:   now,
	}

	if rw.PointsRequired > 0 {
		if _, err = e.points.Spend(ctx, tx, &acc, points.Debit{
			Type:          points.TypeRedeem,
			Points:        rw.PointsRequired,
			ReferenceType: "redemption",
			ReferenceID:   red.ID,
			Notes:         rw.Name,
		}); err != nil {
			return Result{}, err //nolint: wrapcheck // domain error
		}
	}

	if red.Code, err = e.uniqueCode(ctx, tx); err != nil {
		return Result{}, err
	}
	if err = tx.Rewards().InsertRedemption(ctx, &red); err != nil {
		return Result{}, fmt.Errorf("failed to insert redemption: %w", err)
	}

	pending.Add(events.Event{
		Type:       events.TypeRewardRedeemed,
		AccountID:  acc.ID,
		OccurredAt: now,
		Payload: map[string]any{
			"reward_id":     rw.ID,
			"redemption_id": red.ID,
			"points":        rw.PointsRequired,
		},
	})
	return Result{Redemption: red, Code: FormatCode(red.Code)}, nil
}

func (e *Engine) uniqueCode(ctx context.Context, tx ledger.Tx) (string, error) {
	for range maxCodeAttempts {
		code, err := e.codes.Generate()
		if err != nil {
			return "", err //nolint: wrapcheck // error from generator
		}
		exists, err := tx.Rewards().CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("failed to generate a unique redemption code")
}

// MarkUsed moves an approved redemption to used. Only the first call for a code succeeds.
func (e *Engine) MarkUsed(ctx context.Context, rawCode string) (reward.Redemption, error) {
	code, err := NormalizeCode(rawCode)
	if err != nil {
		return reward.Redemption{}, err
	}

	var red reward.Redemption
	err = e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		red, err = tx.Rewards().LockRedemptionByCode(ctx, code)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}

		now := e.clock.Now()
		switch red.Status {
		case reward.StatusUsed:
			return serviceerrs.ErrRedemptionUsed
		case reward.StatusExpired:
			return serviceerrs.ErrRedemptionExpired
		}
		if !red.ValidUntil.After(now) {
			return serviceerrs.ErrRedemptionExpired
		}

		red.Status = reward.StatusUsed
		red.UsedAt = &now
		return tx.Rewards().UpdateRedemption(ctx, &red) //nolint: wrapcheck // error from store
	})
	if err != nil {
		return reward.Redemption{}, err //nolint: wrapcheck // error from store unit
	}
	return red, nil
}

func (e *Engine) ListRedemptions(ctx context.Context, accountID string) ([]reward.Redemption, error) {
	var out []reward.Redemption
	err := e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.Points().GetAccount(ctx, accountID); err != nil {
			return err //nolint: wrapcheck // error from store
		}
		var err error
		out, err = tx.Rewards().ListRedemptions(ctx, accountID)
		return err //nolint: wrapcheck // error from store
	})
	if err != nil {
		return nil, err //nolint: wrapcheck // error from store unit
	}
	return out, nil
}

// SaveReward creates or replaces a catalog entry.
func (e *Engine) SaveReward(ctx context.Context, rw reward.Reward) (reward.Reward, error) {
	if rw.PointsRequired < 0 || rw.MaxPerUser < 0 || rw.MerchantID == "" || rw.Name == "" {
		return reward.Reward{}, serviceerrs.ErrInvalidRequest
	}
	if rw.ID == "" {
		rw.ID = uuid.NewString()
	}
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Rewards().SaveReward(ctx, &rw) //nolint: wrapcheck // error from store
	})
	if err != nil {
		return reward.Reward{}, err //nolint: wrapcheck // error from store unit
	}
	return rw, nil
}
