// Package points owns the points ledger of loyalty accounts: earning, spending,
// expiry and the consistency of the cached balances with the append-only log.
package points

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talx-hub/gopher-loyalty/internal/events"
	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/model/program"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	tiers "github.com/talx-hub/gopher-loyalty/internal/service/tier"
	"github.com/talx-hub/gopher-loyalty/internal/utils/caching"
	"github.com/talx-hub/gopher-loyalty/internal/utils/clock"
)

type Programs interface {
	Loyalty(merchantID string) (program.Loyalty, error)
}

type Engine struct {
	store       ledger.Store
	programs    Programs
	publisher   events.Publisher
	cache       caching.Cache
	clock       clock.Clock
	log         *slog.Logger
	summaryTTL  time.Duration
	recentLimit int
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithCache(c caching.Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.summaryTTL = ttl
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithRecentLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.recentLimit = n
		}
	}
}

func New(store ledger.Store, programs Programs, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		programs:    programs,
		publisher:   &events.NoopPublisher{},
		cache:       caching.Noop{},
		clock:       clock.System{},
		log:         slog.Default(),
		summaryTTL:  time.Minute,
		recentLimit: model.DefaultRecentTransactions,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("module", "points")
	return e
}

type EarnRequest struct {
	AccountID     string
	Source        points.TransactionType
	ReferenceType string
	ReferenceID   string
	Notes         string
	// BaseAmount is the purchase amount in major currency units for earn_purchase
	// and the number of points for every other source.
	BaseAmount decimal.Decimal
}

type EarnResult struct {
	Tier        string `json:"tier"`
	Points      int64  `json:"points"`
	NewBalance  int64  `json:"new_balance"`
	TierChanged bool   `json:"tier_changed"`
	// AlreadyAwarded is set when a one-shot source had already credited the account.
	AlreadyAwarded bool `json:"already_awarded,omitempty"`
}

// OpenAccount creates the account or returns the existing one unchanged.
func (e *Engine) OpenAccount(ctx context.Context, accountID, merchantID string, isResident bool,
) (points.Account, error) {
	if accountID == "" || merchantID == "" {
		return points.Account{}, fmt.Errorf("%w: account and merchant ids are required",
			serviceerrs.ErrInvalidRequest)
	}
	prog, err := e.programs.Loyalty(merchantID)
	if err != nil {
		return points.Account{}, err //nolint: wrapcheck // domain error
	}

	var acc points.Account
	err = e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		existing, err := tx.Points().GetAccount(ctx, accountID)
		if err == nil {
			acc = existing
			return nil
		}
		if !errors.Is(err, serviceerrs.ErrAccountNotFound) {
			return err //nolint: wrapcheck // error from store
		}

		now := e.clock.Now()
		start := tiers.Resolve(prog.Tiers, 0).Current
		acc = points.Account{
			ID:            accountID,
			MerchantID:    merchantID,
			CurrentTier:   start.Name,
			TierUpdatedAt: now,
			IsResident:    isResident,
			Badges:        []string{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.Points().CreateAccount(ctx, &acc) //nolint: wrapcheck // error from store
	})
	if errors.Is(err, serviceerrs.ErrAlreadyExists) {
		// lost a race with a concurrent open
		err = e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
			var err error
			acc, err = tx.Points().GetAccount(ctx, accountID)
			return err //nolint: wrapcheck // error from store
		})
	}
	if err != nil {
		return points.Account{}, err //nolint: wrapcheck // error from store
	}
	return acc, nil
}

// EarnPoints credits an account from an earn source in a single store unit.
func (e *Engine) EarnPoints(ctx context.Context, req EarnRequest) (EarnResult, error) {
	if !req.Source.IsEarn() {
		return EarnResult{}, serviceerrs.ErrInvalidSource
	}
	if !req.BaseAmount.IsPositive() {
		return EarnResult{}, serviceerrs.ErrInvalidAmount
	}

	var res EarnResult
	var pending events.Pending
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		pending.Reset()
		var err error
		res, err = e.earn(ctx, tx, &pending, req)
		return err
	})
	if err != nil {
		return EarnResult{}, err //nolint: wrapcheck // error from store unit
	}

	e.afterCommit(ctx, req.AccountID, &pending)
	return res, nil
}

func (e *Engine) earn(ctx context.Context, tx ledger.Tx, pending *events.Pending, req EarnRequest,
) (EarnResult, error) {
	acc, err := tx.Points().LockAccount(ctx, req.AccountID)
	if err != nil {
		return EarnResult{}, err //nolint: wrapcheck // error from store
	}
	prog, err := e.programs.Loyalty(acc.MerchantID)
	if err != nil {
		return EarnResult{}, err //nolint: wrapcheck // domain error
	}
	if !prog.IsActive {
		return EarnResult{}, serviceerrs.ErrProgramInactive
	}

	current := EarnResult{NewBalance: acc.PointsBalance, Tier: acc.CurrentTier}
	if req.Source.IsOneShot() && oneShotAwarded(&acc, req.Source) {
		current.AlreadyAwarded = true
		return current, nil
	}

	amount, err := computePoints(&prog, &acc, req)
	if err != nil {
		return EarnResult{}, err
	}
	if amount == 0 {
		return current, nil
	}

	if req.Source.IsOneShot() {
		markOneShot(&acc, req.Source, e.clock.Now())
	}
	res, _, err := e.credit(ctx, tx, pending, &acc, &prog, creditEntry{
		Type:          req.Source,
		Points:        amount,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Notes:         req.Notes,
	})
	return res, err
}

func computePoints(prog *program.Loyalty, acc *points.Account, req EarnRequest) (int64, error) {
	pts := req.BaseAmount
	if req.Source == points.TypeEarnPurchase {
		pts = purchasePoints(prog, acc, req.BaseAmount)
	}
	pts = pts.Floor()
	if pts.GreaterThan(decimal.NewFromInt(model.MaxPointsPerEntry)) {
		return 0, fmt.Errorf("%w: %s points exceed the limit of %d per entry",
			serviceerrs.ErrInvalidAmount, pts, model.MaxPointsPerEntry)
	}
	return pts.IntPart(), nil
}

func purchasePoints(prog *program.Loyalty, acc *points.Account, base decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	rate := prog.PointsPerCurrency
	if !rate.IsPositive() {
		rate = one
	}
	pts := base.Mul(rate).Mul(tiers.Multiplier(prog.Tiers, acc.CurrentTier))
	if acc.IsResident && prog.ResidentMultiplier.GreaterThan(one) {
		pts = pts.Mul(prog.ResidentMultiplier)
	}
	return pts
}

func oneShotAwarded(acc *points.Account, source points.TransactionType) bool {
	switch source {
	case points.TypeEarnSignup:
		return acc.SignupBonusAwarded
	case points.TypeEarnProfileComplete:
		return acc.ProfileCompletionBonusAwarded
	}
	return false
}

func markOneShot(acc *points.Account, source points.TransactionType, now time.Time) {
	switch source {
	case points.TypeEarnSignup:
		acc.SignupBonusAwarded = true
	case points.TypeEarnProfileComplete:
		acc.ProfileCompletionBonusAwarded = true
		acc.ProfileCompletedAt = &now
	}
}

// AwardSignupBonus credits the program's signup bonus, which depends on residency.
func (e *Engine) AwardSignupBonus(ctx context.Context, accountID string) (EarnResult, error) {
	return e.awardFromProgram(ctx, accountID, points.TypeEarnSignup, "",
		func(prog *program.Loyalty, acc *points.Account) int64 {
			if acc.IsResident {
				return prog.ResidentSignupBonus
			}
			return prog.TouristSignupBonus
		})
}

func (e *Engine) AwardProfileCompletionBonus(ctx context.Context, accountID string) (EarnResult, error) {
	return e.awardFromProgram(ctx, accountID, points.TypeEarnProfileComplete, "",
		func(prog *program.Loyalty, _ *points.Account) int64 {
			if !prog.ProfileCompletionBonusEnabled {
				return 0
			}
			return prog.ProfileCompletionBonusPoints
		})
}

func (e *Engine) AwardReferral(ctx context.Context, accountID, referenceID string) (EarnResult, error) {
	return e.awardFromProgram(ctx, accountID, points.TypeEarnReferral, referenceID,
		func(prog *program.Loyalty, _ *points.Account) int64 {
			return prog.ReferralPoints
		})
}

func (e *Engine) awardFromProgram(ctx context.Context,
	accountID string,
	source points.TransactionType,
	referenceID string,
	amountOf func(*program.Loyalty, *points.Account) int64,
) (EarnResult, error) {
	var res EarnResult
	var pending events.Pending
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		pending.Reset()
		acc, err := tx.Points().GetAccount(ctx, accountID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		prog, err := e.programs.Loyalty(acc.MerchantID)
		if err != nil {
			return err //nolint: wrapcheck // domain error
		}
		amount := amountOf(&prog, &acc)
		if amount <= 0 {
			res = EarnResult{NewBalance: acc.PointsBalance, Tier: acc.CurrentTier}
			return nil
		}

		req := EarnRequest{
			AccountID:  accountID,
			Source:     source,
			BaseAmount: decimal.NewFromInt(amount),
		}
		if referenceID != "" {
			req.ReferenceType = "referral"
			req.ReferenceID = referenceID
		}
		res, err = e.earn(ctx, tx, &pending, req)
		return err
	})
	if err != nil {
		return EarnResult{}, err //nolint: wrapcheck // error from store unit
	}

	e.afterCommit(ctx, accountID, &pending)
	return res, nil
}

// SpendPoints debits the account outside of a reward redemption, e.g. a points payment.
func (e *Engine) SpendPoints(ctx context.Context,
	accountID string, amount int64, referenceType, referenceID, notes string,
) (points.Transaction, error) {
	var txn points.Transaction
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		acc, err := tx.Points().LockAccount(ctx, accountID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		txn, err = e.Spend(ctx, tx, &acc, points.Debit{
			Type:          points.TypeRedeem,
			Points:        amount,
			ReferenceType: referenceType,
			ReferenceID:   referenceID,
			Notes:         notes,
		})
		return err
	})
	if err != nil {
		return points.Transaction{}, err //nolint: wrapcheck // error from store unit
	}

	e.Invalidate(ctx, accountID)
	return txn, nil
}

// Adjust applies a manual correction. A positive delta opens a new expiry batch,
// a negative one is spent oldest batch first.
func (e *Engine) Adjust(ctx context.Context, accountID string, delta int64, notes string,
) (points.Transaction, error) {
	if delta == 0 || delta > model.MaxPointsPerEntry || delta < -model.MaxPointsPerEntry {
		return points.Transaction{}, serviceerrs.ErrInvalidAmount
	}

	var txn points.Transaction
	var pending events.Pending
	err := e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		pending.Reset()
		acc, err := tx.Points().LockAccount(ctx, accountID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		if delta < 0 {
			txn, err = e.Spend(ctx, tx, &acc, points.Debit{
				Type:   points.TypeAdjustment,
				Points: -delta,
				Notes:  notes,
			})
			return err
		}

		prog, err := e.programs.Loyalty(acc.MerchantID)
		if err != nil {
			return err //nolint: wrapcheck // domain error
		}
		_, txn, err = e.credit(ctx, tx, &pending, &acc, &prog, creditEntry{
			Type:   points.TypeAdjustment,
			Points: delta,
			Notes:  notes,
		})
		return err
	})
	if err != nil {
		return points.Transaction{}, err //nolint: wrapcheck // error from store unit
	}

	e.afterCommit(ctx, accountID, &pending)
	return txn, nil
}

func (e *Engine) afterCommit(ctx context.Context, accountID string, pending *events.Pending) {
	e.Invalidate(ctx, accountID)
	pending.Flush(ctx, e.publisher, e.log)
}

// Invalidate drops the cached summary of the account.
func (e *Engine) Invalidate(ctx context.Context, accountID string) {
	if err := e.cache.Delete(ctx, summaryKey(accountID)); err != nil {
		e.log.LogAttrs(ctx,
			slog.LevelWarn,
			"failed to invalidate summary",
			slog.String("account_id", accountID),
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func newID() string {
	return uuid.NewString()
}
