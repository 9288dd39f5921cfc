package points

import (
	"context"
	"fmt"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/ledger"
	"github.com/talx-hub/gopher-loyalty/internal/model"
	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/model/tier"
	tiers "github.com/talx-hub/gopher-loyalty/internal/service/tier"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
	"github.com/talx-hub/gopher-loyalty/internal/utils/caching"
)

type Summary struct {
	NextTier           *tier.Tier           `json:"next_tier,omitempty"`
	Account            points.Account       `json:"account"`
	Tier               tier.Tier            `json:"tier"`
	RecentTransactions []points.Transaction `json:"recent_transactions"`
	Balance            int64                `json:"balance"`
	PointsToNextTier   int64                `json:"points_to_next_tier"`
}

type Forecast struct {
	Batches        []points.ExpiryBatch `json:"batches"`
	Within3Months  int64                `json:"within_3_months"`
	Within6Months  int64                `json:"within_6_months"`
	Within12Months int64                `json:"within_12_months"`
}

func summaryKey(accountID string) string {
	return "loyalty:summary:" + accountID
}

// GetSummary is a display read and may lag a concurrent mutation by the cache TTL.
func (e *Engine) GetSummary(ctx context.Context, accountID string) (Summary, error) {
	return caching.UseCache(ctx, e.cache, summaryKey(accountID), e.summaryTTL, //nolint: wrapcheck // domain error
		func() (Summary, error) {
			return e.loadSummary(ctx, accountID)
		})
}

func (e *Engine) loadSummary(ctx context.Context, accountID string) (Summary, error) {
	var s Summary
	err := e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		acc, err := tx.Points().GetAccount(ctx, accountID)
		if err != nil {
			return err //nolint: wrapcheck // error from store
		}
		prog, err := e.programs.Loyalty(acc.MerchantID)
		if err != nil {
			return err //nolint: wrapcheck // domain error
		}
		recent, err := tx.Points().ListTransactions(ctx, accountID, e.recentLimit)
		if err != nil {
			return fmt.Errorf("failed to list recent transactions: %w", err)
		}

		res := tiers.Describe(prog.Tiers, acc.CurrentTier, acc.PointsEarned)
		s = Summary{
			Account:            acc,
			Balance:            acc.PointsBalance,
			Tier:               res.Current,
			NextTier:           res.Next,
			PointsToNextTier:   res.PointsToNext,
			RecentTransactions: recent,
		}
		return nil
	})
	if err != nil {
		return Summary{}, err //nolint: wrapcheck // error from store unit
	}
	return s, nil
}

// GetExpiryForecast lists active batches by expiry together with the cumulative
// amount due within 3, 6 and 12 months from now.
func (e *Engine) GetExpiryForecast(ctx context.Context, accountID string) (Forecast, error) {
	var f Forecast
	err := e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.Points().GetAccount(ctx, accountID); err != nil {
			return err //nolint: wrapcheck // error from store
		}
		batches, err := tx.Points().ActiveBatches(ctx, accountID)
		if err != nil {
			return fmt.Errorf("failed to list active batches: %w", err)
		}
		f = forecast(batches, e.clock.Now())
		return nil
	})
	if err != nil {
		return Forecast{}, err //nolint: wrapcheck // error from store unit
	}
	return f, nil
}

func forecast(batches []points.ExpiryBatch, now time.Time) Forecast {
	points.SortFIFO(batches)
	f := Forecast{Batches: batches}
	h3, h6, h12 := now.AddDate(0, 3, 0), now.AddDate(0, 6, 0), now.AddDate(0, 12, 0)
	for _, b := range batches {
		if !b.ExpiresAt.After(h3) {
			f.Within3Months += b.RemainingPoints
		}
		if !b.ExpiresAt.After(h6) {
			f.Within6Months += b.RemainingPoints
		}
		if !b.ExpiresAt.After(h12) {
			f.Within12Months += b.RemainingPoints
		}
	}
	return f
}

func (e *Engine) History(ctx context.Context, accountID string, limit int) ([]points.Transaction, error) {
	var txns []points.Transaction
	err := e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.Points().GetAccount(ctx, accountID); err != nil {
			return err //nolint: wrapcheck // error from store
		}
		var err error
		txns, err = tx.Points().ListTransactions(ctx, accountID, limit)
		return err //nolint: wrapcheck // error from store
	})
	if err != nil {
		return nil, err //nolint: wrapcheck // error from store unit
	}
	return txns, nil
}

// ListMembers lists the accounts of a merchant, best lifetime earners first.
func (e *Engine) ListMembers(ctx context.Context, filter points.MemberFilter) ([]points.Account, error) {
	if filter.MerchantID == "" || filter.MinBalance < 0 || filter.Offset < 0 || filter.Limit < 0 {
		return nil, fmt.Errorf("%w: merchant id and non-negative bounds are required",
			serviceerrs.ErrInvalidRequest)
	}
	if _, err := e.programs.Loyalty(filter.MerchantID); err != nil {
		return nil, err //nolint: wrapcheck // domain error
	}

	var accounts []points.Account
	err := e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		accounts, err = tx.Points().ListMerchantAccounts(ctx, filter)
		return err //nolint: wrapcheck // error from store
	})
	if err != nil {
		return nil, err //nolint: wrapcheck // error from store unit
	}
	return accounts, nil
}

// MerchantStats aggregates the members of a merchant. A member is active when it
// earned from a purchase, bonus or engagement within model.ActiveMemberWindow.
func (e *Engine) MerchantStats(ctx context.Context, merchantID string) (points.MerchantStats, error) {
	if merchantID == "" {
		return points.MerchantStats{}, fmt.Errorf("%w: merchant id is required", serviceerrs.ErrInvalidRequest)
	}
	if _, err := e.programs.Loyalty(merchantID); err != nil {
		return points.MerchantStats{}, err //nolint: wrapcheck // domain error
	}

	since := e.clock.Now().Add(-model.ActiveMemberWindow)
	var stats points.MerchantStats
	err := e.store.View(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		stats, err = tx.Points().MerchantStats(ctx, merchantID, since)
		return err //nolint: wrapcheck // error from store
	})
	if err != nil {
		return points.MerchantStats{}, err //nolint: wrapcheck // error from store unit
	}
	return stats, nil
}
