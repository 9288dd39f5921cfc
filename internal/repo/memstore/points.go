package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

type pointsLedger struct {
	data *state
}

func (l *pointsLedger) CreateAccount(_ context.Context, a *points.Account) error {
	if _, ok := l.data.accounts[a.ID]; ok {
		return serviceerrs.ErrAlreadyExists
	}
	acc := *a
	acc.Badges = slices.Clone(a.Badges)
	l.data.accounts[a.ID] = acc
	return nil
}

func (l *pointsLedger) GetAccount(_ context.Context, id string) (points.Account, error) {
	a, ok := l.data.accounts[id]
	if !ok {
		return points.Account{}, serviceerrs.ErrAccountNotFound
	}
	a.Badges = slices.Clone(a.Badges)
	return a, nil
}

func (l *pointsLedger) LockAccount(ctx context.Context, id string) (points.Account, error) {
	return l.GetAccount(ctx, id)
}

func (l *pointsLedger) UpdateAccount(_ context.Context, a *points.Account) error {
	if _, ok := l.data.accounts[a.ID]; !ok {
		return serviceerrs.ErrAccountNotFound
	}
	acc := *a
	acc.Badges = slices.Clone(a.Badges)
	l.data.accounts[a.ID] = acc
	return nil
}

func (l *pointsLedger) AppendTransaction(_ context.Context, t *points.Transaction) error {
	l.data.pointsTxns = append(l.data.pointsTxns, *t)
	return nil
}

func (l *pointsLedger) ListTransactions(_ context.Context, accountID string, limit int,
) ([]points.Transaction, error) {
	return newestFirst(l.data.pointsTxns, func(t points.Transaction) bool {
		return t.AccountID == accountID
	}, limit), nil
}

func (l *pointsLedger) InsertBatch(_ context.Context, b *points.ExpiryBatch) error {
	if _, ok := l.data.batches[b.ID]; ok {
		return serviceerrs.ErrAlreadyExists
	}
	l.data.batches[b.ID] = *b
	return nil
}

func (l *pointsLedger) UpdateBatch(_ context.Context, b *points.ExpiryBatch) error {
	l.data.batches[b.ID] = *b
	return nil
}

func (l *pointsLedger) ActiveBatches(_ context.Context, accountID string) ([]points.ExpiryBatch, error) {
	out := make([]points.ExpiryBatch, 0)
	for _, b := range l.data.batches {
		if b.AccountID == accountID && b.Status == points.BatchActive {
			out = append(out, b)
		}
	}
	points.SortFIFO(out)
	return out, nil
}

func (l *pointsLedger) Totals(_ context.Context, accountID string) (points.Totals, error) {
	var t points.Totals
	for _, txn := range l.data.pointsTxns {
		if txn.AccountID != accountID {
			continue
		}
		t.Net += txn.Points
		switch {
		case txn.Type == points.TypeExpire:
			t.Expired -= txn.Points
		case txn.Points > 0:
			t.Credited += txn.Points
		default:
			t.Debited -= txn.Points
		}
	}
	for _, b := range l.data.batches {
		if b.AccountID == accountID && b.Status == points.BatchActive {
			t.ActiveRemaining += b.RemainingPoints
		}
	}
	return t, nil
}

func (l *pointsLedger) AccountsWithOverdueBatches(_ context.Context, now time.Time, limit int,
) ([]string, error) {
	seen := make(map[string]struct{})
	for _, b := range l.data.batches {
		if b.Status == points.BatchActive && !b.ExpiresAt.After(now) {
			seen[b.AccountID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (l *pointsLedger) ListMerchantAccounts(_ context.Context, filter points.MemberFilter,
) ([]points.Account, error) {
	out := make([]points.Account, 0)
	for _, a := range l.data.accounts {
		if filter.Match(&a) {
			a.Badges = slices.Clone(a.Badges)
			out = append(out, a)
		}
	}
	points.SortByEarned(out)

	offset := min(max(filter.Offset, 0), len(out))
	out = out[offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *pointsLedger) MerchantStats(_ context.Context, merchantID string, activeSince time.Time,
) (points.MerchantStats, error) {
	stats := points.MerchantStats{MerchantID: merchantID, TierBreakdown: make(map[string]int64)}
	for _, a := range l.data.accounts {
		if a.MerchantID != merchantID {
			continue
		}
		stats.TotalMembers++
		stats.PointsIssued += a.PointsEarned
		stats.PointsRedeemed += a.PointsSpent
		stats.PointsExpired += a.PointsExpired
		stats.PointsBalance += a.PointsBalance
		stats.TierBreakdown[a.CurrentTier]++
	}

	active := make(map[string]struct{})
	for _, t := range l.data.pointsTxns {
		if !t.Type.IsActivity() || t.CreatedAt.Before(activeSince) {
			continue
		}
		if a, ok := l.data.accounts[t.AccountID]; ok && a.MerchantID == merchantID {
			active[t.AccountID] = struct{}{}
		}
	}
	stats.ActiveMembers = int64(len(active))
	return stats, nil
}
