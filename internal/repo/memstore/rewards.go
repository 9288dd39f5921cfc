package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

type rewardLedger struct {
	data *state
}

func (l *rewardLedger) SaveReward(_ context.Context, r *reward.Reward) error {
	l.data.rewards[r.ID] = *r
	return nil
}

func (l *rewardLedger) GetReward(_ context.Context, id string) (reward.Reward, error) {
	r, ok := l.data.rewards[id]
	if !ok {
		return reward.Reward{}, serviceerrs.ErrRewardNotFound
	}
	return r, nil
}

func (l *rewardLedger) CountRedemptions(_ context.Context, accountID, rewardID string) (int, error) {
	n := 0
	for _, r := range l.data.redemptions {
		if r.AccountID == accountID && r.RewardID == rewardID {
			n++
		}
	}
	return n, nil
}

func (l *rewardLedger) FindRedemptionByAttempt(_ context.Context, accountID, attemptID string,
) (reward.Redemption, error) {
	for _, r := range l.data.redemptions {
		if r.AccountID == accountID && r.AttemptID != "" && r.AttemptID == attemptID {
			return r, nil
		}
	}
	return reward.Redemption{}, serviceerrs.ErrRedemptionNotFound
}

func (l *rewardLedger) CodeExists(_ context.Context, code string) (bool, error) {
	for _, r := range l.data.redemptions {
		if r.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (l *rewardLedger) InsertRedemption(ctx context.Context, r *reward.Redemption) error {
	exists, _ := l.CodeExists(ctx, r.Code)
	if _, ok := l.data.redemptions[r.ID]; ok || exists {
		return serviceerrs.ErrAlreadyExists
	}
	if r.AttemptID != "" {
		if _, err := l.FindRedemptionByAttempt(ctx, r.AccountID, r.AttemptID); err == nil {
			return serviceerrs.ErrAlreadyExists
		}
	}
	l.data.redemptions[r.ID] = *r
	return nil
}

func (l *rewardLedger) LockRedemptionByCode(_ context.Context, code string) (reward.Redemption, error) {
	for _, r := range l.data.redemptions {
		if r.Code == code {
			return r, nil
		}
	}
	return reward.Redemption{}, serviceerrs.ErrRedemptionNotFound
}

func (l *rewardLedger) UpdateRedemption(_ context.Context, r *reward.Redemption) error {
	if _, ok := l.data.redemptions[r.ID]; !ok {
		return serviceerrs.ErrRedemptionNotFound
	}
	l.data.redemptions[r.ID] = *r
	return nil
}

func (l *rewardLedger) ListRedemptions(_ context.Context, accountID string) ([]reward.Redemption, error) {
	out := make([]reward.Redemption, 0)
	for _, r := range l.data.redemptions {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b reward.Redemption) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (l *rewardLedger) ExpireRedemptions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, r := range l.data.redemptions {
		if r.Status == reward.StatusApproved && !r.ValidUntil.After(now) {
			r.Status = reward.StatusExpired
			l.data.redemptions[id] = r
			n++
		}
	}
	return n, nil
}
