package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

type RewardRepository struct {
	q connectionPool
}

func (r *RewardRepository) SaveReward(ctx context.Context, rw *reward.Reward) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO rewards (id, merchant_id, name, points_required, max_per_user, validity_days, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			merchant_id = EXCLUDED.merchant_id,
			name = EXCLUDED.name,
			points_required = EXCLUDED.points_required,
			max_per_user = EXCLUDED.max_per_user,
			validity_days = EXCLUDED.validity_days,
			is_active = EXCLUDED.is_active`,
		rw.ID, rw.MerchantID, rw.Name, rw.PointsRequired, rw.MaxPerUser, rw.ValidityDays, rw.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save reward %s: %w", rw.ID, err)
	}
	return nil
}

func (r *RewardRepository) GetReward(ctx context.Context, id string) (reward.Reward, error) {
	var rw reward.Reward
	err := r.q.QueryRow(ctx, `
		SELECT id, merchant_id, name, points_required, max_per_user, validity_days, is_active
		FROM rewards WHERE id = $1`, id,
	).Scan(&rw.ID, &rw.MerchantID, &rw.Name, &rw.PointsRequired, &rw.MaxPerUser, &rw.ValidityDays, &rw.IsActive)
	if err != nil {
		return reward.Reward{}, notFound(err, serviceerrs.ErrRewardNotFound, "get reward "+id)
	}
	return rw, nil
}

func (r *RewardRepository) CountRedemptions(ctx context.Context, accountID, rewardID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM reward_redemptions WHERE account_id = $1 AND reward_id = $2`,
		accountID, rewardID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count redemptions: %w", err)
	}
	return n, nil
}

const redemptionColumns = `id, account_id, reward_id, attempt_id, code, status,
	points_spent, valid_until, used_at, created_at`

func scanRedemption(row pgx.Row) (reward.Redemption, error) {
	var red reward.Redemption
	var attempt pgtype.Text
	var status string
	err := row.Scan(&red.ID, &red.AccountID, &red.RewardID, &attempt, &red.Code, &status,
		&red.PointsSpent, &red.ValidUntil, &red.UsedAt, &red.CreatedAt)
	red.AttemptID = attempt.String
	red.Status = reward.Status(status)
	return red, err //nolint: wrapcheck // mapped by caller
}

func (r *RewardRepository) FindRedemptionByAttempt(ctx context.Context, accountID, attemptID string,
) (reward.Redemption, error) {
	red, err := scanRedemption(r.q.QueryRow(ctx, `
		SELECT `+redemptionColumns+`
		FROM reward_redemptions WHERE account_id = $1 AND attempt_id = $2`,
		accountID, attemptID))
	if err != nil {
		return reward.Redemption{}, notFound(err, serviceerrs.ErrRedemptionNotFound, "find redemption by attempt")
	}
	return red, nil
}

func (r *RewardRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reward_redemptions WHERE code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check redemption code: %w", err)
	}
	return exists, nil
}

func (r *RewardRepository) InsertRedemption(ctx context.Context, red *reward.Redemption) error {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO reward_redemptions (`+redemptionColumns+`)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING`,
		red.ID, red.AccountID, red.RewardID, red.AttemptID, red.Code, string(red.Status),
		red.PointsSpent, red.ValidUntil, red.UsedAt, red.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return serviceerrs.ErrAlreadyExists
	}
	return nil
}

func (r *RewardRepository) LockRedemptionByCode(ctx context.Context, code string) (reward.Redemption, error) {
	red, err := scanRedemption(r.q.QueryRow(ctx, `
		SELECT `+redemptionColumns+`
		FROM reward_redemptions WHERE code = $1 FOR UPDATE`, code))
	if err != nil {
		return reward.Redemption{}, notFound(err, serviceerrs.ErrRedemptionNotFound, "lock redemption")
	}
	return red, nil
}

func (r *RewardRepository) UpdateRedemption(ctx context.Context, red *reward.Redemption) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE reward_redemptions SET status = $2, used_at = $3 WHERE id = $1`,
		red.ID, string(red.Status), red.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update redemption %s: %w", red.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return serviceerrs.ErrRedemptionNotFound
	}
	return nil
}

func (r *RewardRepository) ListRedemptions(ctx context.Context, accountID string) ([]reward.Redemption, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+redemptionColumns+`
		FROM reward_redemptions WHERE account_id = $1
		ORDER BY created_at DESC, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions of %s: %w", accountID, err)
	}

	reds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (reward.Redemption, error) {
		return scanRedemption(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan redemptions: %w", err)
	}
	return reds, nil
}

func (r *RewardRepository) ExpireRedemptions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE reward_redemptions SET status = 'expired'
		WHERE status = 'approved' AND valid_until <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire redemptions: %w", err)
	}
	return tag.RowsAffected(), nil
}
