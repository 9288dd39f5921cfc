package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

type PointsRepository struct {
	q connectionPool
}

const accountColumns = `id, merchant_id, points_balance, points_earned, points_spent, points_expired,
	current_tier, tier_updated_at, is_resident, signup_bonus_awarded,
	profile_completion_bonus_awarded, profile_completed_at, badges, created_at, updated_at`

func scanAccount(row pgx.Row) (points.Account, error) {
	var a points.Account
	err := row.Scan(
		&a.ID, &a.MerchantID, &a.PointsBalance, &a.PointsEarned, &a.PointsSpent, &a.PointsExpired,
		&a.CurrentTier, &a.TierUpdatedAt, &a.IsResident, &a.SignupBonusAwarded,
		&a.ProfileCompletionBonusAwarded, &a.ProfileCompletedAt, &a.Badges, &a.CreatedAt, &a.UpdatedAt,
	)
	if a.Badges == nil {
		a.Badges = []string{}
	}
	return a, err //nolint: wrapcheck // mapped by caller
}

func (r *PointsRepository) CreateAccount(ctx context.Context, a *points.Account) error {
	badges := a.Badges
	if badges == nil {
		badges = []string{}
	}
	tag, err := r.q.Exec(ctx, `
		INSERT INTO loyalty_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.MerchantID, a.PointsBalance, a.PointsEarned, a.PointsSpent, a.PointsExpired,
		a.CurrentTier, a.TierUpdatedAt, a.IsResident, a.SignupBonusAwarded,
		a.ProfileCompletionBonusAwarded, a.ProfileCompletedAt, badges, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return serviceerrs.ErrAlreadyExists
	}
	return nil
}

func (r *PointsRepository) GetAccount(ctx context.Context, id string) (points.Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM loyalty_accounts WHERE id = $1`, id))
	if err != nil {
		return points.Account{}, notFound(err, serviceerrs.ErrAccountNotFound, "get account "+id)
	}
	return a, nil
}

func (r *PointsRepository) LockAccount(ctx context.Context, id string) (points.Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM loyalty_accounts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return points.Account{}, notFound(err, serviceerrs.ErrAccountNotFound, "lock account "+id)
	}
	return a, nil
}

func (r *PointsRepository) UpdateAccount(ctx context.Context, a *points.Account) error {
	badges := a.Badges
	if badges == nil {
		badges = []string{}
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE loyalty_accounts SET
			points_balance = $2, points_earned = $3, points_spent = $4, points_expired = $5,
			current_tier = $6, tier_updated_at = $7, is_resident = $8, signup_bonus_awarded = $9,
			profile_completion_bonus_awarded = $10, profile_completed_at = $11, badges = $12,
			updated_at = $13
		WHERE id = $1`,
		a.ID, a.PointsBalance, a.PointsEarned, a.PointsSpent, a.PointsExpired,
		a.CurrentTier, a.TierUpdatedAt, a.IsResident, a.SignupBonusAwarded,
		a.ProfileCompletionBonusAwarded, a.ProfileCompletedAt, badges, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return serviceerrs.ErrAccountNotFound
	}
	return nil
}

func (r *PointsRepository) AppendTransaction(ctx context.Context, t *points.Transaction) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO points_transactions
			(id, account_id, type, points, balance_after, reference_type, reference_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.AccountID, string(t.Type), t.Points, t.BalanceAfter,
		t.ReferenceType, t.ReferenceID, t.Notes, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append points transaction: %w", err)
	}
	return nil
}

func (r *PointsRepository) ListTransactions(ctx context.Context, accountID string, limit int,
) ([]points.Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, account_id, type, points, balance_after, reference_type, reference_id, notes, created_at
		FROM points_transactions
		WHERE account_id = $1
		ORDER BY seq DESC
		LIMIT $2`, accountID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list points transactions of %s: %w", accountID, err)
	}

	txns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (points.Transaction, error) {
		var t points.Transaction
		var tp string
		err := row.Scan(&t.ID, &t.AccountID, &tp, &t.Points, &t.BalanceAfter,
			&t.ReferenceType, &t.ReferenceID, &t.Notes, &t.CreatedAt)
		t.Type = points.TransactionType(tp)
		return t, err //nolint: wrapcheck // wrapped below
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan points transactions: %w", err)
	}
	return txns, nil
}

func (r *PointsRepository) InsertBatch(ctx context.Context, b *points.ExpiryBatch) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO points_expiry_batches
			(id, account_id, points_amount, remaining_points, earned_at, expires_at, status, source_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.AccountID, b.PointsAmount, b.RemainingPoints,
		b.EarnedAt, b.ExpiresAt, string(b.Status), b.SourceTransactionID,
	)
	if isUniqueViolation(err, "") {
		return serviceerrs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert expiry batch: %w", err)
	}
	return nil
}

func (r *PointsRepository) UpdateBatch(ctx context.Context, b *points.ExpiryBatch) error {
	_, err := r.q.Exec(ctx, `
		UPDATE points_expiry_batches SET remaining_points = $2, status = $3 WHERE id = $1`,
		b.ID, b.RemainingPoints, string(b.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update expiry batch %s: %w", b.ID, err)
	}
	return nil
}

func (r *PointsRepository) ActiveBatches(ctx context.Context, accountID string) ([]points.ExpiryBatch, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, account_id, points_amount, remaining_points, earned_at, expires_at, status, source_transaction_id
		FROM points_expiry_batches
		WHERE account_id = $1 AND status = 'active'
		ORDER BY expires_at, earned_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active batches of %s: %w", accountID, err)
	}

	batches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (points.ExpiryBatch, error) {
		var b points.ExpiryBatch
		var status string
		err := row.Scan(&b.ID, &b.AccountID, &b.PointsAmount, &b.RemainingPoints,
			&b.EarnedAt, &b.ExpiresAt, &status, &b.SourceTransactionID)
		b.Status = points.BatchStatus(status)
		return b, err //nolint: wrapcheck // wrapped below
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan expiry batches: %w", err)
	}
	return batches, nil
}

func (r *PointsRepository) Totals(ctx context.Context, accountID string) (points.Totals, error) {
	var t points.Totals
	err := r.q.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(points), 0),
			COALESCE(SUM(points) FILTER (WHERE type <> 'expire' AND points > 0), 0),
			COALESCE(-SUM(points) FILTER (WHERE type <> 'expire' AND points <= 0), 0),
			COALESCE(-SUM(points) FILTER (WHERE type = 'expire'), 0),
			(SELECT COALESCE(SUM(remaining_points), 0)
				FROM points_expiry_batches WHERE account_id = $1 AND status = 'active')
		FROM points_transactions
		WHERE account_id = $1`, accountID,
	).Scan(&t.Net, &t.Credited, &t.Debited, &t.Expired, &t.ActiveRemaining)
	if err != nil {
		return points.Totals{}, fmt.Errorf("failed to compute totals of %s: %w", accountID, err)
	}
	return t, nil
}

func (r *PointsRepository) AccountsWithOverdueBatches(ctx context.Context, now time.Time, limit int,
) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT account_id
		FROM points_expiry_batches
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY account_id
		LIMIT $2`, now, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts with overdue batches: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan account ids: %w", err)
	}
	return ids, nil
}

func (r *PointsRepository) ListMerchantAccounts(ctx context.Context, filter points.MemberFilter,
) ([]points.Account, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+accountColumns+`
		FROM loyalty_accounts
		WHERE merchant_id = $1
			AND ($2 = '' OR current_tier = $2)
			AND points_balance >= $3
		ORDER BY points_earned DESC, id
		LIMIT $4 OFFSET $5`,
		filter.MerchantID, filter.Tier, filter.MinBalance, limitArg(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts of merchant %s: %w", filter.MerchantID, err)
	}

	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (points.Account, error) {
		return scanAccount(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %w", err)
	}
	return accounts, nil
}

func (r *PointsRepository) MerchantStats(ctx context.Context, merchantID string, activeSince time.Time,
) (points.MerchantStats, error) {
	stats := points.MerchantStats{MerchantID: merchantID, TierBreakdown: make(map[string]int64)}
	err := r.q.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(points_earned), 0),
			COALESCE(SUM(points_spent), 0),
			COALESCE(SUM(points_expired), 0),
			COALESCE(SUM(points_balance), 0),
			(SELECT COUNT(DISTINCT t.account_id)
				FROM points_transactions t
				JOIN loyalty_accounts a ON a.id = t.account_id
				WHERE a.merchant_id = $1
					AND t.created_at >= $2
					AND t.type IN ('earn_purchase', 'earn_bonus', 'earn_engagement'))
		FROM loyalty_accounts
		WHERE merchant_id = $1`, merchantID, activeSince,
	).Scan(&stats.TotalMembers, &stats.PointsIssued, &stats.PointsRedeemed,
		&stats.PointsExpired, &stats.PointsBalance, &stats.ActiveMembers)
	if err != nil {
		return points.MerchantStats{}, fmt.Errorf("failed to compute stats of merchant %s: %w", merchantID, err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT current_tier, COUNT(*)
		FROM loyalty_accounts
		WHERE merchant_id = $1
		GROUP BY current_tier`, merchantID)
	if err != nil {
		return points.MerchantStats{}, fmt.Errorf("failed to count tiers of merchant %s: %w", merchantID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int64
		if err = rows.Scan(&name, &count); err != nil {
			return points.MerchantStats{}, fmt.Errorf("failed to scan tier count: %w", err)
		}
		stats.TierBreakdown[name] = count
	}
	if err = rows.Err(); err != nil {
		return points.MerchantStats{}, fmt.Errorf("failed to read tier counts: %w", err)
	}
	return stats, nil
}
