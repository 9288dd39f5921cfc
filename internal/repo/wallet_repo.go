package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

type WalletRepository struct {
	q connectionPool
}

const walletColumns = `id, account_id, merchant_id, currency, balance_cents, bonus_balance_cents,
	max_balance_cents, is_active, welcome_bonus_awarded, created_at, updated_at`

func scanWallet(row pgx.Row) (wallet.Wallet, error) {
	var w wallet.Wallet
	err := row.Scan(&w.ID, &w.AccountID, &w.MerchantID, &w.Currency, &w.BalanceCents, &w.BonusBalanceCents,
		&w.MaxBalanceCents, &w.IsActive, &w.WelcomeBonusAwarded, &w.CreatedAt, &w.UpdatedAt)
	return w, err //nolint: wrapcheck // mapped by caller
}

func (r *WalletRepository) CreateWallet(ctx context.Context, w *wallet.Wallet) error {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO customer_wallets (`+walletColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT DO NOTHING`,
		w.ID, w.AccountID, w.MerchantID, w.Currency, w.BalanceCents, w.BonusBalanceCents,
		w.MaxBalanceCents, w.IsActive, w.WelcomeBonusAwarded, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return serviceerrs.ErrAlreadyExists
	}
	return nil
}

func (r *WalletRepository) FindWallet(ctx context.Context, accountID, merchantID string) (wallet.Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM customer_wallets WHERE account_id = $1 AND merchant_id = $2`,
		accountID, merchantID))
	if err != nil {
		return wallet.Wallet{}, notFound(err, serviceerrs.ErrWalletNotFound, "find wallet")
	}
	return w, nil
}

func (r *WalletRepository) GetWallet(ctx context.Context, id string) (wallet.Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM customer_wallets WHERE id = $1`, id))
	if err != nil {
		return wallet.Wallet{}, notFound(err, serviceerrs.ErrWalletNotFound, "get wallet "+id)
	}
	return w, nil
}

func (r *WalletRepository) LockWallet(ctx context.Context, id string) (wallet.Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM customer_wallets WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return wallet.Wallet{}, notFound(err, serviceerrs.ErrWalletNotFound, "lock wallet "+id)
	}
	return w, nil
}

func (r *WalletRepository) UpdateWallet(ctx context.Context, w *wallet.Wallet) error {
	if w.BalanceCents < 0 || w.BonusBalanceCents < 0 {
		return serviceerrs.ErrLedgerInconsistent
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE customer_wallets SET
			balance_cents = $2, bonus_balance_cents = $3, max_balance_cents = $4,
			is_active = $5, welcome_bonus_awarded = $6, updated_at = $7
		WHERE id = $1`,
		w.ID, w.BalanceCents, w.BonusBalanceCents, w.MaxBalanceCents,
		w.IsActive, w.WelcomeBonusAwarded, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet %s: %w", w.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return serviceerrs.ErrWalletNotFound
	}
	return nil
}

const walletTxnColumns = `id, wallet_id, type, amount_cents, bonus_amount_cents, balance_after_cents,
	bonus_balance_after_cents, reference_type, reference_id, external_payment_ref, description,
	expires_at, created_at`

func scanWalletTxn(row pgx.Row) (wallet.Transaction, error) {
	var t wallet.Transaction
	var tp string
	err := row.Scan(&t.ID, &t.WalletID, &tp, &t.AmountCents, &t.BonusAmountCents, &t.BalanceAfterCents,
		&t.BonusBalanceAfterCents, &t.ReferenceType, &t.ReferenceID, &t.ExternalPaymentRef, &t.Description,
		&t.ExpiresAt, &t.CreatedAt)
	t.Type = wallet.TransactionType(tp)
	return t, err //nolint: wrapcheck // mapped by caller
}

func (r *WalletRepository) AppendTransaction(ctx context.Context, t *wallet.Transaction) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO wallet_transactions (`+walletTxnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.WalletID, string(t.Type), t.AmountCents, t.BonusAmountCents, t.BalanceAfterCents,
		t.BonusBalanceAfterCents, t.ReferenceType, t.ReferenceID, t.ExternalPaymentRef, t.Description,
		t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append wallet transaction: %w", err)
	}
	return nil
}

func (r *WalletRepository) GetTransaction(ctx context.Context, id string) (wallet.Transaction, error) {
	t, err := scanWalletTxn(r.q.QueryRow(ctx,
		`SELECT `+walletTxnColumns+` FROM wallet_transactions WHERE id = $1`, id))
	if err != nil {
		return wallet.Transaction{}, notFound(err, serviceerrs.ErrTransactionNotFound, "get transaction "+id)
	}
	return t, nil
}

func (r *WalletRepository) ListTransactions(ctx context.Context, walletID string, limit int,
) ([]wallet.Transaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+walletTxnColumns+`
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY seq DESC
		LIMIT $2`, walletID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions of %s: %w", walletID, err)
	}

	txns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wallet.Transaction, error) {
		return scanWalletTxn(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet transactions: %w", err)
	}
	return txns, nil
}

func (r *WalletRepository) Totals(ctx context.Context, walletID string) (wallet.Totals, error) {
	var t wallet.Totals
	err := r.q.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount_cents), 0),
			COALESCE(SUM(bonus_amount_cents), 0),
			(SELECT COALESCE(SUM(remaining_cents), 0)
				FROM wallet_bonus_lots WHERE wallet_id = $1 AND status = 'active')
		FROM wallet_transactions
		WHERE wallet_id = $1`, walletID,
	).Scan(&t.Cash, &t.Bonus, &t.ActiveLotsCents)
	if err != nil {
		return wallet.Totals{}, fmt.Errorf("failed to compute totals of wallet %s: %w", walletID, err)
	}
	return t, nil
}

const lotColumns = `id, wallet_id, amount_cents, remaining_cents, expires_at, status,
	source_transaction_id, created_at`

func (r *WalletRepository) InsertBonusLot(ctx context.Context, l *wallet.BonusLot) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO wallet_bonus_lots (`+lotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.WalletID, l.AmountCents, l.RemainingCents, l.ExpiresAt, string(l.Status),
		l.SourceTransactionID, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bonus lot: %w", err)
	}
	return nil
}

func (r *WalletRepository) UpdateBonusLot(ctx context.Context, l *wallet.BonusLot) error {
	_, err := r.q.Exec(ctx, `
		UPDATE wallet_bonus_lots SET remaining_cents = $2, status = $3 WHERE id = $1`,
		l.ID, l.RemainingCents, string(l.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update bonus lot %s: %w", l.ID, err)
	}
	return nil
}

func (r *WalletRepository) ActiveBonusLots(ctx context.Context, walletID string) ([]wallet.BonusLot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+lotColumns+`
		FROM wallet_bonus_lots
		WHERE wallet_id = $1 AND status = 'active'
		ORDER BY expires_at, created_at, id`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bonus lots of %s: %w", walletID, err)
	}

	lots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wallet.BonusLot, error) {
		var l wallet.BonusLot
		var status string
		err := row.Scan(&l.ID, &l.WalletID, &l.AmountCents, &l.RemainingCents, &l.ExpiresAt, &status,
			&l.SourceTransactionID, &l.CreatedAt)
		l.Status = wallet.LotStatus(status)
		return l, err //nolint: wrapcheck // wrapped below
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan bonus lots: %w", err)
	}
	return lots, nil
}

func (r *WalletRepository) WalletsWithOverdueBonus(ctx context.Context, now time.Time, limit int,
) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT wallet_id
		FROM wallet_bonus_lots
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY wallet_id
		LIMIT $2`, now, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets with overdue bonus: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet ids: %w", err)
	}
	return ids, nil
}

const sessionColumns = `id, wallet_id, amount_cents, bonus_cents, bonus_tier_name, currency, payment_method,
	external_payment_ref, status, failure_reason, transaction_id, created_at, expires_at, completed_at`

func scanSession(row pgx.Row) (wallet.TopUpSession, error) {
	var s wallet.TopUpSession
	var method, status string
	var ref, txnID pgtype.Text
	err := row.Scan(&s.ID, &s.WalletID, &s.AmountCents, &s.BonusCents, &s.BonusTierName, &s.Currency, &method,
		&ref, &status, &s.FailureReason, &txnID, &s.CreatedAt, &s.ExpiresAt, &s.CompletedAt)
	s.PaymentMethod = wallet.PaymentMethod(method)
	s.Status = wallet.SessionStatus(status)
	s.ExternalPaymentRef = ref.String
	s.TransactionID = txnID.String
	return s, err //nolint: wrapcheck // mapped by caller
}

func (r *WalletRepository) InsertSession(ctx context.Context, s *wallet.TopUpSession) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO wallet_top_up_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, NULLIF($11, ''), $12, $13, $14)`,
		s.ID, s.WalletID, s.AmountCents, s.BonusCents, s.BonusTierName, s.Currency, string(s.PaymentMethod),
		s.ExternalPaymentRef, string(s.Status), s.FailureReason, s.TransactionID,
		s.CreatedAt, s.ExpiresAt, s.CompletedAt,
	)
	if isUniqueViolation(err, "wallet_top_up_sessions_external_payment_ref_key") {
		return serviceerrs.ErrDuplicatePaymentRef
	}
	if isUniqueViolation(err, "") {
		return serviceerrs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert top-up session: %w", err)
	}
	return nil
}

func (r *WalletRepository) GetSession(ctx context.Context, id string) (wallet.TopUpSession, error) {
	s, err := scanSession(r.q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM wallet_top_up_sessions WHERE id = $1`, id))
	if err != nil {
		return wallet.TopUpSession{}, notFound(err, serviceerrs.ErrSessionNotFound, "get session "+id)
	}
	return s, nil
}

func (r *WalletRepository) LockSession(ctx context.Context, id string) (wallet.TopUpSession, error) {
	s, err := scanSession(r.q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM wallet_top_up_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return wallet.TopUpSession{}, notFound(err, serviceerrs.ErrSessionNotFound, "lock session "+id)
	}
	return s, nil
}

func (r *WalletRepository) UpdateSession(ctx context.Context, s *wallet.TopUpSession) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE wallet_top_up_sessions SET
			external_payment_ref = NULLIF($2, ''), status = $3, failure_reason = $4,
			transaction_id = NULLIF($5, ''), completed_at = $6
		WHERE id = $1`,
		s.ID, s.ExternalPaymentRef, string(s.Status), s.FailureReason, s.TransactionID, s.CompletedAt,
	)
	if isUniqueViolation(err, "") {
		return serviceerrs.ErrDuplicatePaymentRef
	}
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return serviceerrs.ErrSessionNotFound
	}
	return nil
}

func (r *WalletRepository) FindSessionByExternalRef(ctx context.Context, ref string) (wallet.TopUpSession, error) {
	s, err := scanSession(r.q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM wallet_top_up_sessions WHERE external_payment_ref = $1`, ref))
	if err != nil {
		return wallet.TopUpSession{}, notFound(err, serviceerrs.ErrSessionNotFound, "find session by ref")
	}
	return s, nil
}

func (r *WalletRepository) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE wallet_top_up_sessions SET status = 'expired', failure_reason = 'session expired'
		WHERE status = 'pending' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire top-up sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
