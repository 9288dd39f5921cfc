package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
	"github.com/talx-hub/gopher-loyalty/internal/serviceerrs"
)

type walletLedger struct {
	data *state
}

func (l *walletLedger) CreateWallet(_ context.Context, w *wallet.Wallet) error {
	for _, existing := range l.data.wallets {
		if existing.ID == w.ID ||
			(existing.AccountID == w.AccountID && existing.MerchantID == w.MerchantID) {
			return serviceerrs.ErrAlreadyExists
		}
	}
	l.data.wallets[w.ID] = *w
	return nil
}

func (l *walletLedger) FindWallet(_ context.Context, accountID, merchantID string) (wallet.Wallet, error) {
	for _, w := range l.data.wallets {
		if w.AccountID == accountID && w.MerchantID == merchantID {
			return w, nil
		}
	}
	return wallet.Wallet{}, serviceerrs.ErrWalletNotFound
}

func (l *walletLedger) GetWallet(_ context.Context, id string) (wallet.Wallet, error) {
	w, ok := l.data.wallets[id]
	if !ok {
		return wallet.Wallet{}, serviceerrs.ErrWalletNotFound
	}
	return w, nil
}

func (l *walletLedger) LockWallet(ctx context.Context, id string) (wallet.Wallet, error) {
	return l.GetWallet(ctx, id)
}

func (l *walletLedger) UpdateWallet(_ context.Context, w *wallet.Wallet) error {
	if _, ok := l.data.wallets[w.ID]; !ok {
		return serviceerrs.ErrWalletNotFound
	}
	if w.BalanceCents < 0 || w.BonusBalanceCents < 0 {
		return serviceerrs.ErrLedgerInconsistent
	}
	l.data.wallets[w.ID] = *w
	return nil
}

func (l *walletLedger) AppendTransaction(_ context.Context, t *wallet.Transaction) error {
	l.data.walletTxns = append(l.data.walletTxns, *t)
	return nil
}

func (l *walletLedger) GetTransaction(_ context.Context, id string) (wallet.Transaction, error) {
	for _, t := range l.data.walletTxns {
		if t.ID == id {
			return t, nil
		}
	}
	return wallet.Transaction{}, serviceerrs.ErrTransactionNotFound
}

func (l *walletLedger) ListTransactions(_ context.Context, walletID string, limit int,
) ([]wallet.Transaction, error) {
	return newestFirst(l.data.walletTxns, func(t wallet.Transaction) bool {
		return t.WalletID == walletID
	}, limit), nil
}

func (l *walletLedger) Totals(_ context.Context, walletID string) (wallet.Totals, error) {
	var t wallet.Totals
	for _, txn := range l.data.walletTxns {
		if txn.WalletID == walletID {
			t.Cash += txn.AmountCents
			t.Bonus += txn.BonusAmountCents
		}
	}
	for _, lot := range l.data.bonusLots {
		if lot.WalletID == walletID && lot.Status == wallet.LotActive {
			t.ActiveLotsCents += lot.RemainingCents
		}
	}
	return t, nil
}

func (l *walletLedger) InsertBonusLot(_ context.Context, lot *wallet.BonusLot) error {
	l.data.bonusLots[lot.ID] = *lot
	return nil
}

func (l *walletLedger) UpdateBonusLot(_ context.Context, lot *wallet.BonusLot) error {
	l.data.bonusLots[lot.ID] = *lot
	return nil
}

func (l *walletLedger) ActiveBonusLots(_ context.Context, walletID string) ([]wallet.BonusLot, error) {
	out := make([]wallet.BonusLot, 0)
	for _, lot := range l.data.bonusLots {
		if lot.WalletID == walletID && lot.Status == wallet.LotActive {
			out = append(out, lot)
		}
	}
	slices.SortFunc(out, func(a, b wallet.BonusLot) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (l *walletLedger) WalletsWithOverdueBonus(_ context.Context, now time.Time, limit int,
) ([]string, error) {
	seen := make(map[string]struct{})
	for _, lot := range l.data.bonusLots {
		if lot.Status == wallet.LotActive && !lot.ExpiresAt.After(now) {
			seen[lot.WalletID] = struct{}{}
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

func (l *walletLedger) InsertSession(_ context.Context, s *wallet.TopUpSession) error {
	if _, ok := l.data.sessions[s.ID]; ok {
		return serviceerrs.ErrAlreadyExists
	}
	l.data.sessions[s.ID] = *s
	l.data.sessionOrder = append(l.data.sessionOrder, s.ID)
	return nil
}

func (l *walletLedger) GetSession(_ context.Context, id string) (wallet.TopUpSession, error) {
	s, ok := l.data.sessions[id]
	if !ok {
		return wallet.TopUpSession{}, serviceerrs.ErrSessionNotFound
	}
	return s, nil
}

func (l *walletLedger) LockSession(ctx context.Context, id string) (wallet.TopUpSession, error) {
	return l.GetSession(ctx, id)
}

func (l *walletLedger) UpdateSession(_ context.Context, s *wallet.TopUpSession) error {
	if _, ok := l.data.sessions[s.ID]; !ok {
		return serviceerrs.ErrSessionNotFound
	}
	if s.ExternalPaymentRef != "" {
		for id, other := range l.data.sessions {
			if id != s.ID && other.ExternalPaymentRef == s.ExternalPaymentRef {
				return serviceerrs.ErrDuplicatePaymentRef
			}
		}
	}
	l.data.sessions[s.ID] = *s
	return nil
}

func (l *walletLedger) FindSessionByExternalRef(_ context.Context, ref string) (wallet.TopUpSession, error) {
	for _, id := range l.data.sessionOrder {
		if s := l.data.sessions[id]; s.ExternalPaymentRef == ref {
			return s, nil
		}
	}
	return wallet.TopUpSession{}, serviceerrs.ErrSessionNotFound
}

func (l *walletLedger) ExpireSessions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, id := range l.data.sessionOrder {
		s := l.data.sessions[id]
		if s.Status == wallet.SessionPending && !s.ExpiresAt.After(now) {
			s.Status = wallet.SessionExpired
			s.FailureReason = "session expired"
			l.data.sessions[id] = s
			n++
		}
	}
	return n, nil
}
