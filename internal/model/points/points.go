package points

import (
	"slices"
	"time"
)

type TransactionType string

const (
	TypeEarnPurchase        TransactionType = "earn_purchase"
	TypeEarnBonus           TransactionType = "earn_bonus"
	TypeEarnReferral        TransactionType = "earn_referral"
	TypeEarnEngagement      TransactionType = "earn_engagement"
	TypeEarnProfileComplete TransactionType = "earn_profile_complete"
	TypeEarnSignup          TransactionType = "earn_signup"
	TypeRedeem              TransactionType = "redeem"
	TypeExpire              TransactionType = "expire"
	TypeAdjustment          TransactionType = "adjustment"
)

func (t TransactionType) IsEarn() bool {
	switch t {
	case TypeEarnPurchase,
		TypeEarnBonus,
		TypeEarnReferral,
		TypeEarnEngagement,
		TypeEarnProfileComplete,
		TypeEarnSignup:
		return true
	}
	return false
}

// IsOneShot reports whether the source may credit an account at most once.
func (t TransactionType) IsOneShot() bool {
	return t == TypeEarnSignup || t == TypeEarnProfileComplete
}

type Account struct {
	TierUpdatedAt                 time.Time  `json:"tier_updated_at"`
	CreatedAt                     time.Time  `json:"created_at"`
	UpdatedAt                     time.Time  `json:"updated_at"`
	ProfileCompletedAt            *time.Time `json:"profile_completed_at,omitempty"`
	ID                            string     `json:"id"`
	MerchantID                    string     `json:"merchant_id"`
	CurrentTier                   string     `json:"current_tier"`
	Badges                        []string   `json:"badges"`
	PointsBalance                 int64      `json:"points_balance"`
	PointsEarned                  int64      `json:"points_earned"`
	PointsSpent                   int64      `json:"points_spent"`
	PointsExpired                 int64      `json:"points_expired"`
	IsResident                    bool       `json:"is_resident"`
	SignupBonusAwarded            bool       `json:"signup_bonus_awarded"`
	ProfileCompletionBonusAwarded bool       `json:"profile_completion_bonus_awarded"`
}

func (a *Account) HasBadge(badge string) bool {
	return slices.Contains(a.Badges, badge)
}

func (a *Account) AddBadge(badge string) bool {
	if a.HasBadge(badge) {
		return false
	}
	a.Badges = append(a.Badges, badge)
	return true
}

type Transaction struct {
	CreatedAt     time.Time       `json:"created_at"`
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Type          TransactionType `json:"type"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Points        int64           `json:"points"`
	BalanceAfter  int64           `json:"balance_after"`
}

type BatchStatus string

const (
	BatchActive   BatchStatus = "active"
	BatchConsumed BatchStatus = "consumed"
	BatchExpired  BatchStatus = "expired"
)

type ExpiryBatch struct {
	EarnedAt            time.Time   `json:"earned_at"`
	ExpiresAt           time.Time   `json:"expires_at"`
	ID                  string      `json:"id"`
	AccountID           string      `json:"account_id"`
	SourceTransactionID string      `json:"source_transaction_id"`
	Status              BatchStatus `json:"status"`
	PointsAmount        int64       `json:"points_amount"`
	RemainingPoints     int64       `json:"remaining_points"`
}

// SortFIFO orders batches by expiry, then by earn time, then by id.
func SortFIFO(batches []ExpiryBatch) {
	slices.SortStableFunc(batches, func(a, b ExpiryBatch) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		if c := a.EarnedAt.Compare(b.EarnedAt); c != 0 {
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
}

// Debit describes a points deduction written as one negative transaction.
type Debit struct {
	Type          TransactionType
	ReferenceType string
	ReferenceID   string
	Notes         string
	Points        int64
}

// Totals is the ledger-side projection of an account, recomputed from
// the transaction log and the active batches.
type Totals struct {
	Net             int64
	Credited        int64
	Debited         int64
	Expired         int64
	ActiveRemaining int64
}

// IsActivity reports whether a transaction of this type marks the member as active.
func (t TransactionType) IsActivity() bool {
	return t == TypeEarnPurchase || t == TypeEarnBonus || t == TypeEarnEngagement
}

// MemberFilter selects the accounts of one merchant, best earners first.
// Zero values disable the tier and balance filters; a non-positive Limit lists all.
type MemberFilter struct {
	MerchantID string
	Tier       string
	MinBalance int64
	Limit      int
	Offset     int
}

func (f *MemberFilter) Match(a *Account) bool {
	if a.MerchantID != f.MerchantID {
		return false
	}
	if f.Tier != "" && a.CurrentTier != f.Tier {
		return false
	}
	return a.PointsBalance >= f.MinBalance
}

// SortByEarned orders accounts by lifetime earned points, highest first, then by id.
func SortByEarned(accounts []Account) {
	slices.SortStableFunc(accounts, func(a, b Account) int {
		switch {
		case a.PointsEarned > b.PointsEarned:
			return -1
		case a.PointsEarned < b.PointsEarned:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

type MerchantStats struct {
	TierBreakdown  map[string]int64 `json:"tier_breakdown"`
	MerchantID     string           `json:"merchant_id"`
	TotalMembers   int64            `json:"total_members"`
	ActiveMembers  int64            `json:"active_members"`
	PointsIssued   int64            `json:"points_issued"`
	PointsRedeemed int64            `json:"points_redeemed"`
	PointsExpired  int64            `json:"points_expired"`
	PointsBalance  int64            `json:"points_balance"`
}
