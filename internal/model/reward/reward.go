package reward

import "time"

type Reward struct {
	ID             string `json:"id"`
	MerchantID     string `json:"merchant_id"`
	Name           string `json:"name"`
	PointsRequired int64  `json:"points_required"`
	// MaxPerUser of zero means unlimited.
	MaxPerUser   int  `json:"max_per_user"`
	ValidityDays int  `json:"validity_days"`
	IsActive     bool `json:"is_active"`
}

type Status string

const (
	StatusApproved Status = "approved"
	StatusUsed     Status = "used"
	StatusExpired  Status = "expired"
)

type Redemption struct {
	CreatedAt   time.Time  `json:"created_at"`
	ValidUntil  time.Time  `json:"valid_until"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	ID          string     `json:"id"`
	AccountID   string     `json:"account_id"`
	RewardID    string     `json:"reward_id"`
	AttemptID   string     `json:"attempt_id,omitempty"`
	Code        string     `json:"code"`
	Status      Status     `json:"status"`
	PointsSpent int64      `json:"points_spent"`
}
