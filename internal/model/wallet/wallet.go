package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	ID                  string    `json:"id"`
	AccountID           string    `json:"account_id"`
	MerchantID          string    `json:"merchant_id"`
	Currency            string    `json:"currency"`
	BalanceCents        int64     `json:"balance_cents"`
	BonusBalanceCents   int64     `json:"bonus_balance_cents"`
	MaxBalanceCents     int64     `json:"max_balance_cents"`
	IsActive            bool      `json:"is_active"`
	WelcomeBonusAwarded bool      `json:"welcome_bonus_awarded"`
}

func (w *Wallet) TotalCents() int64 {
	return w.BalanceCents + w.BonusBalanceCents
}

// Fits reports whether crediting the given cash and bonus keeps the wallet under its cap.
// A zero cap means the wallet is uncapped.
func (w *Wallet) Fits(cashCents, bonusCents int64) bool {
	if w.MaxBalanceCents <= 0 {
		return true
	}
	return w.TotalCents()+cashCents+bonusCents <= w.MaxBalanceCents
}

type TransactionType string

const (
	TypeTopUpCash     TransactionType = "top_up_cash"
	TypeTopUpStripe   TransactionType = "top_up_stripe"
	TypeTopUpBonus    TransactionType = "top_up_bonus"
	TypeWelcomeBonus  TransactionType = "welcome_bonus"
	TypeReferralBonus TransactionType = "referral_bonus"
	TypePayment       TransactionType = "payment"
	TypeRefund        TransactionType = "refund"
	TypeExpiry        TransactionType = "expiry"
	TypeAdjustment    TransactionType = "adjustment"
)

type Transaction struct {
	CreatedAt              time.Time       `json:"created_at"`
	ExpiresAt              *time.Time      `json:"expires_at,omitempty"`
	ID                     string          `json:"id"`
	WalletID               string          `json:"wallet_id"`
	Type                   TransactionType `json:"type"`
	ReferenceType          string          `json:"reference_type,omitempty"`
	ReferenceID            string          `json:"reference_id,omitempty"`
	ExternalPaymentRef     string          `json:"external_payment_ref,omitempty"`
	Description            string          `json:"description,omitempty"`
	AmountCents            int64           `json:"amount_cents"`
	BonusAmountCents       int64           `json:"bonus_amount_cents"`
	BalanceAfterCents      int64           `json:"balance_after_cents"`
	BonusBalanceAfterCents int64           `json:"bonus_balance_after_cents"`
}

// Totals is the projection of the wallet log used to verify the cached balances.
type Totals struct {
	Cash            int64
	Bonus           int64
	ActiveLotsCents int64
}

type BonusTier struct {
	Name           string          `json:"name"             yaml:"name"`
	BonusPercent   decimal.Decimal `json:"bonus_percent"    yaml:"bonus_percent"`
	MinAmountCents int64           `json:"min_amount_cents" yaml:"min_amount_cents"`
	// MaxBonusCents of zero means the bonus is uncapped.
	MaxBonusCents int64 `json:"max_bonus_cents" yaml:"max_bonus_cents"`
}

type LotStatus string

const (
	LotActive   LotStatus = "active"
	LotConsumed LotStatus = "consumed"
	LotExpired  LotStatus = "expired"
)

// BonusLot tracks a single bonus credit so it can be spent and expired independently of cash.
type BonusLot struct {
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	ID                  string    `json:"id"`
	WalletID            string    `json:"wallet_id"`
	SourceTransactionID string    `json:"source_transaction_id"`
	Status              LotStatus `json:"status"`
	AmountCents         int64     `json:"amount_cents"`
	RemainingCents      int64     `json:"remaining_cents"`
}

type PaymentMethod string

const (
	MethodStripe PaymentMethod = "stripe"
	MethodCash   PaymentMethod = "cash"
)

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionExpired    SessionStatus = "expired"
	SessionCancelled  SessionStatus = "cancelled"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionPending:    {SessionProcessing, SessionCompleted, SessionFailed, SessionExpired, SessionCancelled},
	SessionProcessing: {SessionCompleted, SessionFailed},
}

func (s SessionStatus) CanTransition(to SessionStatus) bool {
	for _, next := range sessionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s SessionStatus) IsTerminal() bool {
	_, ok := sessionTransitions[s]
	return !ok
}

type TopUpSession struct {
	CreatedAt          time.Time     `json:"created_at"`
	ExpiresAt          time.Time     `json:"expires_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	ID                 string        `json:"id"`
	WalletID           string        `json:"wallet_id"`
	Currency           string        `json:"currency"`
	PaymentMethod      PaymentMethod `json:"payment_method"`
	ExternalPaymentRef string        `json:"external_payment_ref,omitempty"`
	Status             SessionStatus `json:"status"`
	FailureReason      string        `json:"failure_reason,omitempty"`
	TransactionID      string        `json:"transaction_id,omitempty"`
	BonusTierName      string        `json:"bonus_tier_name,omitempty"`
	AmountCents        int64         `json:"amount_cents"`
	BonusCents         int64         `json:"bonus_cents"`
}
