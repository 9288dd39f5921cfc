package program

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/talx-hub/gopher-loyalty/internal/model/tier"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
)

const (
	DefaultExpiryMonths      = 12
	DefaultBonusExpiryMonths = 12
	DefaultSessionTTL        = time.Hour
	DefaultRedemptionDays    = 30
)

type Loyalty struct {
	MerchantID                    string          `yaml:"merchant_id"`
	Name                          string          `yaml:"name"`
	Tiers                         []tier.Tier     `yaml:"tiers"`
	PointsPerCurrency             decimal.Decimal `yaml:"points_per_currency"`
	ResidentMultiplier            decimal.Decimal `yaml:"resident_multiplier"`
	ExpiryMonths                  int             `yaml:"expiry_months"`
	ResidentSignupBonus           int64           `yaml:"resident_signup_bonus"`
	TouristSignupBonus            int64           `yaml:"tourist_signup_bonus"`
	ProfileCompletionBonusPoints  int64           `yaml:"profile_completion_bonus_points"`
	ReferralPoints                int64           `yaml:"referral_points"`
	RedemptionValidityDays        int             `yaml:"redemption_validity_days"`
	IsActive                      bool            `yaml:"is_active"`
	ProfileCompletionBonusEnabled bool            `yaml:"profile_completion_bonus_enabled"`
}

type WalletSettings struct {
	MerchantID                string             `yaml:"merchant_id"`
	Currency                  string             `yaml:"currency"`
	BonusTiers                []wallet.BonusTier `yaml:"bonus_tiers"`
	SessionTTL                time.Duration      `yaml:"session_ttl"`
	MinTopUpCents             int64              `yaml:"min_top_up_cents"`
	MaxTopUpCents             int64              `yaml:"max_top_up_cents"`
	MaxBalanceCents           int64              `yaml:"max_balance_cents"`
	WelcomeBonusCents         int64              `yaml:"welcome_bonus_cents"`
	ReferralBonusInviterCents int64              `yaml:"referral_bonus_inviter_cents"`
	ReferralBonusInviteeCents int64              `yaml:"referral_bonus_invitee_cents"`
	BonusExpiryMonths         int                `yaml:"bonus_expiry_months"`
	WalletEnabled             bool               `yaml:"wallet_enabled"`
	StripeEnabled             bool               `yaml:"stripe_enabled"`
	CashEnabled               bool               `yaml:"cash_enabled"`
}

func DefaultLoyalty(merchantID string) Loyalty {
	return Loyalty{
		MerchantID:                    merchantID,
		Name:                          "Loyalty",
		IsActive:                      true,
		PointsPerCurrency:             decimal.NewFromInt(1),
		ResidentMultiplier:            decimal.NewFromInt(1),
		ExpiryMonths:                  DefaultExpiryMonths,
		ResidentSignupBonus:           100,
		TouristSignupBonus:            50,
		ProfileCompletionBonusEnabled: true,
		ProfileCompletionBonusPoints:  50,
		ReferralPoints:                100,
		RedemptionValidityDays:        DefaultRedemptionDays,
		Tiers: []tier.Tier{
			{Name: "Bronze", MinPoints: 0, Multiplier: decimal.NewFromInt(1)},
			{Name: "Silver", MinPoints: 1000, Multiplier: decimal.RequireFromString("1.25")},
			{Name: "Gold", MinPoints: 5000, Multiplier: decimal.RequireFromString("1.5")},
			{Name: "Platinum", MinPoints: 15000, Multiplier: decimal.NewFromInt(2)},
		},
	}
}

func DefaultWalletSettings(merchantID string) WalletSettings {
	return WalletSettings{
		MerchantID:                merchantID,
		WalletEnabled:             true,
		StripeEnabled:             true,
		CashEnabled:               true,
		Currency:                  "AED",
		MinTopUpCents:             1000,
		MaxTopUpCents:             500000,
		MaxBalanceCents:           1000000,
		WelcomeBonusCents:         0,
		ReferralBonusInviterCents: 0,
		ReferralBonusInviteeCents: 0,
		BonusExpiryMonths:         DefaultBonusExpiryMonths,
		SessionTTL:                DefaultSessionTTL,
		BonusTiers: []wallet.BonusTier{
			{Name: "Starter", MinAmountCents: 10000, BonusPercent: decimal.NewFromInt(5)},
			{Name: "Plus", MinAmountCents: 50000, BonusPercent: decimal.NewFromInt(10)},
			{Name: "Max", MinAmountCents: 100000, BonusPercent: decimal.NewFromInt(15), MaxBonusCents: 25000},
		},
	}
}
