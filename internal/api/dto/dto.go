package dto

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/talx-hub/gopher-loyalty/internal/model/points"
	"github.com/talx-hub/gopher-loyalty/internal/model/reward"
	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
)

type OpenAccountRequest struct {
	AccountID  string `json:"account_id"`
	MerchantID string `json:"merchant_id"`
	IsResident bool   `json:"is_resident"`
}

func (r *OpenAccountRequest) IsValid() error {
	return errors.Join(required("account_id", r.AccountID), required("merchant_id", r.MerchantID))
}

type EarnRequest struct {
	ReferenceType string                 `json:"reference_type"`
	ReferenceID   string                 `json:"reference_id"`
	Notes         string                 `json:"notes"`
	Source        points.TransactionType `json:"source"`
	BaseAmount    decimal.Decimal        `json:"base_amount"`
}

func (r *EarnRequest) IsValid() error {
	if !r.Source.IsEarn() {
		return errors.New("source must be an earn type")
	}
	if r.BaseAmount.IsNegative() {
		return errors.New("base_amount must not be negative")
	}
	return nil
}

type SpendPointsRequest struct {
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Notes         string `json:"notes"`
	Points        int64  `json:"points"`
}

func (r *SpendPointsRequest) IsValid() error {
	return positive("points", r.Points)
}

type AdjustRequest struct {
	Notes string `json:"notes"`
	Delta int64  `json:"delta"`
}

func (r *AdjustRequest) IsValid() error {
	if r.Delta == 0 {
		return errors.New("delta must not be zero")
	}
	return nil
}

type ReferralRequest struct {
	ReferenceID string `json:"reference_id"`
}

type RedeemRequest struct {
	RewardID  string `json:"reward_id"`
	AttemptID string `json:"attempt_id"`
}

func (r *RedeemRequest) IsValid() error {
	return required("reward_id", r.RewardID)
}

type RewardRequest struct {
	ID             string `json:"id"`
	MerchantID     string `json:"merchant_id"`
	Name           string `json:"name"`
	PointsRequired int64  `json:"points_required"`
	MaxPerUser     int    `json:"max_per_user"`
	ValidityDays   int    `json:"validity_days"`
	IsActive       bool   `json:"is_active"`
}

func (r *RewardRequest) IsValid() error {
	var errs []error
	errs = append(errs, required("merchant_id", r.MerchantID), required("name", r.Name),
		positive("points_required", r.PointsRequired))
	if r.MaxPerUser < 0 {
		errs = append(errs, errors.New("max_per_user must not be negative"))
	}
	if r.ValidityDays < 0 {
		errs = append(errs, errors.New("validity_days must not be negative"))
	}
	return errors.Join(errs...)
}

func (r *RewardRequest) ToModel() reward.Reward {
	return reward.Reward{
		ID:             r.ID,
		MerchantID:     r.MerchantID,
		Name:           strings.TrimSpace(r.Name),
		PointsRequired: r.PointsRequired,
		MaxPerUser:     r.MaxPerUser,
		ValidityDays:   r.ValidityDays,
		IsActive:       r.IsActive,
	}
}

type OpenWalletRequest struct {
	AccountID  string `json:"account_id"`
	MerchantID string `json:"merchant_id"`
}

func (r *OpenWalletRequest) IsValid() error {
	return errors.Join(required("account_id", r.AccountID), required("merchant_id", r.MerchantID))
}

// MoneyRequest is the body of spend and refund calls.
type MoneyRequest struct {
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Description   string `json:"description"`
	AmountCents   int64  `json:"amount_cents"`
}

func (r *MoneyRequest) IsValid() error {
	return positive("amount_cents", r.AmountCents)
}

type TopUpRequest struct {
	Method      wallet.PaymentMethod `json:"method"`
	AmountCents int64                `json:"amount_cents"`
}

func (r *TopUpRequest) IsValid() error {
	return positive("amount_cents", r.AmountCents)
}

type CashTopUpRequest struct {
	ProcessedBy string `json:"processed_by"`
	AmountCents int64  `json:"amount_cents"`
}

func (r *CashTopUpRequest) IsValid() error {
	return positive("amount_cents", r.AmountCents)
}

type CompleteTopUpRequest struct {
	ExternalPaymentRef string `json:"external_payment_ref"`
}

func (r *CompleteTopUpRequest) IsValid() error {
	return required("external_payment_ref", r.ExternalPaymentRef)
}

type FailTopUpRequest struct {
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " is empty")
	}
	return nil
}

func positive(field string, value int64) error {
	if value <= 0 {
		return errors.New(field + " must be positive")
	}
	return nil
}
