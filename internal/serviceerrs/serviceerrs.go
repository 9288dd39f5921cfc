package serviceerrs

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInvalidSource         = errors.New("invalid points source")
	ErrInvalidCode           = errors.New("invalid redemption code")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrAmountOutOfRange      = errors.New("top-up amount out of range")
	ErrPaymentMethodDisabled = errors.New("payment method disabled")
	ErrProgramInactive       = errors.New("loyalty program inactive")
	ErrWalletDisabled        = errors.New("wallet disabled")
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrRewardNotFound      = errors.New("reward not found")
	ErrSessionNotFound     = errors.New("top-up session not found")
	ErrRedemptionNotFound  = errors.New("redemption not found")
	ErrProgramNotFound     = errors.New("program not configured")
	ErrTransactionNotFound = errors.New("transaction not found")
)

var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInsufficientFunds  = errors.New("insufficient funds")
)

var (
	ErrRedemptionLimitExceeded = errors.New("redemption limit exceeded")
	ErrRewardInactive          = errors.New("reward inactive")
	ErrBalanceCapExceeded      = errors.New("wallet balance cap exceeded")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrSessionExpired          = errors.New("top-up session expired")
	ErrRedemptionExpired       = errors.New("redemption expired")
	ErrRedemptionUsed          = errors.New("redemption already used")
	ErrDuplicatePaymentRef     = errors.New("payment reference already used")
	ErrAlreadyExists           = errors.New("already exists")
)

var ErrLedgerInconsistent = errors.New("ledger inconsistent")

var ErrTokenExpired = errors.New("token expired")

// TransientError marks a store failure that survived the retry budget.
// The enclosing transaction was rolled back.
type TransientError struct {
	Err      error
	Attempts int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("store unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

type TooManyRequestsError struct {
	RetryAfter time.Duration
	Limit      int
}

func (e *TooManyRequestsError) Error() string {
	return "too many requests"
}

func IsValidation(err error) bool {
	return anyOf(err,
		ErrInvalidRequest,
		ErrInvalidAmount,
		ErrInvalidSource,
		ErrInvalidCode,
		ErrInvalidPaymentMethod,
		ErrAmountOutOfRange,
		ErrPaymentMethodDisabled,
		ErrProgramInactive,
		ErrWalletDisabled,
	)
}

func IsNotFound(err error) bool {
	return anyOf(err,
		ErrAccountNotFound,
		ErrWalletNotFound,
		ErrRewardNotFound,
		ErrSessionNotFound,
		ErrRedemptionNotFound,
		ErrProgramNotFound,
		ErrTransactionNotFound,
	)
}

func IsInsufficient(err error) bool {
	return anyOf(err, ErrInsufficientPoints, ErrInsufficientFunds)
}

func IsConflict(err error) bool {
	return anyOf(err,
		ErrRedemptionLimitExceeded,
		ErrRewardInactive,
		ErrBalanceCapExceeded,
		ErrInvalidTransition,
		ErrSessionExpired,
		ErrRedemptionExpired,
		ErrRedemptionUsed,
		ErrDuplicatePaymentRef,
		ErrAlreadyExists,
	)
}

func IsTransient(err error) bool {
	var tErr *TransientError
	return errors.As(err, &tErr)
}

func anyOf(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
