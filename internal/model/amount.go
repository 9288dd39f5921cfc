package model

import (
	"errors"
	"fmt"
	"math"
)

const centsInUnit = 100

// Amount is a non-negative monetary value kept as whole units and cents.
type Amount struct {
	units int64
	cents int64
}

func FromCents(totalCents int64) Amount {
	return Amount{
		units: totalCents / centsInUnit,
		cents: totalCents % centsInUnit,
	}
}

func (a *Amount) ToFloat64() float64 {
	return float64(a.units) + float64(a.cents)/centsInUnit
}

func (a *Amount) TotalCents() int64 {
	return a.units*centsInUnit + a.cents
}

// Format renders the amount as "12.34 AED". An empty currency omits the suffix.
func (a *Amount) Format(currency string) string {
	total := a.TotalCents()
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	s := fmt.Sprintf("%s%d.%02d", sign, total/centsInUnit, total%centsInUnit)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

func FromFloat(amount float64) (Amount, error) {
	if amount < 0 {
		return Amount{}, errors.New("amount must be positive")
	}
	const maxPreciseInt = 9007199254740992
	if amount*centsInUnit >= maxPreciseInt {
		return Amount{}, errors.New("amount overflow")
	}

	totalCents := int64(math.Round(amount * centsInUnit))
	return FromCents(totalCents), nil
}
