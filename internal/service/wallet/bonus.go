package wallet

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/talx-hub/gopher-loyalty/internal/model/wallet"
)

var hundred = decimal.NewFromInt(100)

type Bonus struct {
	Percent  decimal.Decimal `json:"percent"`
	TierName string          `json:"tier_name,omitempty"`
	Cents    int64           `json:"cents"`
}

// ComputeBonus applies the highest tier whose minimum the amount reaches.
// The bonus is floored to whole cents and capped by the tier's maximum.
func ComputeBonus(tiers []wallet.BonusTier, amountCents int64) Bonus {
	if amountCents <= 0 || len(tiers) == 0 {
		return Bonus{Percent: decimal.Zero}
	}

	sorted := slices.Clone(tiers)
	slices.SortFunc(sorted, func(a, b wallet.BonusTier) int {
		switch {
		case a.MinAmountCents > b.MinAmountCents:
			return -1
		case a.MinAmountCents < b.MinAmountCents:
			return 1
		}
		return 0
	})

	for _, t := range sorted {
		if t.MinAmountCents > amountCents {
			continue
		}
		cents := decimal.NewFromInt(amountCents).Mul(t.BonusPercent).Div(hundred).Floor().IntPart()
		if t.MaxBonusCents > 0 {
			cents = min(cents, t.MaxBonusCents)
		}
		return Bonus{Cents: max(cents, 0), Percent: t.BonusPercent, TierName: t.Name}
	}
	return Bonus{Percent: decimal.Zero}
}
