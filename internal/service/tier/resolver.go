package tier

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/talx-hub/gopher-loyalty/internal/model/tier"
)

// Resolve finds the tier a qualifying value falls into: the tier with the greatest
// threshold not above value. A value below every threshold gets the lowest tier,
// and an empty table gets the default tier.
func Resolve(tiers []tier.Tier, value int64) tier.Resolution {
	if len(tiers) == 0 {
		return tier.Resolution{Current: tier.Default()}
	}

	sorted := sortedCopy(tiers)
	idx := 0
	for i, t := range sorted {
		if t.MinPoints <= value {
			idx = i
		}
	}

	res := tier.Resolution{Current: sorted[idx]}
	if idx+1 < len(sorted) {
		next := sorted[idx+1]
		res.Next = &next
		res.PointsToNext = max(next.MinPoints-value, 0)
	}
	return res
}

// Describe reports the tier an account holds together with the next tier above it.
// The held tier is taken as stored, so a table change never alters what an account
// displays before its next earn re-resolves it. A name missing from the table keeps
// a multiplier of one and looks for the next tier from value.
func Describe(tiers []tier.Tier, name string, value int64) tier.Resolution {
	sorted := sortedCopy(tiers)
	current := tier.Tier{Name: name, Multiplier: decimal.NewFromInt(1)}
	floor := value
	if i := slices.IndexFunc(sorted, func(t tier.Tier) bool { return t.Name == name }); i >= 0 {
		current = sorted[i]
		floor = current.MinPoints
	} else if name == "" {
		return Resolve(tiers, value)
	}

	res := tier.Resolution{Current: current}
	for _, t := range sorted {
		if t.MinPoints > floor {
			next := t
			res.Next = &next
			res.PointsToNext = max(next.MinPoints-value, 0)
			break
		}
	}
	return res
}

// Multiplier returns the earn multiplier of the named tier, or one when the tier is unknown.
func Multiplier(tiers []tier.Tier, name string) decimal.Decimal {
	for _, t := range tiers {
		if t.Name == name && t.Multiplier.IsPositive() {
			return t.Multiplier
		}
	}
	return decimal.NewFromInt(1)
}

func Validate(tiers []tier.Tier) error {
	sorted := sortedCopy(tiers)
	seen := make(map[string]struct{}, len(sorted))
	for i, t := range sorted {
		if t.Name == "" {
			return errors.New("tier name must not be empty")
		}
		if _, ok := seen[t.Name]; ok {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.MinPoints < 0 {
			return fmt.Errorf("tier %q: negative threshold", t.Name)
		}
		if !t.Multiplier.IsPositive() {
			return fmt.Errorf("tier %q: multiplier must be positive", t.Name)
		}
		if i > 0 && sorted[i-1].MinPoints == t.MinPoints {
			return fmt.Errorf("tiers %q and %q share threshold %d",
				sorted[i-1].Name, t.Name, t.MinPoints)
		}
	}
	return nil
}

func sortedCopy(tiers []tier.Tier) []tier.Tier {
	sorted := slices.Clone(tiers)
	slices.SortStableFunc(sorted, func(a, b tier.Tier) int {
		switch {
		case a.MinPoints < b.MinPoints:
			return -1
		case a.MinPoints > b.MinPoints:
			return 1
		}
		return 0
	})
	return sorted
}
