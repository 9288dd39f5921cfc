package tier

import "github.com/shopspring/decimal"

const DefaultName = "Bronze"

type Tier struct {
	Name       string          `json:"name"       yaml:"name"`
	MinPoints  int64           `json:"min_points" yaml:"min_points"`
	Multiplier decimal.Decimal `json:"multiplier" yaml:"multiplier"`
}

func Default() Tier {
	return Tier{
		Name:       DefaultName,
		MinPoints:  0,
		Multiplier: decimal.NewFromInt(1),
	}
}

type Resolution struct {
	Next         *Tier `json:"next,omitempty"`
	Current      Tier  `json:"current"`
	PointsToNext int64 `json:"points_to_next"`
}

func Badge(name string) string {
	return "tier:" + name
}
