package selector

import "context"

// BudgetSource supplies an owner's live daily spend data. The real
// implementation belongs to the external cost governor; the router only
// consumes the interface.
type BudgetSource interface {
	DailyBudget(ctx context.Context, owner string) (limitUSD, spentUSD float64, err error)
}

// StaticBudget is the stand-in governor: fixed limit and spend for every
// owner, taken from config.
type StaticBudget struct {
	LimitUSD float64
	SpentUSD float64
}

func (b StaticBudget) DailyBudget(_ context.Context, _ string) (float64, float64, error) {
	return b.LimitUSD, b.SpentUSD, nil
}
