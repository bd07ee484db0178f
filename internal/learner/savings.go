package learner

import (
	"context"
	"fmt"
	"time"
)

// SavingsReport compares actual routed spend against a baseline where every
// successful request had used the most expensive catalog model.
type SavingsReport struct {
	Owner           string  `json:"owner"`
	WindowDays      int     `json:"windowDays"`
	Decisions       int     `json:"decisions"`
	ActualCostUSD   float64 `json:"actualCostUsd"`
	BaselineCostUSD float64 `json:"baselineCostUsd"`
	SavedUSD        float64 `json:"savedUsd"`
	SavingsPercent  float64 `json:"savingsPercent"`
	BaselineModel   string  `json:"baselineModel"`
}

// Savings computes the savings report over a lookback window. Pure reporting,
// no side effects.
func (l *Learner) Savings(ctx context.Context, owner string, windowDays int) (*SavingsReport, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().AddDate(0, 0, -windowDays)

	rows, err := l.store.SuccessfulSpend(ctx, owner, since)
	if err != nil {
		return nil, fmt.Errorf("savings query: %w", err)
	}

	premium := l.catalog.MostExpensive()
	report := &SavingsReport{
		Owner:         owner,
		WindowDays:    windowDays,
		Decisions:     len(rows),
		BaselineModel: premium.ID,
	}

	for _, r := range rows {
		report.ActualCostUSD += r.ActualCost
		// Actual total tokens repriced at the premium model, with the
		// same 3:1 prompt-to-completion split used for estimates.
		prompt := r.ActualTokens * 3 / 4
		completion := r.ActualTokens - prompt
		report.BaselineCostUSD += premium.Cost(prompt, completion)
	}

	report.SavedUSD = report.BaselineCostUSD - report.ActualCostUSD
	if report.BaselineCostUSD > 0 {
		report.SavingsPercent = report.SavedUSD / report.BaselineCostUSD * 100
	}
	return report, nil
}
