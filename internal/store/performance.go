package store

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/smartroute/internal/analyzer"
)

// Performance is the aggregate per (owner, model, provider, task type).
type Performance struct {
	Owner         string  `json:"owner"`
	Model         string  `json:"model"`
	Provider      string  `json:"provider"`
	TaskType      string  `json:"taskType"`
	TotalRequests int     `json:"totalRequests"`
	Successes     int     `json:"successes"`
	AvgLatencyMs  float64 `json:"avgLatencyMs"`
	AvgQuality    float64 `json:"avgQuality"`
	AvgCost       float64 `json:"avgCost"`
}

// SuccessRate derives the fraction of successful requests.
func (p Performance) SuccessRate() float64 {
	if p.TotalRequests == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.TotalRequests)
}

// RecordPerformance folds one outcome into the aggregate row. The running
// averages are computed inside a single conditional upsert: SQLite evaluates
// every SET expression against the pre-update row, so concurrent outcome
// reports for the same key can't lose updates the way an application-level
// read-compute-write would.
func (s *Store) RecordPerformance(ctx context.Context, owner, model, provider string, taskType analyzer.TaskType, o Outcome) error {
	succ := boolToInt(o.Success)
	_, err := s.exec(ctx, `
INSERT INTO model_performance (
	owner, model, provider, task_type,
	total_requests, successes, avg_latency_ms, avg_quality, avg_cost, updated_at
) VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?)
ON CONFLICT(owner, model, provider, task_type) DO UPDATE SET
	avg_latency_ms = (avg_latency_ms * total_requests + excluded.avg_latency_ms) / (total_requests + 1),
	avg_quality    = (avg_quality * total_requests + excluded.avg_quality) / (total_requests + 1),
	avg_cost       = (avg_cost * total_requests + excluded.avg_cost) / (total_requests + 1),
	successes      = successes + excluded.successes,
	total_requests = total_requests + 1,
	updated_at     = excluded.updated_at`,
		owner, model, provider, taskType.String(),
		succ, float64(o.LatencyMs), o.Quality, o.ActualCost, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record performance: %w", err)
	}
	return nil
}

// ListPerformance returns all aggregate rows for an owner.
func (s *Store) ListPerformance(ctx context.Context, owner string) ([]Performance, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT owner, model, provider, task_type,
       total_requests, successes, avg_latency_ms, avg_quality, avg_cost
FROM model_performance
WHERE owner = ?
ORDER BY total_requests DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list performance: %w", err)
	}
	defer rows.Close()

	var out []Performance
	for rows.Next() {
		var p Performance
		if err := rows.Scan(
			&p.Owner, &p.Model, &p.Provider, &p.TaskType,
			&p.TotalRequests, &p.Successes, &p.AvgLatencyMs, &p.AvgQuality, &p.AvgCost,
		); err != nil {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
