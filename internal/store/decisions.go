package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openclaw/smartroute/internal/analyzer"
)

// Decision is one analyzed request and its (eventually reported) outcome.
type Decision struct {
	ID              string            `json:"id"`
	Owner           string            `json:"owner"`
	TaskType        analyzer.TaskType `json:"taskType"`
	Complexity      float64           `json:"complexity"`
	EstimatedTokens int               `json:"estimatedTokens"`
	HasCode         bool              `json:"hasCode"`
	HasErrors       bool              `json:"hasErrors"`
	Model           string            `json:"model"`
	Provider        string            `json:"provider"`
	Confidence      float64           `json:"confidence"`
	Reason          string            `json:"reason"`
	Alternatives    string            `json:"alternatives"` // JSON array
	PatternID       string            `json:"patternId,omitempty"`
	EstimatedCost   float64           `json:"estimatedCost"`
	CreatedAt       time.Time         `json:"createdAt"`

	// Outcome fields are write-once, nil until reported.
	Success      *bool      `json:"success,omitempty"`
	ActualTokens *int       `json:"actualTokens,omitempty"`
	ActualCost   *float64   `json:"actualCost,omitempty"`
	Quality      *float64   `json:"quality,omitempty"`
	LatencyMs    *int64     `json:"latencyMs,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Outcome is the post-hoc report closing the learning loop for a decision.
type Outcome struct {
	Success      bool    `json:"success"`
	ActualTokens int     `json:"actualTokens"`
	ActualCost   float64 `json:"actualCost"`
	Quality      float64 `json:"quality"`
	LatencyMs    int64   `json:"latencyMs"`
}

// InsertDecision persists a new decision row. This runs synchronously on the
// selection path: the row must exist before the caller can report an outcome.
func (s *Store) InsertDecision(ctx context.Context, d *Decision) error {
	var patternID any
	if d.PatternID != "" {
		patternID = d.PatternID
	}
	_, err := s.exec(ctx, `
INSERT INTO routing_decisions (
	id, owner, task_type, complexity, estimated_tokens,
	has_code, has_errors, model, provider, confidence,
	reason, alternatives, pattern_id, estimated_cost, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Owner, d.TaskType.String(), d.Complexity, d.EstimatedTokens,
		boolToInt(d.HasCode), boolToInt(d.HasErrors), d.Model, d.Provider, d.Confidence,
		d.Reason, d.Alternatives, patternID, d.EstimatedCost, d.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// GetDecision loads a decision by ID for the given owner.
func (s *Store) GetDecision(ctx context.Context, owner, id string) (*Decision, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, owner, task_type, complexity, estimated_tokens,
       has_code, has_errors, model, provider, confidence,
       reason, alternatives, pattern_id, estimated_cost, created_at,
       success, actual_tokens, actual_cost, quality, latency_ms, completed_at
FROM routing_decisions
WHERE owner = ? AND id = ?`, owner, id)
	return scanDecision(row)
}

// RecordOutcome writes a decision's outcome fields. The update is guarded by
// `success IS NULL` so outcomes are write-once; the decision's original
// analysis fields are never touched.
func (s *Store) RecordOutcome(ctx context.Context, owner, id string, o Outcome) error {
	res, err := s.exec(ctx, `
UPDATE routing_decisions
SET success = ?, actual_tokens = ?, actual_cost = ?, quality = ?, latency_ms = ?, completed_at = ?
WHERE owner = ? AND id = ? AND success IS NULL`,
		boolToInt(o.Success), o.ActualTokens, o.ActualCost, o.Quality, o.LatencyMs,
		time.Now().Unix(), owner, id,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if n == 0 {
		// Distinguish missing from already-reported.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM routing_decisions WHERE owner = ? AND id = ?`, owner, id,
		).Scan(&exists); err == sql.ErrNoRows {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("record outcome: %w", err)
		}
		return ErrOutcomeReported
	}
	return nil
}

// SimilarOutcome is a slim row used by scoring and pattern detection.
type SimilarOutcome struct {
	Model    string
	Provider string
	Success  bool
}

// SimilarDecisions returns completed decisions by the same owner and task
// type whose complexity and token estimate fall within the given windows.
// Zero windows disable the respective filter.
func (s *Store) SimilarDecisions(ctx context.Context, owner string, taskType analyzer.TaskType, complexity, complexityWindow float64, tokens, tokenWindow int) ([]SimilarOutcome, error) {
	query := `
SELECT model, provider, success
FROM routing_decisions
WHERE owner = ? AND task_type = ? AND success IS NOT NULL`
	args := []any{owner, taskType.String()}

	if complexityWindow > 0 {
		query += ` AND complexity BETWEEN ? AND ?`
		args = append(args, complexity-complexityWindow, complexity+complexityWindow)
	}
	if tokenWindow > 0 {
		query += ` AND estimated_tokens BETWEEN ? AND ?`
		args = append(args, tokens-tokenWindow, tokens+tokenWindow)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query similar decisions: %w", err)
	}
	defer rows.Close()

	var out []SimilarOutcome
	for rows.Next() {
		var so SimilarOutcome
		var success int
		if err := rows.Scan(&so.Model, &so.Provider, &success); err != nil {
			return nil, fmt.Errorf("scan similar decision: %w", err)
		}
		so.Success = success != 0
		out = append(out, so)
	}
	return out, rows.Err()
}

// ModelStats holds aggregated recent history for one model+task-type.
type ModelStats struct {
	Count       int
	SuccessRate float64
	AvgQuality  float64
}

// RecentModelStats aggregates the owner's completed decisions for an exact
// model+task-type since the cutoff.
func (s *Store) RecentModelStats(ctx context.Context, owner, model string, taskType analyzer.TaskType, since time.Time) (ModelStats, error) {
	var st ModelStats
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(AVG(success), 0),
       COALESCE(AVG(quality), 0)
FROM routing_decisions
WHERE owner = ? AND model = ? AND task_type = ?
  AND success IS NOT NULL AND created_at >= ?`,
		owner, model, taskType.String(), since.Unix(),
	).Scan(&st.Count, &st.SuccessRate, &st.AvgQuality)
	if err != nil {
		return ModelStats{}, fmt.Errorf("recent model stats: %w", err)
	}
	return st, nil
}

// OwnerStats summarizes an owner's routing history.
type OwnerStats struct {
	TotalDecisions int            `json:"totalDecisions"`
	Completed      int            `json:"completed"`
	SuccessRate    float64        `json:"successRate"`
	TotalCostUSD   float64        `json:"totalCostUsd"`
	AvgComplexity  float64        `json:"avgComplexity"`
	ByModel        map[string]int `json:"byModel"`
	ByTaskType     map[string]int `json:"byTaskType"`
}

// Stats aggregates decision counts for an owner.
func (s *Store) Stats(ctx context.Context, owner string) (*OwnerStats, error) {
	st := &OwnerStats{
		ByModel:    make(map[string]int),
		ByTaskType: make(map[string]int),
	}
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COUNT(success),
       COALESCE(AVG(CASE WHEN success IS NOT NULL THEN success END), 0),
       COALESCE(SUM(actual_cost), 0),
       COALESCE(AVG(complexity), 0)
FROM routing_decisions WHERE owner = ?`, owner,
	).Scan(&st.TotalDecisions, &st.Completed, &st.SuccessRate, &st.TotalCostUSD, &st.AvgComplexity)
	if err != nil {
		return nil, fmt.Errorf("owner stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT model, task_type, COUNT(*) FROM routing_decisions WHERE owner = ? GROUP BY model, task_type`, owner)
	if err != nil {
		return nil, fmt.Errorf("owner stats breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var model, taskType string
		var n int
		if err := rows.Scan(&model, &taskType, &n); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		st.ByModel[model] += n
		st.ByTaskType[taskType] += n
	}
	return st, rows.Err()
}

// RecentComplexities returns the newest complexity scores for an owner,
// oldest first. Used by the dashboard sparkline.
func (s *Store) RecentComplexities(ctx context.Context, owner string, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT complexity FROM (
	SELECT complexity, created_at FROM routing_decisions
	WHERE owner = ? ORDER BY created_at DESC LIMIT ?
) ORDER BY created_at ASC`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("recent complexities: %w", err)
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PurgeDecisions deletes decisions created before the cutoff. Returns how
// many rows were removed.
func (s *Store) PurgeDecisions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM routing_decisions WHERE created_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge decisions: %w", err)
	}
	return res.RowsAffected()
}

// SavingsRow feeds the savings report: what a successful decision actually
// cost and how many tokens it consumed.
type SavingsRow struct {
	Model        string
	ActualTokens int
	ActualCost   float64
}

// SuccessfulSpend returns per-decision actuals for successful decisions since
// the cutoff.
func (s *Store) SuccessfulSpend(ctx context.Context, owner string, since time.Time) ([]SavingsRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT model, COALESCE(actual_tokens, 0), COALESCE(actual_cost, 0)
FROM routing_decisions
WHERE owner = ? AND success = 1 AND created_at >= ?`, owner, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query successful spend: %w", err)
	}
	defer rows.Close()
	var out []SavingsRow
	for rows.Next() {
		var r SavingsRow
		if err := rows.Scan(&r.Model, &r.ActualTokens, &r.ActualCost); err != nil {
			return nil, fmt.Errorf("scan spend row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*Decision, error) {
	var d Decision
	var taskType string
	var hasCode, hasErrors int
	var patternID sql.NullString
	var createdAt int64
	var success sql.NullInt64
	var actualTokens sql.NullInt64
	var actualCost, quality sql.NullFloat64
	var latencyMs, completedAt sql.NullInt64

	err := row.Scan(
		&d.ID, &d.Owner, &taskType, &d.Complexity, &d.EstimatedTokens,
		&hasCode, &hasErrors, &d.Model, &d.Provider, &d.Confidence,
		&d.Reason, &d.Alternatives, &patternID, &d.EstimatedCost, &createdAt,
		&success, &actualTokens, &actualCost, &quality, &latencyMs, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan decision: %w", err)
	}

	d.TaskType = analyzer.ParseTaskType(taskType)
	d.HasCode = hasCode != 0
	d.HasErrors = hasErrors != 0
	d.PatternID = patternID.String
	d.CreatedAt = time.Unix(createdAt, 0).UTC()

	if success.Valid {
		v := success.Int64 != 0
		d.Success = &v
	}
	if actualTokens.Valid {
		v := int(actualTokens.Int64)
		d.ActualTokens = &v
	}
	if actualCost.Valid {
		d.ActualCost = &actualCost.Float64
	}
	if quality.Valid {
		d.Quality = &quality.Float64
	}
	if latencyMs.Valid {
		d.LatencyMs = &latencyMs.Int64
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		d.CompletedAt = &t
	}
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
