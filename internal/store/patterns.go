package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openclaw/smartroute/internal/analyzer"
)

// Pattern is a learned rule: task type + complexity range + token range →
// recommended model. Confidence is derived from running success/failure
// counts, optionally decayed when the pattern goes unused.
type Pattern struct {
	ID            string            `json:"id"`
	Owner         string            `json:"owner"`
	TaskType      analyzer.TaskType `json:"taskType"`
	ComplexityMin float64           `json:"complexityMin"`
	ComplexityMax float64           `json:"complexityMax"`
	TokenMin      int               `json:"tokenMin"`
	TokenMax      int               `json:"tokenMax"`
	Model         string            `json:"model"`
	Provider      string            `json:"provider"`
	Successes     int               `json:"successes"`
	Failures      int               `json:"failures"`
	Confidence    float64           `json:"confidence"`
	CreatedAt     time.Time         `json:"createdAt"`
	LastUsedAt    time.Time         `json:"lastUsedAt"`
}

const patternColumns = `id, owner, task_type, complexity_min, complexity_max,
token_min, token_max, model, provider, successes, failures, confidence,
created_at, last_used_at`

// InsertPattern stores a newly detected pattern.
func (s *Store) InsertPattern(ctx context.Context, p *Pattern) error {
	_, err := s.exec(ctx, `
INSERT INTO routing_patterns (
	id, owner, task_type, complexity_min, complexity_max,
	token_min, token_max, model, provider,
	successes, failures, confidence, created_at, last_used_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Owner, p.TaskType.String(), p.ComplexityMin, p.ComplexityMax,
		p.TokenMin, p.TokenMax, p.Model, p.Provider,
		p.Successes, p.Failures, p.Confidence, p.CreatedAt.Unix(), p.LastUsedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

// MatchPattern finds the pattern (if any) whose complexity range contains the
// given score for this owner and task type. The first created pattern wins.
func (s *Store) MatchPattern(ctx context.Context, owner string, taskType analyzer.TaskType, complexity float64) (*Pattern, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+patternColumns+`
FROM routing_patterns
WHERE owner = ? AND task_type = ? AND complexity_min <= ? AND complexity_max >= ?
ORDER BY created_at ASC
LIMIT 1`, owner, taskType.String(), complexity, complexity)

	p, err := scanPattern(row)
	if err == ErrNotFound {
		return nil, nil
	}
	return p, err
}

// HasOverlappingPattern reports whether any pattern for this owner/task-type
// overlaps the candidate complexity range. Detection skips overlapping
// ranges: the first pattern wins, later candidates are silently dropped.
func (s *Store) HasOverlappingPattern(ctx context.Context, owner string, taskType analyzer.TaskType, cmin, cmax float64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM routing_patterns
WHERE owner = ? AND task_type = ? AND complexity_min <= ? AND complexity_max >= ?`,
		owner, taskType.String(), cmax, cmin,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pattern overlap: %w", err)
	}
	return n > 0, nil
}

// ListPatterns returns all of an owner's patterns, newest first.
func (s *Store) ListPatterns(ctx context.Context, owner string) ([]*Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+patternColumns+`
FROM routing_patterns
WHERE owner = ?
ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var out []*Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReinforcePattern feeds an outcome back into a pattern's counts and
// recomputes confidence = successes / (successes + failures) in a single
// statement, so the invariant confidence ∈ [0,1] holds by construction.
func (s *Store) ReinforcePattern(ctx context.Context, id string, success bool) error {
	succ, fail := 0, 1
	if success {
		succ, fail = 1, 0
	}
	_, err := s.exec(ctx, `
UPDATE routing_patterns
SET successes = successes + ?,
    failures = failures + ?,
    confidence = CAST(successes + ? AS REAL) / (successes + failures + 1),
    last_used_at = ?
WHERE id = ?`,
		succ, fail, succ, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("reinforce pattern: %w", err)
	}
	return nil
}

// TouchPattern marks a pattern as used without changing its counts.
func (s *Store) TouchPattern(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `UPDATE routing_patterns SET last_used_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("touch pattern: %w", err)
	}
	return nil
}

// DecayPatterns multiplies the confidence of patterns unused since the cutoff
// by factor. Returns the number of patterns decayed.
func (s *Store) DecayPatterns(ctx context.Context, unusedSince time.Time, factor float64) (int64, error) {
	if factor <= 0 || factor >= 1 {
		return 0, fmt.Errorf("decay factor must be in (0,1), got %v", factor)
	}
	res, err := s.exec(ctx, `
UPDATE routing_patterns
SET confidence = confidence * ?
WHERE last_used_at < ?`, factor, unusedSince.Unix())
	if err != nil {
		return 0, fmt.Errorf("decay patterns: %w", err)
	}
	return res.RowsAffected()
}

func scanPattern(row rowScanner) (*Pattern, error) {
	var p Pattern
	var taskType string
	var createdAt, lastUsedAt int64

	err := row.Scan(
		&p.ID, &p.Owner, &taskType, &p.ComplexityMin, &p.ComplexityMax,
		&p.TokenMin, &p.TokenMax, &p.Model, &p.Provider,
		&p.Successes, &p.Failures, &p.Confidence, &createdAt, &lastUsedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pattern: %w", err)
	}

	p.TaskType = analyzer.ParseTaskType(taskType)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.LastUsedAt = time.Unix(lastUsedAt, 0).UTC()
	return &p, nil
}
