package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tier is a quota class.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Quota is one owner's daily decision allowance.
type Quota struct {
	Owner     string     `json:"owner"`
	Tier      Tier       `json:"tier"`
	UsedToday int        `json:"usedToday"`
	LastReset string     `json:"lastReset"` // UTC date, YYYY-MM-DD
	PaidUntil *time.Time `json:"paidUntil,omitempty"`
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// GetQuota loads an owner's quota row, creating a default free-tier record on
// first contact and lazily resetting the counter when the stored reset date
// is not today (UTC). The reset happens at most once per day because it is
// keyed on the stored date, not elapsed time.
func (s *Store) GetQuota(ctx context.Context, owner string, now time.Time) (*Quota, error) {
	today := utcDay(now)

	if _, err := s.exec(ctx, `
INSERT INTO quotas (owner, tier, used_today, last_reset)
VALUES (?, 'free', 0, ?)
ON CONFLICT(owner) DO NOTHING`, owner, today); err != nil {
		return nil, fmt.Errorf("ensure quota: %w", err)
	}

	if _, err := s.exec(ctx, `
UPDATE quotas SET used_today = 0, last_reset = ?
WHERE owner = ? AND last_reset <> ?`, today, owner, today); err != nil {
		return nil, fmt.Errorf("reset quota: %w", err)
	}

	var q Quota
	var paidUntil sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
SELECT owner, tier, used_today, last_reset, paid_until
FROM quotas WHERE owner = ?`, owner,
	).Scan(&q.Owner, &q.Tier, &q.UsedToday, &q.LastReset, &paidUntil)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	if paidUntil.Valid {
		t := time.Unix(paidUntil.Int64, 0).UTC()
		q.PaidUntil = &t
	}
	return &q, nil
}

// ConsumeQuota atomically increments the daily counter, but only while the
// owner is pro or still under the free limit. The single conditional UPDATE
// closes the check-then-increment race the original design had; returns
// false when the owner is at the limit.
func (s *Store) ConsumeQuota(ctx context.Context, owner string, freeLimit int, now time.Time) (bool, error) {
	res, err := s.exec(ctx, `
UPDATE quotas
SET used_today = used_today + 1
WHERE owner = ?
  AND ((tier = 'pro' AND paid_until >= ?) OR used_today < ?)`,
		owner, now.Unix(), freeLimit,
	)
	if err != nil {
		return false, fmt.Errorf("consume quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume quota: %w", err)
	}
	return n > 0, nil
}

// UpgradeQuota flips an owner to the pro tier until the given expiry. The
// daily counter is left untouched: when pro lapses, the owner continues from
// wherever the counter stood.
func (s *Store) UpgradeQuota(ctx context.Context, owner string, paidUntil time.Time) error {
	_, err := s.exec(ctx, `
UPDATE quotas SET tier = 'pro', paid_until = ? WHERE owner = ?`,
		paidUntil.Unix(), owner,
	)
	if err != nil {
		return fmt.Errorf("upgrade quota: %w", err)
	}
	return nil
}

// DowngradeQuota reverts an expired pro owner to the free tier.
func (s *Store) DowngradeQuota(ctx context.Context, owner string) error {
	_, err := s.exec(ctx, `
UPDATE quotas SET tier = 'free', paid_until = NULL WHERE owner = ?`, owner)
	if err != nil {
		return fmt.Errorf("downgrade quota: %w", err)
	}
	return nil
}
