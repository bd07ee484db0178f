package store

import (
	"context"
	"fmt"
	"time"
)

// PaymentRecord is one claimed payment transaction. The ledger is
// append-only: rows are never updated or deleted.
type PaymentRecord struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	TxHash    string    `json:"txHash"`
	Amount    float64   `json:"amount"`
	Asset     string    `json:"asset"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppendPayment records a claimed payment.
func (s *Store) AppendPayment(ctx context.Context, p *PaymentRecord) error {
	res, err := s.exec(ctx, `
INSERT INTO payments (owner, tx_hash, amount, asset, verified, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		p.Owner, p.TxHash, p.Amount, p.Asset, boolToInt(p.Verified), p.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append payment: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

// ListPayments returns an owner's payment history, newest first.
func (s *Store) ListPayments(ctx context.Context, owner string) ([]PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, owner, tx_hash, amount, asset, verified, created_at
FROM payments WHERE owner = ? ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []PaymentRecord
	for rows.Next() {
		var p PaymentRecord
		var verified int
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Owner, &p.TxHash, &p.Amount, &p.Asset, &verified, &createdAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Verified = verified != 0
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
