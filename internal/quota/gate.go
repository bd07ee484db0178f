// Package quota gates routing decisions per owner per day and handles the
// x402-style payment handshake that upgrades an owner to the pro tier.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclaw/smartroute/internal/config"
	"github.com/openclaw/smartroute/internal/license"
	"github.com/openclaw/smartroute/internal/store"
)

// ErrQuotaExceeded is the one error class that is meant to change
// caller-visible control flow: the request is rejected outright.
var ErrQuotaExceeded = errors.New("quota: daily limit exceeded")

// Status is the caller-visible quota state.
type Status struct {
	Owner     string     `json:"owner"`
	Tier      store.Tier `json:"tier"`
	Used      int        `json:"used"`
	Limit     int        `json:"limit"` // 0 means unlimited (pro)
	Remaining int        `json:"remaining"`
	Available bool       `json:"available"`
	Message   string     `json:"message,omitempty"`
	PaidUntil *time.Time `json:"paidUntil,omitempty"`
}

// Gate enforces quotas and processes payments.
type Gate struct {
	store    *store.Store
	cfg      config.QuotaConfig
	payment  config.PaymentConfig
	verifier Verifier
	logger   *slog.Logger
}

// New creates a Gate. A nil verifier selects the trust-based stub.
func New(st *store.Store, qc config.QuotaConfig, pc config.PaymentConfig, v Verifier, logger *slog.Logger) *Gate {
	if v == nil {
		v = StubVerifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:    st,
		cfg:      qc,
		payment:  pc,
		verifier: v,
		logger:   logger.With("component", "quota"),
	}
}

// Check returns the owner's current quota status without consuming a slot.
// A lapsed pro subscription silently reverts to free here, with the daily
// counter continuing from wherever it stood.
func (g *Gate) Check(ctx context.Context, owner string) (*Status, error) {
	now := time.Now()
	q, err := g.store.GetQuota(ctx, owner, now)
	if err != nil {
		return nil, err
	}

	if q.Tier == store.TierPro && (q.PaidUntil == nil || q.PaidUntil.Before(now)) {
		if err := g.store.DowngradeQuota(ctx, owner); err != nil {
			return nil, err
		}
		q.Tier = store.TierFree
		q.PaidUntil = nil
	}

	return g.status(q), nil
}

// Consume takes one decision slot, atomically. Returns ErrQuotaExceeded
// (wrapped in the returned status) when the owner is at the free limit.
func (g *Gate) Consume(ctx context.Context, owner string) (*Status, error) {
	st, err := g.Check(ctx, owner)
	if err != nil {
		return nil, err
	}

	ok, err := g.store.ConsumeQuota(ctx, owner, g.cfg.FreeDailyLimit, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		st.Available = false
		st.Remaining = 0
		st.Message = upgradeMessage(g.cfg.FreeDailyLimit)
		return st, ErrQuotaExceeded
	}

	st.Used++
	if st.Limit > 0 {
		st.Remaining = st.Limit - st.Used
		if st.Remaining < 0 {
			st.Remaining = 0
		}
		st.Available = st.Remaining > 0
	}
	return st, nil
}

func (g *Gate) status(q *store.Quota) *Status {
	st := &Status{
		Owner:     q.Owner,
		Tier:      q.Tier,
		Used:      q.UsedToday,
		PaidUntil: q.PaidUntil,
	}
	if q.Tier == store.TierPro {
		st.Available = true
		return st
	}
	st.Limit = g.cfg.FreeDailyLimit
	st.Remaining = st.Limit - st.Used
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	st.Available = st.Remaining > 0
	if !st.Available {
		st.Message = upgradeMessage(g.cfg.FreeDailyLimit)
	}
	return st
}

func upgradeMessage(limit int) string {
	return fmt.Sprintf("Daily quota exceeded (%d decisions/day on the free tier). Upgrade to Pro for unlimited routing.", limit)
}

// Subscribe verifies a claimed payment and, on success, upgrades the owner
// to pro and issues a signed license token. Verification is the configured
// Verifier's problem; the default stub only checks the hash format.
func (g *Gate) Subscribe(ctx context.Context, owner, txHash string) (string, *Status, error) {
	verified, err := g.verifier.VerifyOnChain(ctx, txHash)
	if err != nil {
		return "", nil, fmt.Errorf("verify payment: %w", err)
	}
	if !verified {
		return "", nil, fmt.Errorf("payment hash rejected: %q", txHash)
	}

	now := time.Now().UTC()
	rec := &store.PaymentRecord{
		Owner:     owner,
		TxHash:    txHash,
		Amount:    g.payment.Amount,
		Asset:     g.payment.Asset,
		Verified:  true,
		CreatedAt: now,
	}
	if err := g.store.AppendPayment(ctx, rec); err != nil {
		return "", nil, err
	}

	paidUntil := now.AddDate(0, 0, g.cfg.ProDays)
	// Ensure the quota row exists before upgrading a brand-new owner.
	if _, err := g.store.GetQuota(ctx, owner, now); err != nil {
		return "", nil, err
	}
	if err := g.store.UpgradeQuota(ctx, owner, paidUntil); err != nil {
		return "", nil, err
	}

	token, err := license.GenerateToken(owner, string(store.TierPro), license.Secret(), time.Until(paidUntil))
	if err != nil {
		return "", nil, fmt.Errorf("issue license: %w", err)
	}

	g.logger.Info("owner upgraded to pro",
		"owner", owner,
		"paid_until", paidUntil.Format(time.RFC3339),
	)

	st, err := g.Check(ctx, owner)
	if err != nil {
		return "", nil, err
	}
	return token, st, nil
}
