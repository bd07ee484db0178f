package quota

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// minHashLength is the only check the stub verifier performs beyond
// non-emptiness.
const minHashLength = 16

// Verifier decides whether a claimed transaction hash represents a real
// payment. The production implementation would query a chain RPC and check
// confirmation depth; which chain, endpoint, and depth are deliberately left
// to the implementer.
type Verifier interface {
	VerifyOnChain(ctx context.Context, txHash string) (bool, error)
}

// StubVerifier accepts any sufficiently long hash. This is the documented
// trust boundary of the MVP payment flow; it must not silently grow real
// verification, because that would change externally observed behavior.
type StubVerifier struct{}

func (StubVerifier) VerifyOnChain(_ context.Context, txHash string) (bool, error) {
	h := strings.TrimSpace(txHash)
	return h != "" && len(h) >= minHashLength, nil
}

// PaymentQuote is the x402-style payment request handed to a caller that
// wants to upgrade.
type PaymentQuote struct {
	Address   string  `json:"address"`
	Amount    float64 `json:"amount"`
	Asset     string  `json:"asset"`
	Reference string  `json:"reference"`
	ExpiresAt int64   `json:"expiresAt"`
}

// Quote builds a payment quote for an owner. The reference tag is a
// keccak-256 digest of owner + nonce so each quote is unique and can be
// matched to the owner later.
func (g *Gate) Quote(owner string) PaymentQuote {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(owner))
	h.Write(nonce)
	ref := hex.EncodeToString(h.Sum(nil)[:12])

	return PaymentQuote{
		Address:   g.payment.Address,
		Amount:    g.payment.Amount,
		Asset:     g.payment.Asset,
		Reference: fmt.Sprintf("sr-%s", ref),
		ExpiresAt: time.Now().Add(15 * time.Minute).Unix(),
	}
}
