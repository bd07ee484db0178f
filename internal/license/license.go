// Package license issues and validates signed license tokens for pro-tier
// owners.
package license

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed or the
	// signature does not verify.
	ErrInvalidToken = errors.New("license: invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("license: token expired")
)

// Claims carries the licensed owner and tier.
type Claims struct {
	Owner     string `json:"owner"`
	Tier      string `json:"tier"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

type jwtClaims struct {
	Owner string `json:"owner"`
	Tier  string `json:"tier"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed HS256 license token.
func GenerateToken(owner, tier string, secret []byte, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		Owner: owner,
		Tier:  tier,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses and validates a license token string.
func ValidateToken(tokenStr string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	jc, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &Claims{
		Owner:     jc.Owner,
		Tier:      jc.Tier,
		IssuedAt:  jc.IssuedAt.Unix(),
		ExpiresAt: jc.ExpiresAt.Unix(),
	}, nil
}

// Secret returns the signing secret from the environment, or a fixed dev
// secret when unset.
func Secret() []byte {
	if s := os.Getenv("SMARTROUTE_JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("smartroute-dev-secret")
}
