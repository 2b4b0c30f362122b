// Package token mints and verifies the signed tokens that authorize a
// calendar subscription URL.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pushcal/internal/model"
)

// ErrInvalidToken covers missing, malformed, expired and badly signed tokens.
var ErrInvalidToken = errors.New("invalid calendar token")

// Claims are the calendar token claims. Older tokens carry the subject in
// "id" instead of "sub".
type Claims struct {
	ID model.SubjectID `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns the subject of raw.
func (v *Verifier) Verify(raw string) (model.SubjectID, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}
	if len(v.secret) == 0 {
		return "", fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject := model.SubjectID(claims.Subject)
	if subject == "" {
		subject = claims.ID
	}
	if subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return subject, nil
}

// Mint signs a token for subject. A zero ttl never expires.
func Mint(secret string, subject model.SubjectID, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("token: signing secret is empty")
	}
	if subject == "" {
		return "", errors.New("token: subject is empty")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject.String(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
