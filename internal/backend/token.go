package backend

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the anti-forgery token sent on mutating requests.
// The token is opaque to this package.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, typically read from the environment.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// SignedTokenSource mints short-lived HS256 tokens for backends that verify
// a signed anti-forgery token instead of a session-bound one.
type SignedTokenSource struct {
	Secret   []byte
	Operator string
	TTL      time.Duration
	now      func() time.Time
}

// NewSignedTokenSource returns a source signing with secret.  A TTL of
// zero defaults to five minutes.
func NewSignedTokenSource(secret, operator string, ttl time.Duration) *SignedTokenSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SignedTokenSource{Secret: []byte(secret), Operator: operator, TTL: ttl, now: time.Now}
}

// Token signs a new token with the operator as subject.
func (s *SignedTokenSource) Token(context.Context) (string, error) {
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"sub":   s.Operator,
		"scope": "move-mode",
		"iat":   now.Unix(),
		"exp":   now.Add(s.TTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}
