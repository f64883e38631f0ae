package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskhub.org/internal/ids"
	"taskhub.org/internal/obs"
)

const defaultIssuer = "taskhub"

// Codec signs and verifies stateless access tokens. Tokens carry only the
// subject (username), issued-at and expiry; they are never persisted and die
// by expiry alone. Safe for concurrent use.
type Codec struct {
	secret   []byte
	lifetime time.Duration
	issuer   string
	now      func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithCodecIssuer overrides the issuer claim.
func WithCodecIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		if strings.TrimSpace(issuer) != "" {
			c.issuer = strings.TrimSpace(issuer)
		}
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec with the externally supplied signing secret and
// access token lifetime. Neither value is ever hardcoded.
func NewCodec(secret string, lifetime time.Duration, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if lifetime <= 0 {
		return nil, errors.New("auth: access token lifetime must be positive")
	}
	c := &Codec{
		secret:   []byte(secret),
		lifetime: lifetime,
		issuer:   defaultIssuer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue builds a signed token for the subject with issued-at = now and
// expiry = now + lifetime.
func (c *Codec) Issue(subject string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	now := c.now().UTC()
	exp := now.Add(c.lifetime)
	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        ids.New(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks the signature and expiry and returns the subject. Every
// failure collapses to ErrInvalidToken; the distinct causes are recorded for
// observability only and never drive control flow.
func (c *Codec) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		obs.TokenRejected("empty")
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		obs.TokenRejected(rejectionReason(err))
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		obs.TokenRejected("invalid_claims")
		return "", ErrInvalidToken
	}
	if claims.Issuer != c.issuer {
		obs.TokenRejected("issuer_mismatch")
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		obs.TokenRejected("empty_claims")
		return "", ErrInvalidToken
	}
	return subject, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unsupported_algorithm"
	default:
		return "invalid"
	}
}
