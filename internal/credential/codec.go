// Package credential signs and verifies the session credential handed to
// clients at login. Credentials are HS256 JWTs carrying the caller's email
// and an expiry; verification is stateless and keyed only by the secret.
//
// There is no revocation list. A leaked credential stays valid until its
// expiry elapses, and clearing the cookie on logout does not change that.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the validity window of an issued credential.
const DefaultTTL = 365 * 24 * time.Hour

// ErrMissingSecret is returned by NewCodec when no signing secret is configured.
var ErrMissingSecret = errors.New("credential: signing secret is not configured")

// Claim is the identity embedded in a credential.
type Claim struct {
	Email string `json:"email"`
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Codec issues and verifies credentials. It is safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithIssuer sets the iss claim written on issue and required on verify.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithClock replaces the time source used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec creates a codec for the given secret. A ttl of zero selects DefaultTTL.
func NewCodec(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the validity window applied to issued credentials.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs claim and returns the compact credential string.
func (c *Codec) Issue(claim Claim) (string, error) {
	now := c.now()
	claims := tokenClaims{
		Email: claim.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claim.
// Every failure is a *VerificationError.
func (c *Codec) Verify(raw string) (Claim, error) {
	if raw == "" {
		return Claim{}, &VerificationError{Reason: ReasonMalformed, Err: errors.New("empty credential")}
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	var claims tokenClaims
	_, err := jwt.NewParser(options...).ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		return Claim{}, classify(err)
	}

	if claims.Email == "" {
		return Claim{}, &VerificationError{Reason: ReasonMalformed, Err: errors.New("credential has no email claim")}
	}

	return Claim{Email: claims.Email}, nil
}

func classify(err error) *VerificationError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &VerificationError{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &VerificationError{Reason: ReasonBadSignature, Err: err}
	default:
		return &VerificationError{Reason: ReasonMalformed, Err: err}
	}
}
