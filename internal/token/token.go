// Package token issues and verifies short-lived access tokens.
//
// Two formats are available: HS256 JWTs and PASETO v4.local. A process is
// configured with exactly one; tokens of the other format fail verification
// with ErrInvalidSignature.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/redmonkez12/go-shortener-api/internal/user"
)

// MaxTTL bounds the lifetime of any access token
const MaxTTL = 30 * time.Minute

var (
	ErrExpired          = errors.New("token has expired")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrMalformed        = errors.New("token is malformed")
)

// Claims is the verified content of an access token
type Claims struct {
	Subject   string
	Role      user.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// Issued is what a client receives after login
type Issued struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service defines token creation and validation.
// Implementations are JWTService (HS256) and PasetoService (PASETO v4.local).
type Service interface {
	Issue(subject string, role user.Role) (*Issued, error)
	Verify(tokenStr string) (*Claims, error)
}

type options struct {
	now func() time.Time
}

// Option customizes a token service
type Option func(*options)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkTTL(ttl time.Duration) error {
	if ttl <= 0 || ttl > MaxTTL {
		return fmt.Errorf("token lifetime must be between 1s and %s, got %s", MaxTTL, ttl)
	}
	return nil
}

func newIssued(tokenStr string, now, expiresAt time.Time) *Issued {
	return &Issued{
		AccessToken: tokenStr,
		TokenType:   "Bearer",
		ExpiresIn:   int64(expiresAt.Sub(now).Seconds()),
		ExpiresAt:   expiresAt,
	}
}

// validateClaims checks the parts every verified token must carry
func validateClaims(subject, rawRole, id string, issuedAt, expiresAt time.Time) (*Claims, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrMalformed)
	}
	if issuedAt.IsZero() || expiresAt.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamps", ErrMalformed)
	}
	role, err := user.ParseRole(rawRole)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return &Claims{
		Subject:   subject,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		ID:        id,
	}, nil
}
