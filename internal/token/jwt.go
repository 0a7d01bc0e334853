package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/redmonkez12/go-shortener-api/internal/user"
)

// MinSecretLength is the minimum HS256 key size accepted
const MinSecretLength = 32

type jwtClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies HS256 JWTs.
// The algorithm is fixed; the token header is never trusted to choose it.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewJWTService(secret []byte, ttl time.Duration, opts ...Option) (*JWTService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if err := checkTTL(ttl); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &JWTService{
		secret: secret,
		ttl:    ttl,
		now:    o.now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(o.now),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithStrictDecoding(),
		),
	}, nil
}

// Issue mints a token for subject with the configured lifetime
func (s *JWTService) Issue(subject string, role user.Role) (*Issued, error) {
	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)

	claims := jwtClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return newIssued(signed, now, expiresAt), nil
}

// Verify checks the signature first, then the claims. Anything whose HS256
// signature cannot be confirmed is ErrInvalidSignature; an authentic token
// with unusable claims is ErrMalformed.
func (s *JWTService) Verify(tokenStr string) (*Claims, error) {
	if err := s.verifySignature(tokenStr); err != nil {
		return nil, err
	}

	parsed := &jwtClaims{}
	_, err := s.parser.ParseWithClaims(tokenStr, parsed, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if parsed.IssuedAt == nil || parsed.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing timestamps", ErrMalformed)
	}

	return validateClaims(parsed.Subject, parsed.Role, parsed.ID, parsed.IssuedAt.Time, parsed.ExpiresAt.Time)
}

func (s *JWTService) verifySignature(tokenStr string) error {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return ErrInvalidSignature
	}

	// Strict decoding rejects non-zero padding bits in the last character
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return ErrInvalidSignature
	}

	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, s.secret); err != nil {
		return ErrInvalidSignature
	}

	return nil
}
