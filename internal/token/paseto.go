package token

import (
	"fmt"
	"strings"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/google/uuid"

	"github.com/redmonkez12/go-shortener-api/internal/user"
)

const pasetoV4LocalHeader = "v4.local."

// PasetoService handles PASETO token creation and validation
// Uses v4.local (symmetric encryption with XChaCha20 and a BLAKE2b MAC)
type PasetoService struct {
	symmetricKey paseto.V4SymmetricKey
	ttl          time.Duration
	now          func() time.Time
}

func NewPasetoService(symmetricKey []byte, ttl time.Duration, opts ...Option) (*PasetoService, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}
	if err := checkTTL(ttl); err != nil {
		return nil, err
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	o := buildOptions(opts)
	return &PasetoService{
		symmetricKey: key,
		ttl:          ttl,
		now:          o.now,
	}, nil
}

// Issue generates a new PASETO v4.local token
func (s *PasetoService) Issue(subject string, role user.Role) (*Issued, error) {
	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)

	t := paseto.NewToken()
	t.SetIssuedAt(now)
	t.SetExpiration(expiresAt)
	t.SetSubject(subject)
	t.SetJti(uuid.NewString())
	t.SetString("role", string(role))

	return newIssued(t.V4Encrypt(s.symmetricKey, nil), now, expiresAt), nil
}

// Verify decrypts and authenticates the token, then validates its claims.
// Expiry is evaluated against the injected clock rather than the parser's.
func (s *PasetoService) Verify(tokenStr string) (*Claims, error) {
	if !strings.HasPrefix(tokenStr, pasetoV4LocalHeader) {
		return nil, ErrInvalidSignature
	}

	parser := paseto.NewParserWithoutExpiryCheck()
	t, err := parser.ParseV4Local(s.symmetricKey, tokenStr, nil)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	issuedAt, err := t.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: missing issued at", ErrMalformed)
	}
	expiresAt, err := t.GetExpiration()
	if err != nil {
		return nil, fmt.Errorf("%w: missing expiration", ErrMalformed)
	}

	now := s.now()
	if !now.Before(expiresAt) {
		return nil, ErrExpired
	}
	if issuedAt.After(now) {
		return nil, fmt.Errorf("%w: issued in the future", ErrMalformed)
	}

	// Missing string claims surface as empty values and are rejected below
	subject, _ := t.GetSubject()
	id, _ := t.GetJti()
	role, _ := t.GetString("role")

	return validateClaims(subject, role, id, issuedAt, expiresAt)
}
