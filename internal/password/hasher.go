// Package password hashes and verifies user passwords.
//
// Digests are self-describing: bcrypt digests start with "$2", argon2id
// digests use the PHC string format. Verify accepts either regardless of
// which algorithm is configured for new hashes.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm names a supported hashing scheme
type Algorithm string

const (
	Bcrypt   Algorithm = "bcrypt"
	Argon2id Algorithm = "argon2id"
)

// Argon2id parameters
// Time: 3, Memory: 64MB, Threads: 4, KeyLen: 32 bytes
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

var ErrUnsupportedAlgorithm = errors.New("unsupported password hash algorithm")

// Hasher produces salted one-way digests
type Hasher struct {
	algorithm  Algorithm
	bcryptCost int
	rand       io.Reader
}

// Option customizes a Hasher
type Option func(*Hasher)

// WithBcryptCost overrides the bcrypt work factor
func WithBcryptCost(cost int) Option {
	return func(h *Hasher) { h.bcryptCost = cost }
}

// WithRandom replaces the salt source
func WithRandom(r io.Reader) Option {
	return func(h *Hasher) { h.rand = r }
}

func NewHasher(algorithm Algorithm, opts ...Option) (*Hasher, error) {
	if algorithm != Bcrypt && algorithm != Argon2id {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	h := &Hasher{
		algorithm:  algorithm,
		bcryptCost: bcrypt.DefaultCost,
		rand:       rand.Reader,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.bcryptCost < bcrypt.MinCost || h.bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, h.bcryptCost)
	}

	return h, nil
}

// Hash returns a digest of plaintext using the configured algorithm
func (h *Hasher) Hash(plaintext string) (string, error) {
	switch h.algorithm {
	case Argon2id:
		return h.hashArgon2id(plaintext)
	default:
		digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.bcryptCost)
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		if err != nil {
			return "", fmt.Errorf("failed to hash password: %w", err)
		}
		return string(digest), nil
	}
}

// Verify reports whether plaintext matches digest.
// An unrecognized or corrupt digest never matches.
func (h *Hasher) Verify(plaintext, digest string) bool {
	switch {
	case isBcrypt(digest):
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2id(plaintext, digest)
	default:
		return false
	}
}

// NeedsRehash reports whether digest was produced by a different algorithm
// or weaker parameters than the ones currently configured.
func (h *Hasher) NeedsRehash(digest string) bool {
	switch h.algorithm {
	case Argon2id:
		return !strings.HasPrefix(digest, "$argon2id$")
	default:
		if !isBcrypt(digest) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(digest))
		return err != nil || cost < h.bcryptCost
	}
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") || strings.HasPrefix(digest, "$2b$") || strings.HasPrefix(digest, "$2y$")
}

func (h *Hasher) hashArgon2id(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(plaintext), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=3,p=4$salt$hash
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyArgon2id(plaintext, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	if memory == 0 || iterations == 0 || threads == 0 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}

	got := argon2.IDKey([]byte(plaintext), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1
}
