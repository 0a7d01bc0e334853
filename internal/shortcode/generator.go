// Package shortcode generates random alphanumeric codes for short URLs.
package shortcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Alphabet is the set codes are drawn from
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const DefaultLength = 6

// MaxLength is the widest code the short_urls.code column holds
const MaxLength = 10

// maxByte is the largest multiple of len(Alphabet) that fits in a byte;
// bytes at or above it are rejected so every symbol is equally likely.
const maxByte = 256 - (256 % len(Alphabet))

var ErrInvalidLength = errors.New("code length must be positive")

// Generator produces fixed-length codes from a random source
type Generator struct {
	length int
	rand   io.Reader
}

func NewGenerator(length int) (*Generator, error) {
	return NewGeneratorWithSource(length, rand.Reader)
}

// NewGeneratorWithSource is used by tests to supply a deterministic source
func NewGeneratorWithSource(length int, source io.Reader) (*Generator, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	return &Generator{length: length, rand: source}, nil
}

// Length returns the code length
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a new code. It does not consult any store; collisions
// are the caller's concern.
func (g *Generator) Generate() (string, error) {
	code := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)

	for len(code) < g.length {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			code = append(code, Alphabet[int(b)%len(Alphabet)])
			if len(code) == g.length {
				break
			}
		}
	}

	return string(code), nil
}

// Valid reports whether s could have been produced by a generator of the given length
func Valid(s string, length int) bool {
	return len(s) == length && alphanumeric(s)
}

// Storable reports whether s could be a stored code of any length up to
// MaxLength. Codes minted before a length change still pass.
func Storable(s string) bool {
	return len(s) > 0 && len(s) <= MaxLength && alphanumeric(s)
}

func alphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
