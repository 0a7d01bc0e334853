package shorturl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// MaxURLLength matches the original_url column width
const MaxURLLength = 2048

var (
	ErrInvalidURL    = errors.New("invalid url")
	ErrURLTooLong    = errors.New("url exceeds maximum length")
	ErrBlockedDomain = errors.New("url points to a blocked domain")
)

// DefaultBlockedDomains are refused at creation and at resolution
var DefaultBlockedDomains = []string{"malicious.com", "phishing.com", "malware.com"}

// Validator checks that a URL is safe to shorten
type Validator struct {
	blocked []string
}

func NewValidator(blocked []string) *Validator {
	normalized := make([]string, 0, len(blocked))
	for _, d := range blocked {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			normalized = append(normalized, d)
		}
	}
	return &Validator{blocked: normalized}
}

// Validate returns the URL unchanged if it is acceptable
func (v *Validator) Validate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if len(raw) > MaxURLLength {
		return "", ErrURLTooLong
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if v.isBlocked(host) {
		return "", ErrBlockedDomain
	}

	return raw, nil
}

func (v *Validator) isBlocked(host string) bool {
	for _, d := range v.blocked {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
