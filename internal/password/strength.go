package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	MinLength = 8
	// MaxBytes is the bcrypt input limit; longer inputs would be silently truncated
	MaxBytes = 72

	specialChars = `!@#$%^&*(),.?":{}|<>`
)

var (
	ErrWeakPassword    = errors.New("password is too weak")
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

// Validate enforces the password policy: at least MinLength characters with
// an uppercase letter, a lowercase letter, a digit and a special character.
func Validate(password string) error {
	if len(password) > MaxBytes {
		return ErrPasswordTooLong
	}
	if len([]rune(password)) < MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, MinLength)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}

	var missing []string
	if !upper {
		missing = append(missing, "an uppercase letter")
	}
	if !lower {
		missing = append(missing, "a lowercase letter")
	}
	if !digit {
		missing = append(missing, "a digit")
	}
	if !special {
		missing = append(missing, "a special character")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: must contain %s", ErrWeakPassword, strings.Join(missing, ", "))
	}

	return nil
}
