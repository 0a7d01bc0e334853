package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is one of a closed set of authorization roles
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts s into a Role, rejecting anything outside the set
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose password hash in JSON
	IsActive     bool      `json:"is_active"`
	IsSuperuser  bool      `json:"is_superuser"`
	IsVerified   bool      `json:"is_verified"`
	Role         Role      `json:"role"`

	// Single-use token slots hold digests, never the tokens themselves
	VerificationToken          *string    `json:"-"`
	VerificationTokenExpiresAt *time.Time `json:"-"`
	ResetToken                 *string    `json:"-"`
	ResetTokenExpiresAt        *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRole reports whether u holds role. Superusers hold every role.
func HasRole(u *User, role Role) bool {
	if u == nil {
		return false
	}
	return u.IsSuperuser || u.Role == role
}

// NewUser is the input for creating an account
type NewUser struct {
	Email                      string
	PasswordHash               string
	Role                       Role
	IsSuperuser                bool
	IsVerified                 bool
	VerificationToken          *string
	VerificationTokenExpiresAt *time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Email  string
	Role   Role
	Offset int
	Limit  int
}

// Update carries the fields an administrator or the owner may change.
// Nil fields are left untouched.
type Update struct {
	Email        *string
	PasswordHash *string
	Role         *Role
	IsActive     *bool
	IsVerified   *bool
}
