package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-shortener-api/internal/onetime"
	"github.com/redmonkez12/go-shortener-api/internal/user"
)

var ErrForbidden = errors.New("insufficient permissions")

// UserPatch is a requested change to an account. Nil fields are ignored.
type UserPatch struct {
	Email    *string
	Password *string
	Role     *user.Role
	IsActive *bool
}

// ListUsers returns accounts matching f. Only admins may list.
func (s *Service) ListUsers(ctx context.Context, actor *user.User, f user.Filter) ([]*user.User, error) {
	if !user.HasRole(actor, user.RoleAdmin) {
		return nil, ErrForbidden
	}
	return s.users.List(ctx, f)
}

// UpdateUser applies patch to the account id. Admins may change anything;
// other users may only change their own password. A changed email drops the
// account back to unverified and sends a verification link to the new address.
func (s *Service) UpdateUser(ctx context.Context, actor *user.User, id uuid.UUID, patch UserPatch) (*user.User, error) {
	isAdmin := user.HasRole(actor, user.RoleAdmin)
	if !isAdmin {
		if actor == nil || actor.ID != id {
			return nil, ErrForbidden
		}
		if patch.Email != nil || patch.Role != nil || patch.IsActive != nil {
			return nil, ErrForbidden
		}
	}

	var upd user.Update
	emailChanged := false
	if patch.Email != nil {
		email, err := NormalizeEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		current, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Email != email {
			emailChanged = true
			unverified := false
			upd.Email = &email
			upd.IsVerified = &unverified
		}
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			return nil, ErrPasswordRequired
		}
		digest, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		upd.PasswordHash = &digest
	}
	upd.Role = patch.Role
	upd.IsActive = patch.IsActive

	updated, err := s.users.Update(ctx, id, upd)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if emailChanged {
		if _, err := s.codes.IssueFor(ctx, updated, onetime.PurposeVerification); err != nil {
			s.logger.Warn("failed to issue verification token", "user_id", updated.ID, "error", err)
		}
	}
	return updated, nil
}

// EnsureAdmin creates the bootstrap administrator if no account with that
// email exists yet. It is a no-op when email or password is empty.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		s.logger.Debug("admin account already present", "email", email)
		return nil
	} else if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("failed to look up admin: %w", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = s.users.Create(ctx, user.NewUser{
		Email:        email,
		PasswordHash: digest,
		Role:         user.RoleAdmin,
		IsSuperuser:  true,
		IsVerified:   true,
	})
	if err != nil && !errors.Is(err, user.ErrDuplicateEmail) {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	s.logger.Info("admin account created", "email", email)
	return nil
}
