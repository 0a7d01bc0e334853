// Package usertest provides an in-memory user store for service tests.
package usertest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-shortener-api/internal/user"
)

// Store mirrors the semantics of user.Repository, including the unique
// constraints on email and token slots, behind a single mutex.
type Store struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User

	// Err, when set, is returned by every call
	Err error
}

func NewStore() *Store {
	return &Store{users: make(map[uuid.UUID]*user.User)}
}

func (s *Store) Create(_ context.Context, nu user.NewUser) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	for _, u := range s.users {
		if u.Email == nu.Email {
			return nil, user.ErrDuplicateEmail
		}
	}

	role := nu.Role
	if role == "" {
		role = user.RoleUser
	}
	now := time.Now()
	u := &user.User{
		ID:                         uuid.New(),
		Email:                      nu.Email,
		PasswordHash:               nu.PasswordHash,
		IsActive:                   true,
		IsSuperuser:                nu.IsSuperuser,
		IsVerified:                 nu.IsVerified,
		Role:                       role,
		VerificationToken:          copyStr(nu.VerificationToken),
		VerificationTokenExpiresAt: copyTime(nu.VerificationTokenExpiresAt),
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	s.users[u.ID] = u
	return clone(u), nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	for _, u := range s.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return clone(u), nil
}

func (s *Store) List(_ context.Context, f user.Filter) ([]*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	var out []*user.User
	for _, u := range s.users {
		if f.Email != "" && !strings.Contains(strings.ToLower(u.Email), strings.ToLower(f.Email)) {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	limit := f.Limit
	if limit <= 0 || limit > user.MaxListLimit {
		limit = user.MaxListLimit
	}
	if f.Offset >= len(out) {
		return []*user.User{}, nil
	}
	out = out[max(f.Offset, 0):]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, id uuid.UUID, upd user.Update) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if upd.Email != nil {
		for _, other := range s.users {
			if other.ID != id && other.Email == *upd.Email {
				return nil, user.ErrDuplicateEmail
			}
		}
		u.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.IsVerified != nil {
		u.IsVerified = *upd.IsVerified
	}
	u.UpdatedAt = time.Now()
	return clone(u), nil
}

func (s *Store) SetVerificationToken(_ context.Context, userID uuid.UUID, digest string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	u, ok := s.users[userID]
	if !ok || u.IsVerified {
		return user.ErrNotFound
	}
	u.VerificationToken = &digest
	u.VerificationTokenExpiresAt = copyTime(expiresAt)
	return nil
}

func (s *Store) SetResetToken(_ context.Context, userID uuid.UUID, digest string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	u, ok := s.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.ResetToken = &digest
	u.ResetTokenExpiresAt = copyTime(expiresAt)
	return nil
}

func (s *Store) ConsumeVerificationToken(_ context.Context, digest string, now time.Time) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	for _, u := range s.users {
		if live(u.VerificationToken, u.VerificationTokenExpiresAt, digest, now) {
			u.IsVerified = true
			u.VerificationToken = nil
			u.VerificationTokenExpiresAt = nil
			u.UpdatedAt = now
			return clone(u), nil
		}
	}
	return nil, user.ErrNotFound
}

func (s *Store) ConsumeResetToken(_ context.Context, digest, passwordHash string, now time.Time) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	for _, u := range s.users {
		if live(u.ResetToken, u.ResetTokenExpiresAt, digest, now) {
			u.PasswordHash = passwordHash
			u.ResetToken = nil
			u.ResetTokenExpiresAt = nil
			u.UpdatedAt = now
			return clone(u), nil
		}
	}
	return nil, user.ErrNotFound
}

// Snapshot returns a copy of the stored user, for assertions
func (s *Store) Snapshot(id uuid.UUID) *user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return clone(u)
	}
	return nil
}

func live(slot *string, expiresAt *time.Time, digest string, now time.Time) bool {
	if slot == nil || *slot != digest {
		return false
	}
	return expiresAt == nil || expiresAt.After(now)
}

func clone(u *user.User) *user.User {
	c := *u
	c.VerificationToken = copyStr(u.VerificationToken)
	c.VerificationTokenExpiresAt = copyTime(u.VerificationTokenExpiresAt)
	c.ResetToken = copyStr(u.ResetToken)
	c.ResetTokenExpiresAt = copyTime(u.ResetTokenExpiresAt)
	return &c
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
