package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/onetime"
	"github.com/redmonkez12/go-shortener-api/internal/token"
	"github.com/redmonkez12/go-shortener-api/internal/user"
)

var (
	// ErrInvalidCredentials is returned for unknown emails, wrong passwords
	// and inactive accounts alike
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrPasswordRequired   = errors.New("password is required")
)

// UserStore is the persistence the orchestrator needs
type UserStore interface {
	Create(ctx context.Context, nu user.NewUser) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	List(ctx context.Context, f user.Filter) ([]*user.User, error)
	Update(ctx context.Context, id uuid.UUID, u user.Update) (*user.User, error)
}

// PasswordHasher hashes and checks passwords
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	NeedsRehash(digest string) bool
}

// Service handles authentication business logic
type Service struct {
	users  UserStore
	hasher PasswordHasher
	tokens token.Service
	codes  *onetime.Manager
	logger *logging.Logger

	dummyOnce   sync.Once
	dummyDigest string
}

func NewService(
	users UserStore,
	hasher PasswordHasher,
	tokens token.Service,
	codes *onetime.Manager,
	logger *logging.Logger,
) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		codes:  codes,
		logger: logger,
	}
}

// NormalizeEmail trims and lowercases an address and checks its syntax
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register creates an unverified account and sends the verification link
func (s *Service) Register(ctx context.Context, email, password string) (*user.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verification, err := s.codes.New(onetime.PurposeVerification)
	if err != nil {
		return nil, err
	}

	// The unique email constraint decides concurrent registrations
	newUser, err := s.users.Create(ctx, user.NewUser{
		Email:                      email,
		PasswordHash:               passwordHash,
		Role:                       user.RoleUser,
		VerificationToken:          &verification.Digest,
		VerificationTokenExpiresAt: verification.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.codes.Notify(ctx, newUser.Email, onetime.PurposeVerification, verification.Token)

	return newUser, nil
}

// Login checks credentials and issues an access token
func (s *Service) Login(ctx context.Context, email, password string) (*token.Issued, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil || password == "" {
		s.burnVerify(password)
		return nil, ErrInvalidCredentials
	}

	existing, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.burnVerify(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(password, existing.PasswordHash) || !existing.IsActive {
		return nil, ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(existing.PasswordHash) {
		s.rehash(ctx, existing.ID, password)
	}

	issued, err := s.tokens.Issue(existing.ID.String(), existing.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return issued, nil
}

// Authenticate resolves an access token to an active user. Token errors are
// returned unchanged so callers can tell an expired token apart.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*user.User, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", token.ErrMalformed)
	}

	existing, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !existing.IsActive {
		return nil, ErrInvalidCredentials
	}

	return existing, nil
}

// VerifyEmail consumes a verification token
func (s *Service) VerifyEmail(ctx context.Context, tok string) error {
	u, err := s.codes.ConsumeVerification(ctx, tok)
	if err != nil {
		if errors.Is(err, onetime.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to verify email: %w", err)
	}

	s.logger.Info("email verified", "user_id", u.ID)
	return nil
}

// RequestEmailVerification sends a new verification link to an unverified user.
// Always returns nil to prevent email enumeration.
func (s *Service) RequestEmailVerification(ctx context.Context, email string) error {
	existing := s.lookupForIssue(ctx, email, "resend verification")
	if existing == nil || existing.IsVerified {
		return nil
	}

	if _, err := s.codes.IssueFor(ctx, existing, onetime.PurposeVerification); err != nil {
		s.logger.Warn("failed to issue verification token", "user_id", existing.ID, "error", err)
	}
	return nil
}

// RequestPasswordReset initiates the password reset process.
// Always returns nil to prevent email enumeration.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	existing := s.lookupForIssue(ctx, email, "password reset")
	if existing == nil {
		return nil
	}

	if _, err := s.codes.IssueFor(ctx, existing, onetime.PurposeReset); err != nil {
		s.logger.Warn("failed to issue password reset token", "user_id", existing.ID, "error", err)
	}
	return nil
}

// ConfirmPasswordReset consumes a reset token and sets the new password
func (s *Service) ConfirmPasswordReset(ctx context.Context, tok, newPassword string) error {
	if newPassword == "" {
		return ErrPasswordRequired
	}
	if tok == "" {
		return ErrInvalidToken
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	u, err := s.codes.ConsumeReset(ctx, tok, passwordHash)
	if err != nil {
		if errors.Is(err, onetime.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	s.logger.Info("password reset", "user_id", u.ID)
	return nil
}

func (s *Service) lookupForIssue(ctx context.Context, email, op string) *user.User {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil
	}

	existing, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("failed to get user for "+op, "error", err)
		}
		return nil
	}
	return existing
}

// burnVerify spends the same work as a real password check so unknown
// emails take about as long as wrong passwords
func (s *Service) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			s.logger.Warn("failed to prepare dummy digest", "error", err)
			return
		}
		s.dummyDigest = digest
	})
	if s.dummyDigest != "" {
		_ = s.hasher.Verify(password, s.dummyDigest)
	}
}

func (s *Service) rehash(ctx context.Context, userID uuid.UUID, password string) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("failed to rehash password", "user_id", userID, "error", err)
		return
	}
	if _, err := s.users.Update(ctx, userID, user.Update{PasswordHash: &digest}); err != nil {
		s.logger.Warn("failed to store rehashed password", "user_id", userID, "error", err)
	}
}
