package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-shortener-api/internal/database"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrConflict       = errors.New("user violates a uniqueness constraint")
)

// MaxListLimit caps the page size of List
const MaxListLimit = 100

// Repository handles user data persistence
type Repository struct {
	db  *bun.DB
	now func() time.Time
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create inserts a new user into the database
func (r *Repository) Create(ctx context.Context, nu NewUser) (*User, error) {
	role := nu.Role
	if role == "" {
		role = RoleUser
	}

	now := r.now()
	dbUser := &database.User{
		ID:                         uuid.New(),
		Email:                      nu.Email,
		PasswordHash:               nu.PasswordHash,
		IsActive:                   true,
		IsSuperuser:                nu.IsSuperuser,
		IsVerified:                 nu.IsVerified,
		Role:                       string(role),
		VerificationToken:          nu.VerificationToken,
		VerificationTokenExpiresAt: nu.VerificationTokenExpiresAt,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("*").
		Exec(ctx)

	if err != nil {
		return nil, translateError("create user", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("email = ?", email).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// List returns users matching f ordered by creation time
func (r *Repository) List(ctx context.Context, f Filter) ([]*User, error) {
	limit := f.Limit
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	var rows []database.User
	q := r.db.NewSelect().
		Model(&rows).
		OrderExpr("created_at ASC, id ASC").
		Offset(max(f.Offset, 0)).
		Limit(limit)

	if f.Email != "" {
		q = q.Where("email ILIKE ?", "%"+f.Email+"%")
	}
	if f.Role != "" {
		q = q.Where("role = ?", string(f.Role))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, 0, len(rows))
	for i := range rows {
		users = append(users, mapDBUserToModel(&rows[i]))
	}
	return users, nil
}

// Update applies the non-nil fields of u and returns the updated user
func (r *Repository) Update(ctx context.Context, id uuid.UUID, u Update) (*User, error) {
	dbUser := new(database.User)
	q := r.db.NewUpdate().
		Model(dbUser).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Returning("*")

	if u.Email != nil {
		q = q.Set("email = ?", *u.Email)
	}
	if u.PasswordHash != nil {
		q = q.Set("password_hash = ?", *u.PasswordHash)
	}
	if u.Role != nil {
		q = q.Set("role = ?", string(*u.Role))
	}
	if u.IsActive != nil {
		q = q.Set("is_active = ?", *u.IsActive)
	}
	if u.IsVerified != nil {
		q = q.Set("is_verified = ?", *u.IsVerified)
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, translateError("update user", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// SetVerificationToken stores a verification token digest for an unverified
// user, replacing any earlier one.
func (r *Repository) SetVerificationToken(ctx context.Context, userID uuid.UUID, digest string, expiresAt *time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("verification_token = ?", digest).
		Set("verification_token_expires_at = ?", expiresAt).
		Set("updated_at = ?", r.now()).
		Where("id = ?", userID).
		Where("is_verified = ?", false).
		Exec(ctx)

	return checkAffected(result, err, "set verification token")
}

// SetResetToken stores a password reset token digest, replacing any earlier one
func (r *Repository) SetResetToken(ctx context.Context, userID uuid.UUID, digest string, expiresAt *time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("reset_token = ?", digest).
		Set("reset_token_expires_at = ?", expiresAt).
		Set("updated_at = ?", r.now()).
		Where("id = ?", userID).
		Exec(ctx)

	return checkAffected(result, err, "set reset token")
}

// ConsumeVerificationToken marks the owner of digest verified and clears the
// slot in one statement. Unknown, already used and expired tokens all yield
// ErrNotFound.
func (r *Repository) ConsumeVerificationToken(ctx context.Context, digest string, now time.Time) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewUpdate().
		Model(dbUser).
		Set("is_verified = ?", true).
		Set("verification_token = NULL").
		Set("verification_token_expires_at = NULL").
		Set("updated_at = ?", now).
		Where("verification_token = ?", digest).
		Where("(verification_token_expires_at IS NULL OR verification_token_expires_at > ?)", now).
		Returning("*").
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

// ConsumeResetToken replaces the password of the owner of digest and clears
// the slot in one statement.
func (r *Repository) ConsumeResetToken(ctx context.Context, digest, passwordHash string, now time.Time) (*User, error) {
	dbUser := new(database.User)
	err := r.db.NewUpdate().
		Model(dbUser).
		Set("password_hash = ?", passwordHash).
		Set("reset_token = NULL").
		Set("reset_token_expires_at = NULL").
		Set("updated_at = ?", now).
		Where("reset_token = ?", digest).
		Where("(reset_token_expires_at IS NULL OR reset_token_expires_at > ?)", now).
		Returning("*").
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}

	return mapDBUserToModel(dbUser), nil
}

func checkAffected(result sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func translateError(op string, err error) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		if constraint == database.UsersEmailKey {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("%w: %s", ErrConflict, constraint)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:                         dbu.ID,
		Email:                      dbu.Email,
		PasswordHash:               dbu.PasswordHash,
		IsActive:                   dbu.IsActive,
		IsSuperuser:                dbu.IsSuperuser,
		IsVerified:                 dbu.IsVerified,
		Role:                       Role(dbu.Role),
		VerificationToken:          dbu.VerificationToken,
		VerificationTokenExpiresAt: dbu.VerificationTokenExpiresAt,
		ResetToken:                 dbu.ResetToken,
		ResetTokenExpiresAt:        dbu.ResetTokenExpiresAt,
		CreatedAt:                  dbu.CreatedAt,
		UpdatedAt:                  dbu.UpdatedAt,
	}
}
