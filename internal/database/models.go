package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Constraint names generated by Postgres for the unique columns below
const (
	UsersEmailKey        = "users_email_key"
	ShortURLsCodeKey     = "short_urls_code_key"
	UsersVerificationKey = "users_verification_token_key"
	UsersResetTokenKey   = "users_reset_token_key"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID                         uuid.UUID  `bun:"id,pk,type:uuid"`
	Email                      string     `bun:"email,notnull,unique"`
	PasswordHash               string     `bun:"password_hash,notnull"`
	IsActive                   bool       `bun:"is_active,notnull"`
	IsSuperuser                bool       `bun:"is_superuser,notnull"`
	IsVerified                 bool       `bun:"is_verified,notnull"`
	Role                       string     `bun:"role,notnull,type:varchar(20)"`
	VerificationToken          *string    `bun:"verification_token,unique"`
	VerificationTokenExpiresAt *time.Time `bun:"verification_token_expires_at"`
	ResetToken                 *string    `bun:"reset_token,unique"`
	ResetTokenExpiresAt        *time.Time `bun:"reset_token_expires_at"`
	CreatedAt                  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt                  time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

type ShortURL struct {
	bun.BaseModel `bun:"table:short_urls,alias:s"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Code        string    `bun:"code,notnull,unique,type:varchar(10)"`
	OriginalURL string    `bun:"original_url,notnull,type:varchar(2048)"`
	AccessCount int64     `bun:"access_count,notnull,default:0"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
