package shorturl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-shortener-api/internal/database"
)

// Repository handles short URL persistence
type Repository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db}
}

// ExistsByCode reports whether code is taken
func (r *Repository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*database.ShortURL)(nil)).
		Where("code = ?", code).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check short code: %w", err)
	}
	return exists, nil
}

// Create inserts a mapping. A taken code yields ErrDuplicateCode.
func (r *Repository) Create(ctx context.Context, code, originalURL string) (*ShortURL, error) {
	row := &database.ShortURL{
		Code:        code,
		OriginalURL: originalURL,
		CreatedAt:   time.Now(),
	}

	_, err := r.db.NewInsert().
		Model(row).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if constraint, ok := database.UniqueViolation(err); ok && constraint == database.ShortURLsCodeKey {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create short url: %w", err)
	}

	return mapRow(row), nil
}

func (r *Repository) List(ctx context.Context, offset, limit int) ([]*ShortURL, error) {
	var rows []database.ShortURL
	err := r.db.NewSelect().
		Model(&rows).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list short urls: %w", err)
	}

	out := make([]*ShortURL, 0, len(rows))
	for i := range rows {
		out = append(out, mapRow(&rows[i]))
	}
	return out, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*ShortURL, error) {
	return r.getBy(ctx, "id = ?", id)
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*ShortURL, error) {
	return r.getBy(ctx, "code = ?", code)
}

func (r *Repository) getBy(ctx context.Context, where string, arg any) (*ShortURL, error) {
	row := new(database.ShortURL)
	err := r.db.NewSelect().
		Model(row).
		Where(where, arg).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get short url: %w", err)
	}
	return mapRow(row), nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.NewDelete().
		Model((*database.ShortURL)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete short url: %w", err)
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

// IncrementAccess bumps the counter in a single statement and returns the
// updated row
func (r *Repository) IncrementAccess(ctx context.Context, code string) (*ShortURL, error) {
	row := new(database.ShortURL)
	err := r.db.NewUpdate().
		Model(row).
		Set("access_count = access_count + 1").
		Where("code = ?", code).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to increment access count: %w", err)
	}
	return mapRow(row), nil
}

func mapRow(row *database.ShortURL) *ShortURL {
	return &ShortURL{
		ID:          row.ID,
		Code:        row.Code,
		OriginalURL: row.OriginalURL,
		AccessCount: row.AccessCount,
		CreatedAt:   row.CreatedAt,
	}
}
