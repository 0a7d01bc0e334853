package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// EnsureSchema creates the tables and secondary indexes when they are missing.
// It is idempotent and safe to run on every start.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*User)(nil),
		(*ShortURL)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*User)(nil)).
		Index("users_role_idx").
		Column("role").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create users role index: %w", err)
	}

	return nil
}
