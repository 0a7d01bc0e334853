package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: UsersEmailKey})

	constraint, ok := UniqueViolation(err)
	assert.True(t, ok)
	assert.Equal(t, UsersEmailKey, constraint)

	_, ok = UniqueViolation(&pq.Error{Code: "23503"})
	assert.False(t, ok)

	_, ok = UniqueViolation(errors.New("duplicate key value violates unique constraint"))
	assert.False(t, ok)

	_, ok = UniqueViolation(nil)
	assert.False(t, ok)
}
