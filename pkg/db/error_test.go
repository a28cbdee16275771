package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: event_charges.event_id")))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "55P03"}))
}

func TestIsLockConflict(t *testing.T) {
	assert.False(t, IsLockConflict(nil))
	assert.True(t, IsLockConflict(&pgconn.PgError{Code: "55P03"}))
	assert.True(t, IsLockConflict(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, IsLockConflict(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsLockConflict(errors.New("connection refused")))
}
