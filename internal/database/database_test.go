package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type uniqueRow struct {
	ID   int64  `gorm:"primaryKey"`
	Code string `gorm:"uniqueIndex"`
}

func TestConnect_SQLiteUniqueViolation(t *testing.T) {
	db, err := Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&uniqueRow{}))

	require.NoError(t, db.Create(&uniqueRow{Code: "a"}).Error)
	err = db.Create(&uniqueRow{Code: "a"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestIsPostgres(t *testing.T) {
	assert.True(t, IsPostgres("postgres://u@h/db"))
	assert.True(t, IsPostgres("postgresql://u@h/db"))
	assert.False(t, IsPostgres("file:x?mode=memory"))
}
