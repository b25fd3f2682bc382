package db

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("db unavailable")

const pgUniqueViolation = "23505"

func newID() string {
	return uuid.NewString()
}

// isUniqueViolation recognizes unique index failures from both drivers,
// translated or not.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// supportsRowLocks is false for sqlite, where the single writer connection
// already serializes transactions.
func supportsRowLocks(tx *gorm.DB) bool {
	return tx.Dialector.Name() == "postgres"
}

func stringPtrIfNotEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
