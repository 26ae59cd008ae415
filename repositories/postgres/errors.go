package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/securestarter/repositories"
)

const uniqueViolation = pq.ErrorCode("23505")

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// translateError maps driver errors onto repository sentinels
func translateError(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	case IsUniqueViolation(err):
		var pqErr *pq.Error
		errors.As(err, &pqErr)
		return fmt.Errorf("%s: %w (%s)", op, repositories.ErrConflict, pqErr.Constraint)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
