package repositories

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Postgres error codes the repositories react to
const (
	pqUniqueViolation      = "23505"
	pqInvalidTextRepresent = "22P02"
)

// isNotFound reports whether a lookup matched nothing. An id that is not a
// valid UUID cannot match any row, so Postgres' cast failure counts too.
func isNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresent
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
