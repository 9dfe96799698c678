package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsQueryCanceledError reports whether the query stopped because its context
// ended, either client side or as Postgres error 57014.
func IsQueryCanceledError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "57014"
}
