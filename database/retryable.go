package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsRetryableError reports whether a failed statement or transaction may
// succeed when run again: serialization failures, deadlocks, lock timeouts,
// cancelled statements and dropped connections.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return pgconn.SafeToRetry(err)
	}
	switch pgErr.Code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03", // lock_not_available
		"57014": // query_canceled
		return true
	}
	// connection_exception class
	return strings.HasPrefix(pgErr.Code, "08")
}
