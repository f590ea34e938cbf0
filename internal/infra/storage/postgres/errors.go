package postgres

import (
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vietddude/erpsync/internal/core/retry"
)

// IsRetryable classifies database errors. Server errors are judged by their
// SQLSTATE, anything else by retry.IsTransient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableCode(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableCode(string(pqErr.Code))
	}

	return retry.IsTransient(err)
}

func retryableCode(code string) bool {
	// Class 08: connection exception
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"57P01", // admin_shutdown
		"57P02", // crash_shutdown
		"57P03": // cannot_connect_now
		return true
	}
	return false
}
