package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrValidation indicates bad input shape: dimension mismatch,
	// empty required field, or non-positive topK. The store is left
	// unchanged.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a point lookup matched no record.
	// Delete intentionally does not return this.
	ErrNotFound = errors.New("record not found")

	// ErrStorageUnavailable indicates the underlying persistence is
	// unreachable or not yet provisioned. Never swallowed; retry
	// policy belongs to the caller.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// validationErr wraps ErrValidation with a formatted reason.
func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storageErr classifies a driver error. Connection failures and a
// missing documents table (schema not initialized) map to
// ErrStorageUnavailable; anything else is passed through wrapped with
// the operation name.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UndefinedTable, pgerrcode.UndefinedObject,
			pgerrcode.ConnectionException, pgerrcode.ConnectionFailure,
			pgerrcode.ConnectionDoesNotExist, pgerrcode.TooManyConnections,
			pgerrcode.CannotConnectNow:
			return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	}

	// pgconn reports dial/handshake failures as *pgconn.ConnectError.
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
