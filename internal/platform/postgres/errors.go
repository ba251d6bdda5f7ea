package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"gridreg/pkg/platform/sentinel"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeLockNotAvailable    = "55P03"
	codeQueryCanceled       = "57014"
	codeSerializationFail   = "40001"
	codeDeadlockDetected    = "40P01"
	classConnection         = "08"
)

// Classify joins a sentinel onto driver errors so services can branch on
// errors.Is without importing lib/pq. Unrecognized errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errors.Join(sentinel.ErrNotFound, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return errors.Join(sentinel.ErrUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeUniqueViolation:
			return errors.Join(sentinel.ErrConflict, err)
		case pqErr.Code == codeForeignKeyViolation:
			return errors.Join(sentinel.ErrNotFound, err)
		case pqErr.Code == codeLockNotAvailable,
			pqErr.Code == codeQueryCanceled,
			pqErr.Code == codeSerializationFail,
			pqErr.Code == codeDeadlockDetected,
			pqErr.Code.Class() == classConnection:
			return errors.Join(sentinel.ErrUnavailable, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, pq.ErrSSLNotSupported) {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	return err
}

// Classifyf wraps err with a message and classifies it.
func Classifyf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Classify(fmt.Errorf(format+": %w", append(args, err)...))
}

// IsUniqueViolation reports a 23505 error.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}

// IsForeignKeyViolation reports a 23503 error.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation
}

// RowsAffected reads res.RowsAffected and classifies a failure like a query error.
func RowsAffected(res sql.Result, format string, args ...any) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, Classifyf(err, format, args...)
	}
	return n, nil
}
