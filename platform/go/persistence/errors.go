package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateUniqueViolation       = "23505"
	sqlStateForeignKeyViolation   = "23503"
	sqlStateCheckViolation        = "23514"
	sqlStateInsufficientPrivilege = "42501"
)

// ErrPolicyEvaluation wraps insufficient_privilege failures raised while a
// row-level security policy is evaluated. They indicate a broken policy or a
// missing grant and are never retried.
var ErrPolicyEvaluation = errors.New("row level security policy evaluation failed")

func pgErrorCode(err error) (string, string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", "", false
	}
	return pgErr.Code, pgErr.ConstraintName, true
}

func isUniqueViolation(err error) bool {
	code, _, ok := pgErrorCode(err)
	return ok && code == sqlStateUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	code, _, ok := pgErrorCode(err)
	return ok && code == sqlStateForeignKeyViolation
}

func isCheckViolation(err error) bool {
	code, _, ok := pgErrorCode(err)
	return ok && code == sqlStateCheckViolation
}

// IsInsufficientPrivilege reports whether err carries SQLSTATE 42501.
func IsInsufficientPrivilege(err error) bool {
	code, _, ok := pgErrorCode(err)
	return ok && code == sqlStateInsufficientPrivilege
}

// violatedConstraint returns the constraint name attached to err, if any.
func violatedConstraint(err error) string {
	_, name, _ := pgErrorCode(err)
	return name
}

// wrapPolicyError converts 42501 into ErrPolicyEvaluation while keeping the
// driver error in the chain.
func wrapPolicyError(err error) error {
	if err == nil || !IsInsufficientPrivilege(err) {
		return err
	}
	return errors.Join(ErrPolicyEvaluation, err)
}
