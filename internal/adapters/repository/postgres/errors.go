package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/okian/admit/internal/adapters/repository"
	"gorm.io/gorm"
)

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// classify translates driver errors into repository sentinels. It reports
// false for errors it does not recognise.
func classify(err error) (error, bool) {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrDuplicateKey),
		errors.Is(err, repository.ErrConcurrencyConflict):
		return err, true
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound, true
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", repository.ErrDuplicateKey, err), true
	case isRetryable(err):
		return fmt.Errorf("%w: %v", repository.ErrConcurrencyConflict, err), true
	default:
		return err, false
	}
}

// mapError is classify without the flag.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	mapped, _ := classify(err)
	return mapped
}
