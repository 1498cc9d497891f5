package repository

import (
	"errors"
	"fmt"

	"github.com/okian/admit/internal/domain/errs"
)

// Sentinel kinds for store errors. Each wraps its domain kind so errs.KindOf
// classifies store failures that reach the boundary unmapped.
var (
	ErrNotFound            = fmt.Errorf("record %w", errs.ErrNotFound)
	ErrDuplicateKey        = fmt.Errorf("%w: duplicate key", errs.ErrConflict)
	ErrConcurrencyConflict = fmt.Errorf("store: %w", errs.ErrConcurrencyConflict)
	ErrClosed              = errors.New("store closed")
	ErrInvalidLimit        = fmt.Errorf("%w: limit must be positive", errs.ErrValidation)
)
