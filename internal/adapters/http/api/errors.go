package api

import (
	"errors"
	"net/http"

	"github.com/okian/admit/internal/domain/errs"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// statusOf maps an error to its HTTP status and stable code.
func statusOf(err error) (int, string) {
	if errors.Is(err, ErrBadRequest) {
		return http.StatusBadRequest, "bad_request"
	}
	kind := errs.KindOf(err)
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest, string(kind)
	case errs.KindNotFound:
		return http.StatusNotFound, string(kind)
	case errs.KindConflict:
		return http.StatusConflict, string(kind)
	case errs.KindConcurrencyConflict:
		return http.StatusServiceUnavailable, string(kind)
	default:
		return http.StatusInternalServerError, string(errs.KindInternal)
	}
}
