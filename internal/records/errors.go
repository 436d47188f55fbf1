package records

import (
	"errors"
	"net/http"
)

// Store errors. These are integration errors and are always surfaced to the caller.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadySet    = errors.New("record field already set")
	ErrDuplicate     = errors.New("record already exists")
	ErrInvalidSource = errors.New("invalid input source")
)

// MapHTTPStatus maps record store errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrAlreadySet) || errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidSource) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
