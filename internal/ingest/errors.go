package ingest

import (
	"errors"
	"net/http"
)

// Ingestion errors. These reject the request before any record is created.
var (
	ErrNoInput          = errors.New("no input provided")
	ErrInvalidInput     = errors.New("invalid input")
	ErrFileTooLarge     = errors.New("file exceeds maximum upload size")
	ErrInvalidFile      = errors.New("invalid file")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrInvalidPDF       = errors.New("invalid pdf")
)

// MapHTTPStatus maps ingestion errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrNoInput),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidFile),
		errors.Is(err, ErrInvalidPDF):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
