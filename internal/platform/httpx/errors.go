// Package httpx maps domain errors onto RFC7807 problem responses.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrPersistence  = errors.New("changes could not be saved")
)

type problemKind struct {
	sentinel error
	status   int
	title    string
	code     string
	// hideDetail replaces the wrapped message with the sentinel's text.
	hideDetail bool
}

// Checked in order; the first sentinel the error wraps wins, so a failed
// save of a row that vanished reads as not found.
var problemKinds = []problemKind{
	{sentinel: ErrNotFound, status: http.StatusNotFound, title: "Not Found", code: "not_found"},
	{sentinel: ErrDuplicate, status: http.StatusConflict, title: "Duplicate", code: "duplicate"},
	{sentinel: ErrValidation, status: http.StatusBadRequest, title: "Validation Failed", code: "validation"},
	{sentinel: ErrForbidden, status: http.StatusForbidden, title: "Forbidden", code: "forbidden"},
	{sentinel: ErrUnauthorized, status: http.StatusUnauthorized, title: "Unauthorized", code: "unauthorized"},
	{sentinel: ErrPersistence, status: http.StatusServiceUnavailable, title: "Save Failed", code: "save_failed", hideDetail: true},
}

// StatusOf returns the HTTP status RespondError would use for err.
func StatusOf(err error) int {
	if kind, ok := kindOf(err); ok {
		return kind.status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses. Unknown errors become
// a 500 without detail.
func RespondError(w http.ResponseWriter, err error) {
	kind, ok := kindOf(err)
	if !ok {
		problem(w, http.StatusInternalServerError, "Internal Error", "internal", "")
		return
	}
	detail := err.Error()
	if kind.hideDetail {
		detail = kind.sentinel.Error()
	}
	problem(w, kind.status, kind.title, kind.code, detail)
}

func kindOf(err error) (problemKind, bool) {
	if err == nil {
		return problemKind{}, false
	}
	for _, kind := range problemKinds {
		if errors.Is(err, kind.sentinel) {
			return kind, true
		}
	}
	return problemKind{}, false
}
