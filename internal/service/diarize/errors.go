package diarize

import (
	"errors"
	"net/http"
)

// Kind classifies a failed diarize request.
type Kind int

const (
	// KindBadRequest means the caller sent an invalid request.
	KindBadRequest Kind = iota + 1
	// KindInternal means an acoustic capability failed or the request was
	// abandoned.
	KindInternal
)

// String returns the outcome label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the kind to a response status code.
func (k Kind) HTTPStatus() int {
	if k == KindBadRequest {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error is a request-level failure. Detail is safe to return to callers.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, treating anything that is not an *Error as
// internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func badRequest(detail string, err error) *Error {
	return &Error{Kind: KindBadRequest, Detail: detail, Err: err}
}

func internal(detail string, err error) *Error {
	return &Error{Kind: KindInternal, Detail: detail, Err: err}
}
