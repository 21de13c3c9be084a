// Package apperror defines the error taxonomy shared by the clinic services and
// its mapping onto HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindStore              Kind = "store"
	KindIngestion          Kind = "ingestion"
	KindNotFound           Kind = "not_found"
	KindRender             Kind = "render"
	KindSummaryUnavailable Kind = "summary_unavailable"
)

// Error is a classified failure. Message is safe to show to API callers; Err
// carries the underlying cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperror.NotFound("")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Ingestion(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindIngestion, Message: fmt.Sprintf(format, args...), Err: err}
}

func Store(err error, op string) *Error {
	return &Error{Kind: KindStore, Message: op, Err: err}
}

func Render(err error, op string) *Error {
	return &Error{Kind: KindRender, Message: op, Err: err}
}

func SummaryUnavailable(err error) *Error {
	return &Error{Kind: KindSummaryUnavailable, Message: "summary collaborator unavailable", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error onto the status code reported to API callers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindIngestion:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the caller-facing message for err. Store and render
// failures get a generic message so SQL text, DSNs and file paths never leak.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case KindStore:
		return "database error: " + e.Message
	case KindRender:
		return "report rendering failed: " + e.Message
	case KindIngestion:
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	default:
		return e.Message
	}
}
