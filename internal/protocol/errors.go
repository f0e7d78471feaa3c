package protocol

import (
	"errors"

	"chatcore/internal/domain"
)

// Error codes carried by the error event.
const (
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeInvalidInput      = "invalid_input"
	CodeInternal          = "internal"
)

// ErrorEvent terminates one request. The connection stays open.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

func (ErrorEvent) EventName() string { return EventError }

// Code maps a domain error to its wire code.
func Code(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, domain.ErrInvalidInput):
		return CodeInvalidInput
	}
	return CodeInternal
}

// NewError builds the client-facing error for err. Internal failures are not
// described to the client.
func NewError(ref string, err error) ErrorEvent {
	code := Code(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return ErrorEvent{Code: code, Message: msg, Ref: ref}
}
