package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind classifies why a generation request did not produce an image.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindMissingCredential Kind = "missing_credential"

	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindRateLimited  Kind = "rate_limited"
	KindServerError  Kind = "server_error"
	KindUnavailable  Kind = "unavailable"
	KindUnknown      Kind = "unknown"
	KindNetwork      Kind = "network_error"
	KindCanceled     Kind = "canceled"

	KindInvalidResponse  Kind = "invalid_response"
	KindContentBlocked   Kind = "content_blocked"
	KindProviderRejected Kind = "provider_rejected"
	KindTextualRefusal   Kind = "textual_refusal"
	KindNoImageProduced  Kind = "no_image_produced"
)

// Title returns a short heading for the kind, suitable for an error banner.
func (k Kind) Title() string {
	switch k {
	case KindMissingCredential, KindUnauthorized:
		return "API Key Required"
	case KindValidation:
		return "Check Your Input"
	case KindContentBlocked:
		return "Content Blocked"
	}
	words := strings.ReplaceAll(string(k), "_", " ")
	return cases.Title(language.English).String(words)
}

// Error is a classified, display-ready failure. Message is always safe to show
// to the end user as-is.
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status for transport failures, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// AsError extracts the classified error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown when err is not classified.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindUnknown
}

const (
	msgMissingCredential = "Please set your Gemini API key to start generating images."
	msgBadRequest        = "Invalid request. Please check your prompt or instructions and try again."
	msgUnauthorized      = "Invalid or expired API key. Please check your API key and try again."
	msgForbidden         = "Your API key does not have permission to use this service."
	msgRateLimited       = "Too many requests. Please wait a moment before trying again."
	msgServerError       = "The image service encountered an internal error. Please try again shortly."
	msgUnavailable       = "The image service is temporarily unavailable. Please try again later."
	msgUnknownStatus     = "Request failed with status %d. Please try again."
	msgNetwork           = "Network error. Please check your internet connection and try again."
	msgCanceled          = "The request was canceled before an image was returned."
)

// ErrMissingCredential is returned before any network call when no API key is stored.
var ErrMissingCredential = newError(KindMissingCredential, msgMissingCredential)

// statusError maps a non-2xx provider status to its classified error.
func statusError(status int) *Error {
	var e *Error
	switch status {
	case http.StatusBadRequest:
		e = newError(KindBadRequest, msgBadRequest)
	case http.StatusUnauthorized:
		e = newError(KindUnauthorized, msgUnauthorized)
	case http.StatusForbidden:
		e = newError(KindForbidden, msgForbidden)
	case http.StatusTooManyRequests:
		e = newError(KindRateLimited, msgRateLimited)
	case http.StatusInternalServerError:
		e = newError(KindServerError, msgServerError)
	case http.StatusServiceUnavailable:
		e = newError(KindUnavailable, msgUnavailable)
	default:
		e = newError(KindUnknown, fmt.Sprintf(msgUnknownStatus, status))
	}
	e.Status = status
	return e
}

// transportError classifies a failure that produced no HTTP status. A
// canceled context is reported as KindCanceled; deadlines and everything else
// are network errors.
func transportError(err error) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Message: msgCanceled, Err: err}
	}
	return &Error{Kind: KindNetwork, Message: msgNetwork, Err: err}
}
