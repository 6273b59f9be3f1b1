package speech

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a synthesis failure for user messaging.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindTransient     Kind = "transient"
	KindContent       Kind = "content"
	KindMalformed     Kind = "malformed"
)

// ErrMissingAudio is returned when the model answered without an inline audio
// part, typically because the output was filtered.
var ErrMissingAudio = errors.New("no audio data returned")

// Error describes a failed synthesis attempt.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport reports whether the failure came from reaching the backend.
func (e *Error) Transport() bool {
	return e.Kind == KindNotFound || e.Kind == KindTransient
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the Kind of err, or KindTransient for unclassified errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// statusError classifies a non-200 HTTP response.
func statusError(op string, status int, message string) *Error {
	kind := KindTransient
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindConfiguration
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusBadRequest:
		kind = KindValidation
	}
	return &Error{Kind: kind, Op: op, Status: status, Message: message}
}

// UserMessage turns err into the text shown to the person who asked for
// speech. Each Kind has its own message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if !errors.As(err, &se) {
		return "Speech generation failed. Please try again."
	}
	switch se.Kind {
	case KindConfiguration:
		return "The speech service is not configured: check that a valid API key is set."
	case KindValidation:
		if se.Message != "" {
			return se.Message
		}
		return "The request was rejected. Check the text and voice selection."
	case KindNotFound:
		return "The speech model or voice is not available. Check the model name."
	case KindTransient:
		return "The speech service is temporarily unavailable. Please try again."
	case KindContent:
		return "No audio was returned for this text. It may have been filtered; try rephrasing."
	case KindMalformed:
		return "The speech service returned audio that could not be decoded."
	default:
		return "Speech generation failed. Please try again."
	}
}
