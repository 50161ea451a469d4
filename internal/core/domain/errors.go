package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("domain: not found")
	// ErrSessionBusy indicates another request is already running for the session.
	ErrSessionBusy = errors.New("domain: session busy")
	// ErrCatalogUnavailable indicates the catalog provider could not be reached at all.
	ErrCatalogUnavailable = errors.New("domain: catalog unavailable")
	// ErrEmptyMessage indicates a chat message with no text.
	ErrEmptyMessage = errors.New("domain: empty message")
)

// ErrorKind classifies upstream failures so callers can decide on retries.
type ErrorKind string

const (
	KindQuota       ErrorKind = "quota"
	KindTransient   ErrorKind = "transient"
	KindTimeout     ErrorKind = "timeout"
	KindUnavailable ErrorKind = "unavailable"
	KindNotFound    ErrorKind = "not_found"
	KindFatal       ErrorKind = "fatal"
)

// UpstreamError is a classified failure from an external collaborator.
type UpstreamError struct {
	Provider   string
	Kind       ErrorKind
	Status     int
	RetryAfter time.Duration
	// Message is the upstream's own wording, surfaced verbatim for quota errors.
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrCatalogUnavailable:
		return e.Kind == KindUnavailable
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// Retryable reports whether the caller may retry the same operation.
func (e *UpstreamError) Retryable() bool {
	switch e.Kind {
	case KindQuota, KindTransient, KindUnavailable:
		return true
	default:
		return false
	}
}

// KindOf returns the classification of err, or KindFatal when err carries none.
func KindOf(err error) ErrorKind {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Kind
	}
	return KindFatal
}

// RetryAfterOf returns the quota hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.RetryAfter
	}
	return 0
}

// UserMessage renders err as text suitable for the end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrSessionBusy) {
		return "Still working on your previous message, one moment."
	}
	if errors.Is(err, ErrEmptyMessage) {
		return "Tell me a little about how you feel."
	}

	var up *UpstreamError
	if !errors.As(err, &up) {
		return "Something went wrong, please try again."
	}

	switch up.Kind {
	case KindQuota:
		msg := up.Message
		if msg == "" {
			msg = "The music assistant is over its request quota."
		}
		if up.RetryAfter > 0 {
			secs := int(math.Ceil(up.RetryAfter.Seconds()))
			msg = fmt.Sprintf("%s (retry in %ds)", msg, secs)
		}
		return msg
	case KindTransient, KindUnavailable:
		return "Recommendation unavailable right now, please try again."
	default:
		return "Something went wrong, please try again."
	}
}
