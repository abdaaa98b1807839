package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAmbiguousIntent  = errors.New("could not determine what the question is about")
	ErrUnsupportedJoin  = errors.New("unsupported join path")
	ErrBackend          = errors.New("backend error")
	ErrTimeout          = errors.New("query timed out")
	ErrConfiguration    = errors.New("configuration error")
	ErrFallbackDisabled = errors.New("fallback interpreter not configured")
)

// Kind is the error classification surfaced in result envelopes.
type Kind string

const (
	KindNone            Kind = ""
	KindAmbiguousIntent Kind = "AmbiguousIntentError"
	KindUnsupportedJoin Kind = "UnsupportedJoinError"
	KindBackend         Kind = "BackendError"
	KindTimeout         Kind = "Timeout"
	KindConfiguration   Kind = "ConfigurationError"
)

// KindOf classifies err. Unrecognized errors are reported as backend errors
// since they can only originate past the query-building boundary.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAmbiguousIntent), errors.Is(err, ErrFallbackDisabled):
		return KindAmbiguousIntent
	case errors.Is(err, ErrUnsupportedJoin):
		return KindUnsupportedJoin
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindBackend
	}
}

// Ambiguous wraps ErrAmbiguousIntent with the offending question.
func Ambiguous(question string) error {
	return fmt.Errorf("%w: %q does not mention a known entity", ErrAmbiguousIntent, question)
}

// UnsupportedJoin wraps ErrUnsupportedJoin for a table pair with no direct join.
func UnsupportedJoin(from, to string) error {
	return fmt.Errorf("%w: %s has no direct join to %s", ErrUnsupportedJoin, from, to)
}

// Configuration wraps ErrConfiguration with a formatted detail message.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
