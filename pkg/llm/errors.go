package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType names what went wrong with a provider call.
type ErrorType string

const (
	ErrorTypeCanceled  ErrorType = "canceled"
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified provider failure. It implements retry.RetryableError.
type Error struct {
	Type      ErrorType
	Message   string
	Retryable bool
	Cause     error
	// StatusCode is the HTTP status when the SDK exposed one.
	StatusCode int
	Model      string
	Endpoint   string
}

// NewError builds an Error. Endpoint and rate limit failures are retryable;
// set Retryable afterwards to override.
func NewError(errType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Retryable: errType == ErrorTypeEndpoint || errType == ErrorTypeRateLimit,
	}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Type))
	if e.StatusCode > 0 {
		fmt.Fprintf(&sb, " HTTP %d", e.StatusCode)
	}
	if e.Model != "" {
		fmt.Fprintf(&sb, " model=%s", e.Model)
	}
	// Only the host: endpoints may embed credentials in the userinfo or query.
	if u, err := url.Parse(e.Endpoint); err == nil && u.Host != "" {
		fmt.Fprintf(&sb, " endpoint=%s", u.Host)
	}
	sb.WriteString(" " + e.Message)
	if e.Cause != nil {
		sb.WriteString(": " + e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// at fills in the model and endpoint unless already set.
func (e *Error) at(model, endpoint string) *Error {
	if e == nil {
		return nil
	}
	if e.Model == "" {
		e.Model = model
	}
	if e.Endpoint == "" {
		e.Endpoint = endpoint
	}
	return e
}

// rule classifies failures whose lower-cased message or status matches.
type rule struct {
	errType   ErrorType
	message   string
	retryable bool
	statuses  []int
	phrases   []string
	// all requires every phrase instead of any.
	all bool
}

func (r rule) matches(lower string, status int) bool {
	for _, s := range r.statuses {
		if s == status {
			return true
		}
	}
	if len(r.phrases) == 0 {
		return false
	}
	for _, p := range r.phrases {
		if strings.Contains(lower, p) != r.all {
			return !r.all
		}
	}
	return r.all
}

// rules are checked in order; the first match wins.
var rules = []rule{
	{errType: ErrorTypeAuth, message: "authentication failed", statuses: []int{401, 403},
		phrases: []string{"401", "permission denied", "unauthorized", "invalid api key", "api key not valid"}},
	{errType: ErrorTypeModel, message: "model not found", phrases: []string{"model", "not found"}, all: true},
	{errType: ErrorTypeModel, message: "model not found", phrases: []string{"model", "does not exist"}, all: true},
	{errType: ErrorTypeEndpoint, message: "endpoint not found", statuses: []int{404}, phrases: []string{"404"}},
	{errType: ErrorTypeEndpoint, message: "connection failed", retryable: true, phrases: []string{"connection refused", "no such host"}},
	{errType: ErrorTypeEndpoint, message: "request timeout", retryable: true, phrases: []string{"timeout", "deadline exceeded"}},
	{errType: ErrorTypeRateLimit, message: "rate limited", retryable: true, statuses: []int{429}, phrases: []string{"429", "rate limit"}},
	// Anthropic 529 and Gemini RESOURCE_EXHAUSTED.
	{errType: ErrorTypeEndpoint, message: "provider overloaded", retryable: true, phrases: []string{"overloaded", "resource_exhausted"}},
	{errType: ErrorTypeEndpoint, message: "server error", retryable: true, statuses: []int{500, 502, 503, 504},
		phrases: []string{"500", "502", "503", "504"}},
}

// ClassifyError wraps err in an *Error saying which part of the provider
// setup failed and whether a retry can help. An *Error already in the chain
// is returned unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeCanceled, "request canceled", err)
	}

	status := statusCodeOf(err)
	lower := strings.ToLower(err.Error())
	e := NewError(ErrorTypeUnknown, "llm error", err)
	for _, r := range rules {
		if r.matches(lower, status) {
			e = NewError(r.errType, r.message, err)
			e.Retryable = r.retryable
			break
		}
	}
	e.StatusCode = status
	return e
}

// statusCodeOf reads the HTTP status from OpenAI SDK errors. The other SDKs
// only put it in the message.
func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	msg := err.Error()
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(msg, fmt.Sprint(code)) {
			return code
		}
	}
	return 0
}

// IsRetryable reports whether err carries a retryable *Error.
func IsRetryable(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Retryable
}

// TypeOf returns the ErrorType of the *Error in err's chain, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
