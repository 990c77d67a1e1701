package error_classifier

import (
	"fmt"
	"net/http"
)

// ErrorKind is the category a failed chat request falls into.
type ErrorKind string

const (
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindNetwork   ErrorKind = "network"
	ErrorKindServer    ErrorKind = "server"
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindGeneric   ErrorKind = "generic"
)

// IsRetriable reports whether failures of this kind are worth re-attempting.
func (k ErrorKind) IsRetriable() bool {
	switch k {
	case ErrorKindRateLimit, ErrorKindNetwork, ErrorKindServer:
		return true
	default:
		return false
	}
}

func (k ErrorKind) String() string {
	return string(k)
}

// Classification describes a single failure. A fresh value is produced for every failure
// and is never mutated afterwards.
type Classification struct {
	Kind  ErrorKind
	Cause error

	// StatusCode is the HTTP status of the failure, 0 when it could not be discovered.
	StatusCode int

	// RetryAfterSeconds is the server supplied wait hint. Only set for rate limit failures.
	RetryAfterSeconds *int
}

// IsRetriable is derived from Kind.
func (c *Classification) IsRetriable() bool {
	if c == nil {
		return false
	}
	return c.Kind.IsRetriable()
}

// RetryAfter returns the retry hint in seconds, or 0 when the server did not send one.
func (c *Classification) RetryAfter() int {
	if c == nil || c.RetryAfterSeconds == nil {
		return 0
	}
	return *c.RetryAfterSeconds
}

// HTTPError is returned by the chat transports when the endpoint answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Message    string

	// RetryAfterSeconds overrides any hint found in Header or Body when set.
	RetryAfterSeconds *int
}

var _ error = (*HTTPError)(nil)

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// StreamError is reported by the endpoint inside an otherwise successful stream.
type StreamError struct {
	Text string
}

func (e *StreamError) Error() string {
	if e.Text == "" {
		return "chat stream reported an error"
	}
	return e.Text
}
