package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Class is the retry classification of a provider failure.
type Class int

const (
	// ClassUnknown errors are neither explicitly transient nor fatal and
	// match no network failure pattern. They are not retried.
	ClassUnknown Class = iota
	ClassTransient
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// TransientError is a provider failure worth retrying: 408, 429, 5xx, or a
// network timeout.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable. statusCode is 0 for network failures.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// FatalError is a provider failure that is never retried (400, 401, 403,
// 404, malformed responses). It fails the current prospect only.
type FatalError struct {
	Err        error
	StatusCode int
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// NewFatalError marks err as non-retryable.
func NewFatalError(err error, statusCode int) *FatalError {
	return &FatalError{Err: err, StatusCode: statusCode}
}

// StatusError builds the classified error for a non-2xx response from
// service. The body is truncated so provider error pages stay readable in logs.
func StatusError(service string, statusCode int, body string) error {
	body = strings.TrimSpace(body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	err := fmt.Errorf("%s: %d %s: %s", service, statusCode, http.StatusText(statusCode), body)
	if IsTransientHTTPStatus(statusCode) {
		return NewTransientError(err, statusCode)
	}
	return NewFatalError(err, statusCode)
}

// networkPatterns match transport failures that reach us only as text,
// e.g. through a wrapped url.Error.
var networkPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// Classify reports how err should be treated by the retry loop. A
// FatalError anywhere in the chain wins over every other signal.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var fe *FatalError
	if errors.As(err, &fe) {
		return ClassFatal
	}
	var te *TransientError
	if errors.As(err, &te) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range networkPatterns {
		if strings.Contains(msg, p) {
			return ClassTransient
		}
	}
	return ClassUnknown
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return Classify(err) == ClassTransient }

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool { return Classify(err) == ClassFatal }

// IsTransientHTTPStatus reports whether a provider status code is retryable.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
