package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrTransport    = errors.New("remote unavailable")
	ErrServer       = errors.New("remote application error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation rejected")
	ErrRateLimited  = errors.New("rate limited")
)

// Kind is the failure class of an APIError.
type Kind string

const (
	KindTransport    Kind = "transport"
	KindServer       Kind = "server"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindRateLimited  Kind = "rate_limited"
)

func (k Kind) sentinel() error {
	switch k {
	case KindServer:
		return ErrServer
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindRateLimited:
		return ErrRateLimited
	}
	return ErrTransport
}

// APIError is a classified remote failure.
type APIError struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	// RetryAfter is the server's wait hint for rate-limited calls.
	RetryAfter time.Duration
	// Err is the underlying network error for transport failures.
	Err error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind.sentinel(), e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind.sentinel(), msg)
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// Fallback reports whether err may be answered from the local cache.
func Fallback(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrServer)
}

// RetryAfter returns the wait hint carried by a rate-limited error.
func RetryAfter(err error) time.Duration {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}

// KindOf returns the failure class of err, or "" if err is not an APIError.
func KindOf(err error) Kind {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUnauthorized
	case code == http.StatusNotFound || code == http.StatusGone:
		return KindNotFound
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
		return KindTransport
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindValidation
	}
	return KindServer
}

func parseRetryAfter(h string, now time.Time) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
