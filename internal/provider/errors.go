package provider

import (
	"context"
	"errors"
)

// Backends wrap one of these around the upstream message so the chain can
// tell a transient failure from a request that no backend would accept.
var (
	ErrRateLimit     = errors.New("provider: rate limited")
	ErrProviderDown  = errors.New("provider: unavailable")
	ErrContextLength = errors.New("provider: context length exceeded")
	ErrAuth          = errors.New("provider: authentication failed")
)

// Chain errors.
var (
	// ErrAllProviders wraps the last failure once every candidate for a
	// role failed or was cooling down.
	ErrAllProviders = errors.New("provider: all providers failed")

	// ErrNoProvider means nothing in the chain serves the role.
	ErrNoProvider = errors.New("provider: none configured")
)

// IsRetryable reports whether another backend, or a later attempt, may
// succeed where this one failed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// Reason returns a short label for err, for metrics and logs. A nil error
// is "ok".
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrProviderDown):
		return "unavailable"
	case errors.Is(err, ErrContextLength):
		return "context_length"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}
