package moltbook

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Failure kinds surfaced by the config resolver, the bridge, and tool-level
// parameter validation. All are raised synchronously to the caller; nothing
// is retried internally.
var (
	// ErrUnsafeEndpoint: the configured base URL escapes the trusted prefix.
	ErrUnsafeEndpoint = errors.New("unsafe endpoint: api base is outside the trusted moltbook prefix")
	// ErrMissingCredential: no API key in plugin config or environment.
	ErrMissingCredential = errors.New("missing credential: set apiKey in plugin config or the " + apiKeyEnv + " environment variable")
	// ErrInvalidArgument: tool parameter validation failed before any network call.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTimeout: the outbound call exceeded its deadline. Distinguishable
	// from UpstreamError so the caller can decide to retry.
	ErrTimeout = errors.New("request timed out")
)

// UpstreamError is a non-success HTTP status from the Moltbook API. It
// carries the retry-after hint verbatim so the calling agent can back off.
type UpstreamError struct {
	Status     int
	Detail     string
	RetryAfter int // seconds; 0 means the upstream sent no hint
}

func (e *UpstreamError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("moltbook api error (status %d): %s (retry-after=%ds)", e.Status, e.Detail, e.RetryAfter)
	}
	return fmt.Sprintf("moltbook api error (status %d): %s", e.Status, e.Detail)
}
