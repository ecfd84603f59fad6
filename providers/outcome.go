package providers

import (
	"errors"
	"fmt"
	"net/http"
)

// OutcomeKind tags the result of a single remote attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "failure"
	}
}

// Outcome is exactly one of Success(Value), RateLimited or Failure(Err).
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
}

// NewOutcome classifies the return values of a provider call.
func NewOutcome[T any](v T, err error) Outcome[T] {
	switch {
	case err == nil:
		return Outcome[T]{Kind: OutcomeSuccess, Value: v}
	case IsRateLimited(err):
		return Outcome[T]{Kind: OutcomeRateLimited, Err: err}
	default:
		return Outcome[T]{Kind: OutcomeFailure, Err: err}
	}
}

// HTTPError represents a non-200 status returned by a provider.
type HTTPError struct {
	StatusCode int
	Body       string
	Provider   string
	Model      string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s/%s: %s", e.StatusCode, e.Provider, e.Model, e.Body)
}

// IsRateLimited reports whether err carries an HTTP 429.
func IsRateLimited(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests
}

// ErrMalformedResponse is returned when a 200 response cannot be interpreted.
var ErrMalformedResponse = errors.New("malformed response")
