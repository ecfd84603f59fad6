// Package orchestrator tries an ordered list of remote model endpoints until one
// of them succeeds. Every endpoint gets one attempt plus at most one retry after
// a rate limit; any other failure moves on to the next endpoint.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"imagestudio/metrics"
	"imagestudio/providers"
)

// DefaultRateLimitDelay is the wait before retrying a rate-limited endpoint.
const DefaultRateLimitDelay = 5 * time.Second

// ErrExhausted is returned when no endpoint produced a result.
var ErrExhausted = errors.New("all endpoints exhausted")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Call performs one attempt against one endpoint.
type Call[T any] func(ctx context.Context, ep providers.ModelEndpoint) providers.Outcome[T]

// Options bound each attempt and the rate-limit wait.
type Options struct {
	Timeout        time.Duration // per attempt; zero means only ctx bounds it
	RateLimitDelay time.Duration
	Sleep          Sleeper // nil uses a timer
}

// Attempt records one request against one endpoint.
type Attempt struct {
	Endpoint providers.ModelEndpoint
	Kind     providers.OutcomeKind
	Err      error
	Duration time.Duration
}

// Result is either Done (OK set, Value and Endpoint filled) or Exhausted.
type Result[T any] struct {
	Value    T
	Endpoint providers.ModelEndpoint
	OK       bool
	Attempts []Attempt
}

// Err returns nil for a successful result and an error wrapping ErrExhausted
// and the last attempt's error otherwise.
func (r Result[T]) Err() error {
	if r.OK {
		return nil
	}
	if n := len(r.Attempts); n > 0 && r.Attempts[n-1].Err != nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, n, r.Attempts[n-1].Err)
	}
	return ErrExhausted
}

type state int

const (
	trying state = iota
	rateLimitedRetry
	exhausted
	done
)

// Run walks endpoints in order. It stops at the first success, after the last
// endpoint, or when ctx is cancelled.
func Run[T any](ctx context.Context, endpoints []providers.ModelEndpoint, opts Options, call Call[T]) Result[T] {
	if opts.RateLimitDelay <= 0 {
		opts.RateLimitDelay = DefaultRateLimitDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}

	var res Result[T]
	st, i := trying, 0
	if len(endpoints) == 0 {
		st = exhausted
	}

	for st != exhausted && st != done {
		ep := endpoints[i]
		out, att := attempt(ctx, ep, opts.Timeout, call)
		res.Attempts = append(res.Attempts, att)

		switch {
		case out.Kind == providers.OutcomeSuccess:
			res.Value, res.Endpoint, res.OK = out.Value, ep, true
			st = done
		case ctx.Err() != nil:
			st = exhausted
		case out.Kind == providers.OutcomeRateLimited && st == trying:
			log.Info().Str("model", ep.ID).Dur("delay", opts.RateLimitDelay).Msg("rate limited, retrying once")
			if err := opts.Sleep(ctx, opts.RateLimitDelay); err != nil {
				st = exhausted
				continue
			}
			st = rateLimitedRetry
		default:
			i++
			st = trying
			if i >= len(endpoints) {
				st = exhausted
			}
		}
	}

	if !res.OK {
		purpose := ""
		if len(endpoints) > 0 {
			purpose = string(endpoints[0].Purpose)
		}
		metrics.IncExhausted(purpose)
		log.Warn().Str("purpose", purpose).Int("attempts", len(res.Attempts)).Err(res.Err()).
			Msg("no endpoint succeeded")
	}
	return res
}

// attempt runs call once under its own timeout and turns a panic into a Failure.
func attempt[T any](ctx context.Context, ep providers.ModelEndpoint, timeout time.Duration, call Call[T]) (out providers.Outcome[T], att Attempt) {
	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = providers.Outcome[T]{Kind: providers.OutcomeFailure, Err: fmt.Errorf("panic calling %s: %v", ep.ID, r)}
		}
		att = Attempt{Endpoint: ep, Kind: out.Kind, Err: out.Err, Duration: time.Since(start)}
		observe(cctx, att)
	}()

	return call(cctx, ep), att
}

func observe(ctx context.Context, att Attempt) {
	result := att.Kind.String()
	if att.Kind == providers.OutcomeFailure && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result = "timeout"
	}
	metrics.ObserveProvider(string(att.Endpoint.Purpose), att.Endpoint.ID, result, att.Duration)

	if att.Err != nil {
		log.Warn().
			Str("purpose", string(att.Endpoint.Purpose)).
			Str("model", att.Endpoint.ID).
			Dur("duration", att.Duration).
			Str("result", result).
			Err(att.Err).
			Msg("model call failed")
		return
	}
	log.Debug().
		Str("purpose", string(att.Endpoint.Purpose)).
		Str("model", att.Endpoint.ID).
		Dur("duration", att.Duration).
		Msg("model call succeeded")
}

// SleepContext waits for d without holding anything other callers need.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
