package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagestudio/providers"
)

type fakeSleeper struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
}

func (f *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, d)
	return f.err
}

type scripted struct {
	mu    sync.Mutex
	calls map[string]int
	reply map[string]func(n int) providers.Outcome[string]
}

func newScripted() *scripted {
	return &scripted{calls: map[string]int{}, reply: map[string]func(int) providers.Outcome[string]{}}
}

func (s *scripted) call(_ context.Context, ep providers.ModelEndpoint) providers.Outcome[string] {
	s.mu.Lock()
	s.calls[ep.ID]++
	n := s.calls[ep.ID]
	s.mu.Unlock()
	return s.reply[ep.ID](n)
}

func rateLimited(int) providers.Outcome[string] {
	return providers.NewOutcome("", &providers.HTTPError{StatusCode: http.StatusTooManyRequests})
}

func serverError(int) providers.Outcome[string] {
	return providers.NewOutcome("", &providers.HTTPError{StatusCode: http.StatusInternalServerError})
}

func success(v string) func(int) providers.Outcome[string] {
	return func(int) providers.Outcome[string] { return providers.NewOutcome(v, nil) }
}

var eps = providers.Endpoints(providers.PurposeCaptioning, "a/one", "b/two", "c/three")

func TestRunRateLimitedThenNextSucceeds(t *testing.T) {
	s := newScripted()
	s.reply["a/one"] = rateLimited
	s.reply["b/two"] = success("from two")
	s.reply["c/three"] = success("from three")
	sl := &fakeSleeper{}

	res := Run(context.Background(), eps, Options{RateLimitDelay: 5 * time.Second, Sleep: sl.Sleep}, s.call)

	require.True(t, res.OK)
	assert.NoError(t, res.Err())
	assert.Equal(t, "from two", res.Value)
	assert.Equal(t, "b/two", res.Endpoint.ID)
	assert.Equal(t, []time.Duration{5 * time.Second}, sl.calls)
	assert.Equal(t, 2, s.calls["a/one"])
	assert.Equal(t, 1, s.calls["b/two"])
	assert.Zero(t, s.calls["c/three"])
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, providers.OutcomeRateLimited, res.Attempts[0].Kind)
	assert.Equal(t, providers.OutcomeRateLimited, res.Attempts[1].Kind)
	assert.Equal(t, providers.OutcomeSuccess, res.Attempts[2].Kind)
}

func TestRunRetrySucceedsOnSameEndpoint(t *testing.T) {
	s := newScripted()
	s.reply["a/one"] = func(n int) providers.Outcome[string] {
		if n == 1 {
			return rateLimited(n)
		}
		return providers.NewOutcome("second try", nil)
	}
	sl := &fakeSleeper{}

	res := Run(context.Background(), eps, Options{Sleep: sl.Sleep}, s.call)

	require.True(t, res.OK)
	assert.Equal(t, "second try", res.Value)
	assert.Equal(t, []time.Duration{DefaultRateLimitDelay}, sl.calls)
	assert.Zero(t, s.calls["b/two"])
}

func TestRunAllFailing(t *testing.T) {
	s := newScripted()
	s.reply["a/one"] = serverError
	s.reply["b/two"] = func(int) providers.Outcome[string] {
		return providers.NewOutcome("", errors.New("connection reset"))
	}
	s.reply["c/three"] = serverError
	sl := &fakeSleeper{}

	res := Run(context.Background(), eps, Options{Sleep: sl.Sleep}, s.call)

	assert.False(t, res.OK)
	assert.Empty(t, res.Value)
	assert.Empty(t, sl.calls)
	assert.Len(t, res.Attempts, 3)
	for _, ep := range eps {
		assert.Equal(t, 1, s.calls[ep.ID], ep.ID)
	}
	err := res.Err()
	assert.True(t, errors.Is(err, ErrExhausted))
	var httpErr *providers.HTTPError
	assert.True(t, errors.As(err, &httpErr))
}

func TestRunRateLimitedTwiceMovesOn(t *testing.T) {
	s := newScripted()
	s.reply["a/one"] = rateLimited
	s.reply["b/two"] = rateLimited
	s.reply["c/three"] = rateLimited
	sl := &fakeSleeper{}

	res := Run(context.Background(), eps, Options{Sleep: sl.Sleep}, s.call)

	assert.False(t, res.OK)
	assert.Len(t, sl.calls, 3)
	assert.Len(t, res.Attempts, 6)
}

func TestRunNoEndpoints(t *testing.T) {
	res := Run(context.Background(), nil, Options{}, func(context.Context, providers.ModelEndpoint) providers.Outcome[int] {
		t.Fatal("call must not be invoked")
		return providers.Outcome[int]{}
	})
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err(), ErrExhausted)
}

func TestRunRecoversPanic(t *testing.T) {
	s := newScripted()
	s.reply["a/one"] = func(int) providers.Outcome[string] { panic("boom") }
	s.reply["b/two"] = success("ok")

	res := Run(context.Background(), eps, Options{}, s.call)

	require.True(t, res.OK)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, providers.OutcomeFailure, res.Attempts[0].Kind)
	assert.ErrorContains(t, res.Attempts[0].Err, "boom")
}

func TestRunAttemptTimeout(t *testing.T) {
	call := func(ctx context.Context, ep providers.ModelEndpoint) providers.Outcome[string] {
		if ep.ID == "a/one" {
			<-ctx.Done()
			return providers.NewOutcome("", ctx.Err())
		}
		return providers.NewOutcome("fast", nil)
	}

	res := Run(context.Background(), eps, Options{Timeout: 10 * time.Millisecond}, call)

	require.True(t, res.OK)
	assert.Equal(t, "b/two", res.Endpoint.ID)
	assert.ErrorIs(t, res.Attempts[0].Err, context.DeadlineExceeded)
}

func TestRunStopsWhenCancelledDuringWait(t *testing.T) {
	s := newScripted()
	s.reply["a/one"] = rateLimited
	s.reply["b/two"] = success("unreachable")
	sl := &fakeSleeper{err: context.Canceled}

	res := Run(context.Background(), eps, Options{Sleep: sl.Sleep}, s.call)

	assert.False(t, res.OK)
	assert.Equal(t, 1, s.calls["a/one"])
	assert.Zero(t, s.calls["b/two"])
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	call := func(context.Context, providers.ModelEndpoint) providers.Outcome[string] {
		calls++
		cancel()
		return providers.NewOutcome("", errors.New("interrupted"))
	}

	res := Run(ctx, eps, Options{}, call)

	assert.False(t, res.OK)
	assert.Equal(t, 1, calls)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
