package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// countingSource emits one failing event per Subscribe call until succeedAfter
// calls have been made, after which it emits a single success and closes.
type countingSource struct {
	calls       int32
	succeedAfter int32
}

func (s *countingSource) Subscribe(ctx context.Context) (<-chan Event[int], error) {
	n := atomic.AddInt32(&s.calls, 1)
	out := make(chan Event[int], 1)
	if n < s.succeedAfter {
		out <- Event[int]{Err: errors.New("boom")}
	} else {
		out <- Event[int]{Value: 42}
	}
	close(out)
	return out, nil
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	src := &countingSource{succeedAfter: 3}
	wrapped := WithRetry("test", src, RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := wrapped.Subscribe(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got Event[int]
	for ev := range out {
		got = ev
	}
	if got.Err != nil || got.Value != 42 {
		t.Fatalf("expected eventual success value 42, got %+v", got)
	}
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	src := &countingSource{succeedAfter: 1000} // never succeeds within budget
	wrapped := WithRetry("test", src, RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := wrapped.Subscribe(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var last Event[int]
	for ev := range out {
		last = ev
	}
	if last.Err == nil {
		t.Fatalf("expected terminal error after exhausting retries")
	}
}

// alwaysFailSource emits one failing event per Subscribe call, forever.
type alwaysFailSource struct{}

func (alwaysFailSource) Subscribe(ctx context.Context) (<-chan Event[int], error) {
	out := make(chan Event[int], 1)
	out <- Event[int]{Err: errors.New("fail")}
	close(out)
	return out, nil
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour, HalfOpenRequests: 1}
	wrapped := WithCircuitBreaker("test", alwaysFailSource{}, cfg)

	ctx := context.Background()

	var sawCircuitOpen bool
	for i := 0; i < 5; i++ {
		out, err := wrapped.Subscribe(ctx)
		if err != nil {
			t.Fatalf("unexpected subscribe error: %v", err)
		}
		for ev := range out {
			var coe *CircuitOpenError
			if errors.As(ev.Err, &coe) {
				sawCircuitOpen = true
			}
		}
	}
	if !sawCircuitOpen {
		t.Fatalf("expected circuit breaker to open and reject with CircuitOpenError")
	}
}

// flakySuccessSource always succeeds. The half-open -> closed test below
// drives the breaker directly and does not subscribe to it.
type flakySuccessSource struct{}

func (flakySuccessSource) Subscribe(ctx context.Context) (<-chan Event[int], error) {
	out := make(chan Event[int], 1)
	out <- Event[int]{Value: 1}
	close(out)
	return out, nil
}

func TestCircuitBreakerClosesAfterSuccessfulProbe(t *testing.T) {
	cfg := BreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenRequests: 1}
	b := newBreaker(cfg)

	// Drive closed -> open.
	if !b.allow() {
		t.Fatalf("expected first item to be allowed in closed state")
	}
	b.recordFailure()
	if b.state != StateOpen {
		t.Fatalf("expected breaker to open after threshold failures, got %s", b.state)
	}

	time.Sleep(20 * time.Millisecond)

	if !b.allow() {
		t.Fatalf("expected half-open probe to be allowed after resetTimeout")
	}
	if b.state != StateHalfOpen {
		t.Fatalf("expected half-open state, got %s", b.state)
	}
	b.recordSuccess()
	if b.state != StateClosed {
		t.Fatalf("expected breaker to close after successful probe, got %s", b.state)
	}
}

func TestComposeAppliesAllThreeOperators(t *testing.T) {
	src := &countingSource{succeedAfter: 2}
	wrapped := Compose[int]("composed-test", src,
		RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Hour, HalfOpenRequests: 1},
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := wrapped.Subscribe(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Event[int]
	for ev := range out {
		got = ev
	}
	if got.Err != nil || got.Value != 42 {
		t.Fatalf("expected composed source to eventually deliver 42, got %+v", got)
	}
}
