package stream

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is one of the circuit breaker's three states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// CircuitOpenError is returned (as a terminal Event.Err) for every item
// arriving while the breaker is open.
type CircuitOpenError struct {
	StreamName string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("stream %s: circuit breaker open", e.StreamName)
}

// BreakerConfig parameterizes WithCircuitBreaker. Zero values fall back to defaults.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenRequests int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 60 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	return c
}

// breaker is the shared state machine driving one stream's circuit. It is
// safe for concurrent use; state transitions are published on stateCh for
// a monitoring goroutine to observe.
type breaker struct {
	mu sync.Mutex
	cfg BreakerConfig

	state            State
	consecutiveFails int
	openedAt         time.Time
	halfOpenInFlight int
	halfOpenFailed   bool

	stateCh chan State
}

func newBreaker(cfg BreakerConfig) *breaker {
	return &breaker{
		cfg:     cfg.withDefaults(),
		state:   StateClosed,
		stateCh: make(chan State, 16),
	}
}

// allow reports whether an item may proceed under the current state,
// transitioning open -> half-open when resetTimeout has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.ResetTimeout {
			b.transition(StateHalfOpen)
			b.halfOpenInFlight = 0
			b.halfOpenFailed = false
		} else {
			return false
		}
		fallthrough
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenRequests {
			return false
		}
		b.halfOpenInFlight++
		return true
	}
	return false
}

// recordSuccess registers a successful item and resets/advances the breaker.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFails = 0
	case StateHalfOpen:
		if !b.halfOpenFailed {
			b.transition(StateClosed)
			b.consecutiveFails = 0
		}
	}
}

// recordFailure registers a failed item, opening the breaker from closed once
// the threshold is reached, or re-opening immediately from half-open.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			b.openedAt = time.Now()
		}
	case StateHalfOpen:
		b.halfOpenFailed = true
		b.transition(StateOpen)
		b.openedAt = time.Now()
	}
}

// transition must be called with mu held; publishes the new state non-blockingly.
func (b *breaker) transition(to State) {
	b.state = to
	select {
	case b.stateCh <- to:
	default:
	}
}

// StateChanges returns a channel of state transitions for monitoring.
func (b *breaker) StateChanges() <-chan State { return b.stateCh }

// WithCircuitBreaker wraps src so that when the breaker is open, every
// emission is replaced with a CircuitOpenError instead of reaching upstream
// work; a half-open breaker admits a bounded number of probe items.
func WithCircuitBreaker[T any](streamName string, src Source[T], cfg BreakerConfig) Source[T] {
	b := newBreaker(cfg)
	return SourceFunc[T](func(ctx context.Context) (<-chan Event[T], error) {
		in, err := src.Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		out := make(chan Event[T])
		go func() {
			defer close(out)
			for ev := range in {
				if !b.allow() {
					select {
					case out <- Event[T]{Err: &CircuitOpenError{StreamName: streamName}}:
					case <-ctx.Done():
						return
					}
					continue
				}
				if ev.Err != nil {
					b.recordFailure()
				} else {
					b.recordSuccess()
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	})
}
