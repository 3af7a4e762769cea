package stream

import (
	"context"
	"fmt"
	"log"
	"time"
)

// RetryConfig parameterizes WithRetry. Zero values fall back to the defaults.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 1000 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30000 * time.Millisecond
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
	return c
}

// WithRetry wraps src so that an upstream failure (a terminal Event.Err, or
// Subscribe itself erroring) triggers a delayed resubscribe instead of ending
// the stream, up to cfg.MaxRetries consecutive failures.
func WithRetry[T any](streamName string, src Source[T], cfg RetryConfig) Source[T] {
	cfg = cfg.withDefaults()
	return SourceFunc[T](func(ctx context.Context) (<-chan Event[T], error) {
		out := make(chan Event[T])
		go runRetryLoop(ctx, streamName, src, cfg, out)
		return out, nil
	})
}

func runRetryLoop[T any](ctx context.Context, streamName string, src Source[T], cfg RetryConfig, out chan<- Event[T]) {
	defer close(out)

	attempt := 0
	for {
		in, err := src.Subscribe(ctx)
		if err != nil {
			if !retryOrGiveUp(ctx, streamName, &attempt, cfg, out, err) {
				return
			}
			continue
		}

		failed := false
		for ev := range in {
			if ev.Err != nil {
				failed = true
				if !retryOrGiveUp(ctx, streamName, &attempt, cfg, out, ev.Err) {
					return
				}
				break
			}
			attempt = 0 // success resets the consecutive-failure count
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if !failed {
			return // upstream closed cleanly, nothing left to retry
		}
	}
}

// retryOrGiveUp delays and reports true to continue retrying, or emits a
// terminal error event and reports false once attempts are exhausted.
func retryOrGiveUp[T any](ctx context.Context, streamName string, attempt *int, cfg RetryConfig, out chan<- Event[T], cause error) bool {
	*attempt++
	if *attempt > cfg.MaxRetries {
		select {
		case out <- Event[T]{Err: fmt.Errorf("stream %s: retries exhausted: %w", streamName, cause)}:
		case <-ctx.Done():
		}
		return false
	}

	delay := backoffDelay(cfg, *attempt)
	log.Printf("[stream:%s] upstream error (attempt %d/%d), resubscribing in %s: %v", streamName, *attempt, cfg.MaxRetries, delay, cause)
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= cfg.Multiplier
	}
	delay := time.Duration(d)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
