package stream

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_events_total",
		Help: "Count of stream events by result.",
	}, []string{"stream", "result"})

	processingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stream_processing_duration_seconds",
		Help:    "Time since the previous event (or since subscribe, for the first), observed by the metrics operator.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stream"})
)

func init() {
	prometheus.MustRegister(eventsTotal, processingDuration)
}

// WithMetrics wraps src, incrementing stream_events_total{stream,result} for
// every emission and observing in stream_processing_duration_seconds{stream}
// the time elapsed since the previous emission (since Subscribe, for the
// first). It does not time how long a consumer takes to handle an event.
// It is the outermost operator,
// applied after retry and circuit-breaker, so it sees exactly what reaches
// the consumer.
func WithMetrics[T any](streamName string, src Source[T]) Source[T] {
	return SourceFunc[T](func(ctx context.Context) (<-chan Event[T], error) {
		in, err := src.Subscribe(ctx)
		if err != nil {
			return nil, err
		}
		out := make(chan Event[T])
		go func() {
			defer close(out)
			last := time.Now()
			for ev := range in {
				now := time.Now()
				processingDuration.WithLabelValues(streamName).Observe(now.Sub(last).Seconds())
				last = now

				result := "success"
				if ev.Err != nil {
					result = "error"
				}
				eventsTotal.WithLabelValues(streamName, result).Inc()

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

// Compose applies the three operators in the mandated order: retry wraps the
// raw source first, the circuit breaker wraps that, and metrics wraps the
// outermost result.
func Compose[T any](streamName string, src Source[T], retryCfg RetryConfig, breakerCfg BreakerConfig) Source[T] {
	withRetry := WithRetry(streamName, src, retryCfg)
	withBreaker := WithCircuitBreaker(streamName, withRetry, breakerCfg)
	return WithMetrics(streamName, withBreaker)
}
