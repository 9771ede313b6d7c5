package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wisbric/admissiond/internal/telemetry"
)

// CircuitBreakerGenerator wraps a Generator with a per-provider gobreaker
// circuit, tripping after repeated consecutive failures so a struggling
// provider stops receiving traffic it cannot serve (§5's resource policy
// extended with explicit provider isolation, grounded on
// jordigilh-kubernaut's gobreaker.Settings{ReadyToTrip,OnStateChange} shape).
type CircuitBreakerGenerator struct {
	inner    Generator
	provider string
	cb       *gobreaker.CircuitBreaker
}

// NewCircuitBreakerGenerator wraps inner with a circuit named for provider.
// onOpen, if non-nil, is invoked whenever the circuit trips open — the
// worker's ops notifier hooks in here rather than generator depending on
// internal/notify directly.
func NewCircuitBreakerGenerator(inner Generator, provider string, onOpen func(provider string)) *CircuitBreakerGenerator {
	settings := gobreaker.Settings{
		Name:        provider,
		MaxRequests: 2,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			telemetry.CircuitBreakerStateChangesTotal.WithLabelValues(name, to.String()).Inc()
			if to == gobreaker.StateOpen && onOpen != nil {
				onOpen(name)
			}
		},
	}
	return &CircuitBreakerGenerator{
		inner:    inner,
		provider: provider,
		cb:       gobreaker.NewCircuitBreaker(settings),
	}
}

// Generate implements Generator, routing through the circuit breaker and
// treating an open circuit as a transient (retryable) failure.
func (g *CircuitBreakerGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	out, err := g.cb.Execute(func() (any, error) {
		return g.inner.Generate(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Result{}, &GenerateError{Code: ErrCodeServerError, Message: fmt.Sprintf("%s circuit open: %v", g.provider, err)}
		}
		return Result{}, err
	}
	return out.(Result), nil
}
