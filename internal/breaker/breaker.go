// Package breaker wraps sony/gobreaker for the outbound HTTP clients.
// A tripped breaker fails fast instead of stacking timeouts when a
// downstream service (embedding server, LLM provider) is down.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker rejects requests.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes a Breaker.
type Config struct {
	// Name labels the breaker in errors and state changes.
	Name string

	// MaxFailures is the consecutive-failure count that trips the circuit.
	MaxFailures uint32

	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration

	// HalfOpenProbes is how many successes in half-open close the circuit.
	HalfOpenProbes uint32
}

// Breaker protects a single downstream dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a breaker with defaults suitable for request/response CLIs:
// trip after 3 consecutive failures, probe again after 30 seconds.
func New(name string) *Breaker {
	return NewWithConfig(Config{Name: name, MaxFailures: 3, Cooldown: 30 * time.Second, HalfOpenProbes: 2})
}

// NewWithConfig creates a breaker with explicit settings.
func NewWithConfig(cfg Config) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenProbes == 0 {
		cfg.HalfOpenProbes = 2
	}
	return &Breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.HalfOpenProbes,
			Timeout:     cfg.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
		}),
	}
}

// Execute runs fn through the breaker. A cancelled context short-circuits
// without touching the breaker state; an open circuit returns ErrOpen.
func (b *Breaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrOpen
		}
		return nil, err
	}
	return result, nil
}
