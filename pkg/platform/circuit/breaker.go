// Package circuit wraps sony/gobreaker for outbound calls to upstream services.
//
// Open-circuit rejections are reported as sentinel.ErrUnavailable so callers
// handle them the same way as a failed upstream.
package circuit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"gridreg/pkg/platform/sentinel"
)

type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

type config struct {
	failureThreshold uint32
	halfOpenRequests uint32
	openTimeout      time.Duration
	logger           *slog.Logger
}

type Option func(*config)

// WithFailureThreshold sets the consecutive failures that open the circuit.
func WithFailureThreshold(n uint32) Option {
	return func(c *config) { c.failureThreshold = n }
}

// WithHalfOpenRequests sets the probe requests allowed while half-open.
func WithHalfOpenRequests(n uint32) Option {
	return func(c *config) { c.halfOpenRequests = n }
}

// WithOpenTimeout sets how long the circuit stays open before probing.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *config) { c.openTimeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func New(name string, opts ...Option) *Breaker {
	cfg := config{
		failureThreshold: 5,
		halfOpenRequests: 1,
		openTimeout:      30 * time.Second,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.halfOpenRequests,
		Timeout:     cfg.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Caller cancellation says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *Breaker) Name() string { return b.cb.Name() }
func (b *Breaker) State() State { return b.cb.State() }
func (b *Breaker) IsOpen() bool { return b.cb.State() == StateOpen }

// Execute runs fn through the breaker.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, errors.Join(sentinel.ErrUnavailable, err)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}
