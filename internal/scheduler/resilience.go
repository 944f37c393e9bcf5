package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff for a task's command.
type RetryConfig struct {
	MaxAttempts         int           // total attempts, values below 2 disable retry
	InitialInterval     time.Duration // default 500ms
	MaxInterval         time.Duration // default 10s
	MaxElapsedTime      time.Duration // default 5min, 0 keeps the default
	Multiplier          float64       // default 2.0
	RandomizationFactor float64       // default 0.5
}

// DefaultRetryConfig returns a three-attempt policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      5 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (c RetryConfig) enabled() bool {
	return c.MaxAttempts > 1
}

func (c RetryConfig) policy(ctx context.Context) backoff.BackOff {
	def := DefaultRetryConfig()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = orDefault(c.InitialInterval, def.InitialInterval)
	b.MaxInterval = orDefault(c.MaxInterval, def.MaxInterval)
	b.MaxElapsedTime = orDefault(c.MaxElapsedTime, def.MaxElapsedTime)
	b.Multiplier = def.Multiplier
	if c.Multiplier > 0 {
		b.Multiplier = c.Multiplier
	}
	b.RandomizationFactor = def.RandomizationFactor
	if c.RandomizationFactor > 0 {
		b.RandomizationFactor = c.RandomizationFactor
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxAttempts-1)), ctx)
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// BreakerRegistry hands out one circuit breaker per program name, so a
// failing CLI stops being invoked by every task that targets it.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   zerolog.Logger
	trips    uint32
	timeout  time.Duration
}

// NewBreakerRegistry creates a registry whose breakers open after trips
// consecutive failures and stay open for timeout.
func NewBreakerRegistry(trips uint32, timeout time.Duration, logger zerolog.Logger) *BreakerRegistry {
	if trips == 0 {
		trips = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
		trips:    trips,
		timeout:  timeout,
	}
}

// Get returns the breaker for program, creating it on first use.
func (r *BreakerRegistry) Get(program string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[program]; ok {
		return cb
	}

	trips := r.trips
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        program,
		MaxRequests: 1,
		Timeout:     r.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn().Str("program", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Cancellation says nothing about the program's health.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[program] = cb
	return cb
}

// isBreakerRejection reports whether err came from an open breaker rather
// than from running the command.
func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
