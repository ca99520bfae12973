package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nerrad567/bluegauge/internal/device"
)

const (
	defaultBreakerMaxFailures = 3
	defaultBreakerCooldown    = 60 * time.Second
)

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Breaker wraps an adapter with a circuit breaker. After maxFailures
// consecutive failed polls the backend is skipped until cooldown passes,
// then a single probe poll decides whether it is back.
type Breaker struct {
	inner   Adapter
	breaker *gobreaker.CircuitBreaker[[]DeviceRecord]
}

func NewBreaker(inner Adapter, maxFailures int, cooldown time.Duration, logger Logger) *Breaker {
	if maxFailures <= 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	if logger == nil {
		logger = noopLogger{}
	}
	threshold := uint32(maxFailures) //nolint:gosec // positive, checked above

	cb := gobreaker.NewCircuitBreaker[[]DeviceRecord](gobreaker.Settings{
		Name:        "source:" + inner.Name(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("source breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Shutdown is not the backend's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Breaker{inner: inner, breaker: cb}
}

func (b *Breaker) Name() string { return b.inner.Name() }

func (b *Breaker) Backends() device.BackendSet { return BackendsOf(b.inner) }

func (b *Breaker) Poll(ctx context.Context) ([]DeviceRecord, error) {
	records, err := b.breaker.Execute(func() ([]DeviceRecord, error) {
		return b.inner.Poll(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &PollError{Source: b.inner.Name(), Err: fmt.Errorf("%w: %w", ErrBackendOpen, err)}
	}
	return records, err
}

// State exposes the breaker state for logging and tests.
func (b *Breaker) State() gobreaker.State { return b.breaker.State() }
