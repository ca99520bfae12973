package notify

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

const defaultDispatchTimeout = 5 * time.Second

// Notifier delivers notifications to one output.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

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

// Dispatcher fans notifications out to every notifier, capped by a global
// per-minute rate. Notifications over the cap are dropped, not queued.
type Dispatcher struct {
	notifiers []Notifier
	limiter   *rate.Limiter
	perMinute int
	timeout   time.Duration
	logger    Logger
}

// NewDispatcher returns a dispatcher allowing perMinute notifications per
// minute with a burst of the same size. perMinute <= 0 disables the cap.
func NewDispatcher(perMinute int, logger Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		notifiers: notifiers,
		limiter:   newLimiter(perMinute),
		perMinute: perMinute,
		timeout:   defaultDispatchTimeout,
		logger:    logger,
	}
}

// SetRate changes the cap when configuration changes. A new cap starts
// with a full bucket.
func (d *Dispatcher) SetRate(perMinute int) {
	if perMinute == d.perMinute {
		return
	}
	d.limiter = newLimiter(perMinute)
	d.perMinute = perMinute
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
}

// Dispatch delivers ns in order and returns how many passed the rate cap.
// Notifier errors are logged and do not stop delivery to the others.
func (d *Dispatcher) Dispatch(ctx context.Context, ns []Notification) int {
	sent := 0
	for _, n := range ns {
		if ctx.Err() != nil {
			return sent
		}
		if !d.limiter.Allow() {
			d.logger.Warn("notification dropped by rate limit",
				"category", n.Category.String(),
				"identity", n.Identity,
			)
			continue
		}
		sent++

		for _, notifier := range d.notifiers {
			nctx, cancel := context.WithTimeout(ctx, d.timeout)
			err := notifier.Notify(nctx, n)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("notification delivery failed",
					"notifier", notifier.Name(),
					"category", n.Category.String(),
					"identity", n.Identity,
					"error", err,
				)
			}
		}
	}
	return sent
}

// LogNotifier writes notifications to the application log. It is always
// installed so headless runs still record what would have been shown.
type LogNotifier struct {
	logger Logger
}

func NewLogNotifier(logger Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (*LogNotifier) Name() string { return "log" }

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("notification",
		"category", n.Category.String(),
		"identity", n.Identity,
		"title", n.Title,
		"body", n.Body,
	)
	return nil
}
