package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/events"
	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
	"github.com/nerrad567/bluegauge/internal/notify"
	"github.com/nerrad567/bluegauge/internal/render"
	"github.com/nerrad567/bluegauge/internal/source"
)

const themeTimeout = 2 * time.Second

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

// Options wires a Scheduler. Source, Registry and Publisher are required.
type Options struct {
	Source     source.Adapter
	Registry   *device.Registry
	Publisher  *Publisher
	Policy     *notify.Policy
	Dispatcher *notify.Dispatcher
	Renderer   *render.Renderer
	Theme      render.ThemeDetector
	Sinks      []Sink
	Logger     Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Cycle is the outcome of one poll → merge → diff → notify → render pass.
type Cycle struct {
	At            time.Time
	Config        *config.Config
	Previous      *device.Snapshot
	Snapshot      *device.Snapshot
	Events        []events.Event
	Notifications []notify.Notification
	Presentation  *render.Presentation

	// PollErr is set when the poll failed or was partial. A failed poll
	// leaves Snapshot equal to Previous and Events empty.
	PollErr error
}

// Scheduler owns the registry's single-writer state transition. Run drives
// cycles on the configured interval; Refresh and UpdateConfig may be
// called from any goroutine and never block.
type Scheduler struct {
	src        source.Adapter
	registry   *device.Registry
	publisher  *Publisher
	policy     *notify.Policy
	dispatcher *notify.Dispatcher
	renderer   *render.Renderer
	theme      render.ThemeDetector
	sinks      []Sink
	logger     Logger
	now        func() time.Time

	cfg       atomic.Pointer[config.Config]
	refresh   chan struct{}
	reconfig  chan struct{}
	running   atomic.Bool
	lastTheme render.Theme
}

func New(cfg *config.Config, opts Options) *Scheduler {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Scheduler{
		src:        opts.Source,
		registry:   opts.Registry,
		publisher:  opts.Publisher,
		policy:     opts.Policy,
		dispatcher: opts.Dispatcher,
		renderer:   opts.Renderer,
		theme:      opts.Theme,
		sinks:      opts.Sinks,
		logger:     opts.Logger,
		now:        opts.Now,
		refresh:    make(chan struct{}, 1),
		reconfig:   make(chan struct{}, 1),
	}
	if s.policy == nil {
		s.policy = notify.NewPolicy()
	}
	if s.renderer == nil {
		s.renderer = render.NewRenderer()
	}
	if s.theme == nil {
		s.theme = render.StaticTheme(render.ThemeLight)
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.cfg.Store(cfg)
	return s
}

// Config returns the configuration the next cycle will use.
func (s *Scheduler) Config() *config.Config { return s.cfg.Load() }

// UpdateConfig posts a new configuration. The caller must not modify cfg
// afterwards; use Clone to derive edits.
func (s *Scheduler) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.cfg.Store(cfg)
	signal(s.reconfig)
}

// Refresh requests an immediate cycle. Requests made while one is pending
// collapse into one.
func (s *Scheduler) Refresh() { signal(s.refresh) }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run executes a cycle immediately and then on every interval until ctx is
// cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.Load().UpdateInterval()
	timer := time.NewTimer(0)
	defer timer.Stop()

	s.logger.Info("scheduler started", "interval", interval.String(), "source", s.src.Name())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil

		case <-s.reconfig:
			next := s.cfg.Load().UpdateInterval()
			if next != interval {
				interval = next
				resetTimer(timer, interval)
			}
			s.rerender(ctx)
			continue

		case <-s.refresh:
		case <-timer.C:
		}

		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("update cycle failed", "error", err)
		}
		resetTimer(timer, interval)
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// RunOnce performs one full cycle. It returns ErrCycleInProgress if a
// cycle is already running and ctx's error if ctx ends mid-poll, in which
// case nothing is merged or published.
func (s *Scheduler) RunOnce(ctx context.Context) (Cycle, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Cycle{}, ErrCycleInProgress
	}
	defer s.running.Store(false)

	cfg := s.cfg.Load()
	now := s.now()
	c := Cycle{At: now, Config: cfg}

	records, err := source.PollWithTimeout(ctx, s.src, cfg.PollTimeout())
	if ctx.Err() != nil {
		return c, ctx.Err()
	}

	var stale device.BackendSet
	var partial *source.PartialError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		stale = partial.Failed
		c.PollErr = err
		s.logger.Warn("partial poll, keeping state of failed backends", "failed", partial.Failed.String(), "error", err)
	default:
		c.PollErr = err
		c.Previous = s.registry.Current()
		c.Snapshot = c.Previous
		s.logger.Warn("poll failed, keeping last snapshot", "error", err)
		if s.publisher.Latest() == nil {
			c.Presentation = s.render(ctx, c.Snapshot, cfg)
			s.publisher.publish(c.Presentation)
		}
		return c, nil
	}

	c.Snapshot, c.Previous = s.registry.Apply(records, device.MergeOptions{
		Now:              now,
		LowThreshold:     cfg.Notifications.LowBatteryThreshold,
		HysteresisMargin: cfg.Notifications.HysteresisMargin,
		ForgetAfter:      cfg.ForgetUnseenAfter(),
		StaleBackends:    stale,
	})

	c.Events = events.Diff(c.Previous, c.Snapshot)
	for _, ev := range c.Events {
		s.logger.Debug("device event", "kind", ev.Kind.String(), "identity", ev.Identity, "battery", ev.Device.Battery.String())
	}

	c.Notifications = s.policy.Filter(c.Events, cfg.Notifications, now)
	if s.dispatcher != nil && len(c.Notifications) > 0 {
		s.dispatcher.SetRate(cfg.Notifications.MaxPerMinute)
		s.dispatcher.Dispatch(ctx, c.Notifications)
	}

	c.Presentation = s.render(ctx, c.Snapshot, cfg)
	s.publisher.publish(c.Presentation)

	for _, sink := range s.sinks {
		if err := sink.Apply(ctx, c); err != nil {
			s.logger.Warn("sink failed", "sink", sink.Name(), "error", err)
		}
	}
	return c, nil
}

// rerender republishes the current snapshot under the latest config so
// tooltip and icon toggles show without waiting for a poll.
func (s *Scheduler) rerender(ctx context.Context) {
	if s.publisher.Latest() == nil || !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)
	s.publisher.publish(s.render(ctx, s.registry.Current(), s.cfg.Load()))
}

func (s *Scheduler) render(ctx context.Context, snap *device.Snapshot, cfg *config.Config) *render.Presentation {
	tctx, cancel := context.WithTimeout(ctx, themeTimeout)
	detected, err := s.theme.Theme(tctx)
	cancel()
	if err != nil {
		s.logger.Debug("theme detection failed, keeping last theme", "error", err)
		detected = s.lastTheme
	}
	s.lastTheme = detected

	pres := s.renderer.Render(snap, cfg, render.ResolveTheme(cfg.Icon, detected))
	if pres.Fallback != nil {
		s.logger.Debug("icon fallback", "source", pres.Source.String(), "reason", pres.Fallback)
	}
	return pres
}
