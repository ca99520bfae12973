package device

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Logger is the logging surface the registry needs.
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

// Registry holds the current Snapshot.
//
// Apply is meant to be called from a single goroutine (the scheduler);
// Current may be called from anywhere and never blocks.
type Registry struct {
	current atomic.Pointer[Snapshot]
	repo    Repository
	logger  Logger
}

// NewRegistry returns a registry holding an empty snapshot. repo may be nil
// when nothing should survive a restart.
func NewRegistry(repo Repository) *Registry {
	r := &Registry{repo: repo, logger: noopLogger{}}
	r.current.Store(EmptySnapshot())
	return r
}

func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Current returns the latest snapshot. Never nil.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Apply merges records into the current snapshot, publishes the result and
// returns it together with the snapshot it replaced.
func (r *Registry) Apply(records []Record, opts MergeOptions) (current, previous *Snapshot) {
	previous = r.current.Load()
	current = Merge(previous, records, opts)
	r.current.Store(current)

	r.logger.Debug("registry merged",
		"records", len(records),
		"devices", current.Len(),
		"previous_devices", previous.Len(),
	)
	return current, previous
}

// Restore replaces the current snapshot with the devices saved by the last
// Persist, so identities and hysteresis survive restarts.
func (r *Registry) Restore(ctx context.Context) error {
	if r.repo == nil {
		return ErrNoRepository
	}
	devices, err := r.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("restoring devices: %w", err)
	}

	latest := r.current.Load().TakenAt()
	for _, d := range devices {
		if d.LastSeenAt.After(latest) {
			latest = d.LastSeenAt
		}
	}
	r.current.Store(NewSnapshot(devices, latest))
	r.logger.Info("device registry restored", "count", len(devices))
	return nil
}

// Persist writes snap to the repository, replacing what was stored.
func (r *Registry) Persist(ctx context.Context, snap *Snapshot) error {
	if r.repo == nil {
		return ErrNoRepository
	}
	if err := r.repo.Save(ctx, snap.Devices()); err != nil {
		return fmt.Errorf("persisting devices: %w", err)
	}
	return nil
}
