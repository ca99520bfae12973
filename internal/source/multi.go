package source

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/bluegauge/internal/device"
)

// Multi polls several adapters concurrently and concatenates their records
// in adapter order.
type Multi struct {
	adapters []Adapter
}

func NewMulti(adapters ...Adapter) *Multi {
	return &Multi{adapters: adapters}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.adapters))
	for i, a := range m.adapters {
		names[i] = a.Name()
	}
	return strings.Join(names, "+")
}

func (m *Multi) Backends() device.BackendSet {
	var s device.BackendSet
	for _, a := range m.adapters {
		s = s.Union(BackendsOf(a))
	}
	return s
}

// Poll returns every healthy adapter's records. When some adapters fail the
// error is a *PartialError naming their backends; when all fail it is a
// *PollError. An adapter still running when ctx ends counts as failed.
func (m *Multi) Poll(ctx context.Context) ([]DeviceRecord, error) {
	return m.pollWithTimeout(ctx, 0)
}

// pollWithTimeout bounds each adapter separately, so one stuck backend
// fails on its own while the others' records are kept.
func (m *Multi) pollWithTimeout(ctx context.Context, timeout time.Duration) ([]DeviceRecord, error) {
	results := make([][]DeviceRecord, len(m.adapters))
	errs := make([]error, len(m.adapters))

	var g errgroup.Group
	for i, a := range m.adapters {
		g.Go(func() error {
			results[i], errs[i] = PollWithTimeout(ctx, a, timeout)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors; failures are in errs

	var (
		records []DeviceRecord
		failed  device.BackendSet
		failure []error
		healthy int
	)
	for i, a := range m.adapters {
		if errs[i] != nil {
			var partial *PartialError
			if errors.As(errs[i], &partial) {
				failed = failed.Union(partial.Failed)
				records = append(records, results[i]...)
				healthy++
			} else {
				failed = failed.Union(BackendsOf(a))
			}
			var pollErr *PollError
			if errors.As(errs[i], &pollErr) {
				failure = append(failure, errs[i])
			} else {
				failure = append(failure, &PollError{Source: a.Name(), Err: errs[i]})
			}
			continue
		}
		records = append(records, results[i]...)
		healthy++
	}

	switch {
	case len(failure) == 0:
		return records, nil
	case healthy == 0:
		return nil, &PollError{Source: m.Name(), Err: errors.Join(failure...)}
	default:
		return records, &PartialError{Failed: failed, Errs: failure}
	}
}
