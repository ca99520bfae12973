package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/bluegauge/internal/device"
)

// DeviceRecord is one observation of one device by one backend.
type DeviceRecord = device.Record

// Adapter polls one OS backend.
type Adapter interface {
	Name() string
	Poll(ctx context.Context) ([]DeviceRecord, error)
}

// BackendReporter is implemented by adapters that know which backends they
// cover. Adapters without it are assumed to cover every backend.
type BackendReporter interface {
	Backends() device.BackendSet
}

// BackendsOf returns the backends a is responsible for.
func BackendsOf(a Adapter) device.BackendSet {
	if r, ok := a.(BackendReporter); ok {
		return r.Backends()
	}
	return device.AllBackends
}

// timeoutPoller is implemented by adapters that apply a poll deadline to
// their parts themselves, keeping what finished in time.
type timeoutPoller interface {
	pollWithTimeout(ctx context.Context, timeout time.Duration) ([]DeviceRecord, error)
}

type pollResult struct {
	records []DeviceRecord
	err     error
}

// PollWithTimeout polls a with a deadline. A deadline overrun is reported as
// a PollError wrapping ErrPollTimeout even when the adapter ignores its
// context; whatever it returns afterwards is discarded. A cancelled parent
// context is returned as is so shutdown is not mistaken for a failure.
func PollWithTimeout(ctx context.Context, a Adapter, timeout time.Duration) ([]DeviceRecord, error) {
	if tp, ok := a.(timeoutPoller); ok {
		records, err := tp.pollWithTimeout(ctx, timeout)
		return classify(ctx, a, timeout, records, err)
	}

	pctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan pollResult, 1)
	go func() {
		records, err := a.Poll(pctx)
		done <- pollResult{records: records, err: err}
	}()

	select {
	case res := <-done:
		return classify(ctx, a, timeout, res.records, res.err)
	case <-pctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, timeoutError(a, timeout)
	}
}

func classify(ctx context.Context, a Adapter, timeout time.Duration, records []DeviceRecord, err error) ([]DeviceRecord, error) {
	if err == nil {
		return records, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var partial *PartialError
	if errors.As(err, &partial) {
		return records, err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, timeoutError(a, timeout)
	}
	var pollErr *PollError
	if errors.As(err, &pollErr) {
		return nil, err
	}
	return nil, &PollError{Source: a.Name(), Err: err}
}

func timeoutError(a Adapter, timeout time.Duration) error {
	return &PollError{Source: a.Name(), Err: fmt.Errorf("%w after %v", ErrPollTimeout, timeout)}
}
