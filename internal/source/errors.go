package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/bluegauge/internal/device"
)

var (
	// ErrPollTimeout is returned when a poll exceeds its deadline.
	ErrPollTimeout = errors.New("source: poll timed out")

	// ErrBackendOpen is returned while a breaker is refusing calls.
	ErrBackendOpen = errors.New("source: backend temporarily disabled after repeated failures")
)

// PollError is a poll that produced nothing usable. The registry must not
// be advanced from it.
type PollError struct {
	Source string
	Err    error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s: %v", e.Source, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// PartialError accompanies records when some backends failed. Records from
// the healthy backends are valid; devices seen only by Failed backends
// should keep their previous state.
type PartialError struct {
	Failed device.BackendSet
	Errs   []error
}

func (e *PartialError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("partial poll, %s failed: %s", e.Failed, strings.Join(msgs, "; "))
}

func (e *PartialError) Unwrap() []error { return e.Errs }
