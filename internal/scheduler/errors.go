package scheduler

import "errors"

// ErrCycleInProgress is returned by RunOnce when another cycle is running.
var ErrCycleInProgress = errors.New("scheduler: cycle already in progress")
