// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package probe provides the single polling primitive the system uses
// to wait for anything. Supervisor state transitions and
// application-level readiness both go through WaitReady, so there is
// exactly one retry/timeout policy to reason about.
package probe

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("keeper.probe")

// HealthCheckTimeout is raised when a readiness predicate did not
// succeed within its timeout. The probed process is left in whatever
// state it reached; the caller decides what to do with it.
const HealthCheckTimeout = errors.ConstError("health check timed out")

// notReadyYet is the internal marker for a false predicate result.
const notReadyYet = errors.ConstError("not ready yet")

// WaitReady polls check every poll interval until it returns true or
// timeout elapses. There is no busy-waiting faster than poll and no
// unbounded retry; expiry returns HealthCheckTimeout.
func WaitReady(clk clock.Clock, check func() bool, timeout, poll time.Duration) error {
	if timeout <= 0 || poll <= 0 {
		return errors.Errorf("timeout and poll interval must be positive, got %v/%v", timeout, poll)
	}
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if check() {
				return nil
			}
			return notReadyYet
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Tracef("readiness attempt %d: %v", attempt, err)
		},
		Attempts:    -1,
		Delay:       poll,
		MaxDuration: timeout,
		Clock:       clk,
	})
	if retry.IsDurationExceeded(err) || retry.IsAttemptsExceeded(err) {
		return errors.Annotatef(HealthCheckTimeout, "after %v", timeout)
	}
	return errors.Trace(err)
}
