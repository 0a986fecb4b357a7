// Package retry evaluates conditions repeatedly with a fixed pause until they
// hold or a deadline passes.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aludratest/aludra/internal/fault"
)

var (
	errUnsatisfied = errors.New("condition not satisfied")
	errExpired     = errors.New("condition not satisfied before the deadline")
)

// Policy is the timeout and pause pair shared by every wait.
type Policy struct {
	Timeout time.Duration
	Pause   time.Duration
}

// WithTimeout returns p with its timeout replaced by override when override is positive.
func (p Policy) WithTimeout(override time.Duration) Policy {
	if override > 0 {
		p.Timeout = override
	}
	return p
}

// UntilTrueOrTimeout evaluates predicate until it returns true or timeout has
// elapsed. The predicate runs at least once. The pause must be positive; it is
// a configuration precondition and not checked here. Cancellation of ctx during
// a pause is reported as a technical fault.
func UntilTrueOrTimeout(ctx context.Context, timeout, pause time.Duration, predicate func() bool) (bool, error) {
	return Poll(ctx, Policy{Timeout: timeout, Pause: pause}, func(context.Context) (bool, error) {
		return predicate(), nil
	})
}

// Poll is UntilTrueOrTimeout for conditions that can fail. A condition error
// stops polling immediately and is returned as is.
func Poll(ctx context.Context, p Policy, condition func(ctx context.Context) (bool, error)) (bool, error) {
	deadline := time.Now().Add(p.Timeout)

	var (
		satisfied bool
		condErr   error
	)
	operation := func() error {
		ok, err := condition(ctx)
		switch {
		case err != nil:
			condErr = err
			return backoff.Permanent(err)
		case ok:
			satisfied = true
			return nil
		case !time.Now().Before(deadline):
			return backoff.Permanent(errExpired)
		}
		return errUnsatisfied
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.NewConstantBackOff(p.Pause), ctx))
	switch {
	case satisfied:
		return true, nil
	case condErr != nil:
		return false, condErr
	case errors.Is(err, errExpired):
		return false, nil
	}
	// The backoff only gives up early when ctx ended during a pause.
	cause := ctx.Err()
	if cause == nil {
		cause = err
	}
	return false, fault.NewTechnical(cause, fault.MsgInterrupted)
}
