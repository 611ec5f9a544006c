// Package wait is the single polling evaluator every other wait funnels through.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/storefront-cli/internal/browser/driver"
)

// ErrTimeoutExceeded is the sentinel matched by every *TimeoutError.
var ErrTimeoutExceeded = errors.New("timeout exceeded")

// TimeoutError reports a condition that never became true within its budget.
type TimeoutError struct {
	Condition string
	Timeout   time.Duration
	Elapsed   time.Duration
	Polls     int
	// Last is the most recent transient error seen while polling, if any.
	Last error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s (timeout %s, %d polls)",
		e.Elapsed.Round(time.Millisecond), e.Condition, e.Timeout, e.Polls)
	if e.Last != nil {
		msg += ": last error: " + e.Last.Error()
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeoutExceeded }

// Predicate reports whether a condition holds. Stale reference errors mean
// "not yet"; any other error stops the wait.
type Predicate func(ctx context.Context) (bool, error)

// Until polls pred every poll interval until it holds or timeout elapses.
// The first evaluation happens immediately. Each evaluation runs on a context
// whose deadline is the wait deadline plus one poll of grace, so a hung
// predicate cannot outlive the wait by more than that.
func Until(ctx context.Context, condition string, timeout, poll time.Duration, pred Predicate) (int, error) {
	if poll <= 0 {
		return 0, fmt.Errorf("wait: poll interval must be positive, got %s", poll)
	}
	start := time.Now()
	deadline := start.Add(timeout)
	evalCtx, cancel := context.WithDeadline(ctx, deadline.Add(poll))
	defer cancel()

	var (
		polls int
		last  error
	)
	for {
		polls++
		ok, err := pred(evalCtx)
		switch {
		case err == nil && ok:
			return polls, nil
		case err == nil:
		case ctx.Err() != nil:
			return polls, ctx.Err()
		case errors.Is(err, driver.ErrStaleReference), evalCtx.Err() != nil:
			last = err
		default:
			return polls, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return polls, &TimeoutError{
				Condition: condition,
				Timeout:   timeout,
				Elapsed:   time.Since(start),
				Polls:     polls,
				Last:      last,
			}
		}
		if err := Settle(ctx, min(poll, remaining)); err != nil {
			return polls, err
		}
	}
}

// Settle blocks for d or until ctx is done. It is the one place a fixed delay
// is allowed: callers use it for CSS transitions and server side effects that
// expose no completion signal.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
