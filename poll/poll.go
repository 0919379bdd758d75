// Package poll holds the one bounded retry loop used for receipts,
// user operation receipts and the periodic refreshers.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gococo/types"
)

// ErrExhausted is returned when the wait budget ran out without the check succeeding
var ErrExhausted = errors.New("poll attempts exhausted")

// Check reports done=true to stop polling. A returned error stops polling too.
type Check func(ctx context.Context) (done bool, err error)

// Until runs check immediately and then once per interval until it is done,
// fails, the context ends, or maxAttempts checks have run. maxAttempts <= 0
// means no ceiling.
func Until(ctx context.Context, interval time.Duration, maxAttempts int, check Check) error {
	if interval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", types.ErrConfiguration, interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return ErrExhausted
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Within runs check immediately and then once per interval until it is done,
// fails or the context ends. The last check runs once maxWait has elapsed, so
// ErrExhausted never comes back before the whole budget is spent. A
// non-positive interval checks only at the start and at the deadline.
func Within(ctx context.Context, interval, maxWait time.Duration, check Check) error {
	deadline := time.Now().Add(maxWait)
	if interval <= 0 {
		interval = maxWait
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrExhausted
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Every runs fn on every tick until ctx is cancelled. Errors from fn are
// handed to onErr and never stop the loop.
func Every(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error, onErr func(error)) {
	err := Until(ctx, interval, 0, func(ctx context.Context) (bool, error) {
		if err := fn(ctx); err != nil && onErr != nil {
			onErr(err)
		}
		return false, nil
	})
	if err != nil && ctx.Err() == nil && onErr != nil {
		onErr(err)
	}
}
