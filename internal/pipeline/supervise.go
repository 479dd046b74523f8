package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dexwatch/internal/broadcast"
	"dexwatch/internal/watcher"
)

// Policy bounds how a failed task is restarted.
type Policy struct {
	MaxRestarts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// ResetAfter is how long a run must last to count as healthy. A healthy
	// run resets the restart budget and the backoff. Zero disables the reset.
	ResetAfter time.Duration
}

// DefaultPolicy restarts a task up to five times in a row, starting at one
// second. A task that ran for a minute gets a fresh budget.
var DefaultPolicy = Policy{MaxRestarts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second, ResetAfter: time.Minute}

// Permanent marks err as not worth a restart.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) ||
		errors.Is(err, watcher.ErrNoChannel) ||
		errors.Is(err, broadcast.ErrClosed)
}

// Supervise runs fn and restarts it with exponential backoff while it fails.
// A nil return ends supervision. Cancellation of ctx and permanent errors are
// never retried. onRestart, if set, is called before each restart.
func Supervise(ctx context.Context, name string, policy Policy, fn func(context.Context) error, logger *zap.Logger, onRestart func(attempt int, err error)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRestarts < 0 {
		policy.MaxRestarts = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 100 * time.Millisecond
	}

	delay := policy.BaseDelay
	for attempt := 0; ; attempt++ {
		started := time.Now()
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if policy.ResetAfter > 0 && time.Since(started) >= policy.ResetAfter {
			attempt = 0
			delay = policy.BaseDelay
		}
		if isPermanent(err) || attempt >= policy.MaxRestarts {
			return err
		}

		logger.Warn("task failed, restarting",
			zap.String("task", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if onRestart != nil {
			onRestart(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
}
