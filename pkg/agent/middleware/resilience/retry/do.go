package retry

import (
	"context"
	"time"

	"dungeonmaster/pkg/logx"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper. It blocks only the calling goroutine.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Runner executes calls under a policy.
type Runner struct {
	Policy *Policy
	Sleep  Sleeper
	Logger *logx.Logger
}

// NewRunner creates a runner using the default classifier and a context-aware sleep.
func NewRunner(config Config) *Runner {
	return &Runner{
		Policy: NewPolicy(config, nil),
		Sleep:  SleepContext,
		Logger: logx.NewLogger("retry"),
	}
}

// Do calls fn until it succeeds, returns a fatal error, or attempts run out.
// The final error is returned unchanged. If ctx ends during a backoff sleep,
// the last call error is returned.
func Do[T any](ctx context.Context, r *Runner, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	maxAttempts := r.Policy.Config.MaxAttempts

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !r.Policy.ShouldRetry(err) {
			r.logf(true, "Non-transient error in %s: %v", name, err)
			return zero, err
		}
		if attempt == maxAttempts {
			r.logf(true, "Max retries (%d) exceeded for %s: %v", maxAttempts, name, err)
			return zero, err
		}

		delay := r.Policy.CalculateDelay(attempt)
		r.logf(false, "Retry %d/%d for %s after %v, waiting %s", attempt, maxAttempts, name, err, delay)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func (r *Runner) logf(isError bool, format string, args ...any) {
	if r.Logger == nil {
		return
	}
	if isError {
		r.Logger.Error(format, args...)
		return
	}
	r.Logger.Warn(format, args...)
}
