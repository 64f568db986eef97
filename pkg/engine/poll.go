package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPollExhausted is returned when a poll spends its whole attempt budget.
var ErrPollExhausted = errors.New("attempt budget exhausted")

// Delay returns the wait after the given 1-based attempt.
type Delay func(attempt int) time.Duration

// Constant waits d between attempts.
func Constant(d time.Duration) Delay {
	return func(int) time.Duration { return d }
}

// Linear waits base*attempt between attempts.
func Linear(base time.Duration) Delay {
	return func(attempt int) time.Duration { return base * time.Duration(attempt) }
}

// PollConfig bounds a polling or retry loop.
type PollConfig struct {
	MaxAttempts int
	Delay       Delay

	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Poll calls fn until it reports done, returns an error, or the budget is spent.
// It returns the number of attempts made. On exhaustion the error wraps
// ErrPollExhausted and, if fn recorded one through its return, the last cause.
func Poll(ctx context.Context, cfg PollConfig, fn func(ctx context.Context, attempt int) (done bool, err error)) (int, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Delay == nil {
		cfg.Delay = Constant(0)
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		done, err := fn(ctx, attempt)
		if err != nil {
			return attempt, err
		}
		if done {
			return attempt, nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if err := sleep(ctx, cfg.Delay(attempt)); err != nil {
			return attempt, err
		}
	}
	return cfg.MaxAttempts, fmt.Errorf("%w after %d attempts", ErrPollExhausted, cfg.MaxAttempts)
}

// Retry calls fn until it succeeds or fails with an error retryable rejects.
// Exhaustion returns the last error wrapped with ErrPollExhausted.
func Retry(ctx context.Context, cfg PollConfig, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) (int, error) {
	var last error
	attempts, err := Poll(ctx, cfg, func(ctx context.Context, attempt int) (bool, error) {
		last = fn(ctx, attempt)
		if last == nil {
			return true, nil
		}
		if retryable(last) {
			return false, nil
		}
		return false, last
	})
	if errors.Is(err, ErrPollExhausted) && last != nil {
		return attempts, fmt.Errorf("%w: %w", err, last)
	}
	return attempts, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoSleep is a PollConfig.Sleep that never waits, for tests and dry runs.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
