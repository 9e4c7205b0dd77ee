package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// ReadyOptions controls WaitReady polling.
type ReadyOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitReady polls hc.HealthCheck until it succeeds or the timeout elapses.
func WaitReady(ctx context.Context, hc HealthChecker, opts ReadyOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	attempts := uint(opts.Timeout / opts.Interval)
	if attempts == 0 {
		attempts = 1
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	err := retry.Do(
		func() error {
			return hc.HealthCheck(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(opts.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("backend not ready after %s: %w", opts.Timeout, err)
	}
	return nil
}
