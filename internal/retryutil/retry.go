package retryutil

import (
	"context"
	"log/slog"
	"time"
)

const defaultRetryDelay = 2 * time.Second

type Policy struct {
	// Attempts includes the first call; <=0 means 1.
	Attempts int
	Delay    time.Duration
	// Retryable decides whether err deserves another attempt. nil retries every error.
	Retryable func(err error) bool
}

// Do calls fn until it succeeds, the policy is exhausted or ctx is done.
// The last error is returned.
func Do(ctx context.Context, logger *slog.Logger, name string, p Policy, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Delay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			if attempt > 1 && logger != nil {
				logger.Info(name+"_retry_ok", "attempt", attempt)
			}
			return nil
		}
		if attempt == attempts || (p.Retryable != nil && !p.Retryable(err)) {
			break
		}
		if logger != nil {
			logger.Warn(name+"_retry_scheduled", "attempt", attempt, "delay", delay.String(), "error", err.Error())
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	if logger != nil && attempts > 1 {
		logger.Warn(name+"_retry_failed", "error", err.Error())
	}
	return err
}
