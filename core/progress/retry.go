package progress

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
)

const maxRetryDelay = 2 * time.Second

// retry calls fn until it succeeds, fails with a non-transient error, or maxRetries
// retries have been made. The delay doubles after every attempt.
func retry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !core.IsTransient(err) || attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "retrying after %v", err)
		case <-timer.C:
		}

		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
