package completion

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jcsn13/ocr-prescription/internal/logger"
)

// WithRetry wraps c so that transient failures are retried up to attempts
// times in total with exponential backoff starting at delay. Blocked
// completions, missing credentials and context cancellation are returned
// immediately.
func WithRetry(c Completer, attempts uint, delay time.Duration) Completer {
	if attempts <= 1 {
		return c
	}

	log := logger.WithComponent("completion-retry")

	return CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		return retry.DoWithData(
			func() (string, error) {
				return c.Complete(ctx, req)
			},
			retry.Context(ctx),
			retry.Attempts(attempts),
			retry.Delay(delay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(retryable),
			retry.OnRetry(func(n uint, err error) {
				log.Warn().
					Err(err).
					Uint("attempt", n+1).
					Uint("max_attempts", attempts).
					Msg("Completion failed, retrying")
			}),
		)
	})
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrBlocked),
		errors.Is(err, ErrMissingAPIKey):
		return false
	}
	return true
}
