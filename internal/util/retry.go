package util

import (
	"context"
	"math/rand/v2"
	"time"
)

// maxRetryDelay caps the backoff growth; gateway restarts can take a while
// and there is no point probing faster than it can come back.
const maxRetryDelay = 30 * time.Second

// Retry calls fn up to maxAttempts times, sleeping between attempts with
// exponential backoff starting at baseDelay. Each sleep is jittered to half
// to one-and-a-half times the current delay so concurrent sessions do not
// retry in lockstep against the same gateway. Returns nil on the first
// successful call, the last error if all attempts fail, or the context error
// if cancelled between attempts.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= maxAttempts {
			return err
		}

		sleep := delay
		if delay > 0 {
			sleep = delay/2 + time.Duration(rand.Int64N(int64(delay)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		if delay < maxRetryDelay {
			delay *= 2
		}
	}
}
