package reconcile

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newFetchBackOff builds the snapshot fetch retry policy: delays
// double per attempt, so attempt n waits about base*2^n.
func newFetchBackOff(base time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0
	return bo
}

// retryNotify runs op under exponential backoff: at most maxRetries
// retries after the first attempt, starting at base delay, honoring
// ctx cancellation between attempts. Each retry is reported to
// onRetry with the error and the upcoming wait.
func retryNotify(ctx context.Context, maxRetries uint64, base time.Duration, op backoff.Operation, onRetry backoff.Notify) error {
	return backoff.RetryNotify(
		op,
		backoff.WithContext(backoff.WithMaxRetries(newFetchBackOff(base), maxRetries), ctx),
		onRetry,
	)
}
