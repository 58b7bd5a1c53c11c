package store

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/kaenova/prompty/internal/metrics"
)

// Conflict retry tuning. Five attempts with 10ms base backoff keeps the worst
// case well under a request timeout.
var (
	ConflictAttempts uint = 5
	ConflictDelay         = 10 * time.Millisecond
	ConflictMaxDelay      = 200 * time.Millisecond
)

// RetryOnConflict runs fn until it succeeds, fails with something other than
// ErrVersionConflict, or the attempts run out. fn must re-read the documents
// it modifies on every call. op labels the retry metric.
func RetryOnConflict(ctx context.Context, op string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.OnRetry(func(uint, error) { metrics.ConflictRetries.WithLabelValues(op).Inc() }),
		retry.Attempts(ConflictAttempts),
		retry.Delay(ConflictDelay),
		retry.MaxDelay(ConflictMaxDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(ConflictDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrVersionConflict) }),
		retry.LastErrorOnly(true),
	)
}
