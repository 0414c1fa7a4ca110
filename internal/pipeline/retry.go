package pipeline

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/dgallion1/lossrun/internal/extract"
)

// MaxRetryDelay caps the backoff between attempts on one chunk.
const MaxRetryDelay = 30 * time.Second

// DefaultRetryDelay is the base backoff when none is configured.
const DefaultRetryDelay = time.Second

// retryOptions is the policy for one chunk call. attempts counts the first
// call, so 1 disables retrying. Only failures the service marks as transient
// are retried.
func retryOptions(ctx context.Context, attempts int, delay time.Duration) []retry.Option {
	if attempts < 1 {
		attempts = 1
	}
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(delay),
		retry.MaxDelay(MaxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(extract.IsRetryable),
		retry.LastErrorOnly(true),
	}
}
