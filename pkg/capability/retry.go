package capability

import (
	"context"
	"errors"
	"time"
)

// RetryTransient retries fn while it returns an error matching
// KindTransient, using exponential backoff starting at 200ms with factor 2,
// up to 5 attempts total (spec.md §6's RuntimeDriver retry policy). Any
// other error is returned immediately.
func RetryTransient(ctx context.Context, fn func(ctx context.Context) error) error {
	const maxAttempts = 5
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrTransient) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}
