package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/worldbroker/internal/shared"
)

// withBusyRetry runs op up to maxRetries times with exponential backoff,
// retrying only on SQLite busy/locked errors.
func withBusyRetry(ctx context.Context, baseDelay time.Duration, op func() error) error {
	const maxRetries = 3
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("exceeded %d retries: %w", maxRetries, lastErr)
}
