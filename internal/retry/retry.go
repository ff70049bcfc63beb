package retry

import (
	"context"
	"time"
)

// Policy is the one bounded-retry shape used across the tool: a fixed
// attempt ceiling with a fixed pause between attempts. Operation kinds
// (apply, verify, service restart) are configured as separate Policy
// values; nothing retries outside a Policy.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Do runs fn up to MaxAttempts times with Backoff between failures.
// It returns nil on the first success, the last error once attempts are
// exhausted, and the context error if ctx ends while waiting. MaxAttempts
// below 1 means a single attempt.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 && p.Backoff > 0 {
			t := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if last = fn(); last == nil {
			return nil
		}
	}
	return last
}
