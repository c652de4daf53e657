// Package retry provides exponential-backoff retries for transient failures
// of external calls (embedding service, LLM endpoint, vector store).
//
// Usage:
//
//	err := retry.Do(ctx, retry.Policy{Attempts: 3, Backoff: 500 * time.Millisecond}, func() error {
//	    return client.Call(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy controls how Do re-invokes the operation.
type Policy struct {
	// Attempts is the total number of invocations, including the first.
	// Values below 1 are treated as 1.
	Attempts int
	// Backoff is the wait before the second attempt; each subsequent wait
	// doubles until it reaches MaxBackoff.
	Backoff time.Duration
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
	// Retryable classifies errors. A nil predicate retries every error.
	Retryable func(error) bool
}

// Default is tuned for short-lived HTTP calls to hosted APIs.
var Default = Policy{
	Attempts:   3,
	Backoff:    500 * time.Millisecond,
	MaxBackoff: 8 * time.Second,
}

// Do invokes op until it succeeds, the policy is exhausted, op returns a
// non-retryable error, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, op func() error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = Default.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = Default.MaxBackoff
	}

	wait := p.Backoff
	var last error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(last, err)
		}

		last = op()
		if last == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(last) {
			return last
		}
		if attempt >= p.Attempts {
			return last
		}

		slog.Debug("retry: attempt failed",
			"attempt", attempt, "attempts", p.Attempts, "wait", wait, "err", last)

		select {
		case <-ctx.Done():
			return errors.Join(last, ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
	}
}
