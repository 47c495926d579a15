package content

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"gocloud.dev/gcerrors"
)

// RetryPolicy implements spec §5's object-store retry contract: exponential
// backoff, jittered, min 1s, max 30s, capped attempts (default 3), retrying
// on connect errors, timeouts, 408, 429 and 5xx. No backoff library appears
// anywhere in the example pack, and the policy is narrow enough that a
// small hand-rolled helper is the appropriately-sized tool; see DESIGN.md.
type RetryPolicy struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy returns the policy spec §5 names.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MinDelay: time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 3}
}

// Do runs fn, retrying on retriable errors up to MaxAttempts times with
// jittered exponential backoff between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := p.MinDelay
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retriable(err) || attempt == attempts-1 {
			return err
		}

		jitter := time.Duration(rand.Int63n(int64(delay)))
		wait := delay + jitter
		if wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}

func retriable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	switch gcerrors.Code(err) {
	case gcerrors.DeadlineExceeded, gcerrors.ResourceExhausted, gcerrors.Internal, gcerrors.Unknown:
		return true
	}
	return false
}
