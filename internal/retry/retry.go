// Package retry provides the bounded exponential-backoff-with-jitter helper
// used by every hypervisor adapter for transient backend failures (§4.E:
// "uniform failure semantics... bounded exponential backoff (base 100ms,
// cap 10s, jitter) up to a per-operation deadline; authoritative failure
// beyond deadline surfaces as BackendUnavailable"). Grounded on the
// retry-with-backoff idiom in lib/images/docker.go's pull-with-retry loop
// and lib/builds/registry_token.go's token-refresh retry, generalized into
// a single reusable helper instead of one hand-rolled loop per call site.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	// BaseDelay is the first retry's backoff.
	BaseDelay = 100 * time.Millisecond
	// CapDelay bounds how large a single backoff can grow to.
	CapDelay = 10 * time.Second
)

// ErrUnavailable is wrapped by callers (as BackendUnavailable, per §7) when
// Do exhausts its deadline without the operation succeeding.
var ErrUnavailable = errors.New("retry: backend unavailable")

// Classifier reports whether an error is worth retrying. Non-retryable
// errors abort the loop immediately and are returned unwrapped.
type Classifier func(error) bool

// Do runs fn, retrying on errors that classify as transient with bounded
// exponential backoff and jitter, until fn succeeds, ctx is done, or
// deadline elapses since the first attempt. A zero deadline means "retry
// until ctx is canceled."
func Do(ctx context.Context, deadline time.Duration, retryable Classifier, fn func(ctx context.Context) error) error {
	start := time.Now()
	delay := BaseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if deadline > 0 && time.Since(start) >= deadline {
			return errors.Join(ErrUnavailable, err)
		}

		wait := jitter(delay)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ErrUnavailable, ctx.Err(), err)
		case <-timer.C:
		}

		delay *= 2
		if delay > CapDelay {
			delay = CapDelay
		}
	}
}

// jitter returns a random duration in [d/2, d], jitter within the upper
// half of the target backoff rather than added on top of it.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

// Always retries every error. Use when the caller has already filtered
// to only the error classes it considers transient.
func Always(error) bool { return true }
