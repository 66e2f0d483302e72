package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy bounds how a failing fetch is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration // upper bound of the random delay added per retry
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      250 * time.Millisecond,
	}
}

// backoff returns min(MaxDelay, BaseDelay·2^n) without overflowing.
func (p RetryPolicy) backoff(n int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		if d >= p.MaxDelay || d > time.Duration(1<<62) {
			return p.MaxDelay
		}
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Sleeper waits between attempts. Tests inject one that records delays
// instead of sleeping.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// ContextSleeper sleeps on a timer and returns early when ctx is done.
var ContextSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

// JitterFunc returns a random duration in [0, max).
type JitterFunc func(max time.Duration) time.Duration

// RandomJitter draws uniformly from [0, max).
func RandomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// Retrier runs an operation under a RetryPolicy.
type Retrier struct {
	Policy  RetryPolicy
	Sleeper Sleeper
	Jitter  JitterFunc

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// NewRetrier returns a Retrier using real sleeps and random jitter.
func NewRetrier(policy RetryPolicy) *Retrier {
	return &Retrier{Policy: policy, Sleeper: ContextSleeper, Jitter: RandomJitter}
}

type retryState struct {
	attempt int
	backoff time.Duration // last scheduled backoff, before any hint
	delay   time.Duration // last slept delay
	lastErr error
}

// Do calls fn until it succeeds, returns a permanent error, or the attempt
// budget is spent. It returns the number of attempts made. Backoff delays
// never decrease and never exceed MaxDelay; a Retry-After hint can only
// lengthen a single delay.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := r.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleeper := r.Sleeper
	if sleeper == nil {
		sleeper = ContextSleeper
	}

	var st retryState
	for {
		if err := ctx.Err(); err != nil {
			return st.attempt, st.aborted(err)
		}

		st.attempt++
		err := fn(ctx)
		if err == nil {
			return st.attempt, nil
		}
		st.lastErr = err

		if KindOf(err) == KindPermanent || st.attempt >= maxAttempts {
			return st.attempt, err
		}

		st.delay = r.nextDelay(&st, err)
		if r.OnRetry != nil {
			r.OnRetry(st.attempt, st.delay, err)
		}
		if err := sleeper.Sleep(ctx, st.delay); err != nil {
			return st.attempt, st.aborted(err)
		}
	}
}

// nextDelay advances the backoff schedule and returns how long to sleep.
// The server's Retry-After wins over a shorter backoff even past MaxDelay,
// since retrying earlier only spends attempts against the rate limit.
func (r *Retrier) nextDelay(st *retryState, err error) time.Duration {
	d := r.Policy.backoff(st.attempt - 1)
	if r.Jitter != nil && r.Policy.Jitter > 0 {
		d += r.Jitter(r.Policy.Jitter)
	}
	if d > r.Policy.MaxDelay {
		d = r.Policy.MaxDelay
	}
	if d < st.backoff {
		d = st.backoff
	}
	st.backoff = d

	var fe *FetchError
	if errors.As(err, &fe) && fe.RetryAfter > d {
		return fe.RetryAfter
	}
	return d
}

// aborted reports a retry loop stopped by cancellation. The kind of the
// last attempt is kept so callers still see the original classification.
func (st retryState) aborted(cause error) error {
	if st.lastErr == nil {
		return Transient("", cause)
	}
	return &FetchError{
		Kind: KindOf(st.lastErr),
		Err:  fmt.Errorf("retry aborted: %w", errors.Join(cause, st.lastErr)),
	}
}

// ParseRetryAfter reads a Retry-After header given either as seconds or
// as an HTTP date.
func ParseRetryAfter(h string, now time.Time) (time.Duration, bool) {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(h); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
