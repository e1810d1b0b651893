// Package retry is the one bounded-retry helper used for login, session
// creation, push reconnects and outbox replay. A Policy names how many
// attempts are allowed, how long to wait before each retry and which
// errors are worth retrying; the waiting itself is done by go-retry.
package retry

import (
	"context"
	"sync"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// DelayFunc returns the wait before retry number n (1-based).
type DelayFunc func(n int) time.Duration

// Policy describes a bounded retry loop.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	// Values below 1 are treated as 1.
	MaxAttempts int
	Delay       DelayFunc
	// Retryable decides whether an error is worth another attempt.
	// nil means every error is retryable.
	Retryable func(error) bool
	// OnRetry, when set, is called before each wait.
	OnRetry func(n int, delay time.Duration, err error)
}

// Constant waits d before every retry.
func Constant(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Linear waits base*n before retry n.
func Linear(base time.Duration) DelayFunc {
	return func(n int) time.Duration { return base * time.Duration(n) }
}

// Exponential waits base*2^(n-1) before retry n.
func Exponential(base time.Duration) DelayFunc {
	return func(n int) time.Duration {
		if n < 1 {
			n = 1
		}
		return base << (n - 1)
	}
}

// Delays lists every wait the policy would perform if all attempts failed.
func (p Policy) Delays() []time.Duration {
	b := p.Backoff()
	var out []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			return out
		}
		out = append(out, d)
	}
}

// Backoff is a resettable go-retry backoff bound to a Policy.
type Backoff struct {
	p Policy

	mu      sync.Mutex
	retries int
	last    error
}

// Backoff returns a fresh backoff for p.
func (p Policy) Backoff() *Backoff {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay == nil {
		p.Delay = Constant(0)
	}
	return &Backoff{p: p}
}

// Next implements goretry.Backoff.
func (b *Backoff) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.retries+1 >= b.p.MaxAttempts {
		return 0, true
	}
	b.retries++
	return b.p.Delay(b.retries), false
}

// Reset starts counting retries from zero again.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.retries = 0
	b.mu.Unlock()
}

// Retries reports how many retries have been granted since the last reset.
func (b *Backoff) Retries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retries
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The last error from fn is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	return DoWith(ctx, p.Backoff(), fn)
}

// DoWith is Do with a caller-owned Backoff, so long-lived loops can Reset it.
func DoWith(ctx context.Context, b *Backoff, fn func(ctx context.Context) error) error {
	p := b.p
	return goretry.Do(ctx, &notifying{b: b}, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		b.mu.Lock()
		b.last = err
		b.mu.Unlock()
		return goretry.RetryableError(err)
	})
}

type notifying struct {
	b *Backoff
}

func (n *notifying) Next() (time.Duration, bool) {
	d, stop := n.b.Next()
	if !stop && n.b.p.OnRetry != nil {
		n.b.mu.Lock()
		retries, last := n.b.retries, n.b.last
		n.b.mu.Unlock()
		n.b.p.OnRetry(retries, d, last)
	}
	return d, stop
}
