// Package fetch obtains raw page markup from a site that actively
// resists automated access. Two interchangeable strategies exist: a
// disguised HTTP client and a real browser engine.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// Fetcher returns the markup behind a URL. Implementations own whatever
// underlying session they need and release it in Close.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Close() error
}

// StatusError reports a non-2xx response after retries were exhausted.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// RetryPolicy bounds how often a single logical fetch is attempted.
// Every failure class is retried; the site fails in too many creative
// ways to whitelist transient ones.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Do runs fn until it succeeds or attempts run out, backing off between
// tries. ctx bounds the loop: cancellation aborts before the next
// attempt or mid-backoff.
func (p RetryPolicy) Do(ctx context.Context, log *slog.Logger, url string, fn func() (string, error)) (string, error) {
	if log == nil {
		log = slog.Default()
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		body, err := fn()
		if err == nil {
			return body, nil
		}
		lastErr = err

		log.Warn("fetch attempt failed",
			"attempt", attempt+1,
			"max_attempts", attempts,
			"url", url,
			"err", err,
		)

		if attempt == attempts-1 {
			break
		}
		if err := sleepCtx(ctx, backoff(p.BaseDelay, p.MaxDelay, attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 4 * time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}

	d := base << attempt
	if d > max {
		d = max
	}

	j := 0.5 + rand.Float64()
	return time.Duration(float64(d) * j)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// SleepRange blocks for a random duration in [min, max), or until ctx
// is done. Callers use it to emulate human browsing cadence.
func SleepRange(ctx context.Context, min, max time.Duration) error {
	return sleepCtx(ctx, randBetween(min, max))
}
