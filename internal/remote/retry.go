package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// RetryPolicy decides how often and how long to wait before resending a
// request that failed with a transient error (5xx, 429 or a transport error).
type RetryPolicy struct {
	MaxRetries        uint64        // attempts after the first one
	BaseDelay         time.Duration // first backoff delay, doubled per attempt
	MaxDelay          time.Duration // backoff cap
	MinRateLimitDelay time.Duration // floor for waits derived from X-RateLimit-Reset
	MaxRateLimitDelay time.Duration // cap for those waits; New fills in 30s when unset
}

const defaultMaxRateLimitDelay = 30 * time.Second

// DefaultRetryPolicy retries 4 times: 500ms, 1s, 2s, 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        4,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		MinRateLimitDelay: time.Second,
		MaxRateLimitDelay: defaultMaxRateLimitDelay,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.MinRateLimitDelay < 0 {
		p.MinRateLimitDelay = 0
	}
	if p.MaxRateLimitDelay <= 0 {
		p.MaxRateLimitDelay = defaultMaxRateLimitDelay
	}
	if p.MaxRateLimitDelay < p.MinRateLimitDelay {
		p.MaxRateLimitDelay = p.MinRateLimitDelay
	}
	return p
}

// now is replaced in tests.
var now = time.Now

// retryableStatus reports whether the backend asked us to come back later.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// statusError signals a retryable response to go-retry. It never escapes Send.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("retryable status %d", e.code) }

// permanentError wraps failures that happen before anything is sent, like a
// malformed URL, which resending cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Send calls fn until it returns a response that is not retryable or the
// policy gives up. When the policy gives up on a retryable status, the last
// response is returned as-is for the caller to classify. When it gives up on a
// transport error, that error is returned.
//
// Requests whose body cannot be replayed get exactly one attempt.
func (p RetryPolicy) Send(ctx context.Context, log logrus.FieldLogger, replayable bool, fn func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	var (
		last    *http.Response
		hint    time.Duration
		attempt int
	)

	maxRetries := p.MaxRetries
	if !replayable {
		maxRetries = 0
	}
	b := retry.NewExponential(p.BaseDelay)
	b = retry.WithCappedDuration(p.MaxDelay, b)
	b = retry.WithMaxRetries(maxRetries, b)
	b = withRateLimitHint(&hint, log, &attempt, b)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if last != nil {
			discard(last)
			last = nil
		}
		hint = 0
		attempt++

		res, err := fn(ctx)
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) || ctx.Err() != nil {
				return err
			}
			log.WithError(err).WithField("attempt", attempt).Debug("request failed")
			return retry.RetryableError(err)
		}

		last = res
		if !retryableStatus(res.StatusCode) {
			return nil
		}
		if res.StatusCode == http.StatusTooManyRequests {
			hint = p.rateLimitDelay(res.Header.Get(HeaderRateLimit))
		}
		log.WithFields(logrus.Fields{"attempt": attempt, "status": res.StatusCode}).Debug("retryable response")
		return retry.RetryableError(&statusError{code: res.StatusCode})
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && last != nil {
			return last, nil
		}
		if last != nil {
			discard(last)
		}
		return nil, err
	}
	return last, nil
}

// rateLimitDelay turns an X-RateLimit-Reset value (unix seconds) into a wait.
// A missing or unparsable value yields 0, meaning "use the backoff". The wait
// is clamped to [MinRateLimitDelay, MaxRateLimitDelay]; a zero cap disables
// the clamp.
func (p RetryPolicy) rateLimitDelay(reset string) time.Duration {
	if reset == "" {
		return 0
	}
	sec, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return 0
	}
	d := max(time.Unix(sec, 0).Sub(now()), p.MinRateLimitDelay)
	if p.MaxRateLimitDelay > 0 {
		d = min(d, p.MaxRateLimitDelay)
	}
	return d
}

// withRateLimitHint replaces the next backoff delay with *hint when it is set.
// The wrapped backoff still decides when to stop.
func withRateLimitHint(hint *time.Duration, log logrus.FieldLogger, attempt *int, next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if stop {
			log.WithField("attempts", *attempt).Debug("giving up")
			return 0, true
		}
		if *hint > 0 {
			d = *hint
		}
		log.WithFields(logrus.Fields{"attempt": *attempt, "delay": d}).Debug("retrying")
		return d, false
	})
}

// discard drains and closes a response body so the connection can be reused.
func discard(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	_ = res.Body.Close()
}
