// Package retry provides the shared retry policy for upstream fetches.
// Call sites parameterize the policy instead of hand-rolling backoff loops.
package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"offerboard_backend/platform/logger"
)

// Policy describes how an operation is retried: how many attempts beyond
// the first, the starting delay (doubled on each attempt), and which
// errors are worth retrying at all.
type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	Retryable  func(error) bool
	Log        *logger.Logger
}

// Default is the policy used by the analytics and forecast fetchers:
// two retries with exponential backoff starting at 1.5s, transient
// errors only.
func Default(log *logger.Logger) Policy {
	return Policy{
		MaxRetries: 2,
		BaseDelay:  1500 * time.Millisecond,
		Retryable:  IsTransient,
		Log:        log,
	}
}

// Do runs fn, retrying per the policy. Non-retryable errors abort
// immediately; retryable errors are returned once attempts are exhausted.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(p.BaseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && p.Retryable(err) {
			attempt++
			if p.Log != nil {
				p.Log.FetchRetry(op, attempt, p.BaseDelay<<uint(attempt-1), err)
			}
			return retry.RetryableError(err)
		}
		return err
	})
}

// StatusError reports an upstream HTTP status that was not 2xx.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return http.StatusText(e.Status)
}

// IsTransient reports whether an error is worth retrying: upstream 5xx
// gateway-class statuses, timeouts, and network failures.
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
