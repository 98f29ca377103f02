package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRateLimitWait is used when a rate-limited response carries no
// usable retry hint.
const DefaultRateLimitWait = 60 * time.Second

// ErrRateLimitExceeded is returned once every allowed attempt of a call was
// rejected as rate limited.
var ErrRateLimitExceeded = errors.New("rate limit retries exhausted")

// ErrorKind classifies a failure reported by the remote service.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "ratelimited"
	KindAuth        ErrorKind = "auth"
	KindNotFound    ErrorKind = "not_found"
	KindTransport   ErrorKind = "transport"
	KindOther       ErrorKind = "other"
)

// RemoteError is the single error shape produced at the remote API
// boundary. Code carries the service's machine-readable error string.
type RemoteError struct {
	Op         string
	Kind       ErrorKind
	Code       string
	RetryAfter time.Duration
	Err        error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Code != "" && e.Code != string(e.Kind) {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a rate-limited RemoteError.
func IsRateLimited(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == KindRateLimited
}

// Sleeper blocks for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// RealSleeper waits on a timer.
var RealSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
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

// RetryingCaller retries a remote operation while it reports rate limiting.
// MaxAttempts counts every invocation, the first one included.
type RetryingCaller struct {
	MaxAttempts    int
	DefaultBackoff time.Duration
	Sleeper        Sleeper
	Logger         *slog.Logger

	// OnAttempt is called before every invocation of an operation.
	OnAttempt func(op string)
}

// NewRetryingCaller returns a caller with the default backoff and a real
// sleeper.
func NewRetryingCaller(maxAttempts int, logger *slog.Logger) *RetryingCaller {
	return &RetryingCaller{
		MaxAttempts:    maxAttempts,
		DefaultBackoff: DefaultRateLimitWait,
		Sleeper:        RealSleeper,
		Logger:         logger,
	}
}

// Call invokes fn, retrying only on rate-limited failures and waiting the
// server-provided interval between attempts.
func Call[T any](ctx context.Context, rc *RetryingCaller, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if rc.OnAttempt != nil {
			rc.OnAttempt(op)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var re *RemoteError
		if !errors.As(err, &re) || re.Kind != KindRateLimited {
			return zero, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := re.RetryAfter
		if wait <= 0 {
			wait = rc.backoff()
		}
		rc.logger().Warn("rate limited, waiting before retry",
			"op", op, "attempt", attempt, "max_attempts", attempts, "wait", wait)

		if err := rc.sleeper().Sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("%s: waiting for rate limit: %w", op, err)
		}
	}

	return zero, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRateLimitExceeded, attempts, lastErr)
}

// Do is Call for operations without a result.
func (rc *RetryingCaller) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := Call(ctx, rc, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (rc *RetryingCaller) backoff() time.Duration {
	if rc.DefaultBackoff > 0 {
		return rc.DefaultBackoff
	}
	return DefaultRateLimitWait
}

func (rc *RetryingCaller) sleeper() Sleeper {
	if rc.Sleeper != nil {
		return rc.Sleeper
	}
	return RealSleeper
}

func (rc *RetryingCaller) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.New(slog.DiscardHandler)
}
