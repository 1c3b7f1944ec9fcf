package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, +/- fraction of each delay
	MaxSameErrorType int     // After N consecutive same-type errors, treat as permanent
}

// DefaultConfig returns defaults for metadata fetches:
// 3 retries with 200ms initial delay, capped at 2s, doubling each time, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     200 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 3,
	}
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// wait sleeps for the jittered delay and returns the next delay.
// It returns ctx.Err() if the context ends first.
func wait(ctx context.Context, cfg *Config, delay time.Duration) (time.Duration, error) {
	timer := time.NewTimer(applyJitter(delay, cfg.JitterFactor))
	defer timer.Stop()

	select {
	case <-timer.C:
		next := time.Duration(float64(delay) * cfg.Multiplier)
		if next > cfg.MaxDelay {
			next = cfg.MaxDelay
		}
		return next, nil
	case <-ctx.Done():
		return delay, ctx.Err()
	}
}

// Do executes fn with exponential backoff retry logic, retrying every error.
// Returns nil on success, or the last error after all retries are exhausted.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn with backoff and returns its result.
// Useful for constructors like pgxpool.New or a redis ping.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if attempt < cfg.MaxRetries {
			if delay, err = wait(ctx, cfg, delay); err != nil {
				return result, err
			}
		}
	}

	return result, lastErr
}

// RetryableError is implemented by errors that declare their own retryability,
// such as HTTP status errors from the metadata backend.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable determines if an error is transient and worth retrying.
//
// Errors implementing RetryableError anywhere in their chain decide for
// themselves. Context cancellation is never retried. Everything else is
// pattern-matched against known transient network and database failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		// Connection errors
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"too many connections",
		"network is unreachable",
		"unexpected eof",
		// Database server transients
		"deadlock",
		"the database system is starting up",
		"server closed the connection",
		// Upstream overload
		"rate limit",
		"too many requests",
		"service unavailable",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// classifyErrorType extracts a category from err so repeated failures of the
// same kind can be detected.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	var s interface{ StatusCode() int }
	if errors.As(err, &s) {
		return fmt.Sprintf("http_%d", s.StatusCode())
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return "rate_limit"
	}
	return "unknown"
}

// DoIfRetryable runs fn and retries only transient errors. Permanent errors
// (auth failures, 404s, bad SQL) return immediately. After MaxSameErrorType
// consecutive failures of the same type the error is treated as permanent.
func DoIfRetryable[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var zero T
	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	var lastErrorType string

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}

		currentErrorType := classifyErrorType(err)
		if currentErrorType == lastErrorType {
			sameErrorCount++
			if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
				return zero, fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, currentErrorType, err)
			}
		} else {
			sameErrorCount = 1
			lastErrorType = currentErrorType
		}

		if attempt < cfg.MaxRetries {
			if delay, err = wait(ctx, cfg, delay); err != nil {
				return zero, err
			}
		}
	}

	return zero, lastErr
}
