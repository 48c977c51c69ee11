// Package retry implements exponential backoff with jitter for transient
// database and LLM provider failures.
package retry

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxAttempts  int           // total attempts including the first
	InitialWait  time.Duration // wait before the second attempt
	MaxWait      time.Duration // cap on the backoff wait
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0; +/- fraction applied to each wait
}

// LLMConfig returns the gateway policy: 3 attempts, 1s initial wait,
// doubling, capped at 10s.
func LLMConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialWait:  1 * time.Second,
		MaxWait:      10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// DBConfig returns the policy for database operations: quicker waits,
// same attempt budget.
func DBConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialWait:  100 * time.Millisecond,
		MaxWait:      5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c *Config) wait(attempt int) time.Duration {
	d := float64(c.InitialWait)
	for i := 1; i < attempt; i++ {
		d *= c.Multiplier
	}
	if d > float64(c.MaxWait) {
		d = float64(c.MaxWait)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// Do executes fn until it succeeds, the attempt budget is exhausted, or the
// context is cancelled. Non-retryable errors fail immediately.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = DBConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		select {
		case <-time.After(cfg.wait(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		r, err := fn()
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

// Retryable is implemented by errors that declare their own retryability,
// such as the LLM gateway's provider errors.
type Retryable interface {
	error
	IsRetryable() bool
}

// retryablePatterns matches transient failures from drivers and providers
// that do not implement Retryable.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"i/o timeout",
	"rate limit",
	"too many requests",
	"service unavailable",
	"429",
	"500",
	"502",
	"503",
	"504",
}

// IsRetryable reports whether an error is transient and worth retrying.
// Errors implementing Retryable decide for themselves; everything else is
// pattern-matched against known transient failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if r, ok := err.(Retryable); ok {
		return r.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
