package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxJitter adds a random delay in [0, MaxJitter) on top of the backoff.
	MaxJitter time.Duration
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		MaxJitter:    25 * time.Millisecond,
	}
}

// Options tunes a single Do call.
type Options struct {
	// RetryIf decides whether an error is worth another attempt. Nil retries every error.
	RetryIf func(err error) bool
	// OnRetry is called before each sleep with the zero-based attempt number.
	OnRetry func(attempt uint, err error)
}

// Do executes a function with capped exponential backoff plus jitter.
// The last error is returned when attempts run out or RetryIf rejects an error.
func Do(ctx context.Context, cfg Config, opts Options, fn func() error) error {
	delayType := retry.BackOffDelay
	if cfg.MaxJitter > 0 {
		delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
	}

	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1 // retry-go treats zero as unlimited
	}

	retryOpts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.MaxJitter(cfg.MaxJitter),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
	}
	if opts.RetryIf != nil {
		retryOpts = append(retryOpts, retry.RetryIf(opts.RetryIf))
	}
	if opts.OnRetry != nil {
		retryOpts = append(retryOpts, retry.OnRetry(opts.OnRetry))
	}

	return retry.Do(fn, retryOpts...)
}

// DoWithResult executes a function with backoff retry and returns its result
func DoWithResult[T any](ctx context.Context, cfg Config, opts Options, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, opts, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
