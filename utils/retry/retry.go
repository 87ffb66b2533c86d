package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/FrenchMajesty/steady-fetch/utils/logger"
	"gopkg.in/yaml.v3"
)

// Config controls the backoff schedule of a retry session
type Config struct {
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// DefaultConfig returns the default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelay:       1 * time.Second,
		MaxDelay:        30 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// UnmarshalYAML decodes delays from duration strings ("500ms", "2s"). Fields
// absent from the document keep their current values, so a partial config can
// be layered over the defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxRetries      *int      `yaml:"max_retries"`
		BaseDelay       yaml.Node `yaml:"base_delay"`
		MaxDelay        yaml.Node `yaml:"max_delay"`
		BackoffMultiple *float64  `yaml:"backoff_multiple"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.MaxRetries != nil {
		c.MaxRetries = *raw.MaxRetries
	}
	if raw.BackoffMultiple != nil {
		c.BackoffMultiple = *raw.BackoffMultiple
	}
	if err := decodeDuration(&c.BaseDelay, raw.BaseDelay); err != nil {
		return fmt.Errorf("base_delay: %w", err)
	}
	if err := decodeDuration(&c.MaxDelay, raw.MaxDelay); err != nil {
		return fmt.Errorf("max_delay: %w", err)
	}
	return nil
}

// decodeDuration parses a scalar node as a time.ParseDuration string
func decodeDuration(dst *time.Duration, node yaml.Node) error {
	if node.IsZero() {
		return nil
	}
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}

// ErrorChecker decides whether a failed attempt should be retried. The status
// code is 0 and the body nil when the operation is not an HTTP call.
type ErrorChecker func(err error, statusCode int, responseBody []byte) bool

// AttemptFunc is the operation shape driven by Execute. The attempt argument
// starts at 0 for the initial try.
type AttemptFunc func(attempt int) (any, int, []byte, error)

// Options configures a single Execute call
type Options struct {
	Config Config

	// ErrorChecker classifies failures; nil retries every failure
	ErrorChecker ErrorChecker

	// APIName labels log lines and events for this operation
	APIName string

	// OnRetry is invoked once per retry, before the backoff sleep, with the
	// attempt number (starting at 1) and the error that triggered the retry.
	// It is best-effort observability only; panics are not contained.
	OnRetry func(attempt int, err error)

	Logger  logger.Logger
	Verbose bool
}

// sleep waits out a backoff delay or aborts when the context is cancelled.
// Swapped out in tests to make schedules deterministic.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs fn until it succeeds, a failure is classified non-retryable, the
// retry budget is exhausted, or the context is cancelled. The error surfaced
// after exhaustion is the last attempt's error; earlier errors are visible only
// to the OnRetry hook. Total attempts = MaxRetries + 1.
func Execute(ctx context.Context, opts Options, fn AttemptFunc) (any, error) {
	config := normalizeConfig(opts.Config)

	log := opts.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}
	label := opts.APIName
	if label == "" {
		label = "operation"
	}

	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		// Add delay before retry (but not on first attempt)
		if attempt > 0 {
			delay := calculateDelay(config, attempt-1)

			if opts.OnRetry != nil {
				opts.OnRetry(attempt, lastErr)
			}

			if opts.Verbose {
				log.Printf("%s retry attempt %d/%d after %v delay: %v",
					label, attempt+1, config.MaxRetries+1, delay, lastErr)
			}

			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		value, statusCode, body, err := fn(attempt)

		// If successful, return immediately
		if err == nil {
			if attempt > 0 && opts.Verbose {
				log.Printf("%s succeeded on attempt %d/%d", label, attempt+1, config.MaxRetries+1)
			}
			return value, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Check if this is a retryable error
		if opts.ErrorChecker != nil && !opts.ErrorChecker(err, statusCode, body) {
			if opts.Verbose {
				log.Printf("%s non-retryable error: %v", label, err)
			}
			return nil, err
		}
	}

	// All retries exhausted, surface the last error
	if opts.Verbose {
		log.Printf("%s failed after %d attempts, last error: %v",
			label, config.MaxRetries+1, lastErr)
	}
	return nil, lastErr
}

// calculateDelay computes the delay for the given attempt using exponential backoff
func calculateDelay(config Config, attempt int) time.Duration {
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(config.BackoffMultiple, float64(attempt)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// normalizeConfig fills zero or nonsensical fields with their defaults
func normalizeConfig(config Config) Config {
	defaults := DefaultConfig()

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.BackoffMultiple <= 1 {
		config.BackoffMultiple = defaults.BackoffMultiple
	}
	return config
}
