package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	providerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_provider_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
//
// The scheduler reserves budget for exactly one call per dispatch, so the
// default is a single attempt. Retries, when enabled, only apply to server
// and network failures, and each retry reserves its own budget slot first
// (see Config.Budget).
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration: no retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       1,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryWithBackoff executes fn with exponential backoff. The error class is
// taken from the returned error; non-retriable classes return immediately.
// reserve, if non-nil, runs after each backoff and must succeed before the
// next attempt; a failure ends the retries with the last provider error.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, reserve func(context.Context) error, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		class := ClassOf(err)
		if !shouldRetry(class) || attempt >= attempts {
			break
		}

		providerRetriesTotal.WithLabelValues(string(class)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		t := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-t.C:
		}

		if reserve != nil {
			if err := reserve(ctx); err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
				}
				logger.Error().Err(err).Str("error_class", string(class)).Msg("Retry budget unavailable")
				return lastErr
			}
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	if attempts > 1 && shouldRetry(ClassOf(lastErr)) {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
	}
	return lastErr
}
