package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Maximum number of attempts
	Backoff     time.Duration // Wait after the first failure
	Multiplier  float64       // Backoff growth per attempt
	MaxBackoff  time.Duration // Backoff ceiling
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// Reconnect calls fn until it succeeds, the attempts run out or ctx ends,
// sleeping with exponential backoff between attempts
func Reconnect(ctx context.Context, fn func() error, cfg ReconnectConfig, logger zerolog.Logger) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	backoff := cfg.Backoff

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = fn(); err == nil {
			logger.Info().Int("attempt", attempt).Msg("Reconnected")
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("backoff", backoff).
			Msg("Reconnect attempt failed")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return fmt.Errorf("failed to reconnect after %d attempts: %w", cfg.MaxAttempts, err)
}
