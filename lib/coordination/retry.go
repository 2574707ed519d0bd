// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"context"
	"log/slog"
	"time"

	"github.com/fidelio-project/fidelio/lib/clock"
)

// RetryConfig bounds the exponential backoff WithRetry applies between
// attempts, grounded on the teacher's sync-loop backoff shape
// (lib/service/sync.go RunSyncLoop).
type RetryConfig struct {
	// InitialBackoff is the delay before the second attempt.
	// Default: 1 second.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts. Default: 30 seconds.
	MaxBackoff time.Duration
	// MaxAttempts caps the number of attempts. Zero means unlimited
	// (retry until ctx is cancelled).
	MaxAttempts int

	// OnRetry, if set, is called once per retry attempt with the result
	// that triggered it (always ConnectionLoss), before the backoff
	// wait. Callers use it to feed a metrics counter without WithRetry
	// itself depending on any metrics library.
	OnRetry func(result Result)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.InitialBackoff == 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// WithRetry re-invokes op on ConnectionLoss, per spec.md §4.1's retry
// policy: "on ConnectionLoss, the adapter's callers re-invoke the same
// operation (idempotent for reads; for creates, a checkAndCreate
// idempotent wrapper...)". Any Result other than ConnectionLoss is
// returned immediately — WithRetry never masks NoNode, NodeExists, or
// SessionExpired, since those require caller-specific handling
// (session recovery, ownership resolution) rather than a blind retry.
func WithRetry(ctx context.Context, clk clock.Clock, logger *slog.Logger, config RetryConfig, op func() (Result, error)) (Result, error) {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	backoff := config.InitialBackoff
	attempt := 0
	for {
		result, err := op()
		if result != ConnectionLoss {
			return result, err
		}

		attempt++
		if config.MaxAttempts > 0 && attempt >= config.MaxAttempts {
			return result, err
		}
		if config.OnRetry != nil {
			config.OnRetry(result)
		}

		logger.Warn("coordination-store operation transiently failed, retrying",
			"error", err, "backoff", backoff, "attempt", attempt)

		select {
		case <-ctx.Done():
			return ConnectionLoss, ctx.Err()
		case <-clk.After(backoff):
		}

		backoff *= 2
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
}
