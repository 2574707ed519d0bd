// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/lib/clock"
)

// ReadinessConfig bounds the TCP readiness probe MainHandler runs
// before declaring a main resource successfully started.
type ReadinessConfig struct {
	// Attempts caps the number of connect attempts. Defaults to 10.
	Attempts int
	// InitialBackoff is the delay before the first retry. Defaults to
	// 100ms. Backoff doubles on each subsequent attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the backoff delay. Defaults to 2s.
	MaxBackoff time.Duration
	// DialTimeout bounds a single connect attempt. Defaults to 1s.
	DialTimeout time.Duration
}

func (c ReadinessConfig) withDefaults() ReadinessConfig {
	if c.Attempts <= 0 {
		c.Attempts = 10
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = time.Second
	}
	return c
}

// Dialer opens a TCP connection, satisfied by net.Dialer.DialContext.
// Abstracted so tests can substitute a fake without binding real ports.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// MainHandler is like DefaultHandler but is expected to run until
// externally stopped. Start probes readiness by attempting a TCP
// connect to localhost:<host_port> with a bounded exponential-backoff
// retry budget before reporting success, so StartGroupHandler can
// proceed to the post-main resources only once the main process is
// actually accepting connections.
type MainHandler struct {
	*DefaultHandler

	hostPort int
	clk      clock.Clock
	dialer   Dialer
	cfg      ReadinessConfig
}

// NewMainHandler builds a MainHandler for resource, probing readiness
// with clk and dialer.
func NewMainHandler(resource model.Resource, env map[string]string, clk clock.Clock, dialer Dialer, cfg ReadinessConfig) *MainHandler {
	return &MainHandler{
		DefaultHandler: NewDefaultHandler(resource, env),
		hostPort:       resource.HostPort,
		clk:            clk,
		dialer:         dialer,
		cfg:            cfg.withDefaults(),
	}
}

// Start spawns the main process, then blocks until a TCP connect to
// localhost:<host_port> succeeds or the retry budget is exhausted.
func (h *MainHandler) Start(ctx context.Context) error {
	if err := h.DefaultHandler.Start(ctx); err != nil {
		return err
	}
	return h.probeReady(ctx)
}

func (h *MainHandler) probeReady(ctx context.Context) error {
	if h.hostPort == 0 {
		return nil
	}

	address := fmt.Sprintf("localhost:%d", h.hostPort)
	backoff := h.cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= h.cfg.Attempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, h.cfg.DialTimeout)
		conn, err := h.dialer.DialContext(dialCtx, "tcp", address)
		cancel()
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err

		if attempt == h.cfg.Attempts {
			break
		}
		select {
		case <-h.clk.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("readiness probe for %s canceled: %w", h.resource.Name, ctx.Err())
		}
		backoff *= 2
		if backoff > h.cfg.MaxBackoff {
			backoff = h.cfg.MaxBackoff
		}
	}
	return fmt.Errorf("resource %s not ready on %s after %d attempts: %w", h.resource.Name, address, h.cfg.Attempts, lastErr)
}
