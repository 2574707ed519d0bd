// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Fidelio-broker is the per-container Broker tier of spec.md §2: it
// connects to the coordination store, claims its container node,
// retrieves its descriptor, registers as a service, waits on its
// dependencies, and drives its process group.
//
// Usage:
//
//	fidelio-broker --config /etc/fidelio/broker.yaml
//
// Configuration may also be supplied via the FIDELIO_CONFIG
// environment variable; see internal/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fidelio-project/fidelio/internal/broker"
	"github.com/fidelio-project/fidelio/internal/config"
	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/internal/process"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fidelio-broker exiting", "error", err)
		os.Exit(-1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the broker config file (defaults to FIDELIO_CONFIG)")
	flag.Parse()

	cfg, err := config.LoadBroker(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sessionTimeout, err := cfg.SessionTimeoutDuration()
	if err != nil {
		return fmt.Errorf("parsing session_timeout: %w", err)
	}

	logger := slog.Default().With("service", cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := broker.New(broker.Config{
		ServiceName:       cfg.ServiceName,
		Type:              model.ContainerType(cfg.Type),
		CoordinationHosts: cfg.CoordinationHosts,
		SessionTimeout:    sessionTimeout,
		Root:              cfg.Root,
		Readiness:         readinessFromConfig(cfg.Readiness),
		Logger:            logger,
	})

	logger.Info("broker starting", "type", cfg.Type, "root", cfg.Root)
	if err := b.Run(ctx); err != nil {
		return fmt.Errorf("broker run: %w", err)
	}
	logger.Info("broker exited cleanly")
	return nil
}

func readinessFromConfig(c config.ReadinessConfig) process.ReadinessConfig {
	return process.ReadinessConfig{
		Attempts:       c.Attempts,
		InitialBackoff: mustDuration(c.InitialBackoff),
		MaxBackoff:     mustDuration(c.MaxBackoff),
		DialTimeout:    mustDuration(c.DialTimeout),
	}
}

// mustDuration parses a duration string, returning zero (letting the
// consumer apply its own default) for an empty or malformed value
// rather than failing broker startup over an optional tuning knob.
func mustDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
