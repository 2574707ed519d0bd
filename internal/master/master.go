// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package master implements Fidelio's Master tier, spec.md §2: the
// operator-facing counterpart to the Broker. The Master reads a
// descriptor schema, validates the dependency graph, publishes
// configuration nodes for Brokers to claim, and drives container
// lifecycle through a runtime.Client.
package master

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fidelio-project/fidelio/internal/dependency"
	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/internal/runtime"
	"github.com/fidelio-project/fidelio/lib/clock"
	"github.com/fidelio-project/fidelio/lib/coordination"
	"github.com/fidelio-project/fidelio/lib/naming"
)

// stopTimeout bounds how long StopContainer waits for a container to
// exit gracefully before the runtime kills it.
const stopTimeout = 30 * time.Second

// Config carries everything a Master needs to provision and drive
// containers, mirroring broker.Config's shape for the same reasons:
// values are supplied externally by cmd/fidelio-master's flags and
// config file.
type Config struct {
	// CoordinationHosts are the coordination-store endpoints to dial.
	CoordinationHosts []string
	// SessionTimeout is the Master's own session lease TTL.
	SessionTimeout time.Duration
	// Root is the coordination-store root path, spec.md §6.
	Root string

	// Runtime drives container creation, start, stop, and removal.
	Runtime runtime.Client

	Logger *slog.Logger
	Clock  clock.Clock
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 20 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

// Master drives the operator-facing lifecycle operations: provisioning
// descriptors into the coordination store, launching and stopping
// their containers, and reporting status. A Master is used across
// multiple operations; Connect once, then call Provision/Launch/Stop/
// Status as needed.
type Master struct {
	cfg    Config
	layout naming.Layout
	logger *slog.Logger

	session *coordination.Session
}

// New builds a Master for the given configuration. The Master does
// nothing until Connect is called.
func New(cfg Config) *Master {
	cfg = cfg.withDefaults()
	return &Master{
		cfg:    cfg,
		layout: naming.NewLayout(cfg.Root),
		logger: cfg.Logger.With("component", "master"),
	}
}

// Connect dials the coordination store. It must be called before
// Provision or Status.
func (m *Master) Connect(ctx context.Context) error {
	session, err := coordination.Connect(ctx, m.cfg.CoordinationHosts, m.cfg.SessionTimeout, m.logger)
	if err != nil {
		return fmt.Errorf("master connecting: %w", err)
	}
	m.session = session
	return nil
}

// Close releases the Master's coordination session.
func (m *Master) Close() error {
	if m.session == nil {
		return nil
	}
	return m.session.Close()
}

// Provision validates the dependency graph across descriptors and
// publishes each one's configuration node, per spec.md §4.9 step 4's
// consumer side: a Broker claiming its container node then waits for
// exactly the config node Provision writes here. Publishing is
// idempotent — an existing config node is overwritten with SetData
// rather than rejected, so re-running Provision after editing a
// descriptor picks up the change.
func (m *Master) Provision(ctx context.Context, descriptors []model.ContainerDescriptor) error {
	analyzed, err := dependency.Analyze(descriptors)
	if err != nil {
		return fmt.Errorf("analyzing dependency graph: %w", err)
	}

	for _, d := range analyzed {
		data, err := d.Marshal()
		if err != nil {
			return fmt.Errorf("marshaling descriptor %s: %w", d.ServiceName, err)
		}
		if err := m.publishConfig(ctx, d.ServiceName, data); err != nil {
			return fmt.Errorf("publishing config for %s: %w", d.ServiceName, err)
		}
		m.logger.Info("provisioned descriptor", "service", d.ServiceName, "type", d.Type)
	}
	return nil
}

func (m *Master) publishConfig(ctx context.Context, serviceName string, data []byte) error {
	path := m.layout.ConfigPath(serviceName)
	retry := coordination.RetryConfig{}
	result, err := coordination.WithRetry(ctx, m.cfg.Clock, m.logger, retry, func() (coordination.Result, error) {
		return m.session.Create(ctx, path, data, coordination.Persistent)
	})
	if err != nil && result != coordination.NodeExists {
		return err
	}
	if result == coordination.OK {
		return nil
	}

	// NodeExists: a previous provisioning run already created the
	// node. Overwrite unconditionally — the schema file is the source
	// of truth, not whatever a Broker or prior run last wrote.
	_, setResult := m.session.SetData(ctx, path, data, -1)
	if setResult != coordination.OK {
		return fmt.Errorf("overwriting config node %s: %s", path, setResult)
	}
	return nil
}

// Launch creates and starts a container for each descriptor via the
// configured runtime.Client. It does not touch the coordination store;
// the container's own Broker claims its container node once it
// starts, per spec.md §4.9 step 3.
func (m *Master) Launch(ctx context.Context, descriptors []model.ContainerDescriptor) error {
	coordinates := runtime.Coordinates{
		CoordinationHosts: m.cfg.CoordinationHosts,
		Root:              m.cfg.Root,
	}
	for _, d := range descriptors {
		id, err := m.cfg.Runtime.CreateContainer(ctx, d, coordinates)
		if err != nil {
			return fmt.Errorf("creating container for %s: %w", d.ServiceName, err)
		}
		if err := m.cfg.Runtime.StartContainer(ctx, id); err != nil {
			return fmt.Errorf("starting container for %s: %w", d.ServiceName, err)
		}
		m.logger.Info("launched container", "service", d.ServiceName, "container_id", id)
	}
	return nil
}

// Stop stops and removes the running container backing serviceName.
// It is a no-op if no matching container is found.
func (m *Master) Stop(ctx context.Context, serviceName string) error {
	summaries, err := m.cfg.Runtime.ListContainers(ctx, runtime.ContainerFilter{ServiceName: serviceName})
	if err != nil {
		return fmt.Errorf("listing containers for %s: %w", serviceName, err)
	}
	for _, s := range summaries {
		if err := m.cfg.Runtime.StopContainer(ctx, s.ID, stopTimeout); err != nil {
			return fmt.Errorf("stopping container %s: %w", s.ID, err)
		}
		if err := m.cfg.Runtime.RemoveContainer(ctx, s.ID); err != nil {
			return fmt.Errorf("removing container %s: %w", s.ID, err)
		}
		m.logger.Info("stopped container", "service", serviceName, "container_id", s.ID)
	}
	return nil
}

// Status reports the naming node payload most recently published by
// serviceName's Broker.
func (m *Master) Status(ctx context.Context, serviceName string) (model.NamingPayload, error) {
	data, _, result := m.session.GetData(ctx, m.layout.ServicePath(serviceName), nil)
	if result != coordination.OK {
		return model.NamingPayload{}, fmt.Errorf("reading naming node for %s: %s", serviceName, result)
	}
	return naming.DecodePayload(data)
}
