// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"log/slog"
	"time"

	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/internal/process"
	"github.com/fidelio-project/fidelio/internal/task"
	"github.com/fidelio-project/fidelio/lib/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// workerCount is the size of the bounded worker pool each Broker uses
// to dispatch coordination-store callbacks, per spec.md §5's "the
// source uses 5".
const workerCount = 5

// Config carries everything a Broker needs to identify and run one
// container's lifecycle. ServiceName and Type are supplied externally
// (flags or a config file) because the Broker must claim its container
// node before it can read a descriptor that would otherwise tell it
// its own name.
type Config struct {
	ServiceName string
	Type        model.ContainerType

	// CoordinationHosts are the coordination-store endpoints to dial.
	CoordinationHosts []string
	// SessionTimeout is the lease TTL requested on connect, spec.md §5
	// ("typically 10-30s").
	SessionTimeout time.Duration
	// Root is the coordination-store root path, spec.md §6.
	Root string

	// Readiness bounds the main resource's TCP readiness probe.
	Readiness process.ReadinessConfig
	// Tasks maps task names declared in descriptors to their actions.
	// A nil registry means every task logs "no action registered" and
	// is skipped, per spec.md §4.6's best-effort semantics.
	Tasks task.Registry

	Logger    *slog.Logger
	Clock     clock.Clock
	Registerer prometheus.Registerer
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
	if c.Registerer == nil {
		c.Registerer = prometheus.DefaultRegisterer
	}
	if c.Tasks == nil {
		c.Tasks = task.Registry{}
	}
	return c
}
