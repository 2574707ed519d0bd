// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fidelio-project/fidelio/lib/coordination"
	"github.com/fidelio-project/fidelio/lib/naming"
)

// Session is the narrow slice of *coordination.Session the coordinator
// needs. Depending on the interface rather than the concrete type lets
// the coordinator run against a fake in tests.
type Session interface {
	Exists(ctx context.Context, path string, watch coordination.Watcher) (bool, coordination.NodeStat, coordination.Result)
	Delete(ctx context.Context, path string, version int64) coordination.Result
	Close() error
}

// Deps bundles everything the coordinator needs from the Broker.
type Deps struct {
	Session Session
	Layout  naming.Layout

	// ReverseDeps are the service names of every container that
	// declared this one as a requirement (isRequiredFrom, spec.md
	// §4.9 step 9).
	ReverseDeps []string

	// RunStopGroup executes the container's stop group. It must be
	// safe to call even if the start group never ran.
	RunStopGroup func(context.Context) error

	// Listeners are notified once the stop group finishes, spec.md
	// §4.11 step 3.
	Listeners []func()

	// ConfigPath is the configuration node deleted in step 4.
	ConfigPath string

	Logger *slog.Logger
}

// Run executes the shutdown sequence of spec.md §4.11 steps 1-5:
// wait for every reverse dependency's naming node to disappear, run
// the stop group, notify listeners, delete the configuration node,
// and close the session. Stopping the executor (step 6) is the
// caller's responsibility once Run returns, since the executor
// outlives the coordinator's own goroutines.
func Run(ctx context.Context, deps Deps) error {
	waitForReverseDeps(ctx, deps.Session, deps.Layout, deps.ReverseDeps, deps.Logger)

	if err := deps.RunStopGroup(ctx); err != nil {
		deps.Logger.Error("stop group did not complete", "error", err)
	}

	for _, listener := range deps.Listeners {
		listener()
	}

	if result := deps.Session.Delete(ctx, deps.ConfigPath, -1); result != coordination.OK && result != coordination.NoNode {
		deps.Logger.Error("deleting configuration node", "path", deps.ConfigPath, "result", result)
	}

	// Closing the session revokes its lease, which cascades the
	// destruction of every ephemeral node it owns: the container node
	// and the naming node both disappear here.
	if err := deps.Session.Close(); err != nil {
		return fmt.Errorf("closing session during shutdown: %w", err)
	}
	return nil
}

// waitForReverseDeps blocks until every dependent's naming node has
// been deleted, or ctx is cancelled. Each dependent is watched
// independently and concurrently.
func waitForReverseDeps(ctx context.Context, session Session, layout naming.Layout, reverseDeps []string, logger *slog.Logger) {
	if len(reverseDeps) == 0 {
		return
	}
	var wg sync.WaitGroup
	wg.Add(len(reverseDeps))
	for _, name := range reverseDeps {
		go func(nsPath string) {
			defer wg.Done()
			waitForGone(ctx, session, nsPath, logger)
		}(layout.ServicePath(name))
	}
	wg.Wait()
}

// waitForGone polls-then-watches nsPath until it no longer exists.
// Any Delete is treated as final: a create racing in immediately after
// is a new registration the coordinator no longer cares about.
func waitForGone(ctx context.Context, session Session, nsPath string, logger *slog.Logger) {
	for {
		events := make(chan coordination.Event, 1)
		exists, _, result := session.Exists(ctx, nsPath, func(ev coordination.Event) {
			select {
			case events <- ev:
			default:
			}
		})
		if result != coordination.OK && result != coordination.NoNode {
			logger.Warn("checking dependent naming node during shutdown", "nsPath", nsPath, "result", result)
			return
		}
		if !exists {
			return
		}

		select {
		case ev := <-events:
			if ev.Type == coordination.NodeDeleted {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
