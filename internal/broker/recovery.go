// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"fmt"

	"github.com/fidelio-project/fidelio/internal/lifecycle"
	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/lib/coordination"
	"github.com/fidelio-project/fidelio/lib/naming"
)

// recoverSession implements spec.md §4.10: reconnect a fresh session,
// re-create the naming node with the Broker's in-memory status, re-arm
// the shutdown watch, and re-arm every dependency watch. The container
// node is not re-created: as an ephemeral node it was bound to the
// expired session's lease and is gone with it, and recreating it would
// require republishing the descriptor payload.
func (b *Broker) recoverSession(ctx context.Context) {
	if b.shuttingDown.Load() {
		return
	}

	b.logger.Warn("recovering from session expiry")

	session, err := b.connect(ctx, b.cfg.CoordinationHosts, b.cfg.SessionTimeout, b.logger)
	b.metrics.recordCallback("recoverSession.connect", resultOrOther(err))
	if err != nil {
		b.logger.Error("reconnecting after session expiry", "error", err)
		b.enterError(lifecycle.ErrorEvent)
		return
	}
	b.session = session
	session.RegisterStateWatcher(b.onSessionStateChange)

	if err := b.recreateNamingNode(ctx); err != nil {
		b.logger.Error("recreating naming node after session expiry", "error", err)
		b.enterError(lifecycle.ErrorEvent)
		return
	}

	b.armShutdownWatch(ctx)
	b.rearmDependencyWatches(ctx)
}

func (b *Broker) recreateNamingNode(ctx context.Context) error {
	desc := b.descriptorSnapshot()
	nsPath := b.layout.ServicePath(desc.ServiceName)

	payload := model.NamingPayload{ContainerPath: b.containerPath, Status: b.currentStatus()}
	data, err := naming.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("encoding naming payload: %w", err)
	}

	result, err := coordination.WithRetry(ctx, b.clk, b.logger, coordination.RetryConfig{OnRetry: b.metrics.recordRetry}, func() (coordination.Result, error) {
		return b.session.Create(ctx, nsPath, data, coordination.Ephemeral)
	})
	b.metrics.recordCallback("recreateNamingNode", result)
	if result != coordination.OK {
		return fmt.Errorf("recreating naming node %s: %s: %w", nsPath, result, err)
	}
	b.nsPath = nsPath
	return nil
}

func (b *Broker) rearmDependencyWatches(ctx context.Context) {
	for _, nsPath := range b.tableNsPaths() {
		b.watchDependencyNaming(ctx, nsPath)
	}
}
