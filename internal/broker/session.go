// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/fidelio-project/fidelio/lib/coordination"
)

// Session is the narrow slice of *coordination.Session the protocol
// steps in protocol.go and recovery.go need. Depending on the
// interface rather than the concrete type lets those steps run
// against a fake in tests, the same technique internal/shutdown uses
// for its own Session interface.
type Session interface {
	Create(ctx context.Context, path string, data []byte, mode coordination.Mode) (coordination.Result, error)
	CheckAndCreate(ctx context.Context, path string, data []byte, mode coordination.Mode, ownerID []byte) (coordination.Result, error)
	Exists(ctx context.Context, path string, watch coordination.Watcher) (bool, coordination.NodeStat, coordination.Result)
	GetData(ctx context.Context, path string, watch coordination.Watcher) ([]byte, coordination.NodeStat, coordination.Result)
	SetData(ctx context.Context, path string, data []byte, version int64) (coordination.NodeStat, coordination.Result)
	Delete(ctx context.Context, path string, version int64) coordination.Result
	RegisterStateWatcher(w coordination.Watcher)
	Close() error
}

// connectFunc dials a coordination-store session. It is a Broker field
// rather than a direct call to coordination.Connect so runBoot and
// recoverSession can be driven against a fake Session in tests.
type connectFunc func(ctx context.Context, hosts []string, sessionTimeout time.Duration, logger *slog.Logger) (Session, error)

func defaultConnect(ctx context.Context, hosts []string, sessionTimeout time.Duration, logger *slog.Logger) (Session, error) {
	s, err := coordination.Connect(ctx, hosts, sessionTimeout, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
