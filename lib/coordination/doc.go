// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordination is the thin abstraction over a hierarchical,
// watch-based coordination store that spec.md §4.1 and §6 describe.
// It exposes connect/create/exists/getData/setData/delete/watch/close
// on top of go.etcd.io/etcd/client/v3: persistent nodes are plain
// puts, ephemeral nodes are puts attached to a session-scoped lease,
// and watches are surfaced one-shot (re-armed by the caller) even
// though the underlying etcd watch is naturally continuous.
//
// Every mutating or reading call returns an explicit Result alongside
// a Go error, per spec.md §9's redesign note: callers switch on the
// Result in one place rather than threading provider-specific error
// values through the call stack.
package coordination
