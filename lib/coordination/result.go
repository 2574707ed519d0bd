// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"context"
	"errors"

	"go.etcd.io/etcd/client/v3/concurrency"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Result classifies the outcome of a coordination-store operation,
// matching the taxonomy of spec.md §4.1 and the error kinds of §7.
// Generalizing the teacher's single *MatrixError type into an explicit
// enum lets every call site switch on outcome in one place instead of
// unwrapping a structured error, per spec.md §9's redesign note.
type Result int

const (
	// OK indicates the operation completed as requested.
	OK Result = iota
	// NoNode indicates the target path does not exist.
	NoNode
	// NodeExists indicates a create raced with an existing node, or a
	// conditional write's version precondition did not hold.
	NodeExists
	// ConnectionLoss indicates a transient failure reaching the store.
	// Idempotent callers (reads, CheckAndCreate) should retry.
	ConnectionLoss
	// SessionExpired indicates the underlying lease/session died and
	// must be re-established before any ephemeral node can be
	// recreated (spec.md §4.10).
	SessionExpired
	// Other indicates an error that does not fit the above categories.
	Other
)

// String renders the Result for structured log lines.
func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case NoNode:
		return "NoNode"
	case NodeExists:
		return "NodeExists"
	case ConnectionLoss:
		return "ConnectionLoss"
	case SessionExpired:
		return "SessionExpired"
	default:
		return "Other"
	}
}

// classify maps an error returned by the etcd client into a Result.
// nil errors classify as OK.
func classify(err error) Result {
	if err == nil {
		return OK
	}
	if errors.Is(err, concurrency.ErrSessionExpired) {
		return SessionExpired
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ConnectionLoss
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return ConnectionLoss
	}
	return Other
}
