// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle implements the container lifecycle state machine of
// spec.md §4.8: eight states, eleven events, guarded transitions, and
// entry actions that submit boot/init/start/stop/update/error work to
// the Broker's event loop.
package lifecycle
