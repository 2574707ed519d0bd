// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package naming implements the naming service of spec.md §4.2: pure
// path and codec logic mapping a service name to its coordination-store
// paths, plus bulk resolution of a dependency list. It holds no state
// of its own and performs no I/O — the Broker orchestrator drives the
// actual coordination-store reads and writes through lib/coordination.
package naming
