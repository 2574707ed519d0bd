// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package servicemgr implements the Broker-side service manager of
// spec.md §4.4: an in-memory table mapping each dependency's naming
// path to what the Broker currently knows about it. The table has no
// internal locking — callers serialize access themselves (the Broker
// guards it with its own mutex), the way the teacher's
// FindAll/FindFirst pattern in lib/service/discovery.go is documented
// for callers holding an in-memory cache rather than querying fresh
// each time.
package servicemgr
