// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker implements the Broker orchestrator protocol of spec.md
// §4.9-§4.10: the event-driven sequence a Broker executes to connect to
// the coordination store, claim its container node, wait for and
// process its configuration, register as a service, resolve its
// dependencies, run its start group, and recover from session expiry.
//
// The Broker is a single logical actor. Every lifecycle transition
// submits its work to a bounded worker pool (spec.md §5) rather than
// executing inline, so coordination-store callbacks never block on
// each other. Long blocking operations — waiting for a process to
// exit, waiting on the shutdown latch — run on dedicated goroutines
// outside the bounded pool so they cannot starve callback dispatch.
package broker
