// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time abstraction behind every
// backoff wait in Fidelio: lib/coordination.WithRetry's ConnectionLoss
// retry loop and internal/process.MainHandler's TCP readiness probe
// both take a Clock instead of calling time.After or time.Sleep
// directly, so tests can drive a multi-attempt exponential backoff to
// completion in microseconds instead of waiting out real delays.
//
// # Wiring Pattern
//
// Add a Clock field to structs that wait on a backoff:
//
//	type Manager struct {
//	    clk clock.Clock
//	    // ...
//	}
//
// In production:
//
//	m := &Manager{clk: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	m := &Manager{clk: c}
//	// ... start the goroutine under test ...
//	c.WaitForTimers(1)         // wait for it to register a wait
//	c.Advance(5 * time.Second) // resolve the wait deterministically
//
// # FakeClock synchronization
//
// When a goroutine calls Sleep or After on a FakeClock, it registers a
// pending wait. Use WaitForTimers to block until a specific number of
// waits are registered before calling Advance. This eliminates the
// race between a retry loop registering its backoff wait and the test
// advancing the clock past it.
package clock
