// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package shutdown implements the Broker's shutdown coordinator,
// spec.md §4.11: wait for every reverse dependency's naming node to
// disappear, run the stop group, notify listeners, delete the
// configuration node, and close the coordination-store session. The
// coordinator is a free function rather than a Broker method so it can
// be exercised with a fake session in isolation from the lifecycle
// state machine.
package shutdown
