// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package model defines the container descriptor and its constituent
// types: the process specification, environment, tasks, and the
// naming-service status enumeration. These types are immutable from
// the Broker's point of view — the Master constructs them, the Broker
// only reads them — and serialize to and from JSON so they can be
// carried as coordination-store node payloads.
package model
