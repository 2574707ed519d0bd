// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package dependency implements the Master-side dependency analyzer of
// spec.md §4.3: cycle detection and duplicate service name detection
// across the full set of container descriptors, plus computation of
// each service's reverse dependency list (isRequiredFrom) before the
// descriptors are published to the coordination store.
package dependency
