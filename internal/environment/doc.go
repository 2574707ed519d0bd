// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package environment implements the environment handler of spec.md
// §4.7: it builds a container's process environment by merging the
// container's own entries with each dependency's environment,
// namespaced by dependency service name, producing an immutable map
// consumed by both internal/process and internal/task.
package environment
