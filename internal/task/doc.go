// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements the task handler of spec.md §4.6:
// pre-start and post-stop non-process actions, each named and
// parameterized, with ${VAR} references in parameter values expanded
// against the process environment. Expansion follows the
// ${NAME}-only, braces-required convention of the teacher's
// lib/pipeline.Expand.
package task
