// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package process implements the process handlers of spec.md §4.5: the
// Handler capability, its Default and Main implementations, the start
// and stop group handlers that sequence a container's PreMain/Main/
// PostMain resources, and the Manager that owns both. Command spawning
// follows the exec.Cmd/process-group pattern of the teacher's
// sandbox.Sandbox.Command, without the bwrap sandboxing layer that
// concern does not apply here.
package process
