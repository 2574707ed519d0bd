// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime implements the container runtime client of spec.md
// §6: a narrow interface (createContainer/startContainer/stopContainer/
// removeContainer/listContainers) used only by the Master, backed by
// the moby/moby Docker Engine API client. Brokers never manage their
// own container through this interface.
package runtime
