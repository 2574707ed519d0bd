// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"time"

	"github.com/fidelio-project/fidelio/internal/model"
)

// ContainerFilter narrows a ListContainers query. An empty filter
// matches every container the runtime knows about.
type ContainerFilter struct {
	// ServiceName restricts the listing to a single service name, read
	// back from the "fidelio.service" label. Empty matches any.
	ServiceName string
	// Type restricts the listing to one container type, read back from
	// the "fidelio.type" label. Empty matches any.
	Type model.ContainerType
}

// ContainerSummary is what ListContainers reports per matching
// container.
type ContainerSummary struct {
	ID          string
	ServiceName string
	Type        model.ContainerType
	Running     bool
}

// Coordinates carries the coordination-store location a launched
// container's own Broker needs to find its config node, spec.md §2:
// "launch one container per descriptor through the runtime client,
// injecting the coordinates of its coordination-store nodes." These
// are Master-wide (the same coordination store and root every
// descriptor is provisioned under), not per-descriptor, so they travel
// separately from model.ContainerDescriptor rather than living on it.
type Coordinates struct {
	// CoordinationHosts are the coordination-store endpoints the
	// launched container's Broker should dial.
	CoordinationHosts []string
	// Root is the coordination-store root path, spec.md §6.
	Root string
}

// Client is the narrow container-runtime interface of spec.md §6.
// Only the Master calls it; Brokers manage their own process groups
// through internal/process instead.
type Client interface {
	// CreateContainer creates a container to run descriptor and returns
	// its runtime ID. The container is not started. coordinates are
	// injected into the container's environment so its Broker can find
	// its own config node without a baked-in config file.
	CreateContainer(ctx context.Context, descriptor model.ContainerDescriptor, coordinates Coordinates) (string, error)
	// StartContainer starts a previously created container.
	StartContainer(ctx context.Context, id string) error
	// StopContainer stops a running container, giving it up to timeout
	// to exit gracefully before it is killed.
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	// RemoveContainer removes a stopped container.
	RemoveContainer(ctx context.Context, id string) error
	// ListContainers reports containers matching filter.
	ListContainers(ctx context.Context, filter ContainerFilter) ([]ContainerSummary, error)
}
