// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package servicemgr

import "github.com/fidelio-project/fidelio/internal/model"

// ConfStatus tracks whether a dependency's descriptor has been read and
// processed into environment/task inputs yet.
type ConfStatus int

const (
	NotProcessed ConfStatus = iota
	Processed
)

// Entry is everything the Broker knows about one dependency, keyed by
// the dependency's naming path.
type Entry struct {
	ServiceName     string
	ZkContainerPath string
	HasStatus       bool
	Status          model.Status
	ConfStatus      ConfStatus
	HasDescriptor   bool
	Descriptor      model.ContainerDescriptor
}

// Table is the Broker's per-dependency state map, spec.md §4.4. The
// zero value is ready to use. Table performs no locking of its own;
// callers serialize access to it (the Broker does so with its own
// mutex).
type Table struct {
	entries map[string]*Entry
}

// New creates an empty Table sized for the given number of
// dependencies.
func New(size int) *Table {
	return &Table{entries: make(map[string]*Entry, size)}
}

// Put registers a dependency by naming path and service name if it is
// not already present. Calling Put on an existing nsPath is a no-op.
func (t *Table) Put(nsPath, serviceName string) {
	if t.entries == nil {
		t.entries = make(map[string]*Entry)
	}
	if _, exists := t.entries[nsPath]; exists {
		return
	}
	t.entries[nsPath] = &Entry{ServiceName: serviceName, ConfStatus: NotProcessed}
}

// Get returns the entry for nsPath and whether it exists.
func (t *Table) Get(nsPath string) (Entry, bool) {
	e, ok := t.entries[nsPath]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// HasServices reports whether the table tracks any dependency at all,
// used by the lifecycle state machine to take the serviceNoneEvent
// transition directly to STARTING.
func (t *Table) HasServices() bool {
	return len(t.entries) > 0
}

// SetSrvStatus records the naming status last observed for nsPath.
// It is a no-op if nsPath is not tracked.
func (t *Table) SetSrvStatus(nsPath string, status model.Status) {
	e, ok := t.entries[nsPath]
	if !ok {
		return
	}
	e.HasStatus = true
	e.Status = status
}

// SetSrvZkConPath records the container node path the dependency's
// naming payload currently points at.
func (t *Table) SetSrvZkConPath(nsPath, containerPath string) {
	e, ok := t.entries[nsPath]
	if !ok {
		return
	}
	e.ZkContainerPath = containerPath
}

// SetSrvDescriptor records the dependency's descriptor, read from its
// container node.
func (t *Table) SetSrvDescriptor(nsPath string, descriptor model.ContainerDescriptor) {
	e, ok := t.entries[nsPath]
	if !ok {
		return
	}
	e.HasDescriptor = true
	e.Descriptor = descriptor
}

// SetConfProcessed marks a dependency's descriptor as consumed into
// the environment/task inputs.
func (t *Table) SetConfProcessed(nsPath string) {
	e, ok := t.entries[nsPath]
	if !ok {
		return
	}
	e.ConfStatus = Processed
}

// DeleteSrvNode removes all tracked state for nsPath, used when a
// dependency's naming node vanishes.
func (t *Table) DeleteSrvNode(nsPath string) {
	delete(t.entries, nsPath)
}

// AllInitializedAndProcessed reports whether every tracked dependency
// has reached model.Initialized and had its descriptor processed.
// This is the guard on the WAITING_DEPS -> STARTING transition of
// spec.md §4.8.
func (t *Table) AllInitializedAndProcessed() bool {
	for _, e := range t.entries {
		if !e.HasStatus || e.Status != model.Initialized {
			return false
		}
		if e.ConfStatus != Processed {
			return false
		}
	}
	return true
}

// NsPaths returns every naming path currently tracked, in no
// particular order.
func (t *Table) NsPaths() []string {
	paths := make([]string, 0, len(t.entries))
	for path := range t.entries {
		paths = append(paths, path)
	}
	return paths
}
