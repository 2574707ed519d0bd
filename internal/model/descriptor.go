// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"fmt"
)

// ContainerType discriminates the three container kinds the
// coordination-store layout partitions containers into
// (containers/WebContainer, containers/BusinessContainer,
// containers/DataContainer).
type ContainerType string

const (
	Web      ContainerType = "Web"
	Business ContainerType = "Business"
	Data     ContainerType = "Data"
)

// Valid reports whether t is one of the three enumerated container
// types.
func (t ContainerType) Valid() bool {
	switch t {
	case Web, Business, Data:
		return true
	default:
		return false
	}
}

// ContainerDescriptor is the immutable (from the Broker's viewpoint)
// record describing one container: its identity, its dependency edges,
// its process specification, and its environment. The Master creates
// it; the Broker deserializes it from the configuration node and later
// republishes it verbatim (module-internal fields such as
// IsRequiredFrom populated by the analyzer) on the container node.
type ContainerDescriptor struct {
	ServiceName     string               `json:"serviceName"`
	Type            ContainerType        `json:"type"`
	Requires        []string             `json:"requires,omitempty"`
	IsRequiredFrom  []string             `json:"isRequiredFrom,omitempty"`
	ProcessSpec     ProcessSpec          `json:"processSpec"`
	Tasks           Tasks                `json:"tasks,omitempty"`
	Environment     ContainerEnvironment `json:"environment"`
}

// ProcessSpec bundles the start and stop process groups for a
// container.
type ProcessSpec struct {
	Start Group `json:"start"`
	Stop  Group `json:"stop"`
}

// Group is an ordered triple of resources: zero or more PreMain
// resources run in order, exactly one Main resource, then zero or more
// PostMain resources run in order. Kind on each Resource must match
// its position: PreMain resources before Main, PostMain after.
type Group struct {
	PreMain  []Resource `json:"preMain,omitempty"`
	Main     Resource   `json:"main"`
	PostMain []Resource `json:"postMain,omitempty"`
}

// Resources returns every resource in the group in execution order:
// PreMain, then Main, then PostMain.
func (g Group) Resources() []Resource {
	all := make([]Resource, 0, len(g.PreMain)+1+len(g.PostMain))
	all = append(all, g.PreMain...)
	all = append(all, g.Main)
	all = append(all, g.PostMain...)
	return all
}

// ResourceKind tags a Resource's position within its group, per
// spec.md §9's "tagged variant" redesign of the source's duck-typed
// process polymorphism.
type ResourceKind string

const (
	KindPreMain  ResourceKind = "preMain"
	KindMain     ResourceKind = "main"
	KindPostMain ResourceKind = "postMain"
)

// Resource is a single process specification: an executable, its
// arguments, an optional working directory, and whether it is the
// group's long-running main process.
type Resource struct {
	Name       string   `json:"name"`
	Executable string   `json:"executable"`
	Args       []string `json:"args,omitempty"`
	WorkDir    string   `json:"workDir,omitempty"`
	Kind       ResourceKind `json:"kind"`

	// HostPort is the TCP port the main process listens on, used for
	// the readiness probe of spec.md §4.5. Ignored for non-Main
	// resources.
	HostPort int `json:"hostPort,omitempty"`
}

// IsMain reports whether r is the group's long-running main process.
func (r Resource) IsMain() bool { return r.Kind == KindMain }

// Tasks partitions non-process actions into pre-start and post-stop
// phases, spec.md §4.6.
type Tasks struct {
	PreStart []Task `json:"preStart,omitempty"`
	PostStop []Task `json:"postStop,omitempty"`
}

// Task is a single named, parameterized action. Parameter values may
// contain ${VAR} references expanded against the process environment
// at execution time.
type Task struct {
	Name       string            `json:"name"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ContainerEnvironment carries the container's own host/port and
// free-form key/value entries, merged with dependency environments by
// internal/environment.
type ContainerEnvironment struct {
	Host    string            `json:"host"`
	Port    int               `json:"port"`
	Entries map[string]string `json:"entries,omitempty"`
}

// Validate checks the descriptor's internal invariants that do not
// depend on the rest of the application graph (duplicate names and
// cycles are checked across the whole descriptor set by
// internal/dependency, not here).
func (d ContainerDescriptor) Validate() error {
	if d.ServiceName == "" {
		return fmt.Errorf("descriptor: serviceName is required")
	}
	if !d.Type.Valid() {
		return fmt.Errorf("descriptor %s: invalid type %q", d.ServiceName, d.Type)
	}
	if d.ProcessSpec.Start.Main.Executable == "" {
		return fmt.Errorf("descriptor %s: start group main resource requires an executable", d.ServiceName)
	}
	if d.ProcessSpec.Start.Main.Kind != "" && d.ProcessSpec.Start.Main.Kind != KindMain {
		return fmt.Errorf("descriptor %s: start group main resource must be tagged KindMain", d.ServiceName)
	}
	for _, req := range d.Requires {
		if req == d.ServiceName {
			return fmt.Errorf("descriptor %s: cannot require itself", d.ServiceName)
		}
	}
	return nil
}

// Marshal serializes the descriptor for a coordination-store node
// payload.
func (d ContainerDescriptor) Marshal() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshaling descriptor %s: %w", d.ServiceName, err)
	}
	return data, nil
}

// UnmarshalDescriptor deserializes a coordination-store node payload
// into a ContainerDescriptor. Round-trips exactly with Marshal for all
// three container types, per spec.md §8.
func UnmarshalDescriptor(data []byte) (ContainerDescriptor, error) {
	var d ContainerDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return ContainerDescriptor{}, fmt.Errorf("unmarshaling descriptor: %w", err)
	}
	return d, nil
}
