// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package dependency

import (
	"fmt"
	"sort"

	"github.com/fidelio-project/fidelio/internal/model"
)

// color tags a node during depth-first traversal: white means unvisited,
// gray means on the current recursion stack, black means fully explored.
type color int

const (
	white color = iota
	gray
	black
)

// CycleError reports a dependency cycle discovered by Analyze. Path
// lists the service names in cycle order, starting and ending at the
// same service.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Path)
}

// DuplicateNameError reports that more than one descriptor declared the
// same service name.
type DuplicateNameError struct {
	ServiceName string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate service name %q", e.ServiceName)
}

// UnknownDependencyError reports that a descriptor's requires list
// names a service with no corresponding descriptor.
type UnknownDependencyError struct {
	ServiceName string
	Requires    string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("service %q requires unknown service %q", e.ServiceName, e.Requires)
}

// Analyze validates the full set of descriptors for duplicate names,
// unknown dependency references, and cycles, then returns a copy of the
// descriptors with IsRequiredFrom populated from the requires graph.
// The input order is not significant; the output preserves input order.
func Analyze(descriptors []model.ContainerDescriptor) ([]model.ContainerDescriptor, error) {
	byName := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		if _, exists := byName[d.ServiceName]; exists {
			return nil, &DuplicateNameError{ServiceName: d.ServiceName}
		}
		byName[d.ServiceName] = i
	}

	for _, d := range descriptors {
		for _, req := range d.Requires {
			if _, ok := byName[req]; !ok {
				return nil, &UnknownDependencyError{ServiceName: d.ServiceName, Requires: req}
			}
		}
	}

	if err := detectCycles(descriptors, byName); err != nil {
		return nil, err
	}

	out := make([]model.ContainerDescriptor, len(descriptors))
	copy(out, descriptors)
	populateReverseDeps(out)
	return out, nil
}

// detectCycles runs a white/gray/black depth-first search over the
// requires graph, one traversal per unvisited node, reporting the first
// cycle found as the path from the node that closed the cycle back to
// itself.
func detectCycles(descriptors []model.ContainerDescriptor, byName map[string]int) error {
	colors := make([]color, len(descriptors))
	var stack []string

	var visit func(i int) error
	visit = func(i int) error {
		colors[i] = gray
		stack = append(stack, descriptors[i].ServiceName)

		for _, req := range descriptors[i].Requires {
			j := byName[req]
			switch colors[j] {
			case white:
				if err := visit(j); err != nil {
					return err
				}
			case gray:
				cyclePath := cyclePathFrom(stack, descriptors[j].ServiceName)
				return &CycleError{Path: cyclePath}
			case black:
				// Already fully explored via another path; no cycle here.
			}
		}

		stack = stack[:len(stack)-1]
		colors[i] = black
		return nil
	}

	for i := range descriptors {
		if colors[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// cyclePathFrom extracts the cycle from the recursion stack, starting at
// the first occurrence of target and closing back to it.
func cyclePathFrom(stack []string, target string) []string {
	start := 0
	for i, name := range stack {
		if name == target {
			start = i
			break
		}
	}
	path := append([]string{}, stack[start:]...)
	path = append(path, target)
	return path
}

// populateReverseDeps fills in IsRequiredFrom for every descriptor in
// place: for each edge from -> to in the requires graph, from is
// appended to to's IsRequiredFrom. Entries are sorted for determinism.
func populateReverseDeps(descriptors []model.ContainerDescriptor) {
	reverse := make(map[string][]string, len(descriptors))
	for _, d := range descriptors {
		for _, req := range d.Requires {
			reverse[req] = append(reverse[req], d.ServiceName)
		}
	}
	for name, deps := range reverse {
		sort.Strings(deps)
		reverse[name] = deps
	}
	for i := range descriptors {
		descriptors[i].IsRequiredFrom = reverse[descriptors[i].ServiceName]
	}
}
