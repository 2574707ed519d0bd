// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package naming

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fidelio-project/fidelio/internal/model"
)

// segmentPattern matches a single valid path segment: letters, digits,
// hyphen, underscore, dot. Service names and container types are
// segments; they must never contain "/" since that would let a
// service name escape its parent node.
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateServiceName reports whether name is a legal path segment for
// use as a service name.
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("service name is empty")
	}
	if !segmentPattern.MatchString(name) {
		return fmt.Errorf("service name %q contains invalid characters", name)
	}
	return nil
}

// Layout bundles the coordination-store root paths of spec.md §6:
//
//	<root>/containers/<Type>/<svc>   ephemeral, owned by Broker
//	<root>/conf/<svc>                 persistent, descriptor payload
//	<root>/naming/<svc>                ephemeral, { containerPath, status }
//	<root>/shutdown                    persistent, global shutdown signal
type Layout struct {
	root string
}

// NewLayout builds a Layout rooted at root. A trailing slash on root is
// trimmed.
func NewLayout(root string) Layout {
	return Layout{root: strings.TrimSuffix(root, "/")}
}

// Root returns the application's root path.
func (l Layout) Root() string { return l.root }

// ServicePath returns the naming node path for serviceName:
// <root>/naming/<serviceName>.
func (l Layout) ServicePath(serviceName string) string {
	return l.root + "/naming/" + serviceName
}

// ContainerPath returns the container node path for a container of the
// given type and service name: <root>/containers/<Type>/<serviceName>.
func (l Layout) ContainerPath(typ model.ContainerType, serviceName string) string {
	return l.root + "/containers/" + string(typ) + "/" + serviceName
}

// ConfigPath returns the configuration node path for serviceName:
// <root>/conf/<serviceName>.
func (l Layout) ConfigPath(serviceName string) string {
	return l.root + "/conf/" + serviceName
}

// ShutdownPath returns the well-known shutdown signal path:
// <root>/shutdown.
func (l Layout) ShutdownPath() string {
	return l.root + "/shutdown"
}

// ContainersRoot returns the parent of all per-type container roots:
// <root>/containers.
func (l Layout) ContainersRoot() string {
	return l.root + "/containers"
}

// TypeRoot returns the per-type container parent path:
// <root>/containers/<Type>.
func (l Layout) TypeRoot(typ model.ContainerType) string {
	return l.ContainersRoot() + "/" + string(typ)
}

// Resolve maps each service name in names to its naming node path.
// This is the "bulk resolve Map<serviceName, nsPath>" operation of
// spec.md §4.2, used by the Broker to resolve its requires list before
// querying dependency status.
func (l Layout) Resolve(names []string) map[string]string {
	resolved := make(map[string]string, len(names))
	for _, name := range names {
		resolved[name] = l.ServicePath(name)
	}
	return resolved
}
