// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"sort"
	"strconv"
	"strings"

	"github.com/fidelio-project/fidelio/internal/model"
)

// Build merges own's HOST/PORT/entries with each dependency's
// environment, namespaced by the dependency's service name in upper
// case (e.g. DB_HOST, DB_PORT, DB_<CUSTOM_KEY>). Own's own fields are
// exposed unnamespaced (HOST, PORT, plus its own entries verbatim) so
// a container's own process can read its own bind address the same
// way its dependents read it. The returned map is a fresh copy; the
// caller may treat it as immutable.
func Build(own model.ContainerEnvironment, deps map[string]model.ContainerEnvironment) map[string]string {
	env := make(map[string]string, 2+len(own.Entries)+4*len(deps))

	env["HOST"] = own.Host
	env["PORT"] = strconv.Itoa(own.Port)
	for key, value := range own.Entries {
		env[key] = value
	}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prefix := strings.ToUpper(name) + "_"
		dep := deps[name]
		env[prefix+"HOST"] = dep.Host
		env[prefix+"PORT"] = strconv.Itoa(dep.Port)
		for key, value := range dep.Entries {
			env[prefix+strings.ToUpper(key)] = value
		}
	}

	return env
}
