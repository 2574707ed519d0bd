// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"strings"
)

// Expand replaces every ${NAME} reference in input with its value from
// env, scanning byte-by-byte rather than matching a compiled pattern
// against the whole string. A reference with no value in env is left
// in place and its name is recorded; Expand fails only after the scan
// completes, naming every unresolved reference at once so a task fails
// fast on an unresolvable parameter rather than running with a literal
// "${NAME}" in its arguments. Malformed references (no closing brace,
// or a name that isn't a valid identifier) are copied through
// unchanged and never reported as unresolved.
func Expand(input string, env map[string]string) (string, error) {
	var out strings.Builder
	var unresolved []string
	reported := make(map[string]bool)

	for i := 0; i < len(input); {
		if input[i] != '$' || i+1 >= len(input) || input[i+1] != '{' {
			out.WriteByte(input[i])
			i++
			continue
		}

		closeIdx := strings.IndexByte(input[i+2:], '}')
		if closeIdx < 0 {
			out.WriteByte(input[i])
			i++
			continue
		}

		name := input[i+2 : i+2+closeIdx]
		reference := input[i : i+2+closeIdx+1]
		if !isVariableName(name) {
			out.WriteString(reference)
			i += len(reference)
			continue
		}

		if value, ok := env[name]; ok {
			out.WriteString(value)
		} else {
			out.WriteString(reference)
			if !reported[name] {
				reported[name] = true
				unresolved = append(unresolved, name)
			}
		}
		i += len(reference)
	}

	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved variables: %s", strings.Join(unresolved, ", "))
	}
	return out.String(), nil
}

// isVariableName reports whether name is a valid ${NAME} identifier:
// a letter or underscore followed by letters, digits, or underscores.
func isVariableName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ExpandParameters returns a copy of parameters with every value passed
// through Expand against env.
func ExpandParameters(parameters map[string]string, env map[string]string) (map[string]string, error) {
	expanded := make(map[string]string, len(parameters))
	for key, value := range parameters {
		v, err := Expand(value, env)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		expanded[key] = v
	}
	return expanded, nil
}
