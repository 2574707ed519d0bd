// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package master

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fidelio-project/fidelio/internal/model"
)

// SchemaLoader produces a typed descriptor set from a schema file.
// Schema parsing itself is out of scope of the container-orchestration
// behavior this module implements; SchemaLoader is the seam a real
// deployment plugs a richer format (XML/JAXB-style, a database, a
// remote API) behind. JSONLoader is the only implementation this
// module ships.
type SchemaLoader interface {
	Load(path string) ([]model.ContainerDescriptor, error)
}

// JSONLoader reads a schema file containing a JSON array of
// model.ContainerDescriptor values.
type JSONLoader struct{}

// Load implements SchemaLoader.
func (JSONLoader) Load(path string) ([]model.ContainerDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	var descriptors []model.ContainerDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", path, err)
	}
	for i, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("schema %s: descriptor %d: %w", path, i, err)
		}
	}
	return descriptors, nil
}
