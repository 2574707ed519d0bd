// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package master

import (
	"os"
	"path/filepath"
	"testing"
)

const validSchema = `[
  {
    "serviceName": "catalog",
    "type": "Business",
    "processSpec": {
      "start": {
        "main": {"name": "main", "executable": "catalog:latest", "kind": "main", "hostPort": 8080}
      },
      "stop": {
        "main": {"name": "main", "executable": "catalog:latest", "kind": "main"}
      }
    },
    "environment": {"host": "catalog.internal", "port": 8080}
  }
]`

func writeSchema(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing schema: %v", err)
	}
	return path
}

func TestJSONLoader_Load(t *testing.T) {
	path := writeSchema(t, validSchema)

	descriptors, err := JSONLoader{}.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("len(descriptors) = %d, want 1", len(descriptors))
	}
	if descriptors[0].ServiceName != "catalog" {
		t.Errorf("ServiceName = %q, want catalog", descriptors[0].ServiceName)
	}
	if descriptors[0].ProcessSpec.Start.Main.Executable != "catalog:latest" {
		t.Errorf("Executable = %q, want catalog:latest", descriptors[0].ProcessSpec.Start.Main.Executable)
	}
}

func TestJSONLoader_Load_MissingFile(t *testing.T) {
	if _, err := (JSONLoader{}).Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestJSONLoader_Load_InvalidJSON(t *testing.T) {
	path := writeSchema(t, "{not valid json")
	if _, err := (JSONLoader{}).Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestJSONLoader_Load_FailsValidation(t *testing.T) {
	path := writeSchema(t, `[{"serviceName": "catalog", "type": "NotAType", "processSpec": {"start": {"main": {"executable": "x"}}}}]`)
	if _, err := (JSONLoader{}).Load(path); err == nil {
		t.Fatal("expected error for invalid container type")
	}
}
