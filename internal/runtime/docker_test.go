// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"testing"

	"github.com/fidelio-project/fidelio/internal/config"
	"github.com/fidelio-project/fidelio/internal/model"
)

func TestEnvSlice(t *testing.T) {
	entries := map[string]string{"MODE": "prod"}
	got := envSlice(entries)
	if len(got) != 1 || got[0] != "MODE=prod" {
		t.Errorf("envSlice() = %v", got)
	}
}

func TestEnvSliceEmpty(t *testing.T) {
	if got := envSlice(nil); len(got) != 0 {
		t.Errorf("envSlice(nil) = %v, want empty", got)
	}
}

func TestCoordinateEnv(t *testing.T) {
	descriptor := model.ContainerDescriptor{ServiceName: "checkout", Type: model.Business}
	coordinates := Coordinates{CoordinationHosts: []string{"etcd-0:2379", "etcd-1:2379"}, Root: "/fidelio"}

	got := coordinateEnv(descriptor, coordinates)

	want := map[string]string{
		config.EnvCoordinationHosts: "etcd-0:2379,etcd-1:2379",
		config.EnvRoot:              "/fidelio",
		config.EnvServiceName:       "checkout",
		config.EnvType:              "Business",
	}
	if len(got) != len(want) {
		t.Fatalf("coordinateEnv() = %v, want %d entries", got, len(want))
	}
	for _, entry := range got {
		found := false
		for k, v := range want {
			if entry == k+"="+v {
				found = true
			}
		}
		if !found {
			t.Errorf("unexpected entry %q in coordinateEnv() = %v", entry, got)
		}
	}
}
