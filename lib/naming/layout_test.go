// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package naming

import (
	"testing"

	"github.com/fidelio-project/fidelio/internal/model"
)

func TestValidateServiceName(t *testing.T) {
	tests := []struct {
		name    string
		svcName string
		wantErr bool
	}{
		{"empty", "", true},
		{"simple", "web", false},
		{"with dot", "web.frontend", false},
		{"with dash and underscore", "web-front_end", false},
		{"contains slash", "web/frontend", true},
		{"contains space", "web frontend", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceName(tt.svcName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServiceName(%q) error = %v, wantErr %v", tt.svcName, err, tt.wantErr)
			}
		})
	}
}

func TestNewLayoutTrimsTrailingSlash(t *testing.T) {
	l := NewLayout("/fidelio/")
	if l.Root() != "/fidelio" {
		t.Errorf("Root() = %q, want /fidelio", l.Root())
	}
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/fidelio")

	if got, want := l.ServicePath("web"), "/fidelio/naming/web"; got != want {
		t.Errorf("ServicePath() = %q, want %q", got, want)
	}
	if got, want := l.ContainerPath(model.Web, "web"), "/fidelio/containers/Web/web"; got != want {
		t.Errorf("ContainerPath() = %q, want %q", got, want)
	}
	if got, want := l.ConfigPath("web"), "/fidelio/conf/web"; got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
	if got, want := l.ShutdownPath(), "/fidelio/shutdown"; got != want {
		t.Errorf("ShutdownPath() = %q, want %q", got, want)
	}
	if got, want := l.ContainersRoot(), "/fidelio/containers"; got != want {
		t.Errorf("ContainersRoot() = %q, want %q", got, want)
	}
	if got, want := l.TypeRoot(model.Data), "/fidelio/containers/Data"; got != want {
		t.Errorf("TypeRoot() = %q, want %q", got, want)
	}
}

func TestLayoutResolve(t *testing.T) {
	l := NewLayout("/fidelio")
	resolved := l.Resolve([]string{"web", "db"})
	if len(resolved) != 2 {
		t.Fatalf("Resolve() returned %d entries, want 2", len(resolved))
	}
	if resolved["web"] != "/fidelio/naming/web" {
		t.Errorf("Resolve()[web] = %q", resolved["web"])
	}
	if resolved["db"] != "/fidelio/naming/db" {
		t.Errorf("Resolve()[db] = %q", resolved["db"])
	}
}
