// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadBroker_RequiresPathOrEnv(t *testing.T) {
	origConfig := os.Getenv("FIDELIO_CONFIG")
	defer os.Setenv("FIDELIO_CONFIG", origConfig)
	os.Unsetenv("FIDELIO_CONFIG")

	if _, err := LoadBroker(""); err == nil {
		t.Fatal("expected error when neither --config nor FIDELIO_CONFIG is set")
	}
}

func TestLoadBroker_FromExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "broker.yaml")

	content := `
service_name: checkout
type: Business
coordination_hosts:
  - etcd-0.internal:2379
  - etcd-1.internal:2379
session_timeout: 15s
root: /fidelio
readiness:
  attempts: 5
  dial_timeout: 500ms
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadBroker(configPath)
	if err != nil {
		t.Fatalf("LoadBroker() error = %v", err)
	}
	if cfg.ServiceName != "checkout" {
		t.Errorf("ServiceName = %q, want checkout", cfg.ServiceName)
	}
	if cfg.Type != "Business" {
		t.Errorf("Type = %q, want Business", cfg.Type)
	}
	if len(cfg.CoordinationHosts) != 2 {
		t.Fatalf("CoordinationHosts = %v, want 2 entries", cfg.CoordinationHosts)
	}
	if cfg.Readiness.Attempts != 5 {
		t.Errorf("Readiness.Attempts = %d, want 5", cfg.Readiness.Attempts)
	}

	got, err := cfg.SessionTimeoutDuration()
	if err != nil {
		t.Fatalf("SessionTimeoutDuration() error = %v", err)
	}
	if got != 15*time.Second {
		t.Errorf("SessionTimeoutDuration() = %v, want 15s", got)
	}
}

func TestLoadBroker_FromEnv(t *testing.T) {
	origConfig := os.Getenv("FIDELIO_CONFIG")
	defer os.Setenv("FIDELIO_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "broker.yaml")
	content := "service_name: catalog\ntype: Web\ncoordination_hosts: [etcd-0:2379]\nroot: /fidelio\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	os.Setenv("FIDELIO_CONFIG", configPath)

	cfg, err := LoadBroker("")
	if err != nil {
		t.Fatalf("LoadBroker(\"\") error = %v", err)
	}
	if cfg.ServiceName != "catalog" {
		t.Errorf("ServiceName = %q, want catalog", cfg.ServiceName)
	}

	got, err := cfg.SessionTimeoutDuration()
	if err != nil {
		t.Fatalf("SessionTimeoutDuration() error = %v", err)
	}
	if got != 20*time.Second {
		t.Errorf("SessionTimeoutDuration() default = %v, want 20s", got)
	}
}

func TestLoadBroker_CoordinateOverridesFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "broker.yaml")
	content := "service_name: placeholder\ntype: Web\ncoordination_hosts: [baked-in:2379]\nroot: /baked-in\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	for name, value := range map[string]string{
		EnvCoordinationHosts: "etcd-0.internal:2379,etcd-1.internal:2379",
		EnvRoot:              "/fidelio",
		EnvServiceName:       "checkout",
		EnvType:              "Business",
	} {
		orig := os.Getenv(name)
		os.Setenv(name, value)
		defer os.Setenv(name, orig)
	}

	cfg, err := LoadBroker(configPath)
	if err != nil {
		t.Fatalf("LoadBroker() error = %v", err)
	}
	if cfg.ServiceName != "checkout" {
		t.Errorf("ServiceName = %q, want checkout (env override)", cfg.ServiceName)
	}
	if cfg.Type != "Business" {
		t.Errorf("Type = %q, want Business (env override)", cfg.Type)
	}
	if cfg.Root != "/fidelio" {
		t.Errorf("Root = %q, want /fidelio (env override)", cfg.Root)
	}
	want := []string{"etcd-0.internal:2379", "etcd-1.internal:2379"}
	if len(cfg.CoordinationHosts) != len(want) || cfg.CoordinationHosts[0] != want[0] || cfg.CoordinationHosts[1] != want[1] {
		t.Errorf("CoordinationHosts = %v, want %v", cfg.CoordinationHosts, want)
	}
}

func TestLoadBroker_MissingRequiredField(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "broker.yaml")
	if err := os.WriteFile(configPath, []byte("type: Web\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadBroker(configPath); err == nil {
		t.Fatal("expected validation error for missing service_name")
	}
}

func TestLoadMaster_FromExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "master.yaml")
	content := `
coordination_hosts: [etcd-0:2379]
root: /fidelio
schema_path: /etc/fidelio/services.json
runtime_host: unix:///var/run/docker.sock
tls:
  cert_file: /etc/fidelio/tls/client.crt
  key_file: /etc/fidelio/tls/client.key
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadMaster(configPath)
	if err != nil {
		t.Fatalf("LoadMaster() error = %v", err)
	}
	if cfg.SchemaPath != "/etc/fidelio/services.json" {
		t.Errorf("SchemaPath = %q, want /etc/fidelio/services.json", cfg.SchemaPath)
	}
	if cfg.TLS.CertFile == "" {
		t.Error("TLS.CertFile not populated")
	}
}

func TestLoadMaster_MissingRoot(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "master.yaml")
	if err := os.WriteFile(configPath, []byte("coordination_hosts: [etcd-0:2379]\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadMaster(configPath); err == nil {
		t.Fatal("expected validation error for missing root")
	}
}
