// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Fidelio's YAML configuration.
//
// Configuration is loaded from a single file specified by:
//   - the FIDELIO_CONFIG environment variable, or
//   - the --config flag passed to the command
//
// There are no fallbacks or automatic discovery of the file itself.
// This ensures deterministic, auditable configuration with no hidden
// overrides, mirroring the coordination layer's single-source node
// paths.
//
// Separately, BrokerConfig's coordination-store coordinates
// (coordination_hosts, root, service_name, type) may also be supplied
// by the FIDELIO_COORDINATION_HOSTS, FIDELIO_ROOT,
// FIDELIO_SERVICE_NAME, and FIDELIO_TYPE environment variables, which
// override whatever the config file sets. This is how the Master
// hands a launched container its coordinates, spec.md §2: the image
// carries one broker.yaml with tuning knobs (readiness, session
// timeout) but no per-container identity baked in, and
// internal/runtime.DockerClient sets these variables on the container
// it creates.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names a launched container's Broker reads its
// coordination-store coordinates from, set by
// internal/runtime.DockerClient.CreateContainer.
const (
	EnvCoordinationHosts = "FIDELIO_COORDINATION_HOSTS"
	EnvRoot              = "FIDELIO_ROOT"
	EnvServiceName       = "FIDELIO_SERVICE_NAME"
	EnvType              = "FIDELIO_TYPE"
)

// BrokerConfig is the configuration for cmd/fidelio-broker.
type BrokerConfig struct {
	// ServiceName identifies the container this Broker drives.
	ServiceName string `yaml:"service_name"`
	// Type is one of Web, Business, Data.
	Type string `yaml:"type"`

	// CoordinationHosts are the coordination-store endpoints to dial.
	CoordinationHosts []string `yaml:"coordination_hosts"`
	// SessionTimeout is the lease TTL requested on connect, spec.md
	// §5's "typically 10-30s", expressed as a Go duration string
	// (e.g. "20s").
	SessionTimeout string `yaml:"session_timeout"`
	// Root is the coordination-store root path, spec.md §6.
	Root string `yaml:"root"`

	// Readiness bounds the main resource's TCP readiness probe.
	Readiness ReadinessConfig `yaml:"readiness"`
}

// ReadinessConfig mirrors process.ReadinessConfig in YAML-friendly
// form; internal/config never imports internal/process to keep the
// dependency direction pointing from cmd/ down through config, not
// sideways between packages.
type ReadinessConfig struct {
	Attempts       int    `yaml:"attempts"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
	DialTimeout    string `yaml:"dial_timeout"`
}

// SessionTimeoutDuration parses SessionTimeout, defaulting to 20s if
// unset.
func (c BrokerConfig) SessionTimeoutDuration() (time.Duration, error) {
	return parseDurationOrDefault(c.SessionTimeout, 20*time.Second)
}

// MasterConfig is the configuration for cmd/fidelio-master.
type MasterConfig struct {
	// CoordinationHosts are the coordination-store endpoints to dial.
	CoordinationHosts []string `yaml:"coordination_hosts"`
	// SessionTimeout is the Master's own session lease TTL.
	SessionTimeout string `yaml:"session_timeout"`
	// Root is the coordination-store root path, spec.md §6.
	Root string `yaml:"root"`

	// SchemaPath is the descriptor set file passed to the configured
	// SchemaLoader.
	SchemaPath string `yaml:"schema_path"`

	// RuntimeHost is the container runtime endpoint (e.g. a Docker
	// daemon socket or TCP address).
	RuntimeHost string `yaml:"runtime_host"`

	// TLS names optional client certificate files. They are loaded
	// with the rest of the config, but cmd/fidelio-master does not pass
	// them to the coordination-store connection or the runtime client.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig names certificate files on disk. Empty fields mean
// plaintext.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

func (c MasterConfig) SessionTimeoutDuration() (time.Duration, error) {
	return parseDurationOrDefault(c.SessionTimeout, 20*time.Second)
}

func parseDurationOrDefault(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", s, err)
	}
	return d, nil
}

// resolvePath returns the explicit path if non-empty, otherwise the
// FIDELIO_CONFIG environment variable. It fails if neither is set,
// per the package doc's no-fallback contract.
func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if path := os.Getenv("FIDELIO_CONFIG"); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("no config path given: pass --config or set FIDELIO_CONFIG")
}

// LoadBroker loads a BrokerConfig from path, or from FIDELIO_CONFIG if
// path is empty.
func LoadBroker(path string) (BrokerConfig, error) {
	var cfg BrokerConfig
	resolved, err := resolvePath(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", resolved, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", resolved, err)
	}
	cfg = cfg.withCoordinateOverrides()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// withCoordinateOverrides applies FIDELIO_COORDINATION_HOSTS,
// FIDELIO_ROOT, FIDELIO_SERVICE_NAME, and FIDELIO_TYPE on top of
// whatever the config file set, letting a launched container's Broker
// pick up per-instance coordinates from its environment without a
// per-container config file.
func (c BrokerConfig) withCoordinateOverrides() BrokerConfig {
	if hosts := os.Getenv(EnvCoordinationHosts); hosts != "" {
		c.CoordinationHosts = strings.Split(hosts, ",")
	}
	if root := os.Getenv(EnvRoot); root != "" {
		c.Root = root
	}
	if serviceName := os.Getenv(EnvServiceName); serviceName != "" {
		c.ServiceName = serviceName
	}
	if containerType := os.Getenv(EnvType); containerType != "" {
		c.Type = containerType
	}
	return c
}

func (c BrokerConfig) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("config: service_name is required")
	}
	if c.Type == "" {
		return fmt.Errorf("config: type is required")
	}
	if len(c.CoordinationHosts) == 0 {
		return fmt.Errorf("config: coordination_hosts is required")
	}
	if c.Root == "" {
		return fmt.Errorf("config: root is required")
	}
	return nil
}

// LoadMaster loads a MasterConfig from path, or from FIDELIO_CONFIG if
// path is empty.
func LoadMaster(path string) (MasterConfig, error) {
	var cfg MasterConfig
	resolved, err := resolvePath(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", resolved, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", resolved, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c MasterConfig) validate() error {
	if len(c.CoordinationHosts) == 0 {
		return fmt.Errorf("config: coordination_hosts is required")
	}
	if c.Root == "" {
		return fmt.Errorf("config: root is required")
	}
	return nil
}
