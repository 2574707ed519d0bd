// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fidelio-project/fidelio/internal/config"
	"github.com/fidelio-project/fidelio/internal/master"
	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/internal/runtime"
)

// buildMaster loads config, connects a runtime client and a
// coordination session, and returns a ready-to-use Master plus the
// loaded config (schema path, filtering). Callers must call the
// returned close func.
func buildMaster(ctx context.Context) (*master.Master, config.MasterConfig, func(), error) {
	cfg, err := config.LoadMaster(configPath)
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("loading config: %w", err)
	}

	if cfg.RuntimeHost != "" {
		os.Setenv("DOCKER_HOST", cfg.RuntimeHost)
	}
	dockerClient, err := runtime.NewDockerClient()
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("connecting to container runtime: %w", err)
	}

	sessionTimeout, err := cfg.SessionTimeoutDuration()
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("parsing session_timeout: %w", err)
	}

	m := master.New(master.Config{
		CoordinationHosts: cfg.CoordinationHosts,
		SessionTimeout:    sessionTimeout,
		Root:              cfg.Root,
		Runtime:           dockerClient,
		Logger:            slog.Default(),
	})
	if err := m.Connect(ctx); err != nil {
		return nil, cfg, nil, fmt.Errorf("connecting to coordination store: %w", err)
	}

	return m, cfg, func() { m.Close() }, nil
}

func loadDescriptors(cfg config.MasterConfig, serviceFilter string) ([]model.ContainerDescriptor, error) {
	if cfg.SchemaPath == "" {
		return nil, fmt.Errorf("config: schema_path is required")
	}
	descriptors, err := (master.JSONLoader{}).Load(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}
	if serviceFilter == "" {
		return descriptors, nil
	}
	for _, d := range descriptors {
		if d.ServiceName == serviceFilter {
			return []model.ContainerDescriptor{d}, nil
		}
	}
	return nil, fmt.Errorf("service %q not found in schema %s", serviceFilter, cfg.SchemaPath)
}

func startServices(ctx context.Context, serviceFilter string) error {
	m, cfg, closeFn, err := buildMaster(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	descriptors, err := loadDescriptors(cfg, serviceFilter)
	if err != nil {
		return err
	}

	if err := m.Provision(ctx, descriptors); err != nil {
		return fmt.Errorf("provisioning: %w", err)
	}
	if err := m.Launch(ctx, descriptors); err != nil {
		return fmt.Errorf("launching: %w", err)
	}
	fmt.Printf("started %d service(s)\n", len(descriptors))
	return nil
}

func stopService(ctx context.Context, serviceName string) error {
	m, _, closeFn, err := buildMaster(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Stop(ctx, serviceName); err != nil {
		return fmt.Errorf("stopping %s: %w", serviceName, err)
	}
	fmt.Printf("stopped %s\n", serviceName)
	return nil
}

func restartService(ctx context.Context, serviceName string) error {
	m, cfg, closeFn, err := buildMaster(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Stop(ctx, serviceName); err != nil {
		return fmt.Errorf("stopping %s: %w", serviceName, err)
	}

	descriptors, err := loadDescriptors(cfg, serviceName)
	if err != nil {
		return err
	}
	if err := m.Launch(ctx, descriptors); err != nil {
		return fmt.Errorf("relaunching %s: %w", serviceName, err)
	}
	fmt.Printf("restarted %s\n", serviceName)
	return nil
}

func showStatus(ctx context.Context, serviceName string) error {
	m, _, closeFn, err := buildMaster(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	payload, err := m.Status(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("reading status for %s: %w", serviceName, err)
	}
	fmt.Printf("%s: status=%s containerPath=%s\n", serviceName, payload.Status, payload.ContainerPath)
	return nil
}
