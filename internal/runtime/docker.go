// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fidelio-project/fidelio/internal/config"
	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

const (
	labelService = "fidelio.service"
	labelType    = "fidelio.type"
)

// DockerClient implements Client against the Docker Engine API via
// moby/moby/client. Fidelio containers are named after their service
// and labeled with their service name and type so ListContainers can
// filter without a side database.
type DockerClient struct {
	engine *client.Client
}

// NewDockerClient connects to the Docker daemon using the standard
// DOCKER_HOST/DOCKER_TLS_VERIFY environment variables.
func NewDockerClient() (*DockerClient, error) {
	engine, err := client.New(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("connecting to container runtime: %w", err)
	}
	return &DockerClient{engine: engine}, nil
}

// CreateContainer creates (but does not start) a container for
// descriptor's main resource, labeled for later ListContainers
// filtering and with coordinates set as the FIDELIO_COORDINATION_HOSTS/
// FIDELIO_ROOT/FIDELIO_SERVICE_NAME/FIDELIO_TYPE environment variables
// internal/config.LoadBroker reads, so the Broker running inside the
// container needs no per-container config file baked into the image.
func (c *DockerClient) CreateContainer(ctx context.Context, descriptor model.ContainerDescriptor, coordinates Coordinates) (string, error) {
	main := descriptor.ProcessSpec.Start.Main

	cfg := &container.Config{
		Image: main.Executable,
		Env:   append(envSlice(descriptor.Environment.Entries), coordinateEnv(descriptor, coordinates)...),
		Labels: map[string]string{
			labelService: descriptor.ServiceName,
			labelType:    string(descriptor.Type),
		},
	}
	if len(main.Args) > 0 {
		cfg.Cmd = main.Args
	}

	hostCfg := &container.HostConfig{}

	created, err := c.engine.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     cfg,
		HostConfig: hostCfg,
		Name:       descriptor.ServiceName,
		Image:      main.Executable,
	})
	if err != nil {
		return "", fmt.Errorf("creating container for %s: %w", descriptor.ServiceName, err)
	}
	return created.ID, nil
}

// StartContainer starts a previously created container.
func (c *DockerClient) StartContainer(ctx context.Context, id string) error {
	if _, err := c.engine.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", id, err)
	}
	return nil
}

// StopContainer stops a running container within timeout.
func (c *DockerClient) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if _, err := c.engine.ContainerStop(ctx, id, client.ContainerStopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("stopping container %s: %w", id, err)
	}
	return nil
}

// RemoveContainer removes a stopped container.
func (c *DockerClient) RemoveContainer(ctx context.Context, id string) error {
	if _, err := c.engine.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("removing container %s: %w", id, err)
	}
	return nil
}

// ListContainers reports containers matching filter's service name
// and/or type labels.
func (c *DockerClient) ListContainers(ctx context.Context, filter ContainerFilter) ([]ContainerSummary, error) {
	f := make(client.Filters)
	if filter.ServiceName != "" {
		f.Add("label", labelService+"="+filter.ServiceName)
	}
	if filter.Type != "" {
		f.Add("label", labelType+"="+string(filter.Type))
	}

	listed, err := c.engine.ContainerList(ctx, client.ContainerListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	summaries := make([]ContainerSummary, 0, len(listed.Items))
	for _, item := range listed.Items {
		summaries = append(summaries, ContainerSummary{
			ID:          item.ID,
			ServiceName: item.Labels[labelService],
			Type:        model.ContainerType(item.Labels[labelType]),
			Running:     item.State == "running",
		})
	}
	return summaries, nil
}

func envSlice(entries map[string]string) []string {
	out := make([]string, 0, len(entries))
	for k, v := range entries {
		out = append(out, k+"="+v)
	}
	return out
}

func coordinateEnv(descriptor model.ContainerDescriptor, coordinates Coordinates) []string {
	return []string{
		config.EnvCoordinationHosts + "=" + strings.Join(coordinates.CoordinationHosts, ","),
		config.EnvRoot + "=" + coordinates.Root,
		config.EnvServiceName + "=" + descriptor.ServiceName,
		config.EnvType + "=" + string(descriptor.Type),
	}
}
