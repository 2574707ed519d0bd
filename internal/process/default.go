// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/fidelio-project/fidelio/internal/model"
)

// DefaultHandler spawns a process with the resource's command and
// environment, blocks on termination, and reports success iff the
// process exits with status zero. Used for PreMain and PostMain
// resources, which are expected to run to completion.
type DefaultHandler struct {
	resource model.Resource
	env      map[string]string

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	waitErr error
}

// NewDefaultHandler builds a DefaultHandler for resource, spawned with
// the given process environment.
func NewDefaultHandler(resource model.Resource, env map[string]string) *DefaultHandler {
	return &DefaultHandler{resource: resource, env: env}
}

// Init validates that the resource has an executable path.
func (h *DefaultHandler) Init() error {
	if h.resource.Executable == "" {
		return fmt.Errorf("resource %s: no executable configured", h.resource.Name)
	}
	return nil
}

// Start spawns the process. It returns once the process has been
// launched, not once it has exited; call WaitFor to block on
// termination.
func (h *DefaultHandler) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cmd := command(ctx, h.resource, h.env)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting resource %s: %w", h.resource.Name, err)
	}
	h.cmd = cmd
	h.running = true
	return nil
}

// WaitFor blocks until the process terminates and reports whether it
// exited successfully.
func (h *DefaultHandler) WaitFor(ctx context.Context) error {
	h.mu.Lock()
	cmd := h.cmd
	h.mu.Unlock()
	if cmd == nil {
		return fmt.Errorf("resource %s: not started", h.resource.Name)
	}

	err := cmd.Wait()

	h.mu.Lock()
	h.running = false
	h.waitErr = err
	h.mu.Unlock()

	if err != nil {
		return &ExitError{Name: h.resource.Name, Code: exitCode(err)}
	}
	return nil
}

// Stop sends SIGTERM to the process group. It does not wait for the
// process to exit; the caller should still call WaitFor to reap it.
func (h *DefaultHandler) Stop() error {
	h.mu.Lock()
	cmd := h.cmd
	h.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return terminateGroup(cmd)
}

// IsRunning reports whether the process is currently believed to be
// running.
func (h *DefaultHandler) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}
