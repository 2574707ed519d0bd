// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fidelio-project/fidelio/internal/model"
)

// FailureReason distinguishes why a start group failed, per spec.md
// §4.5: whether the main resource never came up, or it did but a
// post-main resource failed afterward.
type FailureReason int

const (
	// NotRunning means the main resource itself failed to start or
	// never became ready.
	NotRunning FailureReason = iota
	// NotInitialized means main started successfully but a post-main
	// resource failed.
	NotInitialized
)

// HandlerFactory builds a Handler for one resource in a group. The
// process manager supplies factories bound to a specific environment
// so the group handlers stay environment-agnostic.
type HandlerFactory func(resource model.Resource) Handler

// StartGroupHandler runs a container's start group: every PreMain
// resource in order (all must succeed), then Main and its readiness
// probe, then every PostMain resource in order. On any failure it
// aborts the remaining sequence and reports why; on success it invokes
// onSuccess. It does not monitor the main resource afterwards;
// Manager.WaitForMainProc blocks on it.
type StartGroupHandler struct {
	group      model.Group
	newHandler HandlerFactory
	logger     *slog.Logger

	onFailure func(reason FailureReason, err error)
	onSuccess func()

	mainHandler Handler
}

// NewStartGroupHandler builds a StartGroupHandler for group, using
// newHandler to construct a Handler per resource.
func NewStartGroupHandler(group model.Group, newHandler HandlerFactory, logger *slog.Logger, onFailure func(FailureReason, error), onSuccess func()) *StartGroupHandler {
	return &StartGroupHandler{
		group:      group,
		newHandler: newHandler,
		logger:     logger,
		onFailure:  onFailure,
		onSuccess:  onSuccess,
	}
}

// Run executes the start group. It returns nil once the group has
// fully started (post-main resources included). On failure it calls
// onFailure with the reason, since the caller's lifecycle transition
// depends on which case occurred, and also returns the error.
func (h *StartGroupHandler) Run(ctx context.Context) error {
	for _, resource := range h.group.PreMain {
		if err := h.runToCompletion(ctx, resource); err != nil {
			h.logger.Error("preMain resource failed", "resource", resource.Name, "error", err)
			h.onFailure(NotRunning, err)
			return err
		}
	}

	main := h.newHandler(h.group.Main)
	if err := main.Init(); err != nil {
		h.onFailure(NotRunning, err)
		return err
	}
	if err := main.Start(ctx); err != nil {
		h.logger.Error("main resource failed to start", "resource", h.group.Main.Name, "error", err)
		h.onFailure(NotRunning, err)
		return err
	}
	h.mainHandler = main

	for _, resource := range h.group.PostMain {
		if err := h.runToCompletion(ctx, resource); err != nil {
			h.logger.Error("postMain resource failed", "resource", resource.Name, "error", err)
			h.onFailure(NotInitialized, err)
			return err
		}
	}

	h.logger.Info("start group completed", "main", h.group.Main.Name)
	h.onSuccess()
	return nil
}

// runToCompletion starts a resource and blocks until it terminates,
// used for PreMain and PostMain resources which are expected to run
// to completion rather than persist.
func (h *StartGroupHandler) runToCompletion(ctx context.Context, resource model.Resource) error {
	handler := h.newHandler(resource)
	if err := handler.Init(); err != nil {
		return err
	}
	if err := handler.Start(ctx); err != nil {
		return err
	}
	return handler.WaitFor(ctx)
}

// Main returns the main resource's Handler once it has started, or nil
// if it never started. It stays set when a post-main resource fails
// afterwards.
func (h *StartGroupHandler) Main() Handler {
	return h.mainHandler
}

// StopGroupHandler runs a container's stop group: every resource
// (PreMain, Main, PostMain) in order, best-effort. Failures are logged
// but never abort the sequence, since shutdown must always complete.
type StopGroupHandler struct {
	group      model.Group
	newHandler HandlerFactory
	logger     *slog.Logger
}

// NewStopGroupHandler builds a StopGroupHandler for group.
func NewStopGroupHandler(group model.Group, newHandler HandlerFactory, logger *slog.Logger) *StopGroupHandler {
	return &StopGroupHandler{group: group, newHandler: newHandler, logger: logger}
}

// Run executes every stop resource in order. It always returns nil;
// per-resource failures are logged, not propagated.
func (h *StopGroupHandler) Run(ctx context.Context) error {
	for _, resource := range h.group.Resources() {
		handler := h.newHandler(resource)
		if err := handler.Init(); err != nil {
			h.logger.Warn("stop resource init failed, skipping", "resource", resource.Name, "error", err)
			continue
		}
		if err := handler.Start(ctx); err != nil {
			h.logger.Warn("stop resource failed to start", "resource", resource.Name, "error", err)
			continue
		}
		if err := handler.WaitFor(ctx); err != nil {
			h.logger.Warn("stop resource exited with error", "resource", resource.Name, "error", err)
		}
	}
	return nil
}

// Manager owns a container's start and stop group handlers and exposes
// the process-manager operations of spec.md §4.5.
type Manager struct {
	descriptor model.ContainerDescriptor
	newHandler HandlerFactory
	logger     *slog.Logger
	onFailure  func(FailureReason, error)
	onSuccess  func()

	startGroup *StartGroupHandler
	stopGroup  *StopGroupHandler
}

// NewManager builds a Manager for descriptor's process spec.
func NewManager(descriptor model.ContainerDescriptor, newHandler HandlerFactory, logger *slog.Logger, onFailure func(FailureReason, error), onSuccess func()) *Manager {
	return &Manager{
		descriptor: descriptor,
		newHandler: newHandler,
		logger:     logger,
		onFailure:  onFailure,
		onSuccess:  onSuccess,
	}
}

// ExecStart runs the container's start group.
func (m *Manager) ExecStart(ctx context.Context) error {
	m.startGroup = NewStartGroupHandler(m.descriptor.ProcessSpec.Start, m.newHandler, m.logger, m.onFailure, m.onSuccess)
	return m.startGroup.Run(ctx)
}

// ExecStop runs the container's stop group. It is safe to call even
// if ExecStart never ran or failed partway through.
func (m *Manager) ExecStop(ctx context.Context) error {
	m.stopGroup = NewStopGroupHandler(m.descriptor.ProcessSpec.Stop, m.newHandler, m.logger)
	return m.stopGroup.Run(ctx)
}

// WaitForMainProc blocks until the running main resource terminates.
// Returns an error if the main resource never started.
func (m *Manager) WaitForMainProc(ctx context.Context) error {
	if m.startGroup == nil || m.startGroup.Main() == nil {
		return fmt.Errorf("container %s: main resource is not running", m.descriptor.ServiceName)
	}
	return m.startGroup.Main().WaitFor(ctx)
}

// IsStopHandlerInit reports whether ExecStop has been invoked at least
// once for this Manager.
func (m *Manager) IsStopHandlerInit() bool {
	return m.stopGroup != nil
}
