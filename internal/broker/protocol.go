// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"fmt"
	"net"

	"github.com/fidelio-project/fidelio/internal/environment"
	"github.com/fidelio-project/fidelio/internal/lifecycle"
	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/internal/process"
	"github.com/fidelio-project/fidelio/internal/servicemgr"
	"github.com/fidelio-project/fidelio/internal/shutdown"
	"github.com/fidelio-project/fidelio/internal/task"
	"github.com/fidelio-project/fidelio/lib/coordination"
	"github.com/fidelio-project/fidelio/lib/naming"
)

// The Boot/InitContainer/Start/Stop/Update/Fail methods below implement
// lifecycle.Actions. Each only enqueues work; the actual protocol
// steps run asynchronously on the worker pool.

// Boot implements lifecycle.Actions: connect the session and arm the
// shutdown watch (spec.md §4.9 steps 1-2).
func (b *Broker) Boot() {
	b.pool.spawnLong(b.runBoot)
}

func (b *Broker) runBoot(ctx context.Context) {
	session, err := b.connect(ctx, b.cfg.CoordinationHosts, b.cfg.SessionTimeout, b.logger)
	b.metrics.recordCallback("connect", resultOrOther(err))
	if err != nil {
		b.logger.Error("connecting to coordination store", "error", err)
		b.enterError(lifecycle.ErrorEvent)
		return
	}
	b.session = session
	session.RegisterStateWatcher(b.onSessionStateChange)

	b.armShutdownWatch(ctx)

	if err := b.handle(lifecycle.ContainerInitEvent); err != nil {
		b.logger.Error("containerInitEvent rejected", "error", err)
	}
}

func (b *Broker) armShutdownWatch(ctx context.Context) {
	path := b.layout.ShutdownPath()
	exists, _, result := b.session.Exists(ctx, path, b.onShutdownWatchEvent)
	b.metrics.recordCallback("armShutdownWatch", result)
	if exists {
		if err := b.handle(lifecycle.ShutdownEvent); err != nil {
			b.logger.Debug("shutdownEvent rejected", "error", err)
		}
	}
}

func (b *Broker) onShutdownWatchEvent(ev coordination.Event) {
	b.pool.submit(func(ctx context.Context) {
		if ev.Type != coordination.NodeCreated {
			return
		}
		if err := b.handle(lifecycle.ShutdownEvent); err != nil {
			b.logger.Debug("shutdownEvent rejected", "error", err)
		}
	})
}

func (b *Broker) onSessionStateChange(ev coordination.Event) {
	if ev.Type == coordination.SessionStateChanged && ev.Result == coordination.SessionExpired {
		b.pool.spawnLong(b.recoverSession)
	}
}

// InitContainer implements lifecycle.Actions: claim the container
// node, wait for and process configuration, register as a service,
// and query dependencies (spec.md §4.9 steps 3-7).
func (b *Broker) InitContainer() {
	b.pool.spawnLong(b.runInitContainer)
}

func (b *Broker) runInitContainer(ctx context.Context) {
	if err := b.claimContainerNode(ctx); err != nil {
		b.logger.Error("claiming container node", "error", err)
		b.enterError(lifecycle.ErrorEvent)
		return
	}

	data, err := b.waitForConfiguration(ctx)
	if err != nil {
		b.logger.Error("waiting for configuration", "error", err)
		b.enterError(lifecycle.ErrorEvent)
		return
	}

	if err := b.processDescriptor(ctx, data); err != nil {
		b.logger.Error("processing descriptor", "error", err)
		b.enterError(lifecycle.ErrorEvent)
		return
	}

	if err := b.registerAsService(ctx); err != nil {
		b.logger.Error("registering as service", "error", err)
		b.enterError(lifecycle.ErrorEvent)
		return
	}

	b.queryDependencies(ctx)

	desc := b.descriptorSnapshot()
	if len(desc.Requires) == 0 {
		if err := b.handle(lifecycle.ServiceNoneEvent); err != nil {
			b.logger.Error("serviceNoneEvent rejected", "error", err)
		}
	}
	// If there are dependencies, watchDependency's callbacks drive the
	// state machine forward as each one resolves.
}

func (b *Broker) claimContainerNode(ctx context.Context) error {
	containerPath := b.layout.ContainerPath(b.cfg.Type, b.cfg.ServiceName)
	result, err := coordination.WithRetry(ctx, b.clk, b.logger, coordination.RetryConfig{OnRetry: b.metrics.recordRetry}, func() (coordination.Result, error) {
		return b.session.CheckAndCreate(ctx, containerPath, []byte(b.brokerID), coordination.Ephemeral, []byte(b.brokerID))
	})
	b.metrics.recordCallback("claimContainerNode", result)
	if result != coordination.OK {
		return fmt.Errorf("claiming container node %s: %s: %w", containerPath, result, err)
	}
	b.containerPath = containerPath
	return nil
}

// waitForConfiguration implements spec.md §4.9 step 4: if the
// configuration node already exists, read it immediately; otherwise
// wait for its creation.
func (b *Broker) waitForConfiguration(ctx context.Context) ([]byte, error) {
	confPath := b.layout.ConfigPath(b.cfg.ServiceName)

	events := make(chan coordination.Event, 1)
	exists, _, result := b.session.Exists(ctx, confPath, func(ev coordination.Event) { events <- ev })
	b.metrics.recordCallback("waitForConfiguration.exists", result)
	if result != coordination.OK && result != coordination.NoNode {
		return nil, fmt.Errorf("checking configuration node %s: %s", confPath, result)
	}

	if !exists {
		select {
		case ev := <-events:
			if ev.Type != coordination.NodeCreated {
				return nil, fmt.Errorf("unexpected event %s waiting for configuration node %s", ev.Type, confPath)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	data, _, result := b.session.GetData(ctx, confPath, nil)
	b.metrics.recordCallback("waitForConfiguration.getData", result)
	if result != coordination.OK {
		return nil, fmt.Errorf("reading configuration node %s: %s", confPath, result)
	}
	return data, nil
}

// processDescriptor implements spec.md §4.9 step 5: deserialize,
// resolve each requirement to its naming path, initialize the service
// manager, and republish the descriptor on the container node.
func (b *Broker) processDescriptor(ctx context.Context, data []byte) error {
	desc, err := model.UnmarshalDescriptor(data)
	if err != nil {
		return fmt.Errorf("unmarshaling descriptor: %w", err)
	}
	if err := desc.Validate(); err != nil {
		return err
	}

	b.descriptorMu.Lock()
	b.descriptor = desc
	b.descriptorMu.Unlock()

	table := servicemgr.New(len(desc.Requires))
	resolved := b.layout.Resolve(desc.Requires)
	for name, nsPath := range resolved {
		table.Put(nsPath, name)
	}
	b.setTable(table)

	payload, err := desc.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling descriptor for republish: %w", err)
	}
	_, result := b.session.SetData(ctx, b.containerPath, payload, -1)
	b.metrics.recordCallback("processDescriptor.setData", result)
	if result != coordination.OK {
		return fmt.Errorf("republishing descriptor on container node: %s", result)
	}
	return nil
}

// registerAsService implements spec.md §4.9 step 6.
func (b *Broker) registerAsService(ctx context.Context) error {
	desc := b.descriptorSnapshot()
	nsPath := b.layout.ServicePath(desc.ServiceName)

	payload := model.NamingPayload{ContainerPath: b.containerPath, Status: model.NotInitialized}
	data, err := naming.EncodePayload(payload)
	if err != nil {
		return fmt.Errorf("encoding naming payload: %w", err)
	}

	result, err := coordination.WithRetry(ctx, b.clk, b.logger, coordination.RetryConfig{OnRetry: b.metrics.recordRetry}, func() (coordination.Result, error) {
		return b.session.Create(ctx, nsPath, data, coordination.Ephemeral)
	})
	b.metrics.recordCallback("registerAsService", result)
	if result != coordination.OK {
		return fmt.Errorf("registering naming node %s: %s: %w", nsPath, result, err)
	}
	b.nsPath = nsPath
	b.setStatus(model.NotInitialized)
	return nil
}

// queryDependencies implements spec.md §4.9 step 7 by arming a watch
// on each dependency's naming path.
func (b *Broker) queryDependencies(ctx context.Context) {
	for _, nsPath := range b.tableNsPaths() {
		b.watchDependencyNaming(ctx, nsPath)
	}
}

func (b *Broker) watchDependencyNaming(ctx context.Context, nsPath string) {
	exists, _, result := b.session.Exists(ctx, nsPath, b.onDependencyNamingEvent(nsPath))
	b.metrics.recordCallback("watchDependencyNaming.exists", result)
	if result != coordination.OK && result != coordination.NoNode {
		b.logger.Error("watching dependency naming node", "nsPath", nsPath, "result", result)
		return
	}
	if !exists {
		return // the armed watch fires once the dependency registers.
	}
	b.resolveDependency(ctx, nsPath)
}

// resolveDependency reads a dependency's naming payload and its
// container descriptor, records them in the service table, re-arms
// both watches, and advances the state machine.
func (b *Broker) resolveDependency(ctx context.Context, nsPath string) {
	data, _, result := b.session.GetData(ctx, nsPath, b.onDependencyNamingEvent(nsPath))
	b.metrics.recordCallback("resolveDependency.getData", result)
	if result != coordination.OK {
		b.logger.Warn("reading dependency naming node", "nsPath", nsPath, "result", result)
		return
	}

	payload, err := naming.DecodePayload(data)
	if err != nil {
		b.logger.Warn("decoding dependency naming payload", "nsPath", nsPath, "error", err)
		return
	}
	b.tableSetContainerPath(nsPath, payload.ContainerPath)
	b.tableSetStatus(nsPath, payload.Status)

	descData, _, result := b.session.GetData(ctx, payload.ContainerPath, b.onDependencyContainerEvent(nsPath, payload.ContainerPath))
	b.metrics.recordCallback("resolveDependency.getDescriptor", result)
	if result == coordination.OK {
		if desc, err := model.UnmarshalDescriptor(descData); err == nil {
			b.tableSetDescriptor(nsPath, desc)
		} else {
			b.logger.Warn("decoding dependency descriptor", "nsPath", nsPath, "error", err)
		}
	} else {
		b.logger.Warn("reading dependency container node", "containerPath", payload.ContainerPath, "result", result)
	}
	b.tableSetConfProcessed(nsPath)
	b.metrics.setDepsReady(b.dependencyReadyCount())

	var event lifecycle.Event
	if payload.Status == model.Initialized {
		event = lifecycle.ServiceInitializedEvent
	} else {
		event = lifecycle.ServiceAddedEvent
	}
	if err := b.handle(event); err != nil {
		b.logger.Debug("dependency event rejected", "event", event, "error", err)
	}
}

// dependencyReadyCount counts entries with model.Initialized status,
// for the depsReady gauge.
func (b *Broker) dependencyReadyCount() int {
	n := 0
	for _, nsPath := range b.tableNsPaths() {
		if e, ok := b.tableGet(nsPath); ok && e.HasStatus && e.Status == model.Initialized {
			n++
		}
	}
	return n
}

func (b *Broker) onDependencyNamingEvent(nsPath string) coordination.Watcher {
	return func(ev coordination.Event) {
		b.pool.submit(func(ctx context.Context) {
			switch ev.Type {
			case coordination.NodeCreated, coordination.NodeDataChanged:
				b.resolveDependency(ctx, nsPath)
			case coordination.NodeDeleted:
				// Any delete is treated as serviceDeletedEvent
				// unconditionally, even if a create races in right
				// after. The entry leaves the table and the naming
				// watch is not re-armed, so a later re-creation of
				// the node is not observed.
				b.tableDelete(nsPath)
				b.metrics.setDepsReady(b.dependencyReadyCount())
				if err := b.handle(lifecycle.ServiceDeletedEvent); err != nil {
					b.logger.Debug("serviceDeletedEvent rejected", "nsPath", nsPath, "error", err)
				}
			}
		})
	}
}

// onDependencyContainerEvent watches a dependency's container node for
// descriptor changes. Per spec.md §9's open question, changes are
// observed and logged but never re-trigger the start group.
func (b *Broker) onDependencyContainerEvent(nsPath, containerPath string) coordination.Watcher {
	return func(ev coordination.Event) {
		b.pool.submit(func(ctx context.Context) {
			switch ev.Type {
			case coordination.NodeDataChanged:
				data, _, result := b.session.GetData(ctx, containerPath, b.onDependencyContainerEvent(nsPath, containerPath))
				if result != coordination.OK {
					b.logger.Warn("re-reading changed dependency descriptor", "containerPath", containerPath, "result", result)
					return
				}
				if desc, err := model.UnmarshalDescriptor(data); err == nil {
					b.tableSetDescriptor(nsPath, desc)
					b.logger.Info("dependency descriptor changed, reconfiguration not applied", "nsPath", nsPath)
				}
			case coordination.NodeDeleted:
				b.logger.Warn("dependency container node deleted", "containerPath", containerPath)
			}
		})
	}
}

// Start implements lifecycle.Actions: build the environment and task
// inputs and run the start group (spec.md §4.9 step 8).
func (b *Broker) Start() {
	b.pool.spawnLong(b.runStart)
}

func (b *Broker) runStart(ctx context.Context) {
	b.startedAt = b.clk.Now()
	desc := b.descriptorSnapshot()

	deps := make(map[string]model.ContainerEnvironment)
	for _, nsPath := range b.tableNsPaths() {
		if e, ok := b.tableGet(nsPath); ok && e.HasDescriptor {
			deps[e.ServiceName] = e.Descriptor.Environment
		}
	}
	b.env = environment.Build(desc.Environment, deps)

	b.taskRunner = task.NewRunner(b.cfg.Tasks, b.logger)
	b.taskRunner.RunPreStart(desc.Tasks, b.env)

	b.procMgr = process.NewManager(desc, b.newHandlerFn,
		b.logger,
		func(reason process.FailureReason, err error) { b.onStartFailure(ctx, reason, err) },
		func() { b.onStartSuccess(ctx) },
	)

	if err := b.procMgr.ExecStart(ctx); err != nil {
		b.logger.Error("start group did not complete", "error", err)
	}
}

func (b *Broker) newHandler(resource model.Resource) process.Handler {
	if resource.IsMain() {
		return process.NewMainHandler(resource, b.env, b.clk, &net.Dialer{}, b.cfg.Readiness)
	}
	return process.NewDefaultHandler(resource, b.env)
}

func statusForFailure(reason process.FailureReason) model.Status {
	if reason == process.NotRunning {
		return model.NotRunning
	}
	return model.NotInitialized
}

// onStartFailure reports a start-group failure through a status
// transition only, per spec.md §4.9: process failures never reach the
// lifecycle machine, so STARTING is left as-is rather than driven to
// ERROR. ErrorEvent comes only from enterError: boot and init protocol
// failures (runBoot, runInitContainer) and failed session recovery
// (recoverSession).
func (b *Broker) onStartFailure(ctx context.Context, reason process.FailureReason, err error) {
	b.metrics.recordProcessEvent("startGroup", "failed")
	b.metrics.observeStartLatency(b.clk.Now().Sub(b.startedAt))
	b.logger.Error("start group failed", "reason", reason, "error", err)
	b.publishStatus(ctx, statusForFailure(reason))
}

func (b *Broker) onStartSuccess(ctx context.Context) {
	b.metrics.recordProcessEvent("startGroup", "succeeded")
	b.metrics.observeStartLatency(b.clk.Now().Sub(b.startedAt))
	b.publishStatus(ctx, model.Initialized)
	if err := b.mainStarted(); err != nil {
		b.logger.Error("mainStarted rejected", "error", err)
		return
	}
	b.pool.spawnLong(b.mainMonitor)
}

// mainMonitor implements spec.md §4.9 step 9: block on main-process
// termination and, unless shutdown is already underway, publish
// NOT_RUNNING.
func (b *Broker) mainMonitor(ctx context.Context) {
	err := b.procMgr.WaitForMainProc(ctx)
	if b.shuttingDown.Load() {
		return
	}
	b.metrics.recordProcessEvent("main", "terminated")
	b.logger.Warn("main process terminated outside shutdown", "error", err)
	b.publishStatus(context.Background(), model.NotRunning)
}

// Stop implements lifecycle.Actions: run the shutdown coordinator
// (spec.md §4.11).
func (b *Broker) Stop() {
	b.pool.spawnLong(b.runStop)
}

func (b *Broker) runStop(ctx context.Context) {
	if !b.shuttingDown.CompareAndSwap(false, true) {
		return // a shutdownEvent already triggered the coordinator.
	}

	desc := b.descriptorSnapshot()
	deps := shutdown.Deps{
		Session:      b.session,
		Layout:       b.layout,
		ReverseDeps:  desc.IsRequiredFrom,
		RunStopGroup: b.stopGroupFn(),
		Listeners:    b.snapshotListeners(),
		ConfigPath:   b.layout.ConfigPath(b.cfg.ServiceName),
		Logger:       b.logger,
	}

	// The coordinator must run to completion even if the caller's ctx
	// (derived from the pool) is cancelled by an unrelated failure, so
	// it always sees a fresh background context.
	if err := shutdown.Run(context.Background(), deps); err != nil {
		b.logger.Error("shutdown coordinator failed", "error", err)
	}

	if err := b.stopComplete(true); err != nil {
		b.logger.Debug("stopComplete rejected", "error", err)
	}
	b.finish()
	b.pool.shutdown()
}

func (b *Broker) snapshotListeners() []func() {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	return append([]func(){}, b.listeners...)
}

// stopGroupFn returns the callback the shutdown coordinator runs to
// execute the stop group, lazily building the process manager and
// environment if the container was told to shut down before Start
// ever ran.
func (b *Broker) stopGroupFn() func(context.Context) error {
	return func(ctx context.Context) error {
		desc := b.descriptorSnapshot()
		if b.env == nil {
			b.env = environment.Build(desc.Environment, nil)
		}
		if b.procMgr == nil {
			b.procMgr = process.NewManager(desc, b.newHandlerFn, b.logger,
				func(process.FailureReason, error) {}, func() {})
		}
		if b.taskRunner == nil {
			b.taskRunner = task.NewRunner(b.cfg.Tasks, b.logger)
		}
		err := b.procMgr.ExecStop(ctx)
		b.taskRunner.RunPostStop(desc.Tasks, b.env)
		return err
	}
}

// Update implements lifecycle.Actions. Reconfiguration is an explicit
// non-goal (spec.md §9); this only logs.
func (b *Broker) Update() {
	b.logger.Info("serviceUpdatedEvent received, reconfiguration not implemented")
}

// Fail implements lifecycle.Actions.
func (b *Broker) Fail(err error) {
	b.logger.Error("lifecycle entered ERROR", "error", err)
	b.setLastErr(err)
	b.pool.spawnLong(func(ctx context.Context) {
		if b.session != nil {
			if closeErr := b.session.Close(); closeErr != nil {
				b.logger.Warn("closing session after error", "error", closeErr)
			}
		}
		b.finish()
	})
}

func (b *Broker) enterError(event lifecycle.Event) {
	if err := b.handle(event); err != nil {
		b.logger.Debug("errorEvent rejected", "error", err)
	}
}

// AllDepsReady implements lifecycle.Guards.
func (b *Broker) AllDepsReady() bool {
	return b.tableAllReady()
}

// HasDependencies implements lifecycle.Guards.
func (b *Broker) HasDependencies() bool {
	return b.tableHasServices()
}

func resultOrOther(err error) coordination.Result {
	if err == nil {
		return coordination.OK
	}
	return coordination.Other
}
