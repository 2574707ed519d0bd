// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fidelio-project/fidelio/internal/lifecycle"
	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/internal/process"
	"github.com/fidelio-project/fidelio/internal/servicemgr"
	"github.com/fidelio-project/fidelio/internal/task"
	"github.com/fidelio-project/fidelio/lib/clock"
	"github.com/fidelio-project/fidelio/lib/coordination"
	"github.com/fidelio-project/fidelio/lib/naming"
	"github.com/google/uuid"
)

// Broker drives one container's lifecycle against the coordination
// store, per spec.md §4.9. A Broker is used once: build it with New,
// run it with Run, and read the outcome from Run's return value.
//
// Broker implements lifecycle.Guards and lifecycle.Actions itself: the
// state machine calls back into the Broker on every transition, and
// the Broker answers the WAITING_DEPS guard from its own dependency
// table. Every Actions method only submits work to the worker pool —
// it must never block, since the state machine invokes it while
// holding its own lock (spec.md §5 ordering guarantee ii).
type Broker struct {
	cfg      Config
	layout   naming.Layout
	brokerID string
	logger   *slog.Logger
	clk      clock.Clock
	metrics  *metrics

	pool    *pool
	machine *lifecycle.Machine

	// connect and newHandlerFn are indirected through fields, not
	// called directly (coordination.Connect, b.newHandler), so tests
	// can substitute a fake Session and a scripted process.Handler
	// without dialing a real coordination store or spawning a real
	// process.
	connect       connectFunc
	newHandlerFn  process.HandlerFactory
	session       Session
	containerPath string
	nsPath        string

	descriptorMu sync.RWMutex
	descriptor   model.ContainerDescriptor

	// tableMu guards table: servicemgr.Table performs no locking of its
	// own and expects single-goroutine access, but dependency watch
	// callbacks run on the bounded pool while protocol steps run on
	// dedicated long-running goroutines, so the Broker serializes
	// access itself instead.
	tableMu sync.Mutex
	table   *servicemgr.Table

	statusMu sync.Mutex
	status   model.Status

	env        map[string]string
	taskRunner *task.Runner
	procMgr    *process.Manager
	startedAt  time.Time

	shuttingDown atomic.Bool

	listenersMu sync.Mutex
	listeners   []func()

	doneOnce sync.Once
	doneCh   chan struct{}

	lastErrMu sync.Mutex
	lastErr   error
}

// New builds a Broker for the given configuration. The Broker does
// nothing until Run is called.
func New(cfg Config) *Broker {
	cfg = cfg.withDefaults()
	b := &Broker{
		cfg:      cfg,
		layout:   naming.NewLayout(cfg.Root),
		brokerID: uuid.NewString(),
		logger:   cfg.Logger.With("service", cfg.ServiceName),
		clk:      cfg.Clock,
		connect:  defaultConnect,
		doneCh:   make(chan struct{}),
	}
	b.newHandlerFn = b.newHandler
	b.metrics = newMetrics(cfg.Registerer)
	return b
}

// RegisterShutdownListener adds fn to the set of callbacks invoked by
// the shutdown coordinator after the stop group completes, spec.md
// §4.11 step 3. Must be called before Run.
func (b *Broker) RegisterShutdownListener(fn func()) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Done returns a channel closed once the Broker reaches a terminal
// lifecycle state (DONE or ERROR).
func (b *Broker) Done() <-chan struct{} {
	return b.doneCh
}

// Run starts the Broker's lifecycle and blocks until it reaches a
// terminal state or ctx is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	b.pool = newPool(ctx, workerCount)
	b.machine = lifecycle.New(b, b)

	if err := b.handle(lifecycle.BootEvent); err != nil {
		return fmt.Errorf("starting broker: %w", err)
	}

	select {
	case <-b.doneCh:
		if b.machine.State() == lifecycle.Error {
			return fmt.Errorf("broker entered error state: %w", b.getLastErr())
		}
		return nil
	case <-ctx.Done():
		b.pool.shutdown()
		return ctx.Err()
	}
}

func (b *Broker) finish() {
	b.doneOnce.Do(func() { close(b.doneCh) })
}

func (b *Broker) setLastErr(err error) {
	b.lastErrMu.Lock()
	b.lastErr = err
	b.lastErrMu.Unlock()
}

func (b *Broker) getLastErr() error {
	b.lastErrMu.Lock()
	defer b.lastErrMu.Unlock()
	return b.lastErr
}

// currentStatus returns the last status this Broker published, or
// NotInitialized before the first publish.
func (b *Broker) currentStatus() model.Status {
	b.statusMu.Lock()
	defer b.statusMu.Unlock()
	if b.status == "" {
		return model.NotInitialized
	}
	return b.status
}

func (b *Broker) setStatus(status model.Status) {
	b.statusMu.Lock()
	b.status = status
	b.statusMu.Unlock()
}

// publishStatus overwrites the naming node with the Broker's current
// container path and status.
func (b *Broker) publishStatus(ctx context.Context, status model.Status) {
	b.setStatus(status)
	payload := model.NamingPayload{ContainerPath: b.containerPath, Status: status}
	data, err := naming.EncodePayload(payload)
	if err != nil {
		b.logger.Error("encoding naming payload", "error", err)
		return
	}
	_, result := b.session.SetData(ctx, b.nsPath, data, -1)
	b.metrics.recordCallback("publishStatus", result)
	if result != coordination.OK {
		b.logger.Error("publishing status", "status", status, "result", result)
	}
}

func (b *Broker) descriptorSnapshot() model.ContainerDescriptor {
	b.descriptorMu.RLock()
	defer b.descriptorMu.RUnlock()
	return b.descriptor
}

// handle wraps Machine.Handle, recording the resulting state on
// success so the transitions metric stays in sync with every caller.
func (b *Broker) handle(event lifecycle.Event) error {
	if err := b.machine.Handle(event); err != nil {
		return err
	}
	b.metrics.recordTransition(b.machine.State())
	return nil
}

func (b *Broker) mainStarted() error {
	if err := b.machine.MainStarted(); err != nil {
		return err
	}
	b.metrics.recordTransition(b.machine.State())
	return nil
}

func (b *Broker) stopComplete(dependentsGone bool) error {
	if err := b.machine.StopComplete(dependentsGone); err != nil {
		return err
	}
	b.metrics.recordTransition(b.machine.State())
	return nil
}

// setTable installs a freshly built dependency table, replacing any
// previous one.
func (b *Broker) setTable(table *servicemgr.Table) {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	b.table = table
}

func (b *Broker) tableNsPaths() []string {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	if b.table == nil {
		return nil
	}
	return b.table.NsPaths()
}

func (b *Broker) tableGet(nsPath string) (servicemgr.Entry, bool) {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	if b.table == nil {
		return servicemgr.Entry{}, false
	}
	return b.table.Get(nsPath)
}

func (b *Broker) tableSetStatus(nsPath string, status model.Status) {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	b.table.SetSrvStatus(nsPath, status)
}

func (b *Broker) tableSetContainerPath(nsPath, containerPath string) {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	b.table.SetSrvZkConPath(nsPath, containerPath)
}

func (b *Broker) tableSetDescriptor(nsPath string, descriptor model.ContainerDescriptor) {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	b.table.SetSrvDescriptor(nsPath, descriptor)
}

func (b *Broker) tableSetConfProcessed(nsPath string) {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	b.table.SetConfProcessed(nsPath)
}

func (b *Broker) tableDelete(nsPath string) {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	b.table.DeleteSrvNode(nsPath)
}

func (b *Broker) tableAllReady() bool {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	if b.table == nil {
		return true
	}
	return b.table.AllInitializedAndProcessed()
}

func (b *Broker) tableHasServices() bool {
	b.tableMu.Lock()
	defer b.tableMu.Unlock()
	if b.table == nil {
		return false
	}
	return b.table.HasServices()
}
