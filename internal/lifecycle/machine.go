// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"fmt"
	"sync"
)

// Guards evaluates the conditions the WAITING_DEPS -> STARTING
// transition depends on, backed by the Broker's servicemgr.Table.
type Guards interface {
	// AllDepsReady reports whether every tracked dependency is
	// INITIALIZED and has had its descriptor processed.
	AllDepsReady() bool
	// HasDependencies reports whether the container declares any
	// dependencies at all.
	HasDependencies() bool
}

// Actions are the entry actions the state machine submits to the
// Broker's event loop on each transition, spec.md §4.8.
type Actions interface {
	// Boot runs on BOOT -> INIT: connect the coordination-store
	// session and arm the shutdown watch.
	Boot()
	// InitContainer runs on INIT -> WAITING_DEPS: claim the container
	// node, process the descriptor, register as a service, and query
	// dependencies.
	InitContainer()
	// Start runs on WAITING_DEPS -> STARTING: build the environment
	// and task inputs and run the start group.
	Start()
	// Stop runs on any -> SHUTTING_DOWN: run the stop group and notify
	// dependents.
	Stop()
	// Update runs on the RUNNING self-loop taken by
	// serviceUpdatedEvent. Reserved: spec.md leaves reconfiguration
	// unimplemented, so this only needs to log by default.
	Update()
	// Fail runs on any -> ERROR.
	Fail(err error)
}

// invalidTransitionError reports an event that has no transition
// defined from the machine's current state.
type invalidTransitionError struct {
	State State
	Event Event
}

func (e *invalidTransitionError) Error() string {
	return fmt.Sprintf("no transition for event %s in state %s", e.Event, e.State)
}

// Machine is the container lifecycle state machine. It is safe for
// concurrent use; every method serializes on an internal mutex, but
// entry actions are expected to submit work asynchronously rather than
// block the caller (per spec.md §4.8, they enqueue work on the event
// loop rather than executing it inline).
type Machine struct {
	guards  Guards
	actions Actions

	mu    sync.Mutex
	state State
}

// New creates a Machine in the BOOT state.
func New(guards Guards, actions Actions) *Machine {
	return &Machine{guards: guards, actions: actions, state: Boot}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle dispatches one of the nine event-driven transitions. The two
// transitions with no corresponding event — the process manager
// reporting success, and the stop group completing — are handled by
// MainStarted and StopComplete instead.
func (m *Machine) Handle(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		return &invalidTransitionError{State: m.state, Event: event}
	}

	// shutdownEvent and errorEvent are valid from any non-terminal
	// state.
	switch event {
	case ShutdownEvent:
		m.state = ShuttingDown
		m.actions.Stop()
		return nil
	case ErrorEvent:
		prev := m.state
		m.state = Error
		m.actions.Fail(fmt.Errorf("errorEvent received in state %s", prev))
		return nil
	}

	switch m.state {
	case Boot:
		if event == BootEvent {
			m.state = Init
			m.actions.Boot()
			return nil
		}
	case Init:
		if event == ContainerInitEvent {
			m.state = WaitingDeps
			m.actions.InitContainer()
			return nil
		}
	case WaitingDeps:
		switch event {
		case ServiceNoneEvent:
			if !m.guards.HasDependencies() {
				m.state = Starting
				m.actions.Start()
				return nil
			}
		case ServiceAddedEvent, ServiceInitializedEvent:
			if m.guards.AllDepsReady() {
				m.state = Starting
				m.actions.Start()
				return nil
			}
			return nil // guard not satisfied yet: stay in WAITING_DEPS
		}
	case Running:
		switch event {
		case ServiceDeletedEvent:
			m.state = ShuttingDown
			m.actions.Stop()
			return nil
		case ServiceUpdatedEvent:
			m.actions.Update()
			return nil
		case ServiceNotRunningEvent, ServiceNotInitializedEvent:
			// A dependency regressed; the Broker still depends on it
			// for future readiness but RUNNING itself is unaffected
			// until the dependency is deleted outright.
			return nil
		}
	}

	return &invalidTransitionError{State: m.state, Event: event}
}

// MainStarted reports that the process manager finished the start
// group successfully, taking STARTING -> RUNNING. The caller is
// responsible for publishing the INITIALIZED naming status and
// launching the main-process monitor, per spec.md §4.9 step 8.
func (m *Machine) MainStarted() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Starting {
		return &invalidTransitionError{State: m.state, Event: "processManagerSuccess"}
	}
	m.state = Running
	return nil
}

// StopComplete reports that the stop group has finished and, if
// dependentsGone is true, that every dependent has released its wait
// latch, taking SHUTTING_DOWN -> DONE.
func (m *Machine) StopComplete(dependentsGone bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != ShuttingDown {
		return &invalidTransitionError{State: m.state, Event: "stopGroupDone"}
	}
	if !dependentsGone {
		return nil
	}
	m.state = Done
	return nil
}
