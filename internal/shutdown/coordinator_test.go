// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fidelio-project/fidelio/lib/coordination"
	"github.com/fidelio-project/fidelio/lib/naming"
)

// fakeSession implements Session for tests. existsSeq maps a path to
// a queue of (exists, result) responses, consumed in order; the last
// entry repeats once exhausted.
type fakeSession struct {
	mu        sync.Mutex
	existsSeq map[string][]fakeExists
	watchers  map[string]coordination.Watcher
	deleted   []string
	closed    bool
	closeErr  error
}

type fakeExists struct {
	exists bool
	result coordination.Result
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		existsSeq: make(map[string][]fakeExists),
		watchers:  make(map[string]coordination.Watcher),
	}
}

func (f *fakeSession) Exists(ctx context.Context, path string, watch coordination.Watcher) (bool, coordination.NodeStat, coordination.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchers[path] = watch

	seq := f.existsSeq[path]
	if len(seq) == 0 {
		return false, coordination.NodeStat{}, coordination.NoNode
	}
	next := seq[0]
	if len(seq) > 1 {
		f.existsSeq[path] = seq[1:]
	}
	if !next.exists {
		return false, coordination.NodeStat{}, coordination.NoNode
	}
	return true, coordination.NodeStat{}, coordination.OK
}

func (f *fakeSession) Delete(ctx context.Context, path string, version int64) coordination.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return coordination.OK
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakeSession) fire(path string, ev coordination.Event) {
	f.mu.Lock()
	w := f.watchers[path]
	f.mu.Unlock()
	if w != nil {
		w(ev)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunNoReverseDeps(t *testing.T) {
	session := newFakeSession()
	stopGroupRan := false
	listenerRan := false

	deps := Deps{
		Session: session,
		Layout:  naming.NewLayout("/fidelio"),
		RunStopGroup: func(context.Context) error {
			stopGroupRan = true
			return nil
		},
		Listeners:  []func(){func() { listenerRan = true }},
		ConfigPath: "/fidelio/conf/svc",
		Logger:     discardLogger(),
	}

	if err := Run(context.Background(), deps); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !stopGroupRan {
		t.Error("stop group did not run")
	}
	if !listenerRan {
		t.Error("listener was not notified")
	}
	if len(session.deleted) != 1 || session.deleted[0] != "/fidelio/conf/svc" {
		t.Errorf("deleted = %v, want [/fidelio/conf/svc]", session.deleted)
	}
	if !session.closed {
		t.Error("session was not closed")
	}
}

func TestRunWaitsForReverseDeps(t *testing.T) {
	session := newFakeSession()
	nsPath := "/fidelio/naming/dependent"
	session.existsSeq[nsPath] = []fakeExists{
		{exists: true, result: coordination.OK},
		{exists: false, result: coordination.NoNode},
	}

	var stopGroupCalledAt time.Time
	deps := Deps{
		Session:     session,
		Layout:      naming.NewLayout("/fidelio"),
		ReverseDeps: []string{"dependent"},
		RunStopGroup: func(context.Context) error {
			stopGroupCalledAt = time.Now()
			return nil
		},
		ConfigPath: "/fidelio/conf/svc",
		Logger:     discardLogger(),
	}

	done := make(chan error, 1)
	go func() { done <- Run(context.Background(), deps) }()

	time.Sleep(20 * time.Millisecond)
	if !stopGroupCalledAt.IsZero() {
		t.Fatal("stop group ran before reverse dependency was released")
	}

	session.fire(nsPath, coordination.Event{Type: coordination.NodeDeleted, Path: nsPath})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not complete after reverse dependency was released")
	}
	if stopGroupCalledAt.IsZero() {
		t.Error("stop group never ran")
	}
}

func TestRunReturnsCloseError(t *testing.T) {
	session := newFakeSession()
	session.closeErr = errors.New("boom")

	deps := Deps{
		Session:      session,
		Layout:       naming.NewLayout("/fidelio"),
		RunStopGroup: func(context.Context) error { return nil },
		ConfigPath:   "/fidelio/conf/svc",
		Logger:       discardLogger(),
	}

	if err := Run(context.Background(), deps); err == nil {
		t.Fatal("Run() error = nil, want close error")
	}
}
