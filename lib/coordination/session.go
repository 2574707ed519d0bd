// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// connectTimeout bounds the initial dial, per spec.md §5.
const connectTimeout = 30 * time.Second

// EventType enumerates the four kinds of watch notification spec.md
// §4.1 defines.
type EventType int

const (
	NodeCreated EventType = iota
	NodeDeleted
	NodeDataChanged
	SessionStateChanged
)

func (t EventType) String() string {
	switch t {
	case NodeCreated:
		return "NodeCreated"
	case NodeDeleted:
		return "NodeDeleted"
	case NodeDataChanged:
		return "NodeDataChanged"
	default:
		return "SessionStateChanged"
	}
}

// Event is delivered to a Watcher when a one-shot watch fires or the
// session's connection state changes.
type Event struct {
	Type   EventType
	Path   string
	Result Result // for SessionStateChanged: SessionExpired, or the classified error of a failed watch
}

// Watcher receives coordination-store events. Watches are one-shot:
// after firing once, the component must re-arm by issuing a new
// Exists/GetData call with a fresh Watcher.
type Watcher func(Event)

// Mode selects whether a created node is ephemeral (bound to the
// session's lease, disappears when the session dies) or persistent.
type Mode int

const (
	Persistent Mode = iota
	Ephemeral
)

// NodeStat carries the version metadata callers need for optimistic
// concurrency control (SetData, Delete). It maps to etcd's mod
// revision, which increments on every write to the key.
type NodeStat struct {
	Version int64
}

// Session is a live connection to the coordination store. Session is
// safe for concurrent use by multiple goroutines, matching spec.md
// §5's "coordination-store handle is shared across callers" contract.
type Session struct {
	client         *clientv3.Client
	sessionTimeout time.Duration
	logger         *slog.Logger

	mu         sync.Mutex
	leaseID    clientv3.LeaseID
	expired    bool
	stateWatch []Watcher

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Connect dials the coordination store and grants a session lease with
// TTL sessionTimeout. The dial itself is bounded by the 30s connect
// timeout of spec.md §5; the lease TTL governs ephemeral node
// lifetime and session-expiry detection thereafter.
func Connect(ctx context.Context, hosts []string, sessionTimeout time.Duration, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   hosts,
		DialTimeout: connectTimeout,
		Context:     context.Background(),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to coordination store %v: %w", hosts, err)
	}

	grant, err := client.Grant(dialCtx, int64(sessionTimeout.Seconds()))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("granting session lease: %w", err)
	}

	s := &Session{
		client:         client,
		sessionTimeout: sessionTimeout,
		logger:         logger,
		leaseID:        grant.ID,
		closeCh:        make(chan struct{}),
	}

	keepAlive, err := client.KeepAlive(context.Background(), grant.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("starting lease keepalive: %w", err)
	}
	go s.watchKeepAlive(keepAlive)

	logger.Info("coordination session connected", "lease_id", grant.ID, "session_timeout", sessionTimeout)
	return s, nil
}

// watchKeepAlive drains the keepalive response channel. When the
// channel closes, the lease (and every ephemeral node it backed) is
// gone: this is a SessionExpired event delivered to every registered
// state watcher, triggering the recovery path of spec.md §4.10.
func (s *Session) watchKeepAlive(keepAlive <-chan *clientv3.LeaseKeepAliveResponse) {
	for {
		select {
		case _, ok := <-keepAlive:
			if !ok {
				s.markExpired()
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) markExpired() {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return
	}
	s.expired = true
	watchers := append([]Watcher(nil), s.stateWatch...)
	s.mu.Unlock()

	s.logger.Error("coordination session expired")
	for _, w := range watchers {
		w(Event{Type: SessionStateChanged, Result: SessionExpired})
	}
}

// RegisterStateWatcher subscribes to session state changes
// (SessionExpired). Registration itself is one-shot in name only —
// unlike node watches, state watchers stay armed for the life of the
// Session, since session expiry can only happen once per Session
// value (a new Session is created on reconnect).
func (s *Session) RegisterStateWatcher(w Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateWatch = append(s.stateWatch, w)
}

// Expired reports whether the session's lease has been observed to
// expire.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// LeaseID returns the session's current lease ID, used by callers that
// need to correlate ephemeral nodes with this session (diagnostics
// only; ownership assertion uses the Broker ID payload, not the lease
// ID, per spec.md §4.9 step 3).
func (s *Session) LeaseID() clientv3.LeaseID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaseID
}

// Close releases the session's lease (destroying every ephemeral node
// it backed, cascading shutdown to dependents per spec.md §4.11 step
// 5) and closes the underlying client connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, revokeErr := s.client.Revoke(ctx, s.leaseID); revokeErr != nil {
			s.logger.Warn("revoking lease on close", "error", revokeErr)
		}
		err = s.client.Close()
	})
	return err
}
