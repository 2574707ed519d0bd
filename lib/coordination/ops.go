// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package coordination

import (
	"bytes"
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Create creates a node at path with the given payload. Ephemeral
// nodes are attached to the session's current lease and disappear when
// the session's lease expires or is revoked. Returns NodeExists
// without error if a node already occupies path.
func (s *Session) Create(ctx context.Context, path string, data []byte, mode Mode) (Result, error) {
	var opts []clientv3.OpOption
	if mode == Ephemeral {
		opts = append(opts, clientv3.WithLease(s.LeaseID()))
	}

	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(path), "=", 0)).
		Then(clientv3.OpPut(path, string(data), opts...)).
		Commit()
	if err != nil {
		return classify(err), fmt.Errorf("creating %s: %w", path, err)
	}
	if !resp.Succeeded {
		return NodeExists, nil
	}
	return OK, nil
}

// CheckAndCreate is the idempotent creation wrapper of spec.md §4.1 and
// §8: if path already exists, its payload is compared against ownerID.
// A match means the caller previously created this node and is
// reclaiming it after a transient fault (a no-op, OK); a mismatch means
// some other Broker owns it (NodeExists, with an error explaining the
// conflict).
func (s *Session) CheckAndCreate(ctx context.Context, path string, data []byte, mode Mode, ownerID []byte) (Result, error) {
	result, err := s.Create(ctx, path, data, mode)
	if result != NodeExists {
		return result, err
	}

	existing, _, getResult := s.GetData(ctx, path, nil)
	switch getResult {
	case NoNode:
		// Raced with a delete between our failed create and this read.
		// Retry the create once; if it races again the caller will see
		// ConnectionLoss/NodeExists on the next attempt.
		return s.Create(ctx, path, data, mode)
	case OK:
		if bytes.Equal(existing, ownerID) {
			return OK, nil
		}
		return NodeExists, fmt.Errorf("node %s already owned by another broker", path)
	default:
		return getResult, fmt.Errorf("checking ownership of %s: %w", path, err)
	}
}

// Exists reports whether a node exists at path. If watch is non-nil, a
// one-shot watch is armed on path; the caller receives a NodeCreated,
// NodeDeleted, or NodeDataChanged event the next time path's data
// changes, then must re-arm by calling Exists or GetData again.
func (s *Session) Exists(ctx context.Context, path string, watch Watcher) (bool, NodeStat, Result) {
	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return false, NodeStat{}, classify(err)
	}
	if watch != nil {
		s.armWatch(path, watch)
	}
	if len(resp.Kvs) == 0 {
		return false, NodeStat{}, NoNode
	}
	return true, NodeStat{Version: resp.Kvs[0].ModRevision}, OK
}

// GetData reads a node's payload. If watch is non-nil, a one-shot watch
// is armed on path exactly as in Exists.
func (s *Session) GetData(ctx context.Context, path string, watch Watcher) ([]byte, NodeStat, Result) {
	resp, err := s.client.Get(ctx, path)
	if err != nil {
		return nil, NodeStat{}, classify(err)
	}
	if watch != nil {
		s.armWatch(path, watch)
	}
	if len(resp.Kvs) == 0 {
		return nil, NodeStat{}, NoNode
	}
	return resp.Kvs[0].Value, NodeStat{Version: resp.Kvs[0].ModRevision}, OK
}

// SetData overwrites a node's payload, conditioned on its current
// version matching the caller's expectation (optimistic concurrency).
// Pass version -1 to overwrite unconditionally.
func (s *Session) SetData(ctx context.Context, path string, data []byte, version int64) (NodeStat, Result) {
	txn := s.client.Txn(ctx)
	if version >= 0 {
		txn = txn.If(clientv3.Compare(clientv3.ModRevision(path), "=", version))
	}
	resp, err := txn.Then(clientv3.OpPut(path, string(data))).Commit()
	if err != nil {
		return NodeStat{}, classify(err)
	}
	if !resp.Succeeded {
		get, getErr := s.client.Get(ctx, path)
		if getErr == nil && len(get.Kvs) == 0 {
			return NodeStat{}, NoNode
		}
		return NodeStat{}, NodeExists
	}
	return NodeStat{Version: resp.Header.Revision}, OK
}

// Delete removes a node, conditioned on its current version matching
// the caller's expectation. Pass version -1 to delete unconditionally.
func (s *Session) Delete(ctx context.Context, path string, version int64) Result {
	txn := s.client.Txn(ctx)
	if version >= 0 {
		txn = txn.If(clientv3.Compare(clientv3.ModRevision(path), "=", version))
	}
	resp, err := txn.Then(clientv3.OpDelete(path)).Commit()
	if err != nil {
		return classify(err)
	}
	if !resp.Succeeded {
		return NodeExists
	}
	deleteResp := resp.Responses[0].GetResponseDeleteRange()
	if deleteResp == nil || deleteResp.Deleted == 0 {
		return NoNode
	}
	return OK
}

// armWatch registers a one-shot watch on path: the first PUT or DELETE
// event observed fires watch exactly once, then the underlying etcd
// watch is cancelled. Coordination-store watches are one-shot per
// spec.md §4.1; every component that needs continuing notification
// re-arms explicitly after handling the event, preserving ordering
// guarantee (i) of spec.md §5 (events from a single watch are observed
// in issue order, since only one event is ever delivered per arm).
func (s *Session) armWatch(path string, watch Watcher) {
	watchCtx, cancel := context.WithCancel(context.Background())
	channel := s.client.Watch(watchCtx, path)

	go func() {
		defer cancel()
		for resp := range channel {
			if resp.Canceled {
				return
			}
			if err := resp.Err(); err != nil {
				watch(Event{Type: SessionStateChanged, Path: path, Result: classify(err)})
				return
			}
			for _, ev := range resp.Events {
				var eventType EventType
				switch {
				case ev.Type == clientv3.EventTypeDelete:
					eventType = NodeDeleted
				case ev.IsCreate():
					eventType = NodeCreated
				default:
					eventType = NodeDataChanged
				}
				watch(Event{Type: eventType, Path: path, Result: OK})
				return
			}
		}
	}()
}
