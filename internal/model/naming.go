// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"fmt"
)

// Status is one of the four states a service advertises to its
// dependents through its naming node, spec.md §3.
type Status string

const (
	NotInitialized Status = "NOT_INITIALIZED"
	Initialized    Status = "INITIALIZED"
	NotRunning     Status = "NOT_RUNNING"
	Updated        Status = "UPDATED"
)

// Valid reports whether s is one of the four enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case NotInitialized, Initialized, NotRunning, Updated:
		return true
	default:
		return false
	}
}

// NamingPayload is the two-field record stored at a naming node:
// the container path of the owning Broker's container node, and the
// service's current status.
type NamingPayload struct {
	ContainerPath string `json:"containerPath"`
	Status        Status `json:"status"`
}

// Marshal serializes the payload for storage at a naming node.
func (p NamingPayload) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling naming payload: %w", err)
	}
	return data, nil
}

// UnmarshalNamingPayload deserializes a naming node's data.
func UnmarshalNamingPayload(data []byte) (NamingPayload, error) {
	var p NamingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return NamingPayload{}, fmt.Errorf("unmarshaling naming payload: %w", err)
	}
	if !p.Status.Valid() {
		return NamingPayload{}, fmt.Errorf("naming payload: invalid status %q", p.Status)
	}
	return p, nil
}
