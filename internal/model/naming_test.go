// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package model

import "testing"

func TestNamingPayloadRoundTrip(t *testing.T) {
	original := NamingPayload{ContainerPath: "/fidelio/containers/Web/web1", Status: Initialized}

	data, err := original.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := UnmarshalNamingPayload(data)
	if err != nil {
		t.Fatalf("UnmarshalNamingPayload: %v", err)
	}
	if got != original {
		t.Errorf("round trip = %+v, want %+v", got, original)
	}
}

func TestUnmarshalNamingPayloadRejectsInvalidStatus(t *testing.T) {
	_, err := UnmarshalNamingPayload([]byte(`{"containerPath":"x","status":"BOGUS"}`))
	if err == nil {
		t.Fatal("expected error for invalid status")
	}
}
