// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"testing"

	"github.com/fidelio-project/fidelio/internal/model"
	"github.com/fidelio-project/fidelio/internal/process"
)

func TestStatusForFailure(t *testing.T) {
	cases := []struct {
		reason process.FailureReason
		want   model.Status
	}{
		{process.NotRunning, model.NotRunning},
		{process.NotInitialized, model.NotInitialized},
	}
	for _, c := range cases {
		if got := statusForFailure(c.reason); got != c.want {
			t.Errorf("statusForFailure(%v) = %v, want %v", c.reason, got, c.want)
		}
	}
}

func TestResultOrOther(t *testing.T) {
	if got := resultOrOther(nil); got.String() != "OK" {
		t.Errorf("resultOrOther(nil) = %v, want OK", got)
	}
	if got := resultOrOther(errBoom); got.String() == "OK" {
		t.Errorf("resultOrOther(err) = %v, want non-OK", got)
	}
}

var errBoom = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }
