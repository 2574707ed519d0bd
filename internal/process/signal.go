// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os/exec"
	"syscall"
)

// terminateGroup sends SIGTERM to a command's whole process group, the
// counterpart to command's Setpgid: true. Killing the group rather than
// the leader alone catches children the resource spawned.
func terminateGroup(cmd *exec.Cmd) error {
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return fmt.Errorf("resolving process group for pid %d: %w", cmd.Process.Pid, err)
	}
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling process group %d: %w", pgid, err)
	}
	return nil
}
