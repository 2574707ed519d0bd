// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"log/slog"

	"github.com/fidelio-project/fidelio/internal/model"
)

// Action executes one named task with its expanded parameters.
type Action func(parameters map[string]string) error

// Registry maps task names to their actions. An unregistered task name
// is treated as a failure of that task, not a panic.
type Registry map[string]Action

// Runner executes a container's preStart and postStop task lists
// sequentially and best-effort: a failing task is logged but does not
// abort the remaining tasks in its list.
type Runner struct {
	registry Registry
	logger   *slog.Logger
}

// NewRunner builds a Runner backed by registry.
func NewRunner(registry Registry, logger *slog.Logger) *Runner {
	return &Runner{registry: registry, logger: logger}
}

// RunPreStart executes tasks.PreStart in order, expanding each task's
// parameters against env.
func (r *Runner) RunPreStart(tasks model.Tasks, env map[string]string) {
	r.run(tasks.PreStart, env)
}

// RunPostStop executes tasks.PostStop in order, expanding each task's
// parameters against env.
func (r *Runner) RunPostStop(tasks model.Tasks, env map[string]string) {
	r.run(tasks.PostStop, env)
}

func (r *Runner) run(tasks []model.Task, env map[string]string) {
	for _, t := range tasks {
		params, err := ExpandParameters(t.Parameters, env)
		if err != nil {
			r.logger.Warn("task parameter expansion failed", "task", t.Name, "error", err)
			continue
		}

		action, ok := r.registry[t.Name]
		if !ok {
			r.logger.Warn("no action registered for task", "task", t.Name)
			continue
		}

		if err := action(params); err != nil {
			r.logger.Warn("task failed", "task", t.Name, "error", err)
			continue
		}
		r.logger.Info("task completed", "task", t.Name)
	}
}
