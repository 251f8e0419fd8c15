// ABOUTME: Task-completion detection and interval polling against a controller.
// ABOUTME: State-fetch failures are fail-open: a broken controller counts as done.

package task

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Task is one unit of agent work tracked by a controller.
type Task struct {
	ID      string
	aborted atomic.Bool
}

// NewTask creates a task with the given ID.
func NewTask(id string) *Task {
	return &Task{ID: id}
}

// Abort marks the task as aborted. Safe to call from any goroutine.
func (t *Task) Abort() {
	t.aborted.Store(true)
}

// Aborted reports whether Abort was called.
func (t *Task) Aborted() bool {
	return t.aborted.Load()
}

// State is a snapshot of the controller's view of the current task.
type State struct {
	// CurrentItem identifies the task item being worked on; empty means the
	// controller has nothing in progress.
	CurrentItem string
}

// Controller exposes the host application's task state. The poller consumes
// it without owning its lifecycle.
type Controller interface {
	// CurrentTask returns the active task, or nil when none is running.
	CurrentTask() *Task
	// State fetches the latest state snapshot. It may fail transiently.
	State(ctx context.Context) (State, error)
}

const defaultPollInterval = 500 * time.Millisecond

// Poller repeatedly checks a controller until its task reaches a terminal
// condition.
type Poller struct {
	// Interval between completion checks.
	Interval time.Duration
	Logger   *slog.Logger
}

// NewPoller creates a Poller with the given interval (default 500ms).
func NewPoller(interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default().With("component", "task")
	}
	return &Poller{Interval: interval, Logger: logger}
}

// CheckCompletion reports whether the controller's task is done: no current
// task, an aborted task, or a state snapshot with no current item. A state
// fetch error is treated as done rather than retried, favoring terminating
// the wait over hanging on a detached controller.
func (p *Poller) CheckCompletion(ctx context.Context, c Controller) bool {
	t := c.CurrentTask()
	if t == nil {
		return true
	}
	if t.Aborted() {
		p.Logger.Debug("task aborted", "task_id", t.ID)
		return true
	}

	state, err := c.State(ctx)
	if err != nil {
		p.Logger.Debug("state fetch failed, treating task as complete",
			"task_id", t.ID, "error", err)
		return true
	}
	return state.CurrentItem == ""
}

// WaitForCompletion polls until CheckCompletion returns true, then stops
// immediately; no further checks fire after that. Returns ctx.Err() if the
// context ends first.
func (p *Poller) WaitForCompletion(ctx context.Context, c Controller) error {
	if p.CheckCompletion(ctx, c) {
		return nil
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.CheckCompletion(ctx, c) {
				return nil
			}
		}
	}
}
