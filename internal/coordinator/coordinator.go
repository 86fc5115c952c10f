// Package coordinator polls the task registry and dispatches runs whose
// opening instant falls inside the next dispatch window.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/teesched/internal/task"
	"github.com/example/teesched/internal/trigger"
)

// Registry is the coordinator's view of the task store. Both the local
// store and the HTTP client satisfy it.
type Registry interface {
	List(ctx context.Context) ([]task.Task, error)
	// SecureConfig returns the task with credentials populated.
	SecureConfig(ctx context.Context, id string) (task.Task, error)
	UpdateStatus(ctx context.Context, id string, status task.Status, lastError string) error
}

// Runner performs one acquisition attempt. The task carries credentials.
type Runner interface {
	Acquire(ctx context.Context, t task.Task) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, t task.Task) error

func (f RunnerFunc) Acquire(ctx context.Context, t task.Task) error { return f(ctx, t) }

// Coordinator polls Registry every PollInterval and hands each dispatchable
// pending task to Runner in its own goroutine. A task is dispatched at most
// once per process: the status write to running is the claim, and an
// in-flight set guards against double dispatch within the process while the
// write is in progress.
type Coordinator struct {
	Registry Registry
	Runner   Runner

	PollInterval   time.Duration
	DispatchWindow time.Duration
	Log            *zap.SugaredLogger
	Now            func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return time.Minute
}

func (c *Coordinator) dispatchWindow() time.Duration {
	if c.DispatchWindow > 0 {
		return c.DispatchWindow
	}
	return trigger.DefaultDispatchWindow
}

// Run polls until ctx is cancelled, then waits for in-flight runs to finish.
func (c *Coordinator) Run(ctx context.Context) error {
	t := time.NewTicker(c.pollInterval())
	defer t.Stop()

	c.Log.Infow("coordinator_started",
		"poll_interval", c.pollInterval(), "dispatch_window", c.dispatchWindow())

	// kick immediately
	c.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			c.Log.Infow("coordinator_stopping")
			c.wg.Wait()
			return ctx.Err()
		case <-t.C:
			c.Tick(ctx)
		}
	}
}

// Tick performs one poll pass. Exported so one-shot tooling can drive the
// loop manually.
func (c *Coordinator) Tick(ctx context.Context) {
	tasks, err := c.Registry.List(ctx)
	if err != nil {
		c.Log.Errorw("task_list_failed", "error", err)
		return
	}

	now := c.now()
	for _, t := range tasks {
		if t.Status != task.StatusPending {
			continue
		}
		until := t.OpeningInstant.Sub(now)
		if until <= -trigger.DefaultLateTolerance {
			// The creation-time roll-forward should make this unreachable;
			// attempt anyway and flag the anomaly.
			c.Log.Warnw("task_overdue", "id", t.ID, "overdue", -until)
		} else if !trigger.Dispatchable(t.OpeningInstant, now, c.dispatchWindow()) && until > 0 {
			continue
		}
		c.dispatch(ctx, t.ID)
	}
}

func (c *Coordinator) dispatch(ctx context.Context, id string) {
	c.mu.Lock()
	if c.inflight == nil {
		c.inflight = make(map[string]bool)
	}
	if c.inflight[id] {
		c.mu.Unlock()
		return
	}
	c.inflight[id] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, id)
			c.mu.Unlock()
		}()
		c.runOne(ctx, id)
	}()
}

func (c *Coordinator) runOne(ctx context.Context, id string) {
	// Claim the task. Losing the race to another coordinator is normal.
	if err := c.Registry.UpdateStatus(ctx, id, task.StatusRunning, ""); err != nil {
		c.Log.Infow("task_claim_lost", "id", id, "error", err)
		return
	}

	t, err := c.Registry.SecureConfig(ctx, id)
	if err != nil {
		c.Log.Errorw("secure_config_failed", "id", id, "error", err)
		c.finish(ctx, id, fmt.Errorf("loading secure config: %w", err))
		return
	}

	c.Log.Infow("task_dispatched", "id", id, "opening", t.OpeningInstant,
		"course", t.Params.Course, "window", t.Params.TimeStart+"-"+t.Params.TimeEnd)

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("run panicked: %v", r)
			}
		}()
		runErr = c.Runner.Acquire(ctx, t)
	}()

	c.finish(ctx, id, runErr)
}

// finish records the terminal status. The write must land even when the
// run was cancelled by shutdown, so it runs on a context detached from the
// run's; a task left running forever is worse than a slow exit. The write
// is idempotent on the registry side, so a retry after a transient failure
// is safe.
func (c *Coordinator) finish(ctx context.Context, id string, runErr error) {
	status, lastError := task.StatusSucceeded, ""
	if runErr != nil {
		status, lastError = task.StatusFailed, runErr.Error()
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.Registry.UpdateStatus(writeCtx, id, status, lastError); err != nil {
		c.Log.Errorw("status_write_failed", "id", id, "status", status, "error", err)
		return
	}
	if runErr != nil {
		c.Log.Warnw("task_failed", "id", id, "error", runErr)
	} else {
		c.Log.Infow("task_succeeded", "id", id)
	}
}
