// Package registry is the single source of truth for acquisition tasks: a
// store (Postgres or in-memory), the HTTP surface over it, and the client
// the standalone coordinator uses to consume that surface.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/example/teesched/internal/clock"
	"github.com/example/teesched/internal/task"
	"github.com/example/teesched/internal/trigger"
)

var (
	ErrNotFound = errors.New("task not found")
	// ErrRunning rejects deletion of a task whose run is in flight.
	ErrRunning = errors.New("task is running")
)

// Store is the full registry surface. Status writes are transition-checked
// (task.CanTransition) and repeated identical terminal writes succeed, so
// the run wrapper's final write is idempotent.
type Store interface {
	Create(ctx context.Context, t task.Task) (task.Task, error)
	List(ctx context.Context) ([]task.Task, error)
	Get(ctx context.Context, id string) (task.Task, error)
	// SecureConfig is the one read that includes credentials.
	SecureConfig(ctx context.Context, id string) (task.Task, error)
	UpdateStatus(ctx context.Context, id string, status task.Status, lastError string) error
	Delete(ctx context.Context, id string) error
}

// DeriveOpening computes the opening instant from its civil description.
// An empty opensDate means today as seen from now in zone; the whole
// derivation is a pure function of its arguments. It applies the
// creation-time roll-forward rule: an opening more than
// lateTolerance in the past moves to the same wall time tomorrow, a
// near-miss becomes now. This happens exactly once, at task creation.
func DeriveOpening(zone, opensDate string, hour, minute int, now time.Time, lateTolerance time.Duration) (time.Time, error) {
	var c clock.Civil
	if opensDate != "" {
		y, m, d, err := clock.ParseDate(opensDate)
		if err != nil {
			return time.Time{}, err
		}
		c = clock.Civil{Year: y, Month: m, Day: d}
	} else {
		cur, err := clock.At(zone, now)
		if err != nil {
			return time.Time{}, err
		}
		c = clock.Civil{Year: cur.Year, Month: cur.Month, Day: cur.Day}
	}
	c.Hour, c.Minute = hour, minute

	opening, err := clock.ToInstant(zone, c)
	if err != nil {
		return time.Time{}, err
	}
	return trigger.RollForward(opening, now, lateTolerance), nil
}
