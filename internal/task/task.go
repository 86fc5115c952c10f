// Package task defines the acquisition task record and its status machine.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/example/teesched/internal/clock"
)

// Status of an acquisition task. pending -> running -> succeeded|failed;
// the terminal states accept no further transitions.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrBadTransition rejects a status write that the machine does not allow.
var ErrBadTransition = errors.New("illegal status transition")

// ErrInvalid marks a task rejected by Validate.
var ErrInvalid = errors.New("invalid task")

// CanTransition encodes the status machine. running is reachable only from
// pending; both terminal states only from running; a repeated identical
// terminal write is allowed so status updates stay idempotent.
func CanTransition(from, to Status) bool {
	if from == to && to.Terminal() {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusSucceeded || to == StatusFailed
	}
	return false
}

// Credentials for the external booking site. Never serialized on list/read
// responses; only the secure-config path exposes them.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Parameters describe the resource being acquired.
type Parameters struct {
	Course    int    `json:"course"`    // site/course identifier
	Players   int    `json:"players"`   // occupancy count
	Holes     int    `json:"holes"`     // duration units: 9 or 18
	TimeStart string `json:"timeStart"` // acceptable window start, HH:MM
	TimeEnd   string `json:"timeEnd"`   // acceptable window end, HH:MM
}

// Window parses the acceptable time-of-day range.
func (p Parameters) Window() (clock.Window, error) {
	return clock.ParseWindow(p.TimeStart, p.TimeEnd)
}

// Task is one user request to acquire a time-gated slot.
type Task struct {
	ID          string      `json:"id"`
	Credentials Credentials `json:"-"`
	Params      Parameters  `json:"params"`

	// TargetDate is the date the booked slot should be for, YYYY-MM-DD.
	// Empty means whatever day the site has pre-selected.
	TargetDate string `json:"targetDate,omitempty"`

	// OpeningInstant is when slots are expected to become bookable. Derived
	// exactly once at creation from the civil opening time; never silently
	// recomputed afterwards.
	OpeningInstant time.Time `json:"openingInstant"`

	Status    Status    `json:"status"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewID returns a fresh opaque task identifier.
func NewID() string { return uuid.NewString() }

// Validate checks the fields a task must carry before it is accepted.
func (t Task) Validate() error {
	if t.Credentials.Username == "" || t.Credentials.Password == "" {
		return fmt.Errorf("%w: credentials required", ErrInvalid)
	}
	if t.Params.Course < 1 {
		return fmt.Errorf("%w: course required", ErrInvalid)
	}
	if t.Params.Players < 1 {
		return fmt.Errorf("%w: players must be >= 1", ErrInvalid)
	}
	if t.Params.Holes != 9 && t.Params.Holes != 18 {
		return fmt.Errorf("%w: holes must be 9 or 18", ErrInvalid)
	}
	if _, err := t.Params.Window(); err != nil {
		return fmt.Errorf("%w: time window: %v", ErrInvalid, err)
	}
	if t.TargetDate != "" {
		if _, _, _, err := clock.ParseDate(t.TargetDate); err != nil {
			return fmt.Errorf("%w: target date: %v", ErrInvalid, err)
		}
	}
	if t.OpeningInstant.IsZero() {
		return fmt.Errorf("%w: opening instant required", ErrInvalid)
	}
	return nil
}
