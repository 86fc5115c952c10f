// Package trigger decides when an acquisition run starts relative to the
// instant the target resource opens. It replaces the several divergent copies
// of this arithmetic that accumulated in earlier tooling with one policy:
//
//   - opening still in the future: defer exactly until it arrives
//   - opening missed by no more than the late tolerance: run now
//   - missed by more: stale; dispatch attempts anyway and flags the anomaly,
//     while task creation rolls the opening forward a day instead
//
// Everything here is a pure function of its arguments so the policy can be
// tested without a running scheduler.
package trigger

import "time"

// Default policy constants. Callers may override per task.
const (
	DefaultLateTolerance  = 5 * time.Minute
	DefaultPrePositionLead = 90 * time.Second
	DefaultDispatchWindow  = 2 * time.Minute
)

// Class tells the caller how to treat an opening instant seen at a given now.
type Class int

const (
	// Immediate: the opening just passed, within tolerance. Run now.
	Immediate Class = iota
	// Deferred: the opening is in the future. Wait exactly Decision.Wait.
	Deferred
	// TooStale: the opening passed more than the tolerance ago.
	TooStale
)

func (c Class) String() string {
	switch c {
	case Immediate:
		return "immediate"
	case Deferred:
		return "deferred"
	case TooStale:
		return "too-stale"
	}
	return "unknown"
}

// Decision is the classification of one opening instant.
type Decision struct {
	Class   Class
	Wait    time.Duration // Deferred only: exact time until the opening
	Overdue time.Duration // Immediate/TooStale: how far past the opening now is
}

// Classify places now relative to the opening instant under the given late
// tolerance.
func Classify(opening, now time.Time, lateTolerance time.Duration) Decision {
	if opening.After(now) {
		return Decision{Class: Deferred, Wait: opening.Sub(now)}
	}
	overdue := now.Sub(opening)
	if overdue > lateTolerance {
		return Decision{Class: TooStale, Overdue: overdue}
	}
	return Decision{Class: Immediate, Overdue: overdue}
}

// PrePosition returns the instant at which setup (login, navigation,
// parameter entry) should begin so only the final acquisition click remains
// at the opening. When less than lead remains, pre-positioning is pointless:
// skip is true and the caller goes straight to full execution.
func PrePosition(opening, now time.Time, lead time.Duration) (start time.Time, skip bool) {
	start = opening.Add(-lead)
	if !start.After(now) {
		return now, true
	}
	return start, false
}

// RollForward applies the task-creation rule for an opening that is already
// past: more than lateTolerance ago moves the opening to the same civil time
// tomorrow; within the tolerance means the near-miss is treated as "now".
// A future opening is returned unchanged. Never applied at dispatch time.
func RollForward(opening, now time.Time, lateTolerance time.Duration) time.Time {
	d := Classify(opening, now, lateTolerance)
	switch d.Class {
	case TooStale:
		return opening.AddDate(0, 0, 1)
	case Immediate:
		return now
	default:
		return opening
	}
}

// Dispatchable reports whether a pending task whose opening is at the given
// instant should be dispatched this poll cycle: the opening is in the future
// and no further away than the dispatch window.
func Dispatchable(opening, now time.Time, window time.Duration) bool {
	until := opening.Sub(now)
	return until > 0 && until <= window
}
