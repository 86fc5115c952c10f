// Package clock converts between civil (timezone-local) times and absolute
// instants, and parses displayed clock text into minutes-of-day.
//
// The target booking systems open slots at a civil wall-clock time in a fixed
// zone. The zone's UTC offset changes with daylight saving, so every
// conversion goes through the platform timezone database; a hardcoded offset
// would fire an hour off for half the year.
package clock

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeSpec reports an unparseable civil date/time component.
var ErrInvalidTimeSpec = errors.New("invalid time spec")

// Civil is a wall-clock reading in some named zone.
type Civil struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// Now resolves the current civil time in zone.
func Now(zone string) (Civil, error) {
	return At(zone, time.Now())
}

// At resolves the civil reading of an instant in zone.
func At(zone string, t time.Time) (Civil, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Civil{}, fmt.Errorf("%w: zone %q: %v", ErrInvalidTimeSpec, zone, err)
	}
	t = t.In(loc)
	return Civil{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}, nil
}

// ToInstant converts a civil reading in zone to an absolute instant. The
// seasonal offset for the given calendar date is resolved by the zone
// database, not assumed.
func ToInstant(zone string, c Civil) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: zone %q: %v", ErrInvalidTimeSpec, zone, err)
	}
	if c.Month < time.January || c.Month > time.December || c.Day < 1 || c.Day > 31 ||
		c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 || c.Second < 0 || c.Second > 59 {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d %02d:%02d:%02d",
			ErrInvalidTimeSpec, c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second)
	}
	return time.Date(c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, 0, loc), nil
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (year int, month time.Month, day int, err error) {
	t, perr := time.Parse("2006-01-02", s)
	if perr != nil {
		return 0, 0, 0, fmt.Errorf("%w: date %q", ErrInvalidTimeSpec, s)
	}
	return t.Year(), t.Month(), t.Day(), nil
}

// clockRe matches "7:00", "07:00", "7:00 AM", "12:15pm" anywhere in a row's
// displayed text.
var clockRe = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*([AaPp][Mm])?`)

// ParseClockText extracts the first 12-hour or 24-hour clock reading from
// displayed text and returns it as minutes after midnight.
func ParseClockText(s string) (int, error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: no clock time in %q", ErrInvalidTimeSpec, strings.TrimSpace(s))
	}
	hour, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if min > 59 {
		return 0, fmt.Errorf("%w: minute out of range in %q", ErrInvalidTimeSpec, s)
	}
	switch strings.ToUpper(m[3]) {
	case "PM":
		if hour > 12 {
			return 0, fmt.Errorf("%w: hour out of range in %q", ErrInvalidTimeSpec, s)
		}
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour > 12 {
			return 0, fmt.Errorf("%w: hour out of range in %q", ErrInvalidTimeSpec, s)
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour > 23 {
			return 0, fmt.Errorf("%w: hour out of range in %q", ErrInvalidTimeSpec, s)
		}
	}
	return hour*60 + min, nil
}

// Window is an inclusive acceptable range of minutes-of-day.
type Window struct {
	StartMinute int
	EndMinute   int
}

// ParseWindow builds a Window from "HH:MM" bounds.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClockText(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClockText(end)
	if err != nil {
		return Window{}, err
	}
	if e < s {
		return Window{}, fmt.Errorf("%w: window end %q before start %q", ErrInvalidTimeSpec, end, start)
	}
	return Window{StartMinute: s, EndMinute: e}, nil
}

// Contains reports whether a minute-of-day lies inside the window, bounds
// included.
func (w Window) Contains(minuteOfDay int) bool {
	return minuteOfDay >= w.StartMinute && minuteOfDay <= w.EndMinute
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d",
		w.StartMinute/60, w.StartMinute%60, w.EndMinute/60, w.EndMinute%60)
}
