// Package timewindow gates deliveries to a daily clock window.
//
// Times are written as "11:00pm", "7:30 AM" or "23:00" and always refer to
// today in the local time zone of the reference time.
package timewindow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"netgrowl/internal/failure"
)

var ErrBadTime = errors.New("unable to parse time")

var layouts = []string{"3:04PM", "15:04"}

// Parse interprets s as a clock time on now's date. Spaces are ignored and
// the am/pm suffix is case insensitive; 12-hour form is tried before 24-hour.
func Parse(s string, now time.Time) (time.Time, error) {
	clean := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	for _, layout := range layouts {
		t, err := time.Parse(layout, clean)
		if err != nil {
			continue
		}
		y, m, d := now.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, now.Location()), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
}

// Window is an optional start and end bound. A zero bound is open.
type Window struct {
	Start time.Time
	End   time.Time
}

// New parses the bounds; empty strings leave a bound open.
func New(start, end string, now time.Time) (Window, error) {
	var w Window
	if strings.TrimSpace(start) != "" {
		t, err := Parse(start, now)
		if err != nil {
			return Window{}, failure.Config("time-start", err)
		}
		w.Start = t
	}
	if strings.TrimSpace(end) != "" {
		t, err := Parse(end, now)
		if err != nil {
			return Window{}, failure.Config("time-end", err)
		}
		w.End = t
	}
	return w, nil
}

func (w Window) IsOpen() bool { return w.Start.IsZero() && w.End.IsZero() }

// Allows reports whether now falls inside the window. The bounds themselves
// are inside.
func (w Window) Allows(now time.Time) bool {
	if !w.Start.IsZero() && now.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && now.After(w.End) {
		return false
	}
	return true
}

// Reason explains why now is outside the window, or "" when it is inside.
func (w Window) Reason(now time.Time) string {
	switch {
	case !w.Start.IsZero() && now.Before(w.Start):
		return "too early"
	case !w.End.IsZero() && now.After(w.End):
		return "too late"
	default:
		return ""
	}
}
