package timewindow

import (
	"errors"
	"testing"
	"time"

	"netgrowl/internal/failure"
)

func at(h, m int) time.Time {
	return time.Date(2024, time.March, 9, h, m, 0, 0, time.Local)
}

func TestParse(t *testing.T) {
	now := at(12, 0)
	tests := []struct {
		in     string
		h, min int
	}{
		{"11:00pm", 23, 0},
		{"11:00 PM", 23, 0},
		{"1:00am", 1, 0},
		{"12:15am", 0, 15},
		{"12:15pm", 12, 15},
		{"07:30AM", 7, 30},
		{"23:45", 23, 45},
		{"9:05", 9, 5},
		{" 1 8 : 0 0 ", 18, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in, now)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			want := at(tt.h, tt.min)
			if !got.Equal(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "noon", "25:00", "13:00pm", "11:60", "11"} {
		if _, err := Parse(in, at(12, 0)); !errors.Is(err, ErrBadTime) {
			t.Fatalf("Parse(%q): expected ErrBadTime, got %v", in, err)
		}
	}
}

func TestWindowSkips(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		now        time.Time
		allow      bool
		reason     string
	}{
		{"start later today", "11:00pm", "", at(10, 0), false, "too early"},
		{"end already passed", "", "1:00am", at(23, 59), false, "too late"},
		{"inside", "8:00am", "6:00pm", at(12, 0), true, ""},
		{"exactly at start", "12:00pm", "", at(12, 0), true, ""},
		{"open", "", "", at(3, 0), true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := New(tt.start, tt.end, tt.now)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := w.Allows(tt.now); got != tt.allow {
				t.Fatalf("Allows = %v, want %v", got, tt.allow)
			}
			if got := w.Reason(tt.now); got != tt.reason {
				t.Fatalf("Reason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestNewBadBound(t *testing.T) {
	_, err := New("soon", "", at(1, 0))
	if !errors.Is(err, failure.ErrConfig) || !errors.Is(err, ErrBadTime) {
		t.Fatalf("expected config error wrapping ErrBadTime, got %v", err)
	}
}
