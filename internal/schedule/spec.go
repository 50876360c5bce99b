package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

func (k Kind) String() string {
	if k == KindInterval {
		return "interval"
	}
	return "cron"
}

// Spec is a parsed repeat schedule.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "@hourly", "@every 90s"
//   - Go duration: "55m", "2h30m"
//   - HH:MM interval: "00:50" (50 minutes), "02:30"
//
// "cron:" forces cron parsing; "interval:" and "every:" force an interval.
type Spec struct {
	Kind  Kind
	Cron  string
	Every time.Duration
	// Source is "cron", "duration" or "hhmm".
	Source string
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// cronParser accepts standard five-field expressions and descriptors.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse parses and checks a schedule string.
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return cronSpec(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(s[len("every:"):])
	}

	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return cronSpec(s)
	}
	if reHHMM.MatchString(s) {
		return intervalSpec(s)
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return Spec{}, fmt.Errorf("interval must be > 0")
		}
		return Spec{Kind: KindInterval, Every: d, Source: "duration"}, nil
	}
	return Spec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')",
		raw,
	)
}

func cronSpec(expr string) (Spec, error) {
	if expr == "" {
		return Spec{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Kind: KindCron, Cron: expr, Source: "cron"}, nil
}

func intervalSpec(v string) (Spec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Spec{}, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Spec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return Spec{}, fmt.Errorf("interval must be > 0")
		}
		return Spec{Kind: KindInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
	}
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval must be > 0")
	}
	return Spec{Kind: KindInterval, Every: d, Source: "duration"}, nil
}

// Schedule converts s into a cron schedule. Intervals below one
// second are rounded up to one second.
func (s Spec) Schedule() (cron.Schedule, error) {
	if s.Kind == KindInterval {
		return cron.Every(s.Every), nil
	}
	return cronParser.Parse(s.Cron)
}

func (s Spec) String() string {
	if s.Kind == KindInterval {
		return "every " + s.Every.String()
	}
	return s.Cron
}
