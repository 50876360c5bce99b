package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var errUsage = errors.New("usage")

// Options holds the parsed command line. Fields mirror the flags; set records
// which flags were given explicitly so file defaults only fill the rest.
type Options struct {
	Name       string
	Sticky     bool
	Message    string
	Priority   string
	Identifier string
	Host       string
	Password   string
	Port       int
	Title      string
	Args       []string

	Prowl        bool
	ProwlKey     string
	ProwlKeyFile string

	TimeStart string
	TimeEnd   string

	Protocol string
	Hash     string
	Coalesce bool
	Timeout  time.Duration
	Config   string
	LogLevel string
	Repeat   string
	Version  bool

	set map[string]bool
}

// IsSet reports whether any of the named flags was given.
func (o *Options) IsSet(names ...string) bool {
	for _, n := range names {
		if o.set[n] {
			return true
		}
	}
	return false
}

func newFlagSet(prog string, o *Options, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(prog, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: %s [options] [title]\n\nOptions:\n", prog)
		fs.PrintDefaults()
	}

	str := func(p *string, short, long, def, usage string) {
		if short != "" {
			fs.StringVar(p, short, def, usage+" (shorthand)")
		}
		fs.StringVar(p, long, def, usage)
	}
	boolean := func(p *bool, short, long, usage string) {
		if short != "" {
			fs.BoolVar(p, short, false, usage+" (shorthand)")
		}
		fs.BoolVar(p, long, false, usage)
	}

	str(&o.Name, "n", "name", prog, "name of the application that sends the notification")
	boolean(&o.Sticky, "s", "sticky", "make the notification sticky")
	str(&o.Message, "m", "message", "", `message body; "\n" starts a new line (default: read stdin)`)
	str(&o.Priority, "p", "priority", "0", "priority: -2..2 or very-low, moderate, normal, high, emergency")
	str(&o.Identifier, "d", "identifier", "", "notification identifier (used for coalescing)")
	str(&o.Host, "H", "host", "localhost", "host to send the notification to")
	str(&o.Password, "P", "password", "", "password for remote notifications")
	fs.IntVar(&o.Port, "port", 0, "port (default: 9887 for udp, 23053 for gntp)")
	str(&o.Title, "t", "title", "", "title; remaining arguments are appended")

	fs.BoolVar(&o.Prowl, "prowl", false, "send to Prowl instead of Growl")
	fs.StringVar(&o.ProwlKey, "prowl-key", "", "Prowl API key")
	fs.StringVar(&o.ProwlKeyFile, "prowl-keyfile", "", "file containing the Prowl API key (default ~/.prowlkey)")

	fs.StringVar(&o.TimeStart, "time-start", "", "do nothing before this time of day (e.g. 8:00am)")
	fs.StringVar(&o.TimeEnd, "time-end", "", "do nothing after this time of day (e.g. 11:30pm)")

	fs.StringVar(&o.Protocol, "protocol", "", "udp, gntp or prowl (default udp)")
	fs.StringVar(&o.Hash, "hash", "", "GNTP key hash: md5, sha1, sha256 or sha512 (default md5)")
	fs.BoolVar(&o.Coalesce, "coalesce", false, "ask GNTP daemons to replace notifications with the same identifier")
	fs.DurationVar(&o.Timeout, "timeout", 0, "per-step network timeout (default 5s)")
	fs.StringVar(&o.Config, "config", "", "config file (default $XDG_CONFIG_HOME/netgrowl/config.yaml)")
	fs.StringVar(&o.LogLevel, "log-level", "", "trace, debug, info, warn, error or off")
	fs.StringVar(&o.Repeat, "repeat", "", "repeat on a schedule: cron expression, duration or HH:MM interval")
	fs.BoolVar(&o.Version, "version", false, "print version and exit")
	return fs
}

// parseArgs parses flags and positional arguments in any order. "--" ends
// flag parsing.
func parseArgs(prog string, args []string, out io.Writer) (*Options, error) {
	o := &Options{set: map[string]bool{}}
	fs := newFlagSet(prog, o, out)

	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		left := fs.Args()
		consumed := rest[:len(rest)-len(left)]
		if len(left) == 0 {
			break
		}
		if len(consumed) > 0 && consumed[len(consumed)-1] == "--" {
			o.Args = append(o.Args, left...)
			break
		}
		o.Args = append(o.Args, left[0])
		rest = left[1:]
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

var namedPriorities = map[string]int{
	"very-low":  -2,
	"moderate":  -1,
	"normal":    0,
	"high":      1,
	"emergency": 2,
}

// ParsePriority accepts an integer or one of the named levels.
func ParsePriority(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	key := strings.NewReplacer("_", "-", " ", "-").Replace(strings.ToLower(s))
	if key == "verylow" {
		key = "very-low"
	}
	if p, ok := namedPriorities[key]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("%w: invalid priority %q", errUsage, s)
}

// unescapeMessage turns the two-character sequence \n into a newline.
func unescapeMessage(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// joinTitle appends positional arguments to the -t value.
func joinTitle(title string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	if t := strings.TrimSpace(title); t != "" {
		parts = append(parts, t)
	}
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, " ")
}
