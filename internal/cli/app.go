// Package cli is the netgrowl command: it turns flags, the optional config
// file and the environment into a notify.Config, applies the time window and
// hands the delivery to the dispatcher, once or on a schedule.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"netgrowl/internal/config"
	"netgrowl/internal/failure"
	"netgrowl/internal/notify"
	"netgrowl/internal/prowl"
	"netgrowl/internal/schedule"
	"netgrowl/internal/timewindow"
	logx "netgrowl/pkg/logx"
)

// Version is stamped at build time with -ldflags "-X netgrowl/internal/cli.Version=...".
var Version = "dev"

const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitMissingKey = 3
)

// Deliverer is the dispatcher seen by the command.
type Deliverer interface {
	Deliver(ctx context.Context, cfg notify.Config) error
}

// App runs the command. Zero fields fall back to the process defaults.
type App struct {
	Prog   string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time
	// Home is where ~/.prowlkey is looked up.
	Home string
	// NewDeliverer builds the dispatcher; nil uses notify.New.
	NewDeliverer func(log logx.Logger, file *config.Config, timeout time.Duration) Deliverer
}

// Main runs netgrowl with the process streams and returns the exit code.
func Main(ctx context.Context, args []string) int {
	app := &App{Prog: "netgrowl", Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
	return app.Run(ctx, args)
}

func (a *App) defaults() {
	if a.Prog == "" {
		a.Prog = "netgrowl"
	}
	if a.Stdout == nil {
		a.Stdout = io.Discard
	}
	if a.Stderr == nil {
		a.Stderr = io.Discard
	}
	if a.Now == nil {
		a.Now = time.Now
	}
	if a.NewDeliverer == nil {
		a.NewDeliverer = defaultDeliverer
	}
}

func defaultDeliverer(log logx.Logger, file *config.Config, timeout time.Duration) Deliverer {
	return notify.New(
		notify.WithLogger(log.With(logx.String("comp", "notify"))),
		notify.WithOrigin("netgrowl", Version),
		notify.WithRelay(prowl.New(file.Prowl.Endpoint, timeout)),
	)
}

// Run executes one invocation and returns its exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	a.defaults()

	opts, err := parseArgs(a.Prog, args, a.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return a.fail(err)
	}
	if opts.Version {
		fmt.Fprintf(a.Stdout, "%s %s\n", a.Prog, Version)
		return ExitOK
	}

	if err := config.LoadDotenv(); err != nil {
		return a.fail(failure.Config("dotenv", err))
	}
	path, optional := opts.Config, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	mgr := config.NewManager(path, optional)
	file, err := mgr.Load()
	if err != nil {
		return a.fail(err)
	}

	logSvc, log := logx.New(file.Logging.Logx(opts.LogLevel))
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	if _, err := timewindow.New(opts.TimeStart, opts.TimeEnd, a.Now()); err != nil {
		return a.fail(err)
	}
	repeat := strings.TrimSpace(opts.Repeat) != ""
	// Outside the window a one-shot run does nothing at all: no stdin read,
	// no relay key lookup.
	if !repeat {
		if skip, reason := a.outsideWindow(opts); skip {
			log.Info("outside time window, not sending", logx.String("reason", reason))
			return ExitOK
		}
	}

	msg := unescapeMessage(opts.Message)
	if msg == "" {
		if msg, err = readMessage(a.Stdin); err != nil {
			return a.fail(err)
		}
	}
	b := builder{prog: a.Prog, opts: opts, message: msg, home: a.Home}

	// Resolve once up front so bad input fails before anything runs.
	first, err := b.build(file)
	if err != nil {
		return a.fail(err)
	}
	if err := first.cfg.Validate(); err != nil {
		return a.fail(err)
	}
	if first.keySource != config.KeyNone {
		log.Debug("relay key resolved", logx.String("source", string(first.keySource)))
	}

	if repeat {
		return a.repeat(ctx, opts, mgr, logSvc, log, b)
	}

	d := a.NewDeliverer(log, file, first.cfg.Timeout)
	if err := d.Deliver(ctx, first.cfg); err != nil {
		return a.fail(err)
	}
	return ExitOK
}

// outsideWindow re-evaluates the window against the current clock.
func (a *App) outsideWindow(opts *Options) (bool, string) {
	now := a.Now()
	w, err := timewindow.New(opts.TimeStart, opts.TimeEnd, now)
	if err != nil || w.IsOpen() {
		return false, ""
	}
	if r := w.Reason(now); r != "" {
		return true, r
	}
	return false, ""
}

func (a *App) repeat(ctx context.Context, opts *Options, mgr *config.Manager, logSvc *logx.Service, log logx.Logger, b builder) int {
	spec, err := schedule.Parse(opts.Repeat)
	if err != nil {
		return a.fail(fmt.Errorf("%w: -repeat: %v", errUsage, err))
	}

	runner := schedule.New(log.With(logx.String("comp", "repeat")), mgr.Get().Repeat.EffectiveRate())
	mgr.SetValidator(b.check)
	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Watch(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				logSvc.Apply(cfg.Logging.Logx(opts.LogLevel))
				runner.SetRate(cfg.Repeat.EffectiveRate())
			}
		}
	})
	g.Go(func() error {
		return runner.Run(gctx, spec, true, func(ctx context.Context) error {
			if skip, reason := a.outsideWindow(opts); skip {
				log.Debug("outside time window, skipping run", logx.String("reason", reason))
				return nil
			}
			file := mgr.Get()
			r, err := b.build(file)
			if err != nil {
				return err
			}
			return a.NewDeliverer(log, file, r.cfg.Timeout).Deliver(ctx, r.cfg)
		})
	})

	if err := g.Wait(); err != nil {
		return a.fail(err)
	}
	return ExitOK
}

func (a *App) fail(err error) int {
	fmt.Fprintf(a.Stderr, "%s: %v\n", a.Prog, err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, prowl.ErrMissingKey):
		return ExitMissingKey
	case errors.Is(err, errUsage), errors.Is(err, failure.ErrConfig):
		return ExitUsage
	default:
		return ExitFailure
	}
}
