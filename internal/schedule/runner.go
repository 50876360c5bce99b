// Package schedule repeats a job on a cron or interval schedule with a cap on
// how often the job may actually run.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	logx "netgrowl/pkg/logx"
)

// Job is one scheduled run. Errors are logged; they never stop the runner.
type Job func(ctx context.Context) error

// Stats counts ticks by outcome.
type Stats struct {
	Runs    int64
	Failed  int64
	Limited int64
}

// Runner triggers a Job on a Spec. Overlapping ticks are skipped, and ticks
// beyond the per-minute cap are dropped.
type Runner struct {
	log     logx.Logger
	limiter *rate.Limiter

	runs    atomic.Int64
	failed  atomic.Int64
	limited atomic.Int64
}

// New returns a runner that allows at most perMinute runs per minute.
func New(log logx.Logger, perMinute int) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{log: log, limiter: rate.NewLimiter(rate.Inf, 1)}
	r.SetRate(perMinute)
	return r
}

// SetRate changes the cap. It is safe to call while Run is active.
func (r *Runner) SetRate(perMinute int) {
	if perMinute <= 0 {
		perMinute = 1
	}
	r.limiter.SetLimit(rate.Limit(float64(perMinute) / 60))
	r.limiter.SetBurst(perMinute)
}

func (r *Runner) Stats() Stats {
	return Stats{Runs: r.runs.Load(), Failed: r.failed.Load(), Limited: r.limited.Load()}
}

// Run triggers job on spec until ctx is done. When immediate is true the job
// also runs once right away.
func (r *Runner) Run(ctx context.Context, spec Spec, immediate bool, job Job) error {
	sched, err := spec.Schedule()
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec.String(), err)
	}

	clog := cronLogger{log: r.log}
	c := cron.New(
		cron.WithLocation(time.Local),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	c.Schedule(sched, cron.FuncJob(func() { r.tick(ctx, job) }))

	if immediate {
		r.tick(ctx, job)
	}
	c.Start()
	r.log.Info("repeat started", logx.String("schedule", spec.String()), logx.String("kind", spec.Kind.String()))

	<-ctx.Done()
	<-c.Stop().Done()
	st := r.Stats()
	r.log.Info("repeat stopped",
		logx.Int64("runs", st.Runs),
		logx.Int64("failed", st.Failed),
		logx.Int64("limited", st.Limited),
	)
	return nil
}

func (r *Runner) tick(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	if !r.limiter.Allow() {
		r.limited.Add(1)
		r.log.Warn("repeat rate limit reached, skipping run")
		return
	}
	r.runs.Add(1)
	start := time.Now()
	if err := job(ctx); err != nil {
		r.failed.Add(1)
		r.log.Warn("scheduled run failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	r.log.Debug("scheduled run done", logx.Duration("took", time.Since(start)))
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
