// internal/scheduler/scheduler.go
//
// Cron scheduler for plugin jobs.
//
// Context
// -------
// Jobs come from the sealed plugin registry with their schedules already
// parsed.  On every due tick a job fans out:
//
//	AllSites  → one invocation, SiteID nil.
//	otherwise → one invocation per active tenant, SiteID = tenant id.
//
// Per-tenant invocations run concurrently (bounded by Concurrency) and are
// fully independent.  A returned error or panic in one is logged as a
// JobFault and never blocks or cancels the others.
//
// Workflow
// --------
//  1. robfig/cron wakes the job; SkipIfStillRunning drops a tick that
//     overlaps the previous run of the same job.
//  2. Fire() asks the TenantSource for active ids.  If that fails the tick
//     is skipped and logged.
//  3. errgroup runs the invocations and waits.
//
// Notes
// -----
// • Missed ticks (process down, overlap) are skipped, never replayed.
// • Stop() waits for running jobs; no invocation is cancelled.
// • Oxford commas, two spaces after periods.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/adept-pluginhost/internal/metrics"
	"github.com/yanizio/adept-pluginhost/internal/plugin"
)

var (
	// ErrUnknownJob is returned by RunNow for a name not in the job table.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	// ErrSiteNotApplicable is returned by RunNow when a site is given for
	// an AllSites job.
	ErrSiteNotApplicable = errors.New("scheduler: job runs across all sites")
	// ErrStarted is returned by a second Start.
	ErrStarted = errors.New("scheduler: already started")
)

// DefaultConcurrency bounds per-tick tenant fan-out.
const DefaultConcurrency = 8

// TenantSource enumerates active tenants at tick time.
type TenantSource interface {
	ActiveIDs(ctx context.Context) ([]int64, error)
}

// JobFault is an uncaught failure inside one job invocation.
type JobFault struct {
	Plugin string
	Job    string
	SiteID *int64
	Panic  bool
	Err    error
}

func (f *JobFault) Error() string {
	site := "global"
	if f.SiteID != nil {
		site = "site " + strconv.FormatInt(*f.SiteID, 10)
	}
	return fmt.Sprintf("scheduler: job %q (plugin %q, %s): %v", f.Job, f.Plugin, site, f.Err)
}

func (f *JobFault) Unwrap() error { return f.Err }

// Report summarises one tick of one job.
type Report struct {
	Job         string
	Invocations int
	Faults      []*JobFault
	// Err is set when the tick was skipped before any invocation.
	Err error
}

/*──────────────────────────── scheduler ────────────────────────────────────*/

// Scheduler fires plugin jobs.
type Scheduler struct {
	jobs    []plugin.Job
	tenants TenantSource
	limit   int
	loc     *time.Location
	now     func() time.Time
	log     *zap.SugaredLogger

	mu   sync.Mutex
	cron *cron.Cron
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency bounds concurrent tenant invocations per tick.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithLocation sets the time zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(s *Scheduler) { s.log = l } }

// WithClock overrides the tick timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New builds a scheduler over the sealed job table.
func New(jobs []plugin.Job, tenants TenantSource, opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:    jobs,
		tenants: tenants,
		limit:   DefaultConcurrency,
		loc:     time.Local,
		now:     time.Now,
		log:     zap.S(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("cron")
	return s
}

// Start registers every job with robfig/cron and starts the ticker.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrStarted
	}

	lg := cronLogger{s.log}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(lg),
		cron.WithChain(cron.Recover(lg), cron.SkipIfStillRunning(lg)),
	)
	for _, j := range s.jobs {
		c.Schedule(j.Schedule, cron.FuncJob(func() {
			s.Fire(context.Background(), j, s.now().In(s.loc))
		}))
		s.log.Infow("job scheduled", "job", j.Name, "plugin", j.Plugin, "expr", j.Expr, "all_sites", j.AllSites)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the ticker and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// RunNow fires the named job once.  A non-nil site restricts a per-tenant
// job to that tenant.
func (s *Scheduler) RunNow(ctx context.Context, name string, site *int64) (Report, error) {
	for _, j := range s.jobs {
		if j.Name != name {
			continue
		}
		now := s.now().In(s.loc)
		if site == nil {
			return s.Fire(ctx, j, now), nil
		}
		if j.AllSites {
			return Report{Job: name}, ErrSiteNotApplicable
		}
		return s.fanOut(ctx, j, now, []int64{*site}), nil
	}
	return Report{Job: name}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
}

// Fire runs one tick of j.
func (s *Scheduler) Fire(ctx context.Context, j plugin.Job, now time.Time) Report {
	if j.AllSites {
		rep := Report{Job: j.Name, Invocations: 1}
		if f := s.invoke(ctx, j, nil, now); f != nil {
			rep.Faults = append(rep.Faults, f)
		}
		return rep
	}

	ids, err := s.tenants.ActiveIDs(ctx)
	if err != nil {
		s.log.Errorw("tick skipped: tenant enumeration failed", "job", j.Name, "plugin", j.Plugin, "err", err)
		return Report{Job: j.Name, Err: err}
	}
	return s.fanOut(ctx, j, now, ids)
}

func (s *Scheduler) fanOut(ctx context.Context, j plugin.Job, now time.Time, ids []int64) Report {
	var (
		g   errgroup.Group
		mu  sync.Mutex
		rep = Report{Job: j.Name, Invocations: len(ids)}
	)
	g.SetLimit(s.limit)
	for _, id := range ids {
		site := id
		g.Go(func() error {
			if f := s.invoke(ctx, j, &site, now); f != nil {
				mu.Lock()
				rep.Faults = append(rep.Faults, f)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(rep.Faults) > 0 {
		s.log.Warnw("tick finished with faults",
			"job", j.Name, "plugin", j.Plugin, "invocations", rep.Invocations, "faults", len(rep.Faults))
	} else {
		s.log.Debugw("tick finished", "job", j.Name, "invocations", rep.Invocations)
	}
	return rep
}

// invoke runs one handler call behind a recover barrier.
func (s *Scheduler) invoke(ctx context.Context, j plugin.Job, site *int64, now time.Time) (fault *JobFault) {
	defer func() {
		if rec := recover(); rec != nil {
			fault = &JobFault{Plugin: j.Plugin, Job: j.Name, SiteID: site, Panic: true, Err: fmt.Errorf("%v", rec)}
			s.log.Errorw("job panicked",
				"job", j.Name, "plugin", j.Plugin, "site_id", site, "panic", rec, "stack", string(debug.Stack()))
		}
		result := "ok"
		if fault != nil {
			result = "fault"
		}
		metrics.CronInvocationsTotal.WithLabelValues(j.Name, result).Inc()
	}()

	err := j.Handler(ctx, plugin.JobContext{Job: j.Name, SiteID: site, Now: now})
	if err != nil {
		s.log.Errorw("job failed", "job", j.Name, "plugin", j.Plugin, "site_id", site, "err", err)
		return &JobFault{Plugin: j.Plugin, Job: j.Name, SiteID: site, Err: err}
	}
	return nil
}

/*──────────────────────────── cron logger ──────────────────────────────────*/

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, kv ...interface{}) { c.l.Debugw(msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Errorw(msg, append(kv, "err", err)...)
}
