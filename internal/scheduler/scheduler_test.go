// internal/scheduler/scheduler_test.go
//
// Unit-tests for job fan-out.  Fire() is driven directly with a fixed
// timestamp so no test waits on a real cron tick, except TestStartStop,
// which uses an "@every 1s" schedule.
//
// Run: go test ./internal/scheduler -v

package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yanizio/adept-pluginhost/internal/plugin"
)

type staticTenants struct {
	ids []int64
	err error
}

func (s staticTenants) ActiveIDs(context.Context) ([]int64, error) { return s.ids, s.err }

func mustJob(t *testing.T, name, expr string, allSites bool, h plugin.JobHandler) plugin.Job {
	t.Helper()
	sched, err := plugin.ParseSchedule(expr)
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	return plugin.Job{Name: name, Expr: expr, Plugin: "test", Schedule: sched, Handler: h, AllSites: allSites}
}

type recorder struct {
	mu    sync.Mutex
	sites []*int64
	nows  []time.Time
}

func (r *recorder) handler(fail int64) plugin.JobHandler {
	return func(_ context.Context, jc plugin.JobContext) error {
		r.mu.Lock()
		r.sites = append(r.sites, jc.SiteID)
		r.nows = append(r.nows, jc.Now)
		r.mu.Unlock()
		if jc.SiteID != nil && *jc.SiteID == fail {
			return errors.New("tenant failure")
		}
		return nil
	}
}

func (r *recorder) siteIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, s := range r.sites {
		if s != nil {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var tick = time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC)

func TestFire_PerTenantWithOneFailure(t *testing.T) {
	rec := &recorder{}
	job := mustJob(t, "digest", "*/5 * * * *", false, rec.handler(1))
	s := New([]plugin.Job{job}, staticTenants{ids: []int64{1, 2}})

	rep := s.Fire(context.Background(), job, tick)

	if got := rec.siteIDs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("invoked for %v, want [1 2]", got)
	}
	if rep.Invocations != 2 || len(rep.Faults) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if f := rep.Faults[0]; f.SiteID == nil || *f.SiteID != 1 || f.Panic {
		t.Fatalf("fault = %+v", f)
	}
	for _, n := range rec.nows {
		if !n.Equal(tick) {
			t.Fatalf("Now = %v, want %v", n, tick)
		}
	}
}

func TestFire_PanicIsIsolated(t *testing.T) {
	var ok atomic.Int32
	job := mustJob(t, "risky", "@hourly", false, func(_ context.Context, jc plugin.JobContext) error {
		if *jc.SiteID == 2 {
			panic("boom")
		}
		ok.Add(1)
		return nil
	})
	s := New([]plugin.Job{job}, staticTenants{ids: []int64{1, 2, 3}}, WithConcurrency(1))

	rep := s.Fire(context.Background(), job, tick)
	if ok.Load() != 2 {
		t.Fatalf("healthy invocations = %d, want 2", ok.Load())
	}
	if len(rep.Faults) != 1 || !rep.Faults[0].Panic {
		t.Fatalf("faults = %+v", rep.Faults)
	}
}

func TestFire_AllSitesOnceWithNilSite(t *testing.T) {
	rec := &recorder{}
	job := mustJob(t, "heartbeat", "*/5 * * * *", true, rec.handler(0))
	s := New([]plugin.Job{job}, staticTenants{ids: []int64{1, 2, 3}})

	rep := s.Fire(context.Background(), job, tick)
	if rep.Invocations != 1 || len(rec.sites) != 1 || rec.sites[0] != nil {
		t.Fatalf("report = %+v, sites = %v", rep, rec.sites)
	}
}

func TestFire_TenantSourceErrorSkipsTick(t *testing.T) {
	rec := &recorder{}
	job := mustJob(t, "digest", "@daily", false, rec.handler(0))
	boom := errors.New("db down")
	s := New([]plugin.Job{job}, staticTenants{err: boom})

	rep := s.Fire(context.Background(), job, tick)
	if !errors.Is(rep.Err, boom) || rep.Invocations != 0 || len(rec.sites) != 0 {
		t.Fatalf("report = %+v, sites = %v", rep, rec.sites)
	}
}

func TestRunNow(t *testing.T) {
	rec := &recorder{}
	perSite := mustJob(t, "digest", "@daily", false, rec.handler(0))
	global := mustJob(t, "heartbeat", "@hourly", true, rec.handler(0))
	s := New([]plugin.Job{perSite, global}, staticTenants{ids: []int64{1, 2}}, WithClock(func() time.Time { return tick }))
	ctx := context.Background()

	site := int64(9)
	if rep, err := s.RunNow(ctx, "digest", &site); err != nil || rep.Invocations != 1 {
		t.Fatalf("RunNow site: %+v %v", rep, err)
	}
	if got := rec.siteIDs(); len(got) != 1 || got[0] != 9 {
		t.Fatalf("sites = %v", got)
	}
	if _, err := s.RunNow(ctx, "heartbeat", &site); !errors.Is(err, ErrSiteNotApplicable) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.RunNow(ctx, "missing", nil); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("err = %v", err)
	}
}

func TestStartStop(t *testing.T) {
	fired := make(chan struct{}, 1)
	job := mustJob(t, "fast", "@every 1s", true, func(context.Context, plugin.JobContext) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})
	s := New([]plugin.Job{job}, staticTenants{}, WithLocation(time.UTC))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(); !errors.Is(err, ErrStarted) {
		t.Fatalf("second Start err = %v", err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}
}
