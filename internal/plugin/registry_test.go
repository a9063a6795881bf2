// internal/plugin/registry_test.go
//
// Unit-tests for the plugin registry.
//
// Context
// -------
// These tests exercise the boot-time contract without a database:
//
//   • Duplicate (method, path) fails the second plugin, first stays callable.
//   • A failing or panicking plugin leaves no partial routes or jobs.
//   • A conflict the plugin ignores still fails its load.
//   • Invalid cron expressions are conflicts detected at registration.
//   • Late registration and post-seal loads are rejected.
//
// Run: go test ./internal/plugin -v

package plugin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yanizio/adept-pluginhost/internal/auth"
)

type funcPlugin struct {
	slug string
	fn   func(ctx context.Context, api API) error
}

func (f funcPlugin) Slug() string                                { return f.slug }
func (f funcPlugin) Register(ctx context.Context, api API) error { return f.fn(ctx, api) }

func okHandler(body string) RouteHandler {
	return func(w http.ResponseWriter, r *http.Request, rc *RequestContext) (any, error) {
		return map[string]string{"from": body}, nil
	}
}

func noopJob(context.Context, JobContext) error { return nil }

func TestLoad_DuplicateRouteFailsSecondOnly(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	first := funcPlugin{"first", func(_ context.Context, api API) error {
		return api.RegisterRoute("GET", "/api/plugins/shared", okHandler("first"), RouteOptions{})
	}}
	second := funcPlugin{"second", func(_ context.Context, api API) error {
		if err := api.RegisterRoute("POST", "/api/plugins/second", okHandler("second"), RouteOptions{}); err != nil {
			return err
		}
		return api.RegisterRoute("get", "/api/plugins/shared", okHandler("second"), RouteOptions{})
	}}

	if err := reg.Load(ctx, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	err := reg.Load(ctx, second)
	if !errors.Is(err, ErrRegistrationConflict) {
		t.Fatalf("second: err = %v, want ErrRegistrationConflict", err)
	}

	tables := reg.Seal()
	rt, ok := tables.Routes.Lookup("GET", "/api/plugins/shared")
	if !ok || rt.Plugin != "first" {
		t.Fatalf("shared route owner = %q (found %v), want first", rt.Plugin, ok)
	}
	if _, ok := tables.Routes.Lookup("POST", "/api/plugins/second"); ok {
		t.Fatal("failed plugin left a partial route behind")
	}

	rec := httptest.NewRecorder()
	v, err := rt.Handler(rec, httptest.NewRequest("GET", "/api/plugins/shared", nil), &RequestContext{})
	if err != nil || v.(map[string]string)["from"] != "first" {
		t.Fatalf("first handler not callable: %v %v", v, err)
	}
}

func TestLoad_PanicIsIsolated(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	err := reg.LoadAll(ctx, []Plugin{
		funcPlugin{"boom", func(_ context.Context, api API) error {
			_ = api.Cron().Schedule("boom-job", "@hourly", noopJob, JobOptions{})
			panic("kaboom")
		}},
		funcPlugin{"fine", func(_ context.Context, api API) error {
			return api.Cron().Schedule("fine-job", "*/5 * * * *", noopJob, JobOptions{AllSites: true})
		}},
	})
	if err == nil {
		t.Fatal("LoadAll returned nil despite a panicking plugin")
	}

	tables := reg.Seal()
	if _, ok := tables.Job("boom-job"); ok {
		t.Fatal("panicking plugin committed a job")
	}
	if j, ok := tables.Job("fine-job"); !ok || !j.AllSites || j.Plugin != "fine" {
		t.Fatalf("fine-job = %+v (found %v)", j, ok)
	}

	st := reg.Plugins()
	if len(st) != 2 || st[0].State != StateFailed || st[1].State != StateLoaded {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSchedule_InvalidExpression(t *testing.T) {
	reg := NewRegistry(nil, nil)
	var schedErr error
	err := reg.Load(context.Background(), funcPlugin{"cronny", func(_ context.Context, api API) error {
		schedErr = api.Cron().Schedule("bad", "61 * * * *", noopJob, JobOptions{})
		return schedErr
	}})
	if !errors.Is(schedErr, ErrInvalidSchedule) || !errors.Is(schedErr, ErrRegistrationConflict) {
		t.Fatalf("schedule err = %v", schedErr)
	}
	if err == nil {
		t.Fatal("plugin load should fail")
	}
}

func TestSchedule_DuplicateNameAcrossPlugins(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()
	job := func(_ context.Context, api API) error {
		return api.Cron().Schedule("cleanup", "@daily", noopJob, JobOptions{})
	}
	if err := reg.Load(ctx, funcPlugin{"a", job}); err != nil {
		t.Fatalf("a: %v", err)
	}
	if err := reg.Load(ctx, funcPlugin{"b", job}); !errors.Is(err, ErrRegistrationConflict) {
		t.Fatalf("b: err = %v, want conflict", err)
	}
	if got := len(reg.Seal().Jobs()); got != 1 {
		t.Fatalf("jobs = %d, want 1", got)
	}
}

func TestRegisterRoute_Validation(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		opts   RouteOptions
	}{
		{"bad method", "OPTIONS", "/x", RouteOptions{}},
		{"relative path", "GET", "x", RouteOptions{}},
		{"unclean path", "GET", "/a/../b", RouteOptions{}},
		{"trailing slash", "GET", "/a/", RouteOptions{}},
		{"reserved admin", "GET", "/api/admin/plugins", RouteOptions{}},
		{"reserved metrics", "GET", "/metrics", RouteOptions{}},
		{"unknown role", "GET", "/x", RouteOptions{Roles: []auth.Role{"root"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry(nil, nil)
			err := reg.Load(context.Background(), funcPlugin{"v", func(_ context.Context, api API) error {
				return api.RegisterRoute(tc.method, tc.path, okHandler("v"), tc.opts)
			}})
			if !errors.Is(err, ErrRegistrationConflict) {
				t.Fatalf("err = %v, want conflict", err)
			}
		})
	}
}

func TestRouteOptions_GlobalOnlyImpliesAllSites(t *testing.T) {
	reg := NewRegistry(nil, nil)
	err := reg.Load(context.Background(), funcPlugin{"ops", func(_ context.Context, api API) error {
		return api.RegisterRoute("GET", "/api/plugins/ops/state", okHandler("ops"),
			RouteOptions{GlobalOnly: true, Roles: []auth.Role{auth.RoleAdmin}})
	}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rt, _ := reg.Seal().Routes.Lookup("GET", "/api/plugins/ops/state")
	if !rt.Policy.AllSites || !rt.Policy.GlobalOnly || len(rt.Policy.Roles) != 1 {
		t.Fatalf("policy = %+v", rt.Policy)
	}
}

func TestLateRegistrationAndSeal(t *testing.T) {
	reg := NewRegistry(nil, nil)
	var captured API
	if err := reg.Load(context.Background(), funcPlugin{"late", func(_ context.Context, api API) error {
		captured = api
		return nil
	}}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	err := captured.RegisterRoute("GET", "/api/plugins/late", okHandler("late"), RouteOptions{})
	if !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("late route err = %v", err)
	}
	if err := captured.Cron().Schedule("late", "@hourly", noopJob, JobOptions{}); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("late job err = %v", err)
	}
	if _, err := captured.DB().Query(context.Background(), "SELECT 1"); !errors.Is(err, ErrNoStorage) {
		t.Fatalf("nil store err = %v", err)
	}

	reg.Seal()
	if err := reg.Load(context.Background(), funcPlugin{"after", func(context.Context, API) error { return nil }}); !errors.Is(err, ErrSealed) {
		t.Fatalf("post-seal load err = %v", err)
	}
}

func TestLoad_InvalidAndDuplicateSlug(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()
	nop := func(context.Context, API) error { return nil }

	if err := reg.Load(ctx, funcPlugin{"Bad Slug", nop}); !errors.Is(err, ErrRegistrationConflict) {
		t.Fatalf("invalid slug err = %v", err)
	}
	if err := reg.Load(ctx, funcPlugin{"dup", nop}); err != nil {
		t.Fatalf("dup first: %v", err)
	}
	if err := reg.Load(ctx, funcPlugin{"dup", nop}); !errors.Is(err, ErrRegistrationConflict) {
		t.Fatalf("dup second err = %v", err)
	}
}

func TestLoad_SwallowedConflictStillFailsPlugin(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	if err := reg.Load(ctx, funcPlugin{"first", func(_ context.Context, api API) error {
		return api.RegisterRoute("GET", "/api/plugins/shared", okHandler("first"), RouteOptions{})
	}}); err != nil {
		t.Fatalf("first: %v", err)
	}

	err := reg.Load(ctx, funcPlugin{"second", func(_ context.Context, api API) error {
		if err := api.RegisterRoute("POST", "/api/plugins/second", okHandler("second"), RouteOptions{}); err != nil {
			return err
		}
		_ = api.RegisterRoute("GET", "/api/plugins/shared", okHandler("second"), RouteOptions{})
		_ = api.Cron().Schedule("bad", "not a cron", noopJob, JobOptions{})
		return nil
	}})
	if !errors.Is(err, ErrRegistrationConflict) || !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("second: err = %v, want both conflicts joined", err)
	}

	tables := reg.Seal()
	if _, ok := tables.Routes.Lookup("POST", "/api/plugins/second"); ok {
		t.Fatal("plugin with a swallowed conflict committed a route")
	}
	if rt, _ := tables.Routes.Lookup("GET", "/api/plugins/shared"); rt.Plugin != "first" {
		t.Fatalf("shared route owner = %q, want first", rt.Plugin)
	}
	st := reg.Plugins()
	if len(st) != 2 || st[1].State != StateFailed || st[1].Error == "" || len(st[1].Routes) != 0 {
		t.Fatalf("status = %+v", st)
	}
}

func TestLoad_LateConflictIsNotRecorded(t *testing.T) {
	reg := NewRegistry(nil, nil)
	var captured API
	if err := reg.Load(context.Background(), funcPlugin{"late", func(_ context.Context, api API) error {
		captured = api
		return nil
	}}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := captured.RegisterRoute("GET", "relative", okHandler("late"), RouteOptions{}); !errors.Is(err, ErrRegistrationConflict) {
		t.Fatalf("late invalid route err = %v", err)
	}
	if st := reg.Plugins(); len(st) != 1 || st[0].State != StateLoaded {
		t.Fatalf("status = %+v", st)
	}
}
