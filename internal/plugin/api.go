// internal/plugin/api.go
//
// Capability surface handed to plugin code.
//
// Context
// -------
// A plugin never touches the host directly.  Its Register entry point gets
// an API bound to its own slug:
//
//	api.Plugin()         – read-only self descriptor.
//	api.Log()            – zap logger carrying plugin=<slug>.
//	api.DB()             – storage gateway calls with the slug pre-bound.
//	api.RegisterRoute()  – stage an HTTP route.
//	api.Cron()           – stage a scheduled job.
//
// The DB handle stays valid after Register returns and may be captured by
// handlers and jobs.  RegisterRoute and Cron().Schedule do not; calling them
// late yields ErrRegistrationClosed.

package plugin

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/adept-pluginhost/internal/acl"
	"github.com/yanizio/adept-pluginhost/internal/auth"
	"github.com/yanizio/adept-pluginhost/internal/requestinfo"
	"github.com/yanizio/adept-pluginhost/internal/storage"
)

// API is the per-plugin capability object.
type API interface {
	Plugin() Descriptor
	Log() *zap.SugaredLogger
	DB() DB
	RegisterRoute(method, path string, h RouteHandler, opts RouteOptions) error
	Cron() Cron
}

// Descriptor identifies the calling plugin.
type Descriptor struct {
	Slug string
}

// DB is the storage gateway with the plugin slug bound.
type DB interface {
	CreateTable(ctx context.Context, logical string, cols []storage.Column) error
	TableName(logical string) string
	Query(ctx context.Context, stmt string, args ...any) ([]storage.Row, error)
	Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error)
}

// Cron stages scheduled jobs.
type Cron interface {
	Schedule(name, expr string, h JobHandler, opts JobOptions) error
}

/*──────────────────────────── routes ───────────────────────────────────────*/

// RequestContext is built by the dispatcher for one request and discarded
// when the handler returns.
type RequestContext struct {
	Principal auth.Principal
	// SiteID is the tenant the request acts on; nil means globally.
	SiteID    *int64
	Plugin    string
	RequestID string
	Info      *requestinfo.Info
}

// RouteHandler serves one request.  A non-nil value is written as JSON
// with status 200 unless the handler already wrote a response.  A nil value
// with nothing written yields 204.  A returned error becomes a 500.
type RouteHandler func(w http.ResponseWriter, r *http.Request, rc *RequestContext) (any, error)

// RouteOptions carry the route's authorization policy.
type RouteOptions struct {
	// AllSites makes the route reachable without a tenant.
	AllSites bool
	// GlobalOnly restricts the route to global principals.  Implies AllSites.
	GlobalOnly bool
	// Roles is the allow-list; empty admits every role.
	Roles []auth.Role
}

func (o RouteOptions) policy() acl.Policy {
	roles := make([]auth.Role, len(o.Roles))
	copy(roles, o.Roles)
	return acl.Policy{
		AllSites:   o.AllSites || o.GlobalOnly,
		GlobalOnly: o.GlobalOnly,
		Roles:      roles,
	}
}

/*──────────────────────────── jobs ─────────────────────────────────────────*/

// JobContext is passed to each invocation of a job handler.
type JobContext struct {
	Job string
	// SiteID is nil for AllSites jobs.
	SiteID *int64
	Now    time.Time
}

// JobHandler runs one invocation.  Returned errors and panics are logged
// by the scheduler and never affect other invocations.
type JobHandler func(ctx context.Context, jc JobContext) error

// JobOptions control fan-out.
type JobOptions struct {
	// AllSites runs the job once per tick with a nil SiteID instead of
	// once per active tenant.
	AllSites bool
}
