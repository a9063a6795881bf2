// internal/dispatch/dispatcher.go
//
// Route dispatcher for plugin routes.
//
// Context
// -------
// Mounted as the chi NotFound / MethodNotAllowed handler, so every request
// that no host route claims lands here.  Each request walks a fixed state
// machine:
//
//	Received → Authenticating → Authorizing → Dispatched → Responded
//	                 ↘                ↘
//	                  Rejected (401)    Rejected (403)
//
// Route lookup is exact on (method, path) and happens first; an unknown
// route is a 404 before any credential is read.
//
// Tenant resolution
// -----------------
// Tenant-scoped principals always act on their own tenant.  Global
// principals on site routes act on the tenant implied by the request: the
// X-Site-Id header if present, else the Host header via HostResolver.
// acl.Authorize makes that call; this file only gathers the hint.
//
// Failure isolation
// -----------------
// Handler errors and panics become a HandlerFault.  The fault is logged
// with plugin slug, route, and stack; the caller sees a generic 500.
//
// Notes
// -----
// • The route table is sealed, so dispatch takes no locks.
// • Oxford commas, two spaces after periods.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/adept-pluginhost/internal/acl"
	"github.com/yanizio/adept-pluginhost/internal/auth"
	"github.com/yanizio/adept-pluginhost/internal/metrics"
	"github.com/yanizio/adept-pluginhost/internal/middleware"
	"github.com/yanizio/adept-pluginhost/internal/plugin"
	"github.com/yanizio/adept-pluginhost/internal/requestinfo"
	"github.com/yanizio/adept-pluginhost/internal/respond"
)

// SiteHeader lets a global principal name the tenant for a site route.
const SiteHeader = "X-Site-Id"

// CredentialResolver turns a raw bearer credential into a Principal.
type CredentialResolver interface {
	Resolve(raw string) (auth.Principal, error)
}

// HostResolver maps a request host to a tenant id.
type HostResolver interface {
	SiteID(ctx context.Context, host string) (int64, error)
}

/*──────────────────────────── states ───────────────────────────────────────*/

// State is one step of the per-request state machine.
type State int

const (
	Received State = iota
	Authenticating
	Authorizing
	Dispatched
	Responded
	Rejected
)

func (s State) String() string {
	switch s {
	case Received:
		return "received"
	case Authenticating:
		return "authenticating"
	case Authorizing:
		return "authorizing"
	case Dispatched:
		return "dispatched"
	case Responded:
		return "responded"
	case Rejected:
		return "rejected"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

/*──────────────────────────── fault ────────────────────────────────────────*/

// HandlerFault is an uncaught failure inside a plugin route handler.
type HandlerFault struct {
	Plugin string
	Route  string
	Panic  bool
	Err    error
}

func (f *HandlerFault) Error() string {
	kind := "error"
	if f.Panic {
		kind = "panic"
	}
	return fmt.Sprintf("dispatch: handler %s in plugin %q route %s: %v", kind, f.Plugin, f.Route, f.Err)
}

func (f *HandlerFault) Unwrap() error { return f.Err }

/*──────────────────────────── dispatcher ───────────────────────────────────*/

// Dispatcher serves plugin routes.
type Dispatcher struct {
	routes *plugin.RouteTable
	creds  CredentialResolver
	hosts  HostResolver
	info   *requestinfo.Parser
	cookie string
	log    *zap.SugaredLogger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHostResolver enables Host-header tenant hints for global principals.
func WithHostResolver(h HostResolver) Option { return func(d *Dispatcher) { d.hosts = h } }

// WithRequestInfo sets the parser used for RequestContext.Info.
func WithRequestInfo(p *requestinfo.Parser) Option { return func(d *Dispatcher) { d.info = p } }

// WithCookie also accepts the credential from the named cookie.
func WithCookie(name string) Option { return func(d *Dispatcher) { d.cookie = name } }

// WithLogger overrides the logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(d *Dispatcher) { d.log = l } }

// New builds a dispatcher over a sealed route table.
func New(routes *plugin.RouteTable, creds CredentialResolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{routes: routes, creds: creds, log: zap.S()}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.Named("dispatch")
	return d
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state := Received
	rt, ok := d.routes.Lookup(r.Method, r.URL.Path)
	if !ok {
		metrics.DispatchRequestsTotal.WithLabelValues("none", "not_found").Inc()
		respond.Error(w, http.StatusNotFound)
		return
	}
	log := d.log.With(
		"plugin", rt.Plugin,
		"route", rt.Key(),
		"request_id", middleware.RequestIDFromContext(r.Context()),
	)

	// Authenticating
	state = Authenticating
	raw, _ := auth.BearerToken(r, d.cookie)
	p, err := d.creds.Resolve(raw)
	if err != nil {
		d.reject(w, log, rt, state, http.StatusUnauthorized, "unauthorized", err)
		return
	}

	// Authorizing
	state = Authorizing
	var implied *int64
	if p.Global() && !rt.Policy.SiteWide() {
		implied = d.impliedTenant(r)
	}
	dec, err := acl.Authorize(p, rt.Policy, implied)
	if err != nil {
		d.reject(w, log, rt, state, http.StatusForbidden, "forbidden", err,
			"subject", p.SubjectID, "role", p.Role)
		return
	}

	// Dispatched
	state = Dispatched
	log.Debugw("dispatching", "state", state, "site_id", dec.TenantID)
	rc := &plugin.RequestContext{
		Principal: p,
		SiteID:    dec.TenantID,
		Plugin:    rt.Plugin,
		RequestID: middleware.RequestIDFromContext(r.Context()),
		Info:      d.info.Parse(r),
	}
	r = r.WithContext(auth.WithPrincipal(r.Context(), p))

	start := time.Now()
	tw := &trackingWriter{ResponseWriter: w}
	v, f := invoke(rt, tw, r, rc)
	metrics.DispatchDuration.WithLabelValues(rt.Plugin).Observe(time.Since(start).Seconds())

	if f != nil {
		metrics.DispatchRequestsTotal.WithLabelValues(rt.Plugin, "fault").Inc()
		fields := []any{"err", f.Err, "panic", f.Panic}
		if f.Panic {
			fields = append(fields, "stack", f.stack)
		}
		log.Errorw("handler fault", fields...)
		if !tw.wrote {
			respond.Error(w, http.StatusInternalServerError)
		}
		return
	}

	state = Responded
	switch {
	case tw.wrote:
	case v == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		respond.JSON(w, http.StatusOK, v)
	}
	metrics.DispatchRequestsTotal.WithLabelValues(rt.Plugin, "ok").Inc()
	log.Debugw("request served", "state", state)
}

func (d *Dispatcher) reject(w http.ResponseWriter, log *zap.SugaredLogger, rt plugin.Route,
	from State, status int, outcome string, err error, extra ...any) {

	metrics.DispatchRequestsTotal.WithLabelValues(rt.Plugin, outcome).Inc()
	fields := append([]any{"from", from, "state", Rejected, "status", status, "err", err}, extra...)
	var denied *acl.Denied
	if errors.As(err, &denied) {
		fields = append(fields, "reason", denied.Reason)
	}
	log.Infow("request rejected", fields...)
	respond.Error(w, status)
}

// impliedTenant reads the request's own tenant hint.  Only consulted for
// global principals.
func (d *Dispatcher) impliedTenant(r *http.Request) *int64 {
	if v := strings.TrimSpace(r.Header.Get(SiteHeader)); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return &id
		}
		return nil
	}
	if d.hosts == nil {
		return nil
	}
	id, err := d.hosts.SiteID(r.Context(), middleware.StripPort(r.Host))
	if err != nil {
		return nil
	}
	return &id
}

/*──────────────────────────── invocation ───────────────────────────────────*/

type fault struct {
	*HandlerFault
	stack string
}

// invoke runs the handler behind a recover barrier.
func invoke(rt plugin.Route, w http.ResponseWriter, r *http.Request, rc *plugin.RequestContext) (v any, f *fault) {
	defer func() {
		if rec := recover(); rec != nil {
			f = &fault{
				HandlerFault: &HandlerFault{
					Plugin: rt.Plugin, Route: rt.Key(), Panic: true,
					Err: fmt.Errorf("%v", rec),
				},
				stack: string(debug.Stack()),
			}
		}
	}()
	v, err := rt.Handler(w, r, rc)
	if err != nil {
		return nil, &fault{HandlerFault: &HandlerFault{Plugin: rt.Plugin, Route: rt.Key(), Err: err}}
	}
	return v, nil
}

// trackingWriter records whether the handler already started a response.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (t *trackingWriter) Unwrap() http.ResponseWriter { return t.ResponseWriter }
