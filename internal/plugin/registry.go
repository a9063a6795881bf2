// internal/plugin/registry.go
//
// Plugin registry.
//
// Context
// -------
// The registry is populated once, at boot, before the HTTP server or the
// cron scheduler start.  Each plugin is loaded in isolation:
//
//  1. A capability object bound to the plugin slug is created.
//  2. Register(ctx, api) runs synchronously.  Routes and jobs it declares
//     are validated immediately and staged on the capability.
//  3. On success the staged set is committed to the shared tables.  On
//     error or panic it is discarded and the plugin is recorded as failed.
//
// One plugin failing never stops the others from loading.  Seal() freezes
// the tables and hands read-only views to the dispatcher and scheduler.
//
// Notes
// -----
// • Loads are serialized; stage-time conflict checks see every committed
//   registration.
// • Tables created by a failed plugin stay in the database.  CREATE TABLE
//   is idempotent, so the next boot is unaffected.
// • Oxford commas, two spaces after periods.

package plugin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path"
	"runtime/debug"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yanizio/adept-pluginhost/internal/metrics"
	"github.com/yanizio/adept-pluginhost/internal/storage"
)

var (
	// ErrRegistrationConflict covers duplicate routes, duplicate jobs,
	// duplicate slugs, and invalid declarations.  It fails only the plugin
	// that caused it.
	ErrRegistrationConflict = errors.New("plugin: registration conflict")
	// ErrInvalidSchedule marks an unparseable cron expression.
	ErrInvalidSchedule = errors.New("plugin: invalid schedule")
	// ErrSealed is returned by Load after Seal.
	ErrSealed = errors.New("plugin: registry sealed")
	// ErrRegistrationClosed is returned when a plugin registers a route or
	// job after its Register entry point has returned.
	ErrRegistrationClosed = errors.New("plugin: registration closed")
	// ErrNoStorage is returned by DB calls when the host runs without a
	// database.
	ErrNoStorage = errors.New("plugin: storage not configured")
)

// ReservedPrefixes are host-owned paths no plugin may register under.
var ReservedPrefixes = []string{"/api/admin", "/metrics", "/healthz"}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Store is the slice of the storage gateway the registry exposes.
type Store interface {
	CreateTable(ctx context.Context, slug, logical string, cols []storage.Column) error
	Query(ctx context.Context, slug, stmt string, args ...any) ([]storage.Row, error)
	Exec(ctx context.Context, slug, stmt string, args ...any) (sql.Result, error)
}

/*──────────────────────────── status ───────────────────────────────────────*/

// State is the outcome of loading one plugin.
type State string

const (
	StateLoaded State = "loaded"
	StateFailed State = "failed"
)

// Status is the diagnostic record for one plugin.
type Status struct {
	Slug   string   `json:"slug"`
	State  State    `json:"state"`
	Error  string   `json:"error,omitempty"`
	Routes []string `json:"routes"`
	Jobs   []string `json:"jobs"`
	Tables []string `json:"tables"`
}

/*──────────────────────────── registry ─────────────────────────────────────*/

// Registry records everything plugins declare during boot.
type Registry struct {
	store Store
	log   *zap.SugaredLogger

	loadMu sync.Mutex // serializes Load and Seal

	mu       sync.RWMutex
	routes   map[routeKey]Route
	order    []Route
	jobs     []Job
	jobNames map[string]string // job name → owning slug
	slugs    map[string]bool
	status   []Status
	sealed   *Tables
}

// NewRegistry builds an empty registry.  store may be nil when no plugin
// needs storage; DB calls then fail with ErrNoStorage.
func NewRegistry(store Store, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		store:    store,
		log:      log,
		routes:   make(map[routeKey]Route),
		jobNames: make(map[string]string),
		slugs:    make(map[string]bool),
	}
}

// LoadAll loads every plugin in order.  Failures are logged and recorded;
// the joined error is returned for callers that want an exit status.
func (r *Registry) LoadAll(ctx context.Context, plugins []Plugin) error {
	var errs []error
	for _, p := range plugins {
		if err := r.Load(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load runs one plugin's Register entry point and commits what it declared.
func (r *Registry) Load(ctx context.Context, p Plugin) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	r.mu.RLock()
	sealed := r.sealed != nil
	r.mu.RUnlock()
	if sealed {
		return ErrSealed
	}

	slug := p.Slug()
	if !storage.ValidSlug(slug) {
		return r.fail(slug, fmt.Errorf("%w: invalid slug %q", ErrRegistrationConflict, slug))
	}
	r.mu.RLock()
	dup := r.slugs[slug]
	r.mu.RUnlock()
	if dup {
		return r.fail(slug, fmt.Errorf("%w: duplicate slug %q", ErrRegistrationConflict, slug))
	}

	c := &capability{
		reg:  r,
		slug: slug,
		log:  r.log.Named("plugin").With("plugin", slug),
		open: true,
	}
	err := r.invoke(ctx, p, c)
	c.close()
	if err != nil {
		return r.fail(slug, err)
	}
	// Register returned nil but swallowed at least one conflict.
	if err := c.conflictErr(); err != nil {
		return r.fail(slug, err)
	}
	r.commit(c)
	return nil
}

func (r *Registry) invoke(ctx context.Context, p Plugin, api API) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorw("plugin register panicked",
				"plugin", api.Plugin().Slug, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("plugin: register panicked: %v", rec)
		}
	}()
	return p.Register(ctx, api)
}

func (r *Registry) fail(slug string, err error) error {
	err = fmt.Errorf("plugin %q: %w", slug, err)

	r.mu.Lock()
	if storage.ValidSlug(slug) {
		r.slugs[slug] = true
	}
	r.status = append(r.status, Status{
		Slug:   slug,
		State:  StateFailed,
		Error:  err.Error(),
		Routes: []string{},
		Jobs:   []string{},
		Tables: []string{},
	})
	r.mu.Unlock()

	metrics.PluginLoadTotal.WithLabelValues(string(StateFailed)).Inc()
	r.log.Errorw("plugin load failed", "plugin", slug, "err", err)
	return err
}

func (r *Registry) commit(c *capability) {
	st := Status{
		Slug:   c.slug,
		State:  StateLoaded,
		Routes: make([]string, 0, len(c.routes)),
		Jobs:   make([]string, 0, len(c.jobs)),
		Tables: append([]string{}, c.tables...),
	}

	r.mu.Lock()
	for _, rt := range c.routes {
		r.routes[routeKey{rt.Method, rt.Path}] = rt
		r.order = append(r.order, rt)
		st.Routes = append(st.Routes, rt.Key())
	}
	for _, j := range c.jobs {
		r.jobNames[j.Name] = c.slug
		r.jobs = append(r.jobs, j)
		st.Jobs = append(st.Jobs, j.Name)
	}
	r.slugs[c.slug] = true
	r.status = append(r.status, st)
	nRoutes, nJobs := len(r.routes), len(r.jobs)
	r.mu.Unlock()

	metrics.PluginLoadTotal.WithLabelValues(string(StateLoaded)).Inc()
	metrics.PluginRoutes.Set(float64(nRoutes))
	metrics.PluginJobs.Set(float64(nJobs))
	r.log.Infow("plugin loaded",
		"plugin", c.slug, "routes", len(c.routes), "jobs", len(c.jobs), "tables", len(c.tables))
}

// Seal freezes the registry.  Later calls return the same tables.
func (r *Registry) Seal() Tables {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed == nil {
		r.sealed = &Tables{
			Routes: newRouteTable(r.order),
			jobs:   append([]Job(nil), r.jobs...),
		}
		r.log.Infow("registry sealed", "routes", len(r.order), "jobs", len(r.jobs))
	}
	return *r.sealed
}

// Plugins reports every load attempt in order.
func (r *Registry) Plugins() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, len(r.status))
	for i, s := range r.status {
		s.Routes = append([]string{}, s.Routes...)
		s.Jobs = append([]string{}, s.Jobs...)
		s.Tables = append([]string{}, s.Tables...)
		out[i] = s
	}
	return out
}

/*──────────────────────────── validation ───────────────────────────────────*/

func validatePath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrRegistrationConflict, p)
	}
	if strings.ContainsAny(p, "?# \t\r\n") || path.Clean(p) != p {
		return fmt.Errorf("%w: path %q is not canonical", ErrRegistrationConflict, p)
	}
	for _, base := range ReservedPrefixes {
		if p == base || strings.HasPrefix(p, base+"/") {
			return fmt.Errorf("%w: path %q is reserved by the host", ErrRegistrationConflict, p)
		}
	}
	return nil
}

func (r *Registry) routeTaken(k routeKey) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[k]
	return rt.Plugin, ok
}

func (r *Registry) jobTaken(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.jobNames[name]
	return owner, ok
}
