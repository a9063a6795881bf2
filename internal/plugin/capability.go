// internal/plugin/capability.go
//
// Per-plugin capability object.
//
// Context
// -------
// Registry.Load builds one capability for each plugin and hands it to the
// plugin's Register entry point as its API.  Everything declared through
// it is staged here:
//
//	RegisterRoute     → c.routes
//	Cron().Schedule   → c.jobs
//	DB().CreateTable  → c.tables (names only, for diagnostics)
//
// Every conflict found while staging is also kept in c.conflicts.  A plugin
// that ignores the error it was handed still fails its load, so a partial
// registration never goes live.
//
// Notes
// -----
// • The capability closes when Register returns; later calls get
//   ErrRegistrationClosed and are not recorded.
// • DB calls stay usable after close, from handlers and jobs.
// • Oxford commas, two spaces after periods.

package plugin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yanizio/adept-pluginhost/internal/storage"
)

// capability is the API implementation handed to one plugin.  It stages
// declarations until the registry commits or discards them.
type capability struct {
	reg  *Registry
	slug string
	log  *zap.SugaredLogger

	mu     sync.Mutex
	open   bool
	routes []Route
	jobs   []Job
	tables []string

	conflicts []error
}

func (c *capability) Plugin() Descriptor      { return Descriptor{Slug: c.slug} }
func (c *capability) Log() *zap.SugaredLogger { return c.log }
func (c *capability) DB() DB                  { return scopedDB{c: c} }
func (c *capability) Cron() Cron              { return scopedCron{c: c} }

func (c *capability) close() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

// record keeps err when it is a registration conflict raised while the
// capability is still open.
func (c *capability) record(err error) error {
	if err == nil || !errors.Is(err, ErrRegistrationConflict) {
		return err
	}
	c.mu.Lock()
	if c.open {
		c.conflicts = append(c.conflicts, err)
	}
	c.mu.Unlock()
	return err
}

// conflictErr joins every recorded conflict, or returns nil.
func (c *capability) conflictErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.conflicts...)
}

func (c *capability) RegisterRoute(method, p string, h RouteHandler, opts RouteOptions) error {
	return c.record(c.stageRoute(method, p, h, opts))
}

func (c *capability) stageRoute(method, p string, h RouteHandler, opts RouteOptions) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !allowedMethods[method] {
		return fmt.Errorf("%w: method %q not supported", ErrRegistrationConflict, method)
	}
	if err := validatePath(p); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("%w: %s %s has no handler", ErrRegistrationConflict, method, p)
	}
	for _, role := range opts.Roles {
		if !role.Valid() {
			return fmt.Errorf("%w: %s %s lists unknown role %q", ErrRegistrationConflict, method, p, role)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrRegistrationClosed
	}

	k := routeKey{method, p}
	if owner, taken := c.reg.routeTaken(k); taken {
		return fmt.Errorf("%w: %s %s already registered by %q", ErrRegistrationConflict, method, p, owner)
	}
	for _, staged := range c.routes {
		if staged.Method == method && staged.Path == p {
			return fmt.Errorf("%w: %s %s registered twice", ErrRegistrationConflict, method, p)
		}
	}

	c.routes = append(c.routes, Route{
		Method:  method,
		Path:    p,
		Plugin:  c.slug,
		Handler: h,
		Policy:  opts.policy(),
	})
	return nil
}

/*──────────────────────────── cron ─────────────────────────────────────────*/

type scopedCron struct{ c *capability }

func (s scopedCron) Schedule(name, expr string, h JobHandler, opts JobOptions) error {
	return s.c.record(s.stage(name, expr, h, opts))
}

func (s scopedCron) stage(name, expr string, h JobHandler, opts JobOptions) error {
	c := s.c
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: job name is empty", ErrRegistrationConflict)
	}
	if h == nil {
		return fmt.Errorf("%w: job %q has no handler", ErrRegistrationConflict, name)
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrRegistrationClosed
	}
	if owner, taken := c.reg.jobTaken(name); taken {
		return fmt.Errorf("%w: job %q already registered by %q", ErrRegistrationConflict, name, owner)
	}
	for _, staged := range c.jobs {
		if staged.Name == name {
			return fmt.Errorf("%w: job %q registered twice", ErrRegistrationConflict, name)
		}
	}

	c.jobs = append(c.jobs, Job{
		Name:     name,
		Expr:     strings.TrimSpace(expr),
		Plugin:   c.slug,
		Schedule: sched,
		Handler:  h,
		AllSites: opts.AllSites,
	})
	return nil
}

/*──────────────────────────── storage ──────────────────────────────────────*/

type scopedDB struct{ c *capability }

func (d scopedDB) CreateTable(ctx context.Context, logical string, cols []storage.Column) error {
	if d.c.reg.store == nil {
		return ErrNoStorage
	}
	if err := d.c.reg.store.CreateTable(ctx, d.c.slug, logical, cols); err != nil {
		return err
	}
	d.c.mu.Lock()
	if d.c.open {
		d.c.tables = append(d.c.tables, storage.TableName(d.c.slug, logical))
	}
	d.c.mu.Unlock()
	return nil
}

func (d scopedDB) TableName(logical string) string {
	return storage.TableName(d.c.slug, logical)
}

func (d scopedDB) Query(ctx context.Context, stmt string, args ...any) ([]storage.Row, error) {
	if d.c.reg.store == nil {
		return nil, ErrNoStorage
	}
	return d.c.reg.store.Query(ctx, d.c.slug, stmt, args...)
}

func (d scopedDB) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	if d.c.reg.store == nil {
		return nil, ErrNoStorage
	}
	return d.c.reg.store.Exec(ctx, d.c.slug, stmt, args...)
}
