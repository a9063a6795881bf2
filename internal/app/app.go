// internal/app/app.go
//
// Boot sequence and HTTP surface for the plugin host.
//
// Workflow
// --------
//
//  1. Resolve secrets (Vault only when the config holds `vault:` refs).
//
//  2. Load config, start the daily rotating logger.
//
//  3. Open the global DB pool.
//
//  4. Load every plugin into the registry, then seal it.  A failed plugin
//     is logged and skipped; the host keeps booting.
//
//  5. Build the credential resolver, tenant cache, dispatcher, and
//     scheduler from the sealed tables.
//
//  6. Serve:  chi router with request-id, security headers, and
//     ForceHTTPS; host routes (/metrics, /healthz, /api/admin/plugins,
//     /api/admin/routes); everything else falls through to the plugin
//     dispatcher.
//
//  7. SIGHUP re-reads the config and applies the new log level.
//
// Notes
// -----
// • New() takes an open *sqlx.DB so tests can pass a sqlmock handle.
// • Oxford commas, two spaces after periods.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/adept-pluginhost/internal/acl"
	"github.com/yanizio/adept-pluginhost/internal/auth"
	"github.com/yanizio/adept-pluginhost/internal/config"
	"github.com/yanizio/adept-pluginhost/internal/database"
	"github.com/yanizio/adept-pluginhost/internal/dispatch"
	"github.com/yanizio/adept-pluginhost/internal/logger"
	"github.com/yanizio/adept-pluginhost/internal/middleware"
	"github.com/yanizio/adept-pluginhost/internal/plugin"
	"github.com/yanizio/adept-pluginhost/internal/requestinfo"
	"github.com/yanizio/adept-pluginhost/internal/respond"
	"github.com/yanizio/adept-pluginhost/internal/scheduler"
	"github.com/yanizio/adept-pluginhost/internal/server"
	"github.com/yanizio/adept-pluginhost/internal/site"
	"github.com/yanizio/adept-pluginhost/internal/storage"
	"github.com/yanizio/adept-pluginhost/internal/tenant"
	"github.com/yanizio/adept-pluginhost/internal/vault"
)

// ShutdownGrace bounds graceful HTTP shutdown.
const ShutdownGrace = 10 * time.Second

// AdminPolicy guards the host-owned /api/admin routes.
var AdminPolicy = acl.Policy{AllSites: true, GlobalOnly: true, Roles: []auth.Role{auth.RoleAdmin}}

// App holds every long-lived component.
type App struct {
	Config     *config.Config
	Log        *zap.SugaredLogger
	DB         *sqlx.DB
	Registry   *plugin.Registry
	Tables     plugin.Tables
	Resolver   *auth.Resolver
	Sites      *site.Directory
	Tenants    *tenant.Cache
	Info       *requestinfo.Parser
	Dispatcher *dispatch.Dispatcher
	Scheduler  *scheduler.Scheduler
}

/*──────────────────────────── boot ─────────────────────────────────────────*/

// Boot runs the full production boot sequence with the given plugins.
func Boot(ctx context.Context, plugins []plugin.Plugin) (*App, error) {
	var secrets config.SecretSource
	if config.HasSecretRefs() {
		vc, err := vault.New(ctx, zap.S())
		if err != nil {
			return nil, fmt.Errorf("vault: %w", err)
		}
		secrets = vc
	}

	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.Paths.Root, cfg.Log.Level, cfg.Log.Tee || runningInTTY())
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	dsn, err := database.BuildDSN(cfg.Database.GlobalDSN, cfg.Database.GlobalPassword)
	if err != nil {
		return nil, err
	}
	log.Infow("connecting to global DB")
	db, err := database.Open(ctx, dsn, database.Pool{MaxOpen: cfg.Database.MaxOpen, MaxIdle: cfg.Database.MaxIdle})
	if err != nil {
		return nil, fmt.Errorf("connect global DB: %w", err)
	}
	log.Infow("global DB online")

	a, err := New(ctx, cfg, db, log, plugins)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// New wires the components around an open database handle.
func New(ctx context.Context, cfg *config.Config, db *sqlx.DB, log *zap.SugaredLogger, plugins []plugin.Plugin) (*App, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	res, err := auth.NewResolver([]byte(cfg.Auth.SigningKey),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithLeeway(cfg.Auth.Leeway))
	if err != nil {
		return nil, err
	}

	reg := plugin.NewRegistry(storage.NewGateway(db, log), log.Named("plugins"))
	if err := reg.LoadAll(ctx, plugins); err != nil {
		log.Warnw("plugins failed to load", "err", err)
	}
	tables := reg.Seal()
	log.Infow("plugin registry sealed", "routes", tables.Routes.Len(), "jobs", len(tables.Jobs()))

	loc, err := time.LoadLocation(cfg.Cron.Timezone)
	if err != nil {
		return nil, fmt.Errorf("cron timezone: %w", err)
	}

	info, err := requestinfo.NewParser(cfg.GeoIP.Path)
	if err != nil {
		return nil, err
	}

	dir := site.NewDirectory(db)
	cache := tenant.New(dir, tenant.Options{LocalhostAlias: cfg.Database.LocalhostAlias}, log)

	a := &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Registry: reg,
		Tables:   tables,
		Resolver: res,
		Sites:    dir,
		Tenants:  cache,
		Info:     info,
		Dispatcher: dispatch.New(tables.Routes, res,
			dispatch.WithHostResolver(cache),
			dispatch.WithRequestInfo(info),
			dispatch.WithCookie(cfg.Auth.CookieName),
			dispatch.WithLogger(log)),
		Scheduler: scheduler.New(tables.Jobs(), dir,
			scheduler.WithConcurrency(cfg.Cron.Concurrency),
			scheduler.WithLocation(loc),
			scheduler.WithLogger(log)),
	}
	return a, nil
}

/*──────────────────────────── HTTP surface ─────────────────────────────────*/

// Handler returns the root router.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Security,
		middleware.ForceHTTPS(a.Config.HTTP.ForceHTTPS, a.Tenants),
	)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", a.healthz)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(acl.Authenticate(a.Resolver, a.Config.Auth.CookieName), acl.Require(AdminPolicy))
		r.Get("/plugins", func(w http.ResponseWriter, r *http.Request) {
			uid, _ := auth.UserID(r.Context())
			a.Log.Debugw("admin: plugins listed", "subject", uid)
			respond.JSON(w, http.StatusOK, a.Registry.Plugins())
		})
		r.Get("/routes", func(w http.ResponseWriter, r *http.Request) {
			uid, _ := auth.UserID(r.Context())
			a.Log.Debugw("admin: routes listed", "subject", uid)
			respond.JSON(w, http.StatusOK, a.RouteInfo())
		})
	})

	r.NotFound(a.Dispatcher.ServeHTTP)
	r.MethodNotAllowed(a.Dispatcher.ServeHTTP)
	return r
}

// RouteInfo is the admin view of one sealed plugin route.
type RouteInfo struct {
	Method     string      `json:"method"`
	Path       string      `json:"path"`
	Plugin     string      `json:"plugin"`
	AllSites   bool        `json:"allSites"`
	GlobalOnly bool        `json:"globalOnly"`
	Roles      []auth.Role `json:"roles"`
}

// RouteInfo lists the sealed route table sorted by path, then method.
func (a *App) RouteInfo() []RouteInfo {
	routes := a.Tables.Routes.Routes()
	out := make([]RouteInfo, 0, len(routes))
	for _, rt := range routes {
		roles := append([]auth.Role{}, rt.Policy.Roles...)
		out = append(out, RouteInfo{
			Method:     rt.Method,
			Path:       rt.Path,
			Plugin:     rt.Plugin,
			AllSites:   rt.Policy.AllSites,
			GlobalOnly: rt.Policy.GlobalOnly,
			Roles:      roles,
		})
	}
	return out
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.DB.PingContext(ctx); err != nil {
		a.Log.Warnw("healthz: db ping failed", "err", err)
		respond.Error(w, http.StatusServiceUnavailable)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Serve runs the HTTP server and, when enabled, the scheduler until ctx is
// cancelled or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	srv := server.New(a.Config.HTTP.ListenAddr, a.Handler(), server.Timeouts{
		Read:  a.Config.HTTP.ReadTimeout,
		Write: a.Config.HTTP.WriteTimeout,
		Idle:  a.Config.HTTP.IdleTimeout,
	})

	if a.Config.Cron.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return err
		}
		defer a.Scheduler.Stop()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := a.Reload(gctx); err != nil {
					a.Log.Errorw("config reload failed", "err", err)
				}
			}
		}
	})
	g.Go(func() error {
		a.Log.Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
		defer cancel()
		a.Log.Infow("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Reload re-reads the configuration and applies the settings that can
// change at runtime (currently the log level).  Listener, pool, and key
// changes need a restart.
func (a *App) Reload(ctx context.Context) error {
	if err := config.Reload(ctx); err != nil {
		return err
	}
	cfg := config.Get()
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	a.Log.Infow("config reloaded", "log_level", cfg.Log.Level)
	return nil
}

// RunJob fires the named job once through the scheduler.  siteID restricts
// a per-site job to one tenant.
func (a *App) RunJob(ctx context.Context, name string, siteID *int64) (scheduler.Report, error) {
	j, ok := a.Tables.Job(name)
	if !ok {
		return scheduler.Report{Job: name}, fmt.Errorf("%w: %q", scheduler.ErrUnknownJob, name)
	}
	a.Log.Infow("running job", "job", j.Name, "plugin", j.Plugin, "expr", j.Expr, "site_id", siteID)
	return a.Scheduler.RunNow(ctx, name, siteID)
}

// Close releases background goroutines and handles.
func (a *App) Close() {
	a.Tenants.Close()
	_ = a.Info.Close()
	_ = a.DB.Close()
	_ = a.Log.Sync()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
