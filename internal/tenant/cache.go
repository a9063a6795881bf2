// internal/tenant/cache.go
//
// Host → tenant id cache.
//
// Context
// -------
// Global principals calling a site route name their tenant implicitly
// through the Host header.  The dispatcher asks this cache, which lazily
// loads the `site` row, keeps the id in a sync.Map, and lets the evictor
// drop idle or surplus entries.
//
// Workflow
// --------
//  1. Fast path: sync.Map hit, bump lastSeen.
//  2. Miss: singleflight on the lookup host so a burst of requests for a
//     cold host issues one query.
//  3. Unknown hosts are not cached; ErrNotFound every time.
//
// Notes
// -----
// • "localhost" resolves through LocalhostAlias for dev instances.
// • Suspended or deleted sites are treated as unknown and never cached.
// • Oxford commas, two spaces after periods.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/adept-pluginhost/internal/metrics"
	"github.com/yanizio/adept-pluginhost/internal/site"
)

// Static defaults.  Override through Options.
const (
	IdleTTL       = 30 * time.Minute
	MaxEntries    = 1000
	EvictInterval = 5 * time.Minute
)

// ErrNotFound is returned when a host is not present in the site table.
var ErrNotFound = errors.New("tenant not found")

// Lookup is the slice of site.Directory the cache needs.
type Lookup interface {
	ByHost(ctx context.Context, host string) (*site.Record, error)
}

// Options tune the cache.  Zero values fall back to the package defaults.
type Options struct {
	IdleTTL        time.Duration
	MaxEntries     int
	EvictInterval  time.Duration
	LocalhostAlias string
}

// Cache lazily maps hosts to site ids.
type Cache struct {
	dir        Lookup
	sfg        singleflight.Group
	m          sync.Map // lookup host → *entry
	idleTTL    time.Duration
	maxEntries int
	alias      string
	log        *zap.SugaredLogger

	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Cache and starts the background evictor.
func New(dir Lookup, opts Options, log *zap.SugaredLogger) *Cache {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = IdleTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = MaxEntries
	}
	if opts.EvictInterval <= 0 {
		opts.EvictInterval = EvictInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Cache{
		dir:        dir,
		idleTTL:    opts.IdleTTL,
		maxEntries: opts.MaxEntries,
		alias:      opts.LocalhostAlias,
		log:        log.Named("tenant"),
		stop:       make(chan struct{}),
	}
	go c.evictLoop(opts.EvictInterval)
	return c
}

// Close stops the evictor.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// SiteID returns the id of the active site serving host.
func (c *Cache) SiteID(ctx context.Context, host string) (int64, error) {
	key := c.lookupHost(host)
	if key == "" {
		return 0, ErrNotFound
	}
	if v, ok := c.m.Load(key); ok {
		ent := v.(*entry)
		atomic.StoreInt64(&ent.lastSeen, time.Now().UnixNano())
		return ent.siteID, nil
	}

	// The load is shared by every waiter, so it must outlive the request
	// that happened to start it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		// Double-check after singleflight barrier.
		if v, ok := c.m.Load(key); ok {
			return v.(*entry).siteID, nil
		}
		rec, err := c.dir.ByHost(loadCtx, key)
		if err != nil {
			if errors.Is(err, site.ErrNotFound) {
				return int64(0), ErrNotFound
			}
			metrics.TenantLoadErrorsTotal.Inc()
			return int64(0), fmt.Errorf("tenant: load %q: %w", key, err)
		}
		if !rec.Active() {
			c.log.Debugw("tenant inactive", "host", key, "site_id", rec.ID)
			return int64(0), ErrNotFound
		}
		c.m.Store(key, &entry{siteID: rec.ID, lastSeen: time.Now().UnixNano()})
		metrics.TenantLoadTotal.Inc()
		metrics.ActiveTenants.Inc()
		c.log.Debugw("tenant cached", "host", key, "site_id", rec.ID)
		return rec.ID, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}
