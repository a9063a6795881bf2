// evictor.go houses the eviction loop for Cache.  Every EvictInterval it
// scans the map and removes:
//
//   - hosts idle longer than idleTTL
//   - least-recently-used hosts when map size exceeds maxEntries
//
// Each eviction event is logged and updates Prometheus counters.
package tenant

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/yanizio/adept-pluginhost/internal/metrics"
)

func (c *Cache) evictLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-t.C:
			c.evict(now)
		}
	}
}

// evict runs one idle pass and one LRU pass.  It returns the number of
// entries removed.
func (c *Cache) evict(now time.Time) int {
	var count, removed int

	// ----------------------------------------------------------------
	// Idle eviction pass
	// ----------------------------------------------------------------
	c.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		idle := time.Duration(now.UnixNano() - atomic.LoadInt64(&ent.lastSeen))
		if idle > c.idleTTL {
			c.drop(key.(string), "idle", idle)
			removed++
			return true
		}
		count++
		return true
	})

	// ----------------------------------------------------------------
	// LRU eviction pass
	// ----------------------------------------------------------------
	if c.maxEntries > 0 && count > c.maxEntries {
		type kv struct {
			key string
			at  int64
		}
		all := make([]kv, 0, count)
		c.m.Range(func(key, value any) bool {
			all = append(all, kv{key: key.(string), at: atomic.LoadInt64(&value.(*entry).lastSeen)})
			return true
		})
		sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })
		for i := 0; i < len(all)-c.maxEntries; i++ {
			c.drop(all[i].key, "lru", 0)
			removed++
		}
	}
	return removed
}

func (c *Cache) drop(key, why string, idle time.Duration) {
	if _, loaded := c.m.LoadAndDelete(key); !loaded {
		return
	}
	c.log.Debugw("tenant evicted", "host", key, "reason", why, "idle", idle.Truncate(time.Second))
	metrics.TenantEvictTotal.Inc()
	metrics.ActiveTenants.Dec()
}
