// internal/plugin/plugin.go
//
// Plugin contract and the boot-time module list (cycle-free).
//
// Each concrete plugin lives under plugins/<slug> and calls plugin.Add()
// in an init() function.  cmd/web blank-imports the plugins it ships, and
// the boot sequence hands All() to Registry.LoadAll.
//
// Notes
// -----
// • All() preserves init order, so load order is deterministic for a given
//   import set.
// • Oxford commas, two spaces after periods.

package plugin

import (
	"context"
	"sync"
)

// Plugin contract.
//
// Register is called exactly once, synchronously, during boot.  Everything
// the plugin declares through api is staged and only becomes visible when
// Register returns nil.  Returning an error (or panicking) discards the
// staged routes and jobs.
//
//	func (p *hello) Register(ctx context.Context, api plugin.API) error {
//		if err := api.DB().CreateTable(ctx, "visits", cols); err != nil {
//			return err
//		}
//		return api.RegisterRoute("GET", "/api/plugins/hello/ping", ping, plugin.RouteOptions{})
//	}
type Plugin interface {
	Slug() string
	Register(ctx context.Context, api API) error
}

var (
	mu      sync.RWMutex
	modules []Plugin
)

// Add is invoked from plugin init() functions.
func Add(p Plugin) {
	mu.Lock()
	modules = append(modules, p)
	mu.Unlock()
}

// All returns every added plugin in init order.
func All() []Plugin {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Plugin, len(modules))
	copy(out, modules)
	return out
}
