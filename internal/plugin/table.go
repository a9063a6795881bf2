// internal/plugin/table.go
//
// Immutable route and job tables produced by Registry.Seal.
//
// After boot the dispatcher and scheduler only ever read these values, so
// neither needs a lock.  Every accessor returns copies.

package plugin

import (
	"sort"

	"github.com/robfig/cron/v3"

	"github.com/yanizio/adept-pluginhost/internal/acl"
)

// Route is one committed route registration.
type Route struct {
	Method  string
	Path    string
	Plugin  string
	Handler RouteHandler
	Policy  acl.Policy
}

// Key renders "METHOD /path".
func (r Route) Key() string { return r.Method + " " + r.Path }

// Job is one committed job registration.
type Job struct {
	Name     string
	Expr     string
	Plugin   string
	Schedule cron.Schedule
	Handler  JobHandler
	AllSites bool
}

type routeKey struct {
	method string
	path   string
}

// RouteTable maps exact (method, path) pairs to routes.
type RouteTable struct {
	byKey map[routeKey]Route
}

func newRouteTable(routes []Route) *RouteTable {
	t := &RouteTable{byKey: make(map[routeKey]Route, len(routes))}
	for _, r := range routes {
		t.byKey[routeKey{r.Method, r.Path}] = r
	}
	return t
}

// Lookup returns the route registered for (method, path).
func (t *RouteTable) Lookup(method, path string) (Route, bool) {
	if t == nil {
		return Route{}, false
	}
	r, ok := t.byKey[routeKey{method, path}]
	return r, ok
}

// Len reports the number of routes.
func (t *RouteTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byKey)
}

// Routes lists every route sorted by path, then method.
func (t *RouteTable) Routes() []Route {
	if t == nil {
		return nil
	}
	out := make([]Route, 0, len(t.byKey))
	for _, r := range t.byKey {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Tables is the sealed output of a boot.
type Tables struct {
	Routes *RouteTable
	jobs   []Job
}

// Jobs returns the job table in registration order.
func (t Tables) Jobs() []Job {
	out := make([]Job, len(t.jobs))
	copy(out, t.jobs)
	return out
}

// Job looks a job up by name.
func (t Tables) Job(name string) (Job, bool) {
	for _, j := range t.jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}
