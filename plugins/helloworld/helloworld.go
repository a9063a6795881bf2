// plugins/helloworld/helloworld.go
//
// hello-world – first-party demo plugin.
//
// Context
// -------
// Shows the whole plugin surface in one file:
//
//   • a table (`visits`) created through the storage gateway,
//   • a site-wide JSON route that records a visit when a tenant is known,
//   • a five-minute heartbeat job that runs once across all sites.
//
// Register in cmd/web with a blank import:
//
//	import _ "github.com/yanizio/adept-pluginhost/plugins/helloworld"
//
// Notes
// -----
// • A global principal calling /ping gets siteId null and no row.
// • Oxford commas, two spaces after periods.
package helloworld

import (
	"context"
	"net/http"

	"github.com/yanizio/adept-pluginhost/internal/plugin"
	"github.com/yanizio/adept-pluginhost/internal/storage"
)

// Slug is the plugin identifier.
const Slug = "hello-world"

// compile-time assertion
var _ plugin.Plugin = (*Plugin)(nil)

// Plugin implements plugin.Plugin.
type Plugin struct {
	db plugin.DB
}

// Response is the /ping payload.
type Response struct {
	OK      bool   `json:"ok"`
	Plugin  string `json:"plugin"`
	SiteID  *int64 `json:"siteId"`
	Message string `json:"message"`
}

func (p *Plugin) Slug() string { return Slug }

// Register declares the table, route, and job.
func (p *Plugin) Register(ctx context.Context, api plugin.API) error {
	p.db = api.DB()

	if err := p.db.CreateTable(ctx, "visits", []storage.Column{
		{Name: "id", Type: "BIGINT", PrimaryKey: true, AutoIncrement: true},
		{Name: "site_id", Type: "BIGINT", NotNull: true},
		{Name: "created_at", Type: "TIMESTAMP", Default: "CURRENT_TIMESTAMP"},
	}); err != nil {
		return err
	}

	if err := api.RegisterRoute(http.MethodGet, "/api/plugins/hello-world/ping", p.ping,
		plugin.RouteOptions{AllSites: true}); err != nil {
		return err
	}

	log := api.Log()
	return api.Cron().Schedule("hello-world.heartbeat", "*/5 * * * *",
		func(_ context.Context, jc plugin.JobContext) error {
			log.Infow("heartbeat", "at", jc.Now)
			return nil
		}, plugin.JobOptions{AllSites: true})
}

func (p *Plugin) ping(_ http.ResponseWriter, r *http.Request, rc *plugin.RequestContext) (any, error) {
	if rc.SiteID != nil {
		stmt := "INSERT INTO " + p.db.TableName("visits") + " (site_id) VALUES (?)"
		if _, err := p.db.Exec(r.Context(), stmt, *rc.SiteID); err != nil {
			return nil, err
		}
	}
	return Response{OK: true, Plugin: Slug, SiteID: rc.SiteID, Message: "Hello from plugin"}, nil
}

// Register plugin at package init.
func init() {
	plugin.Add(&Plugin{})
}
