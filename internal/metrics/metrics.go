// Package metrics holds Prometheus instruments that are used across the
// host.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

/*──────────────────────────── tenant cache ─────────────────────────────────*/

var (
	ActiveTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_tenants",
			Help: "Number of host to tenant mappings currently cached.",
		})

	TenantLoadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_load_total",
			Help: "Cumulative number of tenant lookups loaded from the database.",
		})

	TenantLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_load_errors_total",
			Help: "Cumulative number of tenant lookup errors.",
		})

	TenantEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_evict_total",
			Help: "Cumulative number of tenants evicted from the cache.",
		})
)

/*──────────────────────────── plugin registry ──────────────────────────────*/

var (
	// PluginLoadTotal is labelled result="loaded"|"failed".
	PluginLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugin_load_total",
			Help: "Plugin registration attempts by result.",
		}, []string{"result"})

	PluginRoutes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plugin_routes",
			Help: "Routes committed to the route table.",
		})

	PluginJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plugin_jobs",
			Help: "Jobs committed to the job table.",
		})
)

/*──────────────────────────── dispatch / cron ──────────────────────────────*/

var (
	// DispatchRequestsTotal outcome is one of ok, unauthorized, forbidden,
	// not_found, fault.
	DispatchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Requests handled by the plugin dispatcher.",
		}, []string{"plugin", "outcome"})

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Plugin handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"plugin"})

	// CronInvocationsTotal result is ok or fault.
	CronInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cron_invocations_total",
			Help: "Cron handler invocations, one per tenant per tick.",
		}, []string{"job", "result"})
)

func init() {
	prometheus.MustRegister(
		ActiveTenants,
		TenantLoadTotal,
		TenantLoadErrorsTotal,
		TenantEvictTotal,
		PluginLoadTotal,
		PluginRoutes,
		PluginJobs,
		DispatchRequestsTotal,
		DispatchDuration,
		CronInvocationsTotal,
	)
}
