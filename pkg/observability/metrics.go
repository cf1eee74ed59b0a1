package observability

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Token lifecycle metrics
	TokensIssuedTotal     *prometheus.CounterVec
	TokensRevokedTotal    prometheus.Counter
	TokenValidationsTotal *prometheus.CounterVec
	TokensPurgedTotal     prometheus.Counter

	// Authorization metrics
	PermissionResolutionsTotal   *prometheus.CounterVec
	PermissionResolutionDuration prometheus.Histogram
	PolicyEvaluationErrorsTotal  prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"realm", "token_type"},
		),
		TokensRevokedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
		),
		TokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_token_validations_total",
				Help: "Total number of token validations",
			},
			[]string{"result"},
		),
		TokensPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_tokens_purged_total",
				Help: "Total number of expired tokens purged",
			},
		),

		PermissionResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_permission_resolutions_total",
				Help: "Total number of effective-permission resolutions",
			},
			[]string{"realm", "status"},
		),
		PermissionResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gatehouse_permission_resolution_duration_seconds",
				Help:    "Effective-permission resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		PolicyEvaluationErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_policy_evaluation_errors_total",
				Help: "Total number of predicate-runner failures (fail-closed denials)",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.TokensIssuedTotal,
		m.TokensRevokedTotal,
		m.TokenValidationsTotal,
		m.TokensPurgedTotal,
		m.PermissionResolutionsTotal,
		m.PermissionResolutionDuration,
		m.PolicyEvaluationErrorsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// UpdateDBStats copies connection pool stats into the gauges.
func (m *Metrics) UpdateDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// Handler returns the /metrics handler for the registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
