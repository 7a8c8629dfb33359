// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	AuditEventsTotal     *prometheus.CounterVec
	ReferralTransitions  *prometheus.CounterVec
	PatientsMaterialized prometheus.Counter
	AppointmentsTotal    *prometheus.CounterVec
	PolicyDenials        *prometheus.CounterVec
	RateLimited          prometheus.Counter

	DBConnections *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewCollector registers every collector on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewCollector(namespace string, reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		AuditEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Audit events written by action and entity type.",
		}, []string{"action", "entity_type"}),

		ReferralTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "care",
			Name:      "referral_transitions_total",
			Help:      "Accepted referral status transitions.",
		}, []string{"from", "to"}),

		PatientsMaterialized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "care",
			Name:      "patients_materialized_total",
			Help:      "Patient records created from referrals.",
		}),

		AppointmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "care",
			Name:      "appointments_total",
			Help:      "Appointments by resulting status.",
		}, []string{"status"}),

		PolicyDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "denials_total",
			Help:      "Requests answered with 403, by route.",
		}, []string{"path"}),

		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429.",
		}),

		DBConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connections",
			Help:      "Pool connections by state.",
		}, []string{"state"}),

		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count, latency and in-flight requests. The
// route template is used as the path label, so /referrals/:id is one series.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			c.InFlightGauge.Inc()
			defer c.InFlightGauge.Dec()

			start := time.Now()
			err := next(ec)

			status := ec.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			path := ec.Path()
			if path == "" {
				path = "unmatched"
			}
			labels := []string{ec.Request().Method, path, strconv.Itoa(status)}
			c.RequestsTotal.WithLabelValues(labels...).Inc()
			c.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			if status == http.StatusForbidden {
				c.PolicyDenials.WithLabelValues(path).Inc()
			}
			return err
		}
	}
}

// ObservePool copies pgxpool statistics into the connection gauges.
func (c *Collector) ObservePool(pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	s := pool.Stat()
	c.DBConnections.WithLabelValues("total").Set(float64(s.TotalConns()))
	c.DBConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	c.DBConnections.WithLabelValues("acquired").Set(float64(s.AcquiredConns()))
}
