// Package metrics exposes Prometheus collectors for disbursements, claims and
// HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "faucet"

// Collector owns a private registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	disbursements        *prometheus.CounterVec
	disbursementDuration prometheus.Histogram
	claims               *prometheus.CounterVec
	masterBalance        prometheus.Gauge
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// NewCollector registers every faucet collector under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		disbursements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "disbursement",
			Name:      "requests_total",
			Help:      "Disbursement requests by outcome.",
		}, []string{"outcome"}),
		disbursementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "disbursement",
			Name:      "transfer_duration_seconds",
			Help:      "Time from submission to confirmation of a transfer.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "attempts_total",
			Help:      "Faucet claim attempts by success.",
		}, []string{"success"}),
		masterBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "master",
			Name:      "balance_wei",
			Help:      "Last observed master wallet balance in wei.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		c.disbursements,
		c.disbursementDuration,
		c.claims,
		c.masterBalance,
		c.httpRequests,
		c.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordDisbursement counts one orchestrator outcome such as "completed",
// "rejected" or "rate_limited".
func (c *Collector) RecordDisbursement(outcome string) {
	if c == nil {
		return
	}
	c.disbursements.WithLabelValues(outcome).Inc()
}

// ObserveTransfer records how long a transfer took to settle.
func (c *Collector) ObserveTransfer(d time.Duration) {
	if c == nil {
		return
	}
	c.disbursementDuration.Observe(d.Seconds())
}

// RecordClaim counts one claim attempt.
func (c *Collector) RecordClaim(success bool) {
	if c == nil {
		return
	}
	c.claims.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// SetMasterBalance records the latest master balance reading.
func (c *Collector) SetMasterBalance(wei float64) {
	if c == nil {
		return
	}
	c.masterBalance.Set(wei)
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
